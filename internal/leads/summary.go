package leads

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/leadfetch/internal/model"
	"github.com/sells-group/leadfetch/pkg/anthropic"
)

// Summarizer writes the one-line blurb stored with each lead. It never
// fails: implementations fall back to TemplateSummary.
type Summarizer interface {
	Summarize(ctx context.Context, l *model.Lead) string
}

// TemplateSummarizer produces deterministic summaries without any API calls.
type TemplateSummarizer struct{}

// Summarize implements Summarizer.
func (TemplateSummarizer) Summarize(_ context.Context, l *model.Lead) string {
	return TemplateSummary(l)
}

// TemplateSummary renders "<name>, <title> at <company> (<location>)",
// omitting whatever is unknown.
func TemplateSummary(l *model.Lead) string {
	name := l.FullName
	if name == "" {
		name = strings.TrimSpace(l.FirstName + " " + l.LastName)
	}
	if name == "" {
		name = "Unknown contact"
	}

	var b strings.Builder
	b.WriteString(name)
	switch {
	case l.Title != "" && l.Company != "":
		fmt.Fprintf(&b, ", %s at %s", l.Title, l.Company)
	case l.Title != "":
		fmt.Fprintf(&b, ", %s", l.Title)
	case l.Company != "":
		fmt.Fprintf(&b, " at %s", l.Company)
	}
	if loc := location(l); loc != "" {
		fmt.Fprintf(&b, " (%s)", loc)
	}
	return b.String()
}

func location(l *model.Lead) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{l.City, l.State, l.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

const summarySystemPrompt = `You write one-sentence prospect summaries for a sales team. Use only the facts given. No greetings, no speculation, at most 30 words.`

// AISummarizer asks a small model for the summary and falls back to the
// template on any failure.
type AISummarizer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAISummarizer returns a Summarizer backed by client.
func NewAISummarizer(client anthropic.Client, model string, maxTokens int64) *AISummarizer {
	if maxTokens <= 0 {
		maxTokens = 150
	}
	return &AISummarizer{client: client, model: model, maxTokens: maxTokens}
}

// Summarize implements Summarizer.
func (s *AISummarizer) Summarize(ctx context.Context, l *model.Lead) string {
	fallback := TemplateSummary(l)
	if s.client == nil {
		return fallback
	}

	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		System:    summarySystemPrompt,
		Messages:  []anthropic.Message{{Role: "user", Content: summaryPrompt(l)}},
	})
	if err != nil {
		zap.L().Debug("leads: summary fallback", zap.String("dedup_key", l.DedupKey), zap.Error(err))
		return fallback
	}
	resp.Usage.LogCost(s.model, "summary")

	if text := resp.Text(); text != "" {
		return text
	}
	return fallback
}

func summaryPrompt(l *model.Lead) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", l.FullName)
	fmt.Fprintf(&b, "Title: %s\n", l.Title)
	fmt.Fprintf(&b, "Company: %s\n", l.Company)
	if l.Domain != "" {
		fmt.Fprintf(&b, "Domain: %s\n", l.Domain)
	}
	if loc := location(l); loc != "" {
		fmt.Fprintf(&b, "Location: %s\n", loc)
	}
	return b.String()
}
