package leads

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadfetch/internal/model"
	"github.com/sells-group/leadfetch/internal/resilience"
	"github.com/sells-group/leadfetch/pkg/search"
)

// DefaultConcurrency is the per-page preparation fan-out.
const DefaultConcurrency = 5

// EmailStatusUnavailable marks a lead whose email could not be revealed.
const EmailStatusUnavailable = "unavailable"

// Revealer unlocks hidden contact details. search.Client satisfies it.
type Revealer interface {
	Reveal(ctx context.Context, personID string) (*search.RevealResult, error)
}

// SuppressionLookup reports which emails a user has opted out of.
type SuppressionLookup interface {
	SuppressedEmails(ctx context.Context, userID string, emails []string) (map[string]bool, error)
}

// Target identifies the campaign run that owns a batch of leads.
type Target struct {
	Campaign  *model.Campaign
	JobID     string
	AttemptID string
}

// Batch holds the two projections of one prepared page. Rows[i] belongs
// to Leads[i].
type Batch struct {
	Leads []model.Lead
	Rows  []model.SheetRow
}

// Len returns the number of prepared leads.
func (b *Batch) Len() int { return len(b.Leads) }

// PreparerOption configures a Preparer.
type PreparerOption func(*Preparer)

// WithRevealer enables email reveal through a circuit breaker.
func WithRevealer(r Revealer, cb *resilience.CircuitBreaker) PreparerOption {
	return func(p *Preparer) {
		p.revealer = r
		if cb != nil {
			p.breaker = cb
		}
	}
}

// WithSummarizer replaces the template summarizer.
func WithSummarizer(s Summarizer) PreparerOption {
	return func(p *Preparer) { p.summarizer = s }
}

// WithSuppressions enables suppression-list marking.
func WithSuppressions(s SuppressionLookup) PreparerOption {
	return func(p *Preparer) { p.suppressions = s }
}

// WithConcurrency sets the number of leads prepared in parallel.
func WithConcurrency(n int) PreparerOption {
	return func(p *Preparer) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) PreparerOption {
	return func(p *Preparer) { p.now = now }
}

// Preparer normalizes and enriches raw search hits.
type Preparer struct {
	revealer     Revealer
	breaker      *resilience.CircuitBreaker
	summarizer   Summarizer
	suppressions SuppressionLookup
	concurrency  int
	now          func() time.Time
}

// NewPreparer creates a Preparer. Without options it only normalizes and
// uses template summaries.
func NewPreparer(opts ...PreparerOption) *Preparer {
	p := &Preparer{
		breaker:     resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{}),
		summarizer:  TemplateSummarizer{},
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Prepare converts people into leads in input order. Enrichment failures
// degrade the lead instead of failing the batch; only context cancellation
// and suppression lookups return errors. People with neither an email nor
// an external ID are dropped.
func (p *Preparer) Prepare(ctx context.Context, t Target, people []search.Person) (*Batch, error) {
	prepared := make([]*model.Lead, len(people))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i := range people {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			prepared[i] = p.prepareOne(gCtx, t, people[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "leads: prepare")
	}

	batch := &Batch{}
	for _, l := range prepared {
		if l != nil {
			batch.Leads = append(batch.Leads, *l)
		}
	}
	if err := p.markSuppressed(ctx, t.Campaign.UserID, batch.Leads); err != nil {
		return nil, err
	}

	batch.Rows = make([]model.SheetRow, len(batch.Leads))
	for i := range batch.Leads {
		batch.Rows[i] = model.NewSheetRow(&batch.Leads[i])
	}
	return batch, nil
}

func (p *Preparer) prepareOne(ctx context.Context, t Target, person search.Person) *model.Lead {
	email := NormalizeEmail(person.Email)
	status := strings.ToLower(strings.TrimSpace(person.EmailStatus))

	if search.IsLockedEmail(email, status) {
		email, status = p.reveal(ctx, person)
	}

	key := DedupKey(email, person.ID)
	if key == "" {
		zap.L().Debug("leads: dropping person without email or id", zap.String("name", person.Name))
		return nil
	}

	c := t.Campaign
	l := &model.Lead{
		ID:          uuid.NewString(),
		CampaignID:  c.ID,
		UserID:      c.UserID,
		JobID:       t.JobID,
		AttemptID:   t.AttemptID,
		ExternalID:  person.ID,
		Email:       email,
		EmailStatus: status,
		IsValid:     email != "" && ValidEmail(email),
		FirstName:   NormalizeName(person.FirstName),
		LastName:    NormalizeName(person.LastName),
		FullName:    NormalizeName(person.Name),
		Title:       strings.TrimSpace(person.Title),
		Company:     strings.TrimSpace(person.Organization.Name),
		Domain:      PersonDomain(person),
		WebsiteURL:  NormalizeURL(person.Organization.WebsiteURL),
		LinkedInURL: NormalizeURL(person.LinkedInURL),
		City:        strings.TrimSpace(person.City),
		State:       strings.TrimSpace(person.State),
		Country:     strings.TrimSpace(person.Country),
		DedupScope:  c.DedupScope(),
		DedupKey:    key,
		CreatedAt:   p.now().UTC(),
	}
	if l.FullName == "" {
		l.FullName = strings.TrimSpace(l.FirstName + " " + l.LastName)
	}
	l.Summary = p.summarizer.Summarize(ctx, l)
	return l
}

// reveal returns the unlocked email and status, or ("", unavailable).
func (p *Preparer) reveal(ctx context.Context, person search.Person) (string, string) {
	if p.revealer == nil || person.ID == "" {
		return "", EmailStatusUnavailable
	}

	res, err := resilience.ExecuteVal(ctx, p.breaker, func(ctx context.Context) (*search.RevealResult, error) {
		return p.revealer.Reveal(ctx, person.ID)
	})
	if err != nil {
		zap.L().Debug("leads: reveal failed", zap.String("person_id", person.ID), zap.Error(err))
		return "", EmailStatusUnavailable
	}
	if !res.Available {
		return "", EmailStatusUnavailable
	}

	status := strings.ToLower(res.Person.EmailStatus)
	if status == "" {
		status = "verified"
	}
	return NormalizeEmail(res.Person.Email), status
}

func (p *Preparer) markSuppressed(ctx context.Context, userID string, leads []model.Lead) error {
	if p.suppressions == nil || len(leads) == 0 {
		return nil
	}
	emails := make([]string, 0, len(leads))
	for _, l := range leads {
		if l.Email != "" {
			emails = append(emails, l.Email)
		}
	}
	if len(emails) == 0 {
		return nil
	}

	suppressed, err := p.suppressions.SuppressedEmails(ctx, userID, emails)
	if err != nil {
		return eris.Wrap(err, "leads: suppression lookup")
	}
	for i := range leads {
		if suppressed[leads[i].Email] {
			leads[i].IsSuppressed = true
		}
	}
	return nil
}

// PersonDomain returns the normalized employer domain of a search hit.
func PersonDomain(person search.Person) string {
	if d := NormalizeDomain(person.Organization.PrimaryDomain); d != "" {
		return d
	}
	return NormalizeDomain(person.Organization.WebsiteURL)
}
