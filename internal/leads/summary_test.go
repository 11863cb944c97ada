package leads

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/sells-group/leadfetch/internal/model"
	"github.com/sells-group/leadfetch/pkg/anthropic"
)

type mockAI struct {
	mock.Mock
}

func (m *mockAI) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*anthropic.MessageResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestTemplateSummary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		lead model.Lead
		want string
	}{
		{"full", model.Lead{FullName: "Ada Lovelace", Title: "CTO", Company: "Acme", City: "Austin", Country: "US"}, "Ada Lovelace, CTO at Acme (Austin, US)"},
		{"title only", model.Lead{FullName: "Ada Lovelace", Title: "CTO"}, "Ada Lovelace, CTO"},
		{"company only", model.Lead{FirstName: "Ada", LastName: "Lovelace", Company: "Acme"}, "Ada Lovelace at Acme"},
		{"nothing", model.Lead{}, "Unknown contact"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, TemplateSummary(&tt.lead))
		})
	}
}

func TestAISummarizer_UsesModelText(t *testing.T) {
	ai := &mockAI{}
	ai.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" && req.MaxTokens == 150 &&
			req.System != "" && len(req.Messages) == 1
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "Ada runs engineering at Acme."}},
	}, nil)

	s := NewAISummarizer(ai, "claude-haiku-4-5-20251001", 0)
	got := s.Summarize(context.Background(), &model.Lead{FullName: "Ada Lovelace", Title: "CTO", Company: "Acme"})
	assert.Equal(t, "Ada runs engineering at Acme.", got)
	ai.AssertExpectations(t)
}

func TestAISummarizer_FallsBackOnError(t *testing.T) {
	ai := &mockAI{}
	ai.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("overloaded"))

	s := NewAISummarizer(ai, "claude-haiku-4-5-20251001", 100)
	got := s.Summarize(context.Background(), &model.Lead{FullName: "Ada Lovelace", Title: "CTO", Company: "Acme"})
	assert.Equal(t, "Ada Lovelace, CTO at Acme", got)
}

func TestAISummarizer_FallsBackOnEmptyText(t *testing.T) {
	ai := &mockAI{}
	ai.On("CreateMessage", mock.Anything, mock.Anything).Return(&anthropic.MessageResponse{}, nil)

	s := NewAISummarizer(ai, "m", 100)
	assert.Equal(t, "Ada Lovelace", s.Summarize(context.Background(), &model.Lead{FullName: "Ada Lovelace"}))
}

func TestAISummarizer_NilClient(t *testing.T) {
	s := NewAISummarizer(nil, "m", 100)
	assert.Equal(t, "Ada Lovelace", s.Summarize(context.Background(), &model.Lead{FullName: "Ada Lovelace"}))
}
