package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/leadfetch/internal/model"
	"github.com/sells-group/leadfetch/internal/pipeline"
	"github.com/sells-group/leadfetch/internal/resilience"
)

// --- Runner ---

type runnerFunc func(ctx context.Context, p model.JobPayload) (*pipeline.Result, error)

func (f runnerFunc) Run(ctx context.Context, p model.JobPayload) (*pipeline.Result, error) {
	return f(ctx, p)
}

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) EnqueueDLQ(ctx context.Context, e resilience.DLQEntry) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *mockStore) MarkStaleJobs(ctx context.Context, cutoff time.Time, reason string) (int, error) {
	args := m.Called(ctx, cutoff, reason)
	return args.Int(0), args.Error(1)
}

// newMockStore accepts any DLQ insert and stale sweep.
func newMockStore(t *testing.T) *mockStore {
	t.Helper()
	st := &mockStore{}
	st.Test(t)
	st.On("EnqueueDLQ", mock.Anything, mock.AnythingOfType("resilience.DLQEntry")).Return(nil).Maybe()
	st.On("MarkStaleJobs", mock.Anything, mock.AnythingOfType("time.Time"), mock.AnythingOfType("string")).Return(2, nil).Maybe()
	return st
}

// dlq returns the entries passed to EnqueueDLQ, in call order.
func (m *mockStore) dlq() []resilience.DLQEntry {
	var out []resilience.DLQEntry
	for _, c := range m.Calls {
		if c.Method == "EnqueueDLQ" {
			out = append(out, c.Arguments.Get(1).(resilience.DLQEntry))
		}
	}
	return out
}
