package dispatch

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/leadfetch/internal/model"
)

// --- Queue Mock ---

type mockEnqueuer struct {
	mock.Mock
}

func (m *mockEnqueuer) Enqueue(ctx context.Context, p model.JobPayload) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

// payloads returns every payload passed to Enqueue, in call order.
func (m *mockEnqueuer) payloads() []model.JobPayload {
	var out []model.JobPayload
	for _, c := range m.Calls {
		if c.Method == "Enqueue" {
			out = append(out, c.Arguments.Get(1).(model.JobPayload))
		}
	}
	return out
}
