package api

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

