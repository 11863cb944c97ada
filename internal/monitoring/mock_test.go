package monitoring

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/leadfetch/internal/model"
	"github.com/sells-group/leadfetch/internal/queue"
)

// --- Job Source Mock ---

type mockJobs struct {
	mock.Mock
}

func (m *mockJobs) JobStats(ctx context.Context, since time.Time) (model.JobStats, error) {
	args := m.Called(ctx, since)
	return args.Get(0).(model.JobStats), args.Error(1)
}

func (m *mockJobs) CountDLQ(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// --- Queue Mock ---

type mockQueue struct {
	mock.Mock
}

func (m *mockQueue) Stats(ctx context.Context) (queue.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(queue.Stats), args.Error(1)
}
