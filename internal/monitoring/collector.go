package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadfetch/internal/model"
	"github.com/sells-group/leadfetch/internal/queue"
)

// MetricsSnapshot holds a point-in-time view of job health.
type MetricsSnapshot struct {
	// Jobs created within the lookback window, by status.
	Jobs        model.JobStats `json:"jobs"`
	FailureRate float64        `json:"failure_rate"`

	// DLQ depth.
	DLQDepth int `json:"dlq_depth"`

	// Queue depth, when a queue is attached.
	Queue *queue.Stats `json:"queue,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// JobSource is the subset of the store the collector reads.
type JobSource interface {
	JobStats(ctx context.Context, since time.Time) (model.JobStats, error)
	CountDLQ(ctx context.Context) (int, error)
}

// QueueStater reports queue depth.
type QueueStater interface {
	Stats(ctx context.Context) (queue.Stats, error)
}

// Collector gathers metrics from the store and, optionally, the job queue.
type Collector struct {
	jobs  JobSource
	queue QueueStater
	now   func() time.Time
}

// NewCollector creates a new metrics collector. q may be nil.
func NewCollector(jobs JobSource, q QueueStater) *Collector {
	return &Collector{jobs: jobs, queue: q, now: time.Now}
}

// Collect gathers a snapshot of job metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	if lookbackHours <= 0 {
		lookbackHours = 24
	}
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	stats, err := c.jobs.JobStats(ctx, now.Add(-time.Duration(lookbackHours)*time.Hour))
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: job stats")
	}
	snap.Jobs = stats
	snap.FailureRate = stats.FailureRate()

	dlqCount, err := c.jobs.CountDLQ(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count dlq")
	}
	snap.DLQDepth = dlqCount

	if c.queue != nil {
		qs, err := c.queue.Stats(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: queue stats")
		}
		snap.Queue = &qs
	}
	return snap, nil
}
