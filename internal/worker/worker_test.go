package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadfetch/internal/config"
	"github.com/sells-group/leadfetch/internal/model"
	"github.com/sells-group/leadfetch/internal/pipeline"
	"github.com/sells-group/leadfetch/internal/queue"
	"github.com/sells-group/leadfetch/internal/resilience"
	"github.com/sells-group/leadfetch/pkg/search"
)

func newQueue(t *testing.T) *queue.RedisQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() }) //nolint:errcheck

	q := queue.NewRedis(rdb, queue.Config{
		Consumer:    "w1",
		Block:       -1,
		MaxAttempts: 3,
		RetryBase:   time.Millisecond,
		ReclaimIdle: time.Millisecond,
	})
	require.NoError(t, q.EnsureGroup(context.Background()))
	return q
}

func received(t *testing.T, q *queue.RedisQueue, jobID string) queue.Delivery {
	t.Helper()
	ctx := context.Background()
	_, err := q.Enqueue(ctx, model.JobPayload{CampaignID: "c1", JobID: jobID, UserID: "u1"})
	require.NoError(t, err)
	got, err := q.Receive(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	return got[0]
}

func stats(t *testing.T, q *queue.RedisQueue) queue.Stats {
	t.Helper()
	s, err := q.Stats(context.Background())
	require.NoError(t, err)
	return s
}

func TestHandle_SuccessAcks(t *testing.T) {
	q := newQueue(t)
	st := newMockStore(t)
	w := New(q, runnerFunc(func(_ context.Context, p model.JobPayload) (*pipeline.Result, error) {
		return &pipeline.Result{JobID: p.JobID, Status: model.JobStatusSucceeded}, nil
	}), st, config.WorkerConfig{})

	w.Handle(context.Background(), received(t, q, "j1"))

	assert.Zero(t, stats(t, q).Pending)
	st.AssertNotCalled(t, "EnqueueDLQ", mock.Anything, mock.Anything)
}

func TestHandle_SkippedAcks(t *testing.T) {
	q := newQueue(t)
	w := New(q, runnerFunc(func(_ context.Context, p model.JobPayload) (*pipeline.Result, error) {
		return &pipeline.Result{JobID: p.JobID, Skipped: true}, nil
	}), newMockStore(t), config.WorkerConfig{})

	w.Handle(context.Background(), received(t, q, "j1"))
	assert.Zero(t, stats(t, q).Pending)
	assert.Zero(t, stats(t, q).Delayed)
}

func TestHandle_TransientFailureRetries(t *testing.T) {
	q := newQueue(t)
	st := newMockStore(t)
	w := New(q, runnerFunc(func(context.Context, model.JobPayload) (*pipeline.Result, error) {
		return &pipeline.Result{Status: model.JobStatusFailed},
			&search.APIError{Op: "search people", Kind: search.KindTransient, StatusCode: 503}
	}), st, config.WorkerConfig{})

	w.Handle(context.Background(), received(t, q, "j1"))

	s := stats(t, q)
	assert.Zero(t, s.Pending)
	assert.Equal(t, int64(1), s.Delayed)
	assert.Zero(t, s.Dead)
	st.AssertNotCalled(t, "EnqueueDLQ", mock.Anything, mock.Anything)
}

func TestHandle_PermanentFailureDeadLetters(t *testing.T) {
	q := newQueue(t)
	st := newMockStore(t)
	w := New(q, runnerFunc(func(context.Context, model.JobPayload) (*pipeline.Result, error) {
		return &pipeline.Result{Status: model.JobStatusFailed},
			&search.APIError{Op: "search people", Kind: search.KindPermission, StatusCode: 401, Body: "bad key"}
	}), st, config.WorkerConfig{})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	w.Handle(context.Background(), received(t, q, "j1"))

	s := stats(t, q)
	assert.Equal(t, int64(1), s.Dead)
	assert.Zero(t, s.Delayed)
	entries := st.dlq()
	require.Len(t, entries, 1)
	assert.Equal(t, "j1", entries[0].Payload.JobID)
	assert.Equal(t, "permanent", entries[0].ErrorType)
	assert.Equal(t, 1, entries[0].Attempts)
	assert.Contains(t, entries[0].Error, "bad key")
	assert.Equal(t, now, entries[0].CreatedAt)
}

func TestHandle_ExhaustedRetriesDeadLetter(t *testing.T) {
	q := newQueue(t)
	st := newMockStore(t)
	w := New(q, runnerFunc(func(context.Context, model.JobPayload) (*pipeline.Result, error) {
		return nil, resilience.NewTransientError(errors.New("search: 503"), 503)
	}), st, config.WorkerConfig{})

	d := received(t, q, "j1")
	d.Attempt = 3
	w.Handle(context.Background(), d)

	entries := st.dlq()
	require.Len(t, entries, 1)
	assert.Equal(t, "transient", entries[0].ErrorType)
	assert.Equal(t, 3, entries[0].Attempts)
}

func TestHandle_InterruptedLeavesPending(t *testing.T) {
	q := newQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	w := New(q, runnerFunc(func(context.Context, model.JobPayload) (*pipeline.Result, error) {
		cancel()
		return nil, context.Canceled
	}), newMockStore(t), config.WorkerConfig{})

	w.Handle(ctx, received(t, q, "j1"))
	assert.Equal(t, int64(1), stats(t, q).Pending)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(resilience.NewTransientError(errors.New("x"), 503)))
	assert.True(t, Retryable(&search.APIError{Kind: search.KindTransient, StatusCode: 429}))
	assert.False(t, Retryable(&search.APIError{Kind: search.KindPermission, StatusCode: 403}))
	assert.False(t, Retryable(errors.New("pipeline: persist leads: constraint")))
	assert.False(t, Retryable(nil))
}

func TestSweep(t *testing.T) {
	q := newQueue(t)
	st := newMockStore(t)
	w := New(q, runnerFunc(func(context.Context, model.JobPayload) (*pipeline.Result, error) {
		return nil, nil
	}), st, config.WorkerConfig{StaleJobMinutes: 45})
	now := time.Now()
	w.now = func() time.Time { return now }
	ctx := context.Background()

	// One delivery scheduled for retry, one abandoned without ack.
	retry := received(t, q, "j1")
	outcome, err := q.Fail(ctx, retry, errors.New("search: 503"), true)
	require.NoError(t, err)
	require.Equal(t, queue.OutcomeRetried, outcome)
	received(t, q, "j2")
	time.Sleep(20 * time.Millisecond)

	w.Sweep(ctx)

	s := stats(t, q)
	assert.Zero(t, s.Delayed, "due retry promoted")
	reclaimed := w.takeReclaimed()
	require.Len(t, reclaimed, 1)
	assert.Equal(t, "j2", reclaimed[0].Payload.JobID)
	assert.Empty(t, w.takeReclaimed())

	st.AssertCalled(t, "MarkStaleJobs", mock.Anything, now.Add(-45*time.Minute), StaleReason)

	next, err := q.Receive(ctx)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "j1", next[0].Payload.JobID)
	assert.True(t, next[0].Payload.IsRetry)
}

func TestRun_ProcessesQueuedJobs(t *testing.T) {
	q := newQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, id := range []string{"j1", "j2", "j3"} {
		_, err := q.Enqueue(ctx, model.JobPayload{CampaignID: "c-" + id, JobID: id, UserID: "u1"})
		require.NoError(t, err)
	}

	var mu sync.Mutex
	seen := map[string]bool{}
	allDone := make(chan struct{})
	w := New(q, runnerFunc(func(_ context.Context, p model.JobPayload) (*pipeline.Result, error) {
		mu.Lock()
		defer mu.Unlock()
		seen[p.JobID] = true
		if len(seen) == 3 {
			close(allDone)
		}
		return &pipeline.Result{JobID: p.JobID, Status: model.JobStatusSucceeded}, nil
	}), newMockStore(t), config.WorkerConfig{Concurrency: 2, SweepSpec: "@every 1h"}, WithPollInterval(5*time.Millisecond))

	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	select {
	case <-allDone:
	case <-time.After(5 * time.Second):
		t.Fatal("jobs were not processed")
	}
	cancel()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Zero(t, stats(t, q).Pending)
}

func TestRun_ShutdownTimeoutCancelsInFlight(t *testing.T) {
	q := newQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := q.Enqueue(ctx, model.JobPayload{CampaignID: "c1", JobID: "j1", UserID: "u1"})
	require.NoError(t, err)

	started := make(chan struct{})
	w := New(q, runnerFunc(func(jobCtx context.Context, _ model.JobPayload) (*pipeline.Result, error) {
		close(started)
		<-jobCtx.Done()
		return nil, jobCtx.Err()
	}), newMockStore(t), config.WorkerConfig{Concurrency: 1, ShutdownTimeoutS: 1, SweepSpec: "@every 1h"},
		WithPollInterval(5*time.Millisecond))

	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not start")
	}
	cancel()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after the shutdown timeout")
	}
	assert.Equal(t, int64(1), stats(t, q).Pending, "interrupted delivery stays pending")
}

func TestRun_InvalidSweepSpec(t *testing.T) {
	q := newQueue(t)
	w := New(q, runnerFunc(func(context.Context, model.JobPayload) (*pipeline.Result, error) {
		return nil, nil
	}), newMockStore(t), config.WorkerConfig{SweepSpec: "not a spec"})

	err := w.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule sweep")
}
