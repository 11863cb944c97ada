// Package worker consumes fetch jobs from the queue with a bounded pool,
// runs them through the pipeline and reports outcomes back to the queue.
// A cron schedule drives retry promotion, reclaim of abandoned deliveries,
// the stale job sweep and monitoring checks.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadfetch/internal/config"
	"github.com/sells-group/leadfetch/internal/model"
	"github.com/sells-group/leadfetch/internal/pipeline"
	"github.com/sells-group/leadfetch/internal/queue"
	"github.com/sells-group/leadfetch/internal/resilience"
)

// StaleReason is recorded on jobs the stale sweep fails.
const StaleReason = "stale: worker lost"

// JobQueue is the queue surface the worker consumes.
type JobQueue interface {
	queue.Queue
	EnsureGroup(ctx context.Context) error
	PromoteDue(ctx context.Context) (int, error)
	Reclaim(ctx context.Context) ([]queue.Delivery, error)
}

// Runner executes one job.
type Runner interface {
	Run(ctx context.Context, payload model.JobPayload) (*pipeline.Result, error)
}

// Store is the persistence the worker writes to directly.
type Store interface {
	EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error
	MarkStaleJobs(ctx context.Context, cutoff time.Time, reason string) (int, error)
}

// Checker runs one monitoring cycle.
type Checker interface {
	Check(ctx context.Context) int
}

// Option configures a Worker.
type Option func(*Worker)

// WithChecker schedules c on the cron spec.
func WithChecker(c Checker, spec string) Option {
	return func(w *Worker) {
		w.checker = c
		w.checkSpec = spec
	}
}

// WithPollInterval sets the pause after an empty receive.
func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) { w.poll = d }
}

// Worker runs queued jobs.
type Worker struct {
	queue  JobQueue
	runner Runner
	store  Store

	checker   Checker
	checkSpec string

	concurrency     int
	sweepSpec       string
	staleAfter      time.Duration
	shutdownTimeout time.Duration
	poll            time.Duration
	now             func() time.Time

	mu        sync.Mutex
	reclaimed []queue.Delivery
}

// New creates a Worker from config.
func New(q JobQueue, r Runner, st Store, cfg config.WorkerConfig, opts ...Option) *Worker {
	w := &Worker{
		queue:           q,
		runner:          r,
		store:           st,
		concurrency:     max(cfg.Concurrency, 1),
		sweepSpec:       cfg.SweepSpec,
		staleAfter:      time.Duration(cfg.StaleJobMinutes) * time.Minute,
		shutdownTimeout: time.Duration(cfg.ShutdownTimeoutS) * time.Second,
		poll:            50 * time.Millisecond,
		now:             time.Now,
	}
	if w.sweepSpec == "" {
		w.sweepSpec = "@every 30s"
	}
	if w.staleAfter <= 0 {
		w.staleAfter = 30 * time.Minute
	}
	if w.shutdownTimeout <= 0 {
		w.shutdownTimeout = 30 * time.Second
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run consumes jobs until ctx is cancelled, then waits up to the shutdown
// timeout for in-flight jobs before cancelling them.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.queue.EnsureGroup(ctx); err != nil {
		return eris.Wrap(err, "worker: ensure consumer group")
	}

	sched := cron.New()
	if _, err := sched.AddFunc(w.sweepSpec, func() { w.Sweep(ctx) }); err != nil {
		return eris.Wrapf(err, "worker: schedule sweep %q", w.sweepSpec)
	}
	if w.checker != nil && w.checkSpec != "" {
		if _, err := sched.AddFunc(w.checkSpec, func() { w.checker.Check(ctx) }); err != nil {
			return eris.Wrapf(err, "worker: schedule monitoring %q", w.checkSpec)
		}
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	zap.L().Info("worker: started",
		zap.Int("concurrency", w.concurrency),
		zap.String("sweep_spec", w.sweepSpec),
	)

	// Jobs outlive ctx until the shutdown timeout.
	jobCtx, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelJobs()

	deliveries := make(chan queue.Delivery)
	var g errgroup.Group
	for range w.concurrency {
		g.Go(func() error {
			for d := range deliveries {
				w.Handle(jobCtx, d)
			}
			return nil
		})
	}

	w.receive(ctx, deliveries)

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(w.shutdownTimeout):
		zap.L().Warn("worker: shutdown timeout, cancelling in-flight jobs",
			zap.Duration("timeout", w.shutdownTimeout))
		cancelJobs()
		<-done
	}
	zap.L().Info("worker: stopped")
	return nil
}

// receive feeds deliveries until ctx is done, then closes out.
func (w *Worker) receive(ctx context.Context, out chan<- queue.Delivery) {
	defer close(out)
	for ctx.Err() == nil {
		batch := w.takeReclaimed()
		if len(batch) == 0 {
			got, err := w.queue.Receive(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				zap.L().Error("worker: receive", zap.Error(err))
				_ = resilience.SleepContext(ctx, time.Second)
				continue
			}
			if len(got) == 0 {
				_ = resilience.SleepContext(ctx, w.poll)
				continue
			}
			batch = got
		}
		for _, d := range batch {
			select {
			case out <- d:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *Worker) takeReclaimed() []queue.Delivery {
	w.mu.Lock()
	defer w.mu.Unlock()
	batch := w.reclaimed
	w.reclaimed = nil
	return batch
}

// Handle runs one delivery and reports the outcome to the queue. Successful
// and skipped runs are acknowledged. Failures are retried when transient and
// dead-lettered otherwise. A run interrupted by shutdown stays pending for
// reclaim.
func (w *Worker) Handle(ctx context.Context, d queue.Delivery) {
	log := zap.L().With(
		zap.String("job_id", d.Payload.JobID),
		zap.String("campaign_id", d.Payload.CampaignID),
		zap.String("delivery_id", d.ID),
		zap.Int("delivery_attempt", d.Attempt),
	)

	res, err := w.runner.Run(ctx, d.Payload)
	if err == nil {
		if ackErr := w.queue.Ack(ctx, d); ackErr != nil {
			log.Error("worker: ack", zap.Error(ackErr))
		}
		switch {
		case res == nil:
		case res.Skipped:
			log.Info("worker: job skipped, campaign busy")
		default:
			log.Info("worker: job done",
				zap.String("status", string(res.Status)),
				zap.Int("leads_written", res.LeadsWritten),
			)
		}
		return
	}

	if ctx.Err() != nil {
		log.Warn("worker: job interrupted, leaving delivery pending", zap.Error(err))
		return
	}

	retryable := Retryable(err)
	outcome, ferr := w.queue.Fail(ctx, d, err, retryable)
	if ferr != nil {
		log.Error("worker: report failure", zap.Error(ferr), zap.NamedError("cause", err))
		if outcome == "" {
			return
		}
	}
	if outcome == queue.OutcomeDeadLettered {
		entry := resilience.NewDLQEntry(d.Payload, err, d.Attempt, w.now().UTC())
		if derr := w.store.EnqueueDLQ(ctx, entry); derr != nil {
			log.Error("worker: record dead letter", zap.Error(derr))
		}
	}
	log.Warn("worker: job failed",
		zap.String("outcome", string(outcome)),
		zap.Bool("retryable", retryable),
		zap.Error(err),
	)
}

// Retryable reports whether a failed job should be redelivered.
func Retryable(err error) bool {
	return resilience.IsTransient(err)
}

// Sweep promotes due retries, reclaims abandoned deliveries and fails jobs
// stuck RUNNING past the stale window. Errors are logged per step.
func (w *Worker) Sweep(ctx context.Context) {
	log := zap.L().With(zap.String("component", "worker.sweep"))

	if n, err := w.queue.PromoteDue(ctx); err != nil {
		log.Error("worker: promote retries", zap.Error(err))
	} else if n > 0 {
		log.Info("worker: retries promoted", zap.Int("count", n))
	}

	if got, err := w.queue.Reclaim(ctx); err != nil {
		log.Error("worker: reclaim deliveries", zap.Error(err))
	} else if len(got) > 0 {
		w.mu.Lock()
		w.reclaimed = append(w.reclaimed, got...)
		w.mu.Unlock()
		log.Info("worker: deliveries reclaimed", zap.Int("count", len(got)))
	}

	cutoff := w.now().Add(-w.staleAfter)
	if n, err := w.store.MarkStaleJobs(ctx, cutoff, StaleReason); err != nil {
		log.Error("worker: mark stale jobs", zap.Error(err))
	} else if n > 0 {
		log.Warn("worker: stale jobs failed", zap.Int("count", n))
	}
}
