// Package pipeline runs one lead-fetch job: it paginates the search API
// under shared rate limits, prepares and persists leads, then writes them
// to the campaign spreadsheet.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadfetch/internal/config"
	"github.com/sells-group/leadfetch/internal/leads"
	"github.com/sells-group/leadfetch/internal/lock"
	"github.com/sells-group/leadfetch/internal/model"
	"github.com/sells-group/leadfetch/internal/ratelimit"
	"github.com/sells-group/leadfetch/internal/resilience"
	"github.com/sells-group/leadfetch/internal/sheetsync"
	"github.com/sells-group/leadfetch/internal/store"
	"github.com/sells-group/leadfetch/pkg/search"
)

// finalizeTimeout bounds status writes made after the job context ends.
const finalizeTimeout = 10 * time.Second

// SheetWriter appends persisted rows to a campaign's spreadsheet.
type SheetWriter interface {
	Write(ctx context.Context, c *model.Campaign, rows []model.SheetRow) (*sheetsync.Result, error)
}

// Deps holds the collaborators of a Pipeline.
type Deps struct {
	Store     store.Store
	Search    search.Client
	Locks     *lock.Factory
	Limiter   *ratelimit.MultiLimiter
	Preparer  *leads.Preparer
	Persister *leads.Persister
	Sheets    SheetWriter
}

// Pipeline orchestrates lead-fetch jobs.
type Pipeline struct {
	store     store.Store
	search    search.Client
	locks     *lock.Factory
	limiter   *ratelimit.MultiLimiter
	preparer  *leads.Preparer
	persister *leads.Persister
	sheets    SheetWriter

	fetch     config.FetchConfig
	rate      config.RateLimitConfig
	pageRetry resilience.RetryConfig
	now       func() time.Time
}

// New creates a Pipeline. A nil Preparer or Persister gets a default one
// over d.Store.
func New(cfg *config.Config, d Deps) *Pipeline {
	fetch := withFetchDefaults(cfg.Fetch)
	if d.Preparer == nil {
		d.Preparer = leads.NewPreparer(leads.WithSuppressions(d.Store))
	}
	if d.Persister == nil {
		d.Persister = leads.NewPersister(d.Store, fetch.InsertChunkSize)
	}

	return &Pipeline{
		store:     d.Store,
		search:    d.Search,
		locks:     d.Locks,
		limiter:   d.Limiter,
		preparer:  d.Preparer,
		persister: d.Persister,
		sheets:    d.Sheets,
		fetch:     fetch,
		rate:      cfg.RateLimit,
		pageRetry: resilience.RetryConfig{
			MaxAttempts:    fetch.PageRetryAttempts,
			InitialBackoff: time.Duration(fetch.PageRetryInitialMs) * time.Millisecond,
			MaxBackoff:     time.Duration(fetch.PageRetryMaxSecs) * time.Second,
			Multiplier:     2,
			JitterFraction: 0.2,
			OnRetry:        resilience.RetryLogger("search", "search_people"),
		},
		now: time.Now,
	}
}

// Result summarizes one Run.
type Result struct {
	JobID        string           `json:"job_id"`
	Status       model.JobStatus  `json:"status,omitempty"`
	Skipped      bool             `json:"skipped,omitempty"`
	Mode         model.SearchMode `json:"mode,omitempty"`
	PagesFetched int              `json:"pages_fetched"`
	LeadsFound   int              `json:"leads_found"`
	LeadsWritten int              `json:"leads_written"`
	SheetRows    int              `json:"sheet_rows"`
	Warning      string           `json:"warning,omitempty"`
}

// errCampaignGone stops a run whose campaign was deleted or paused.
var errCampaignGone = eris.New("pipeline: campaign deleted or inactive")

// run is the mutable state of one attempt.
type run struct {
	payload  model.JobPayload
	attempt  *model.JobAttempt
	progress model.JobProgress
	rows     []model.SheetRow
	seen     map[string]bool
	result   *Result
	log      *zap.Logger
}

// Run executes one job. A job whose campaign lock is held elsewhere is
// skipped with a nil error and the job row untouched. Cancellation ends
// the job CANCELLED with a nil error. Any other failure marks the job and
// attempt FAILED and is returned.
func (p *Pipeline) Run(ctx context.Context, payload model.JobPayload) (*Result, error) {
	log := zap.L().With(
		zap.String("job_id", payload.JobID),
		zap.String("campaign_id", payload.CampaignID),
		zap.Bool("is_retry", payload.IsRetry),
	)
	result := &Result{JobID: payload.JobID}

	lk := p.locks.ForCampaign(payload.CampaignID)
	acquired, err := lk.Acquire(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: acquire lock")
	}
	if !acquired {
		log.Info("pipeline: campaign locked by another attempt, skipping")
		result.Skipped = true
		return result, nil
	}
	defer func() {
		rctx, cancel := detached(ctx)
		defer cancel()
		if _, err := lk.Release(rctx); err != nil {
			log.Warn("pipeline: release lock", zap.Error(err))
		}
	}()

	if err := p.store.MarkJobRunning(ctx, payload.JobID); err != nil {
		return nil, eris.Wrap(err, "pipeline: mark job running")
	}
	attempt, err := p.store.CreateAttempt(ctx, payload.JobID)
	if err != nil {
		p.finishJob(ctx, log, payload.JobID, model.JobStatusFailed, model.JobProgress{}, err.Error())
		return nil, eris.Wrap(err, "pipeline: create attempt")
	}
	log = log.With(zap.Int("attempt", attempt.AttemptNumber))
	log.Info("pipeline: starting job")

	r := &run{
		payload: payload,
		attempt: attempt,
		seen:    make(map[string]bool),
		result:  result,
		log:     log,
	}
	runErr := p.execute(ctx, r, lk)
	return p.finalize(ctx, r, runErr)
}

func (p *Pipeline) execute(ctx context.Context, r *run, lk *lock.Lock) error {
	c, err := p.liveCampaign(ctx, r.payload.CampaignID)
	if err != nil {
		return err
	}

	r.log.Debug("pipeline: phase", zap.String("phase", "paginating"))
	for _, mode := range searchModes(c) {
		plan := planFor(mode, c, p.fetch)
		found, err := p.paginate(ctx, r, c, plan, lk)
		if err != nil {
			return err
		}
		r.log.Info("pipeline: mode finished",
			zap.String("mode", string(mode)),
			zap.Int("leads", found),
			zap.Int("max_pages", plan.MaxPages),
		)
		if found > 0 {
			r.attempt.SearchMode = mode
			r.result.Mode = mode
			break
		}
	}

	if r.progress.LeadsProcessed == 0 {
		r.log.Info("pipeline: no leads found")
		return nil
	}

	if _, err := p.liveCampaign(ctx, c.ID); err != nil {
		return err
	}
	p.writeSheet(ctx, r, c)
	return nil
}

// writeSheet records spreadsheet failures as a warning on the attempt.
func (p *Pipeline) writeSheet(ctx context.Context, r *run, c *model.Campaign) {
	if p.sheets == nil || len(r.rows) == 0 {
		return
	}
	r.log.Debug("pipeline: phase", zap.String("phase", "writing"), zap.Int("rows", len(r.rows)))

	res, err := p.sheets.Write(ctx, c, r.rows)
	if res != nil {
		r.attempt.SheetRowsWritten = res.RowsWritten
		r.result.SheetRows = res.RowsWritten
	}
	if err != nil {
		r.attempt.Warning = "spreadsheet write failed: " + err.Error()
		r.result.Warning = r.attempt.Warning
		r.log.Warn("pipeline: spreadsheet write failed, leads remain persisted", zap.Error(err))
	}
}

// liveCampaign reloads the campaign and fails with errCampaignGone when it
// was deleted or paused.
func (p *Pipeline) liveCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	c, err := p.store.GetCampaign(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(errCampaignGone, "campaign %s not found", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load campaign")
	}
	if !c.IsActive {
		return nil, eris.Wrapf(errCampaignGone, "campaign %s inactive", id)
	}
	return c, nil
}

// finalize writes the terminal job and attempt status with a context that
// survives cancellation of ctx.
func (p *Pipeline) finalize(ctx context.Context, r *run, runErr error) (*Result, error) {
	fctx, cancel := detached(ctx)
	defer cancel()

	status := model.JobStatusSucceeded
	lastError := ""
	switch {
	case runErr == nil:
	case errors.Is(runErr, errCampaignGone):
		status = model.JobStatusCancelled
		lastError = runErr.Error()
	default:
		status = model.JobStatusFailed
		lastError = runErr.Error()
		r.attempt.Error = lastError
	}

	finished := p.now().UTC()
	r.attempt.Status = status
	r.attempt.FinishedAt = &finished
	r.attempt.LeadsFound = r.progress.LeadsProcessed
	r.attempt.LeadsWritten = r.progress.LeadsWritten
	if err := p.store.UpdateAttempt(fctx, r.attempt); err != nil {
		r.log.Warn("pipeline: update attempt", zap.Error(err))
	}
	p.finishJob(fctx, r.log, r.payload.JobID, status, r.progress, lastError)

	r.result.Status = status
	r.result.LeadsFound = r.progress.LeadsProcessed
	r.result.LeadsWritten = r.progress.LeadsWritten

	fields := []zap.Field{
		zap.String("status", string(status)),
		zap.Int("pages", r.result.PagesFetched),
		zap.Int("leads_found", r.result.LeadsFound),
		zap.Int("leads_written", r.result.LeadsWritten),
		zap.Int("sheet_rows", r.result.SheetRows),
	}
	switch status {
	case model.JobStatusFailed:
		r.log.Error("pipeline: job failed", append(fields, zap.Error(runErr))...)
		return r.result, runErr
	case model.JobStatusCancelled:
		r.log.Info("pipeline: job cancelled", append(fields, zap.String("reason", lastError))...)
	default:
		r.log.Info("pipeline: job complete", fields...)
	}
	return r.result, nil
}

func (p *Pipeline) finishJob(ctx context.Context, log *zap.Logger, jobID string, status model.JobStatus, progress model.JobProgress, lastError string) {
	if err := p.store.FinishJob(ctx, jobID, status, progress, lastError); err != nil {
		log.Error("pipeline: finish job", zap.String("status", string(status)), zap.Error(err))
	}
}

func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
}
