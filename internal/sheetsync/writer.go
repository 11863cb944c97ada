// Package sheetsync projects persisted leads into a campaign's spreadsheet.
package sheetsync

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadfetch/internal/config"
	"github.com/sells-group/leadfetch/internal/model"
	"github.com/sells-group/leadfetch/internal/resilience"
	"github.com/sells-group/leadfetch/pkg/sheets"
)

// DefaultSheetName is used when a campaign has a spreadsheet but no sheet.
const DefaultSheetName = "Leads"

// Result reports what reached the spreadsheet.
type Result struct {
	RowsWritten     int
	Batches         int
	HeaderRewritten bool
}

// Writer appends sheet rows in throttled, retried batches.
type Writer struct {
	client    sheets.Client
	batchSize int
	throttle  time.Duration
	retry     resilience.RetryConfig
	sleep     func(ctx context.Context, d time.Duration) error
}

// Option configures a Writer.
type Option func(*Writer)

// WithSleep replaces the context-aware sleep used for throttling and
// backoff.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(w *Writer) { w.sleep = fn }
}

// New creates a Writer from config.
func New(client sheets.Client, cfg config.SheetsConfig, opts ...Option) *Writer {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 500
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 5
	}
	maxBackoff := time.Duration(cfg.MaxBackoffSecs) * time.Second
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}

	w := &Writer{
		client:    client,
		batchSize: batch,
		throttle:  time.Duration(cfg.ThrottleMs) * time.Millisecond,
		retry: resilience.RetryConfig{
			MaxAttempts:    attempts,
			InitialBackoff: time.Second,
			MaxBackoff:     maxBackoff,
			Multiplier:     2,
			JitterFraction: 0.2,
			OnRetry:        resilience.RetryLogger("sheets", "append"),
		},
		sleep: resilience.SleepContext,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write ensures the header and appends rows in order. Permission errors are
// returned verbatim without retry. On failure the result still counts the
// rows already appended.
func (w *Writer) Write(ctx context.Context, c *model.Campaign, rows []model.SheetRow) (*Result, error) {
	res := &Result{}
	if !c.HasSpreadsheet() {
		zap.L().Debug("sheetsync: no spreadsheet configured", zap.String("campaign_id", c.ID))
		return res, nil
	}
	if len(rows) == 0 {
		return res, nil
	}
	sheet := c.SheetName
	if sheet == "" {
		sheet = DefaultSheetName
	}

	cfg := w.retry
	cfg.Sleep = w.sleep
	rewritten, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (bool, error) {
		return w.client.EnsureHeader(ctx, c.SpreadsheetID, sheet, model.SheetHeader)
	})
	if err != nil {
		return res, eris.Wrap(err, "sheetsync: ensure header")
	}
	res.HeaderRewritten = rewritten

	for start := 0; start < len(rows); start += w.batchSize {
		if start > 0 && w.throttle > 0 {
			if err := w.sleep(ctx, w.throttle); err != nil {
				return res, eris.Wrap(err, "sheetsync: throttle")
			}
		}
		end := min(start+w.batchSize, len(rows))
		values := make([][]string, 0, end-start)
		for _, r := range rows[start:end] {
			values = append(values, r.Values)
		}

		n, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (int, error) {
			return w.client.AppendRows(ctx, c.SpreadsheetID, sheet, values)
		})
		if err != nil {
			return res, eris.Wrapf(err, "sheetsync: append rows %d-%d", start, end)
		}
		if n == 0 {
			n = len(values)
		}
		res.RowsWritten += n
		res.Batches++
	}

	zap.L().Info("sheetsync: rows appended",
		zap.String("campaign_id", c.ID),
		zap.Int("rows", res.RowsWritten),
		zap.Int("batches", res.Batches),
	)
	return res, nil
}
