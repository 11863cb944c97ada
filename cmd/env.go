package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadfetch/internal/config"
	"github.com/sells-group/leadfetch/internal/leads"
	"github.com/sells-group/leadfetch/internal/lock"
	"github.com/sells-group/leadfetch/internal/pipeline"
	"github.com/sells-group/leadfetch/internal/queue"
	"github.com/sells-group/leadfetch/internal/ratelimit"
	"github.com/sells-group/leadfetch/internal/resilience"
	"github.com/sells-group/leadfetch/internal/sheetsync"
	"github.com/sells-group/leadfetch/internal/store"
	anthropicpkg "github.com/sells-group/leadfetch/pkg/anthropic"
	"github.com/sells-group/leadfetch/pkg/search"
	"github.com/sells-group/leadfetch/pkg/sheets"
)

func initStore(ctx context.Context) (store.Store, error) {
	var st store.Store
	var err error
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "leadfetch.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initRedis(ctx context.Context) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, eris.Wrap(err, "parse redis url")
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, eris.Wrap(err, "ping redis")
	}
	return rdb, nil
}

func queueConfig(w config.WorkerConfig) queue.Config {
	block := time.Duration(w.BlockMs) * time.Millisecond
	return queue.Config{
		Stream:      w.Stream,
		Group:       w.Group,
		Consumer:    w.Consumer,
		Block:       block,
		MaxAttempts: w.MaxAttempts,
		RetryBase:   time.Duration(w.RetryBaseSecs) * time.Second,
		ReclaimIdle: time.Duration(w.ReclaimIdleSecs) * time.Second,
	}
}

func newQueue(rdb *redis.Client) *queue.RedisQueue {
	return queue.NewRedis(rdb, queueConfig(cfg.Worker))
}

// newPipeline wires the orchestrator and its clients from config.
func newPipeline(st store.Store, rdb *redis.Client) *pipeline.Pipeline {
	searchClient := search.NewClient(cfg.Search.Key,
		search.WithBaseURL(cfg.Search.BaseURL),
		search.WithTimeout(time.Duration(cfg.Search.TimeoutSecs)*time.Second),
		search.WithRateLimit(cfg.Search.RequestsPerSecond, cfg.Search.Burst),
	)

	prepOpts := []leads.PreparerOption{
		leads.WithSuppressions(st),
		leads.WithConcurrency(cfg.Fetch.PrepareConcurrency),
	}
	if cfg.Search.RevealEnabled {
		breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     time.Minute,
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("reveal circuit state change",
					zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
		prepOpts = append(prepOpts, leads.WithRevealer(searchClient, breaker))
	}
	if cfg.Anthropic.Key != "" {
		ai := anthropicpkg.NewClient(cfg.Anthropic.Key)
		prepOpts = append(prepOpts, leads.WithSummarizer(
			leads.NewAISummarizer(ai, cfg.Anthropic.HaikuModel, cfg.Anthropic.SummaryMaxTokens)))
	}

	var sheetWriter pipeline.SheetWriter
	if cfg.Sheets.AccessToken != "" {
		client := sheets.NewClient(cfg.Sheets.AccessToken, sheets.WithBaseURL(cfg.Sheets.BaseURL))
		sheetWriter = sheetsync.New(client, cfg.Sheets)
	} else {
		zap.L().Warn("sheets.access_token not set, spreadsheet writes disabled")
	}

	limiter := ratelimit.New(rdb,
		ratelimit.WithNamespace(cfg.RateLimit.KeyNamespace),
		ratelimit.WithIdleTTL(time.Duration(cfg.RateLimit.IdleTTLSecs)*time.Second),
	)

	return pipeline.New(cfg, pipeline.Deps{
		Store:     st,
		Search:    searchClient,
		Locks:     lock.NewFactory(rdb, time.Duration(cfg.Fetch.LockTTLSecs)*time.Second),
		Limiter:   ratelimit.NewMultiLimiter(limiter, ratelimit.WithMaxWait(time.Duration(cfg.RateLimit.MaxWaitSecs)*time.Second)),
		Preparer:  leads.NewPreparer(prepOpts...),
		Persister: leads.NewPersister(st, cfg.Fetch.InsertChunkSize),
		Sheets:    sheetWriter,
	})
}
