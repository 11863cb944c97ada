package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadfetch/internal/monitoring"
	"github.com/sells-group/leadfetch/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume lead-fetch jobs from the queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if c, _ := cmd.Flags().GetInt("concurrency"); c > 0 {
			cfg.Worker.Concurrency = c
		}
		if err := cfg.Validate("worker"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rdb, err := initRedis(ctx)
		if err != nil {
			return err
		}
		defer rdb.Close() //nolint:errcheck

		q := newQueue(rdb)
		p := newPipeline(st, rdb)

		var opts []worker.Option
		if cfg.Monitoring.WebhookURL != "" {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(st, q),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			opts = append(opts, worker.WithChecker(checker, cfg.Monitoring.CheckSpec))
		}

		w := worker.New(q, p, st, cfg.Worker, opts...)
		zap.L().Info("worker starting",
			zap.String("consumer", q.Consumer()),
			zap.Int("concurrency", cfg.Worker.Concurrency),
		)
		return w.Run(ctx)
	},
}

func init() {
	workerCmd.Flags().Int("concurrency", 0, "number of jobs to run in parallel (overrides worker.concurrency)")
	rootCmd.AddCommand(workerCmd)
}
