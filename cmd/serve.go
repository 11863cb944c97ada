package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadfetch/internal/api"
	"github.com/sells-group/leadfetch/internal/monitoring"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the job status API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			cfg.Server.Port = port
		}
		if err := cfg.Validate("serve"); err != nil {
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
		s := api.New(st, q,
			api.WithMetrics(monitoring.NewCollector(st, q), cfg.Monitoring.LookbackHours),
			api.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		)

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("api listening", zap.Int("port", cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
		case err := <-errCh:
			if err != nil {
				return eris.Wrap(err, "serve: listen")
			}
		}

		zap.L().Info("shutting down api")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}
