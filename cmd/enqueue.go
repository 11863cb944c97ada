package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadfetch/internal/dispatch"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <campaign-id>...",
	Short: "Create a job for each campaign and push it onto the queue",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("enqueue"); err != nil {
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
		out := cmd.OutOrStdout()
		var failed int
		for _, id := range args {
			sub, err := dispatch.Submit(ctx, st, q, id)
			if err != nil {
				failed++
				fmt.Fprintf(out, "%s: %v\n", id, err) //nolint:errcheck
				continue
			}
			fmt.Fprintf(out, "%s: job %s queued (%s)\n", id, sub.Job.ID, sub.MessageID) //nolint:errcheck
		}
		if failed > 0 {
			return eris.Errorf("enqueue: %d of %d campaigns failed", failed, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
}
