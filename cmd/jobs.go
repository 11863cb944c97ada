package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadfetch/internal/model"
	"github.com/sells-group/leadfetch/internal/resilience"
	"github.com/sells-group/leadfetch/internal/store"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect lead-fetch jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		campaign, _ := cmd.Flags().GetString("campaign")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		jobs, err := st.ListJobs(ctx, store.JobFilter{
			CampaignID: campaign,
			Status:     model.JobStatus(status),
			Limit:      limit,
		})
		if err != nil {
			return eris.Wrap(err, "jobs: list")
		}
		return writeJobsTable(cmd.OutOrStdout(), jobs)
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show a job and its attempts as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		job, err := st.GetJob(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "jobs: get %s", args[0])
		}
		attempts, err := st.ListAttempts(ctx, job.ID)
		if err != nil {
			return eris.Wrapf(err, "jobs: attempts for %s", job.ID)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*model.CampaignJob
			Attempts []model.JobAttempt `json:"attempts"`
		}{job, attempts})
	},
}

var jobsDLQCmd = &cobra.Command{
	Use:   "dlq",
	Short: "List dead-lettered job deliveries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		errType, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := st.ListDLQ(ctx, resilience.DLQFilter{ErrorType: errType, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "jobs: list dlq")
		}
		return writeDLQTable(cmd.OutOrStdout(), entries)
	},
}

func writeJobsTable(out io.Writer, jobs []model.CampaignJob) error {
	if len(jobs) == 0 {
		_, err := fmt.Fprintln(out, "No jobs found.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCAMPAIGN\tSTATUS\tWRITTEN\tPROCESSED\tPAGES\tCREATED\tERROR") //nolint:errcheck
	fmt.Fprintln(w, "--\t--------\t------\t-------\t---------\t-----\t-------\t-----") //nolint:errcheck
	for _, j := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n", //nolint:errcheck
			shortID(j.ID),
			shortID(j.CampaignID),
			j.Status,
			j.LeadsWritten,
			j.LeadsProcessed,
			j.TotalPages,
			j.CreatedAt.Format(time.DateTime),
			truncate(j.LastError, 50),
		)
	}
	return w.Flush()
}

func writeDLQTable(out io.Writer, entries []resilience.DLQEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(out, "Dead letter queue is empty.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tCAMPAIGN\tTYPE\tATTEMPTS\tFAILED\tERROR") //nolint:errcheck
	fmt.Fprintln(w, "---\t--------\t----\t--------\t------\t-----") //nolint:errcheck
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", //nolint:errcheck
			shortID(e.Payload.JobID),
			shortID(e.Payload.CampaignID),
			e.ErrorType,
			e.Attempts,
			e.LastFailedAt.Format(time.DateTime),
			truncate(e.Error, 60),
		)
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	jobsListCmd.Flags().String("campaign", "", "filter by campaign ID")
	jobsListCmd.Flags().String("status", "", "filter by status (PENDING, RUNNING, SUCCEEDED, FAILED, CANCELLED)")
	jobsListCmd.Flags().Int("limit", 20, "maximum number of jobs to show")
	jobsDLQCmd.Flags().String("type", "", "filter by error type (transient, permanent)")
	jobsDLQCmd.Flags().Int("limit", 50, "maximum number of entries to show")
	jobsCmd.AddCommand(jobsListCmd, jobsShowCmd, jobsDLQCmd)
	rootCmd.AddCommand(jobsCmd)
}
