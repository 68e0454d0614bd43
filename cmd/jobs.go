package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/leadgrid/leadgen-cli/internal/model"
	"github.com/leadgrid/leadgen-cli/internal/pipeline"
	"github.com/leadgrid/leadgen-cli/internal/store"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and manage jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		batchID, _ := cmd.Flags().GetString("batch")
		limit, _ := cmd.Flags().GetInt("limit")

		jobs, err := st.ListJobs(ctx, store.JobFilter{
			Status:  model.JobStatus(status),
			BatchID: batchID,
			Limit:   limit,
		})
		if err != nil {
			return eris.Wrap(err, "list jobs")
		}

		if len(jobs) == 0 {
			fmt.Fprintln(os.Stderr, "No jobs found.")
			return nil
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(jobs)
		}

		printJobs(os.Stdout, jobs)
		return nil
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show one job and its businesses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		job, err := st.GetJob(ctx, args[0])
		if err != nil {
			return err
		}
		recs, err := st.ListJobBusinesses(ctx, job.ID)
		if err != nil {
			return eris.Wrap(err, "list businesses")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Job        *model.Job             `json:"job"`
				Businesses []model.BusinessRecord `json:"businesses"`
			}{job, recs})
		}

		fmt.Printf("Job %s  %s\n", job.ID, job.Status)
		fmt.Printf("  query:      %s\n", job.Query)
		if job.Location != "" {
			fmt.Printf("  location:   %s\n", job.Location)
		}
		if job.BatchID != "" {
			fmt.Printf("  batch:      %s\n", job.BatchID)
		}
		fmt.Printf("  progress:   %d/%d (%.0f%%), checkpoint page %d\n",
			job.Processed, job.Total, job.Progress(), job.Checkpoint)
		if job.Error != "" {
			fmt.Printf("  note:       %s\n", job.Error)
		}
		fmt.Println()
		printBusinesses(os.Stdout, recs)
		return nil
	},
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a queued or running job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		// Cancellation only needs the store; no providers are touched.
		orch := pipeline.New(st, nil, nil, nil)
		if err := orch.Cancel(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("job %s cancelled\n", args[0])
		return nil
	},
}

func init() {
	jobsListCmd.Flags().String("status", "", "filter by status (queued|running|completed|failed|cancelled)")
	jobsListCmd.Flags().String("batch", "", "filter by batch id")
	jobsListCmd.Flags().Int("limit", 50, "maximum jobs to list")
	jobsListCmd.Flags().Bool("json", false, "print as JSON")
	jobsShowCmd.Flags().Bool("json", false, "print as JSON")

	jobsCmd.AddCommand(jobsListCmd, jobsShowCmd, jobsCancelCmd)
	rootCmd.AddCommand(jobsCmd)
}
