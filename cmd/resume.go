package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <job-id>",
	Short: "Resume an interrupted job from its last checkpoint",
	Long:  "Re-runs a job from the last fully processed page. Completed jobs are a no-op; already-fetched pages are never paid for again.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		orch, err := initOrchestrator(ctx, st)
		if err != nil {
			return err
		}

		final, err := orch.Run(ctx, args[0])
		if err != nil {
			return err
		}

		zap.L().Info("resume finished",
			zap.String("job_id", final.ID),
			zap.String("status", string(final.Status)),
			zap.Int("processed", final.Processed),
			zap.Int("checkpoint", final.Checkpoint))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}
