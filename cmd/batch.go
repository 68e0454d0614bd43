package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadgrid/leadgen-cli/internal/pipeline"
)

var (
	batchFile        string
	batchConcurrency int
	batchMaxResults  int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run many searches from a CSV file",
	Long:  "Reads query,location,max_results rows and runs one job per row under a shared batch id.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rows, err := pipeline.ReadBatchFile(batchFile)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		orch, err := initOrchestrator(ctx, st)
		if err != nil {
			return err
		}

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.Concurrency
		}

		runner := pipeline.NewBatchRunner(orch, concurrency, batchMaxResults)
		sum, err := runner.Run(ctx, rows)
		if err != nil {
			return eris.Wrap(err, "run batch")
		}

		zap.L().Info("batch finished",
			zap.String("batch_id", sum.BatchID),
			zap.Int("completed", sum.Completed),
			zap.Int("failed", sum.Failed),
			zap.Int("cancelled", sum.Cancelled))

		fmt.Printf("batch %s: %d completed, %d failed, %d cancelled\n",
			sum.BatchID, sum.Completed, sum.Failed, sum.Cancelled)
		if sum.Failed > 0 {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "", "CSV file of searches (required)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "jobs to run in parallel (default from config)")
	batchCmd.Flags().IntVarP(&batchMaxResults, "max-results", "n", 20, "default max results for rows that omit it")
	_ = batchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(batchCmd)
}
