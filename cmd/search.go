package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadgrid/leadgen-cli/internal/model"
)

var (
	searchQuery      string
	searchLocation   string
	searchMaxResults int
	searchJSON       bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search for businesses and enrich them with contact emails",
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

		job := orch.NewJob(searchQuery, searchLocation, searchMaxResults)
		if err := orch.Submit(ctx, job); err != nil {
			return eris.Wrap(err, "submit job")
		}

		final, err := orch.Run(ctx, job.ID)
		if err != nil {
			return err
		}

		zap.L().Info("search finished",
			zap.String("job_id", final.ID),
			zap.String("status", string(final.Status)),
			zap.Int("processed", final.Processed))

		recs, err := st.ListJobBusinesses(ctx, final.ID)
		if err != nil {
			return eris.Wrap(err, "list results")
		}

		if searchJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Job        *model.Job             `json:"job"`
				Businesses []model.BusinessRecord `json:"businesses"`
			}{final, recs})
		}

		printBusinesses(os.Stdout, recs)
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVarP(&searchQuery, "query", "q", "", "search query, e.g. \"plumbers\" (required)")
	searchCmd.Flags().StringVarP(&searchLocation, "location", "l", "", "location, e.g. \"San Francisco, CA\"")
	searchCmd.Flags().IntVarP(&searchMaxResults, "max-results", "n", 20, "maximum businesses to fetch")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print results as JSON")
	_ = searchCmd.MarkFlagRequired("query")
	rootCmd.AddCommand(searchCmd)
}
