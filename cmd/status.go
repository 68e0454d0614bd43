package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/leadgrid/leadgen-cli/internal/model"
)

// statusReport is the status command payload, shared by the table and
// JSON renderings.
type statusReport struct {
	Config struct {
		StoreDriver           string  `json:"store_driver"`
		ScrapingDogConfigured bool    `json:"scrapingdog_configured"`
		HunterEnabled         bool    `json:"hunter_enabled"`
		HunterConfigured      bool    `json:"hunter_configured"`
		ConfidenceThreshold   float64 `json:"confidence_threshold"`
	} `json:"config"`
	Database struct {
		DedupIndex     int     `json:"dedup_index"`
		Businesses     int     `json:"businesses"`
		Enriched       int     `json:"enriched"`
		EnrichmentRate float64 `json:"enrichment_rate"`
	} `json:"database"`
	SpendLast7Days []model.ProviderRollup `json:"spend_last_7_days"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Provider readiness, database stats, and recent spend",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var rep statusReport
		rep.Config.StoreDriver = cfg.Store.Driver
		rep.Config.ScrapingDogConfigured = cfg.ScrapingDog.Key != ""
		rep.Config.HunterEnabled = cfg.Hunter.Enabled
		rep.Config.HunterConfigured = cfg.Hunter.Key != ""
		rep.Config.ConfidenceThreshold = cfg.Enrichment.ConfidenceThreshold

		rep.Database.DedupIndex, err = st.CountDedupIndex(ctx)
		if err != nil {
			return eris.Wrap(err, "count dedup index")
		}
		rep.Database.Businesses, rep.Database.Enriched, err = st.CountBusinesses(ctx)
		if err != nil {
			return eris.Wrap(err, "count businesses")
		}
		if rep.Database.Businesses > 0 {
			rep.Database.EnrichmentRate = float64(rep.Database.Enriched) / float64(rep.Database.Businesses) * 100
		}

		since := time.Now().UTC().AddDate(0, 0, -7)
		rep.SpendLast7Days, err = st.ProviderRollups(ctx, since)
		if err != nil {
			return eris.Wrap(err, "cost rollups")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "store driver\t%s\n", rep.Config.StoreDriver)
		fmt.Fprintf(tw, "scrapingdog\t%s\n", readiness(rep.Config.ScrapingDogConfigured))
		hunter := readiness(rep.Config.HunterConfigured)
		if !rep.Config.HunterEnabled {
			hunter = "disabled"
		}
		fmt.Fprintf(tw, "hunter\t%s\n", hunter)
		fmt.Fprintf(tw, "confidence threshold\t%.2f\n", rep.Config.ConfidenceThreshold)
		fmt.Fprintln(tw)
		fmt.Fprintf(tw, "dedup index\t%d places\n", rep.Database.DedupIndex)
		fmt.Fprintf(tw, "businesses\t%d (%d with emails, %.1f%%)\n",
			rep.Database.Businesses, rep.Database.Enriched, rep.Database.EnrichmentRate)
		_ = tw.Flush()

		fmt.Println()
		if len(rep.SpendLast7Days) == 0 {
			fmt.Println("No spend in the last 7 days.")
			return nil
		}
		tw = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PROVIDER (7d)\tCALLS\tTOTAL")
		for _, r := range rep.SpendLast7Days {
			fmt.Fprintf(tw, "%s\t%d\t$%.4f\n", r.Provider, r.CallCount, r.TotalCost)
		}
		return tw.Flush()
	},
}

func readiness(configured bool) string {
	if configured {
		return "configured"
	}
	return "missing key"
}

func init() {
	statusCmd.Flags().Bool("json", false, "print as JSON")
	rootCmd.AddCommand(statusCmd)
}
