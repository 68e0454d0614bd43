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

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Inspect provider spend",
}

var costsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Per-provider spend since a point in time",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		window, _ := cmd.Flags().GetString("window")
		since, err := sinceFor(window)
		if err != nil {
			return err
		}

		rollups, err := st.ProviderRollups(ctx, since)
		if err != nil {
			return eris.Wrap(err, "cost rollups")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rollups)
		}

		if len(rollups) == 0 {
			fmt.Fprintln(os.Stderr, "No spend recorded.")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PROVIDER\tCALLS\tTOTAL\tAVG")
		var total float64
		for _, r := range rollups {
			fmt.Fprintf(tw, "%s\t%d\t$%.4f\t$%.5f\n", r.Provider, r.CallCount, r.TotalCost, r.AvgCost)
			total += r.TotalCost
		}
		_ = tw.Flush()
		fmt.Printf("\ntotal since %s: $%.4f\n", since.Format("2006-01-02"), total)
		return nil
	},
}

var costsLedgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Recent cost-ledger entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		provider, _ := cmd.Flags().GetString("provider")
		limit, _ := cmd.Flags().GetInt("limit")

		events, err := st.ListCostEvents(ctx, provider, limit)
		if err != nil {
			return eris.Wrap(err, "list cost events")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(events)
		}

		if len(events) == 0 {
			fmt.Fprintln(os.Stderr, "No ledger entries.")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tPROVIDER\tENDPOINT\tCOST\tOK")
		for _, ev := range events {
			ok := "yes"
			if !ev.Success {
				ok = "no"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t$%.5f\t%s\n",
				ev.Timestamp.Format("2006-01-02 15:04:05"), ev.Provider, ev.Endpoint, ev.Cost, ok)
		}
		_ = tw.Flush()
		return nil
	},
}

var costsBudgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Budget window utilization per provider",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		gov, err := initGovernor(ctx, st)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PROVIDER\tWINDOW\tREQUESTS\tSPENT\tCOST LIMIT\tREMAINING")
		for _, provider := range gov.Providers() {
			for _, s := range gov.Snapshot(provider) {
				limit, remaining := "-", "-"
				if s.CostLimit > 0 {
					limit = fmt.Sprintf("$%.2f", s.CostLimit)
					remaining = fmt.Sprintf("$%.2f", s.CostRemaining)
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t$%.4f\t%s\t%s\n",
					s.Provider, s.Kind, s.Requests, s.Cost, limit, remaining)
			}
		}
		_ = tw.Flush()
		return nil
	},
}

// sinceFor maps a window name to its wall-clock-aligned start.
func sinceFor(window string) (time.Time, error) {
	now := time.Now().UTC()
	switch window {
	case "day":
		return model.WindowDay.StartOf(now), nil
	case "week":
		return model.WindowWeek.StartOf(now), nil
	case "month":
		return model.WindowMonth.StartOf(now), nil
	case "all":
		return time.Time{}, nil
	}
	return time.Time{}, eris.Errorf("unknown window %q (want day, week, month, or all)", window)
}

func init() {
	costsSummaryCmd.Flags().String("window", "month", "rollup window: day, week, month, or all")
	costsSummaryCmd.Flags().Bool("json", false, "print as JSON")
	costsLedgerCmd.Flags().String("provider", "", "filter by provider")
	costsLedgerCmd.Flags().Int("limit", 50, "maximum entries")
	costsLedgerCmd.Flags().Bool("json", false, "print as JSON")

	costsCmd.AddCommand(costsSummaryCmd, costsLedgerCmd, costsBudgetCmd)
	rootCmd.AddCommand(costsCmd)
}
