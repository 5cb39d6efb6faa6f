package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"subtrack/internal/cli"
	"subtrack/internal/services"
)

func summaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print a user's spending summary",
		RunE:  runSummary,
	}
	cmd.Flags().String("user", "", "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runSummary(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")
	ctx := cmd.Context()

	store, err := cli.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Cleanup()

	rateSvc, cleanup := cli.NewRatesService(ctx, cfg, nil, logger)
	defer cleanup()

	svc := services.NewAnalyticsService(store.Store, store.Store, rateSvc, services.AnalyticsConfig{
		RatesBase:       cfg.RatesBase,
		DefaultCurrency: cfg.DefaultDisplayCurrency,
	}, logger)

	res, err := svc.Summary(ctx, userID)
	if err != nil {
		return fmt.Errorf("summary for %s: %w", userID, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "monthly: %.2f %s\nyearly:  %.2f %s\n", res.MonthlySpending, res.DisplayCurrency, res.YearlySpending, res.DisplayCurrency)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if len(res.CategorySpending) > 0 {
		fmt.Fprintln(tw, "\nCATEGORY\tMONTHLY")
		for _, c := range res.CategorySpending {
			fmt.Fprintf(tw, "%s\t%.2f\n", c.Category, c.Amount)
		}
	}
	if len(res.UpcomingPayments) > 0 {
		fmt.Fprintln(tw, "\nDUE\tNAME\tAMOUNT")
		for _, p := range res.UpcomingPayments {
			fmt.Fprintf(tw, "%s\t%s\t%.2f %s\n", p.DueDate.Format("2006-01-02"), p.Name, p.Amount, p.Currency)
		}
	}
	return tw.Flush()
}
