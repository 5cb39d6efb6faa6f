package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"subtrack/internal/cli"
	"subtrack/internal/core"
)

func ratesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rates",
		Short: "Show the exchange rate table",
		RunE:  runRates,
	}
	cmd.Flags().String("base", "", "base currency (default RATES_BASE)")
	cmd.Flags().Float64("amount", 0, "convert this amount into the base currency instead of listing the table")
	cmd.Flags().String("from", "", "currency of --amount")
	return cmd
}

func runRates(cmd *cobra.Command, _ []string) error {
	base, _ := cmd.Flags().GetString("base")
	base = core.NormalizeCurrency(base)
	if base == "" {
		base = cfg.RatesBase
	}
	if !core.ValidCurrency(base) {
		return fmt.Errorf("invalid base currency %q", base)
	}

	svc, cleanup := cli.NewRatesService(cmd.Context(), cfg, nil, logger)
	defer cleanup()

	out := cmd.OutOrStdout()

	if cmd.Flags().Changed("amount") {
		amount, _ := cmd.Flags().GetFloat64("amount")
		from, _ := cmd.Flags().GetString("from")
		from = core.NormalizeCurrency(from)
		if !core.ValidCurrency(from) {
			return fmt.Errorf("--from must be a currency code, got %q", from)
		}
		fmt.Fprintf(out, "%.2f %s = %.2f %s\n", amount, from, svc.Convert(cmd.Context(), amount, from, base), base)
		return nil
	}

	res := svc.Lookup(cmd.Context(), base)
	fmt.Fprintf(out, "base: %s  source: %s  fetched: %s\n\n", res.Base, res.Source, res.FetchedAt.Format("2006-01-02 15:04"))

	codes := make([]string, 0, len(res.Rates))
	for code := range res.Rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, code := range codes {
		fmt.Fprintf(tw, "%s\t%.6f\n", code, res.Rates[code])
	}
	return tw.Flush()
}
