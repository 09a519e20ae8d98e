package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stockrun/stockrun/internal/compliance"
	"github.com/stockrun/stockrun/internal/models"
)

func runComplianceCheck(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	refresh, _ := cmd.Flags().GetBool("refresh")

	a, err := buildApp(configPath, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()
	tickers := make([]string, 0, len(args))
	for _, arg := range args {
		ticker, err := models.NormalizeTicker(arg)
		if err != nil {
			return err
		}
		tickers = append(tickers, ticker)
		if refresh {
			a.filter.Invalidate(ctx, ticker)
		}
	}

	statuses := a.filter.BatchCheck(ctx, tickers)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TICKER\tRESULT\tREASON\tSOURCE\tCONFIDENCE")
	for _, ticker := range tickers {
		status := statuses[ticker]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\n",
			status.Ticker, status.Result, status.Reason, status.Source, status.Confidence)
	}
	w.Flush()

	summary := compliance.Summarize(statuses)
	fmt.Printf("\n%d checked: %d compliant, %d excluded, %d unverified\n",
		summary.Total, summary.Compliant, summary.Excluded, summary.Unverified)
	if len(summary.ByReason) > 0 {
		parts := make([]string, 0, len(summary.ByReason))
		for reason, count := range summary.ByReason {
			parts = append(parts, fmt.Sprintf("%s=%d", reason, count))
		}
		fmt.Printf("Reasons: %s\n", strings.Join(parts, " "))
	}
	return nil
}
