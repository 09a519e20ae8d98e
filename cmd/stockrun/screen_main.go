package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stockrun/stockrun/internal/models"
	"github.com/stockrun/stockrun/internal/screen"
)

func runScreen(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	universeFlag, _ := cmd.Flags().GetString("universe")
	strategyID, _ := cmd.Flags().GetString("strategy")
	workers, _ := cmd.Flags().GetInt("workers")
	enrich, _ := cmd.Flags().GetBool("enrich")
	offline, _ := cmd.Flags().GetBool("offline")
	outputPath, _ := cmd.Flags().GetString("output")
	asJSON, _ := cmd.Flags().GetBool("json")

	query, err := parseUniverseFlag(universeFlag)
	if err != nil {
		return err
	}

	a, err := buildApp(configPath, appOptions{offline: offline, workers: workers})
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := a.pipeline.Run(ctx, screen.Request{
		Universe:   query,
		StrategyID: strategyID,
		Enrich:     enrich,
	})
	if err != nil {
		return fmt.Errorf("screening run failed: %w", err)
	}

	if outputPath != "" {
		if err := writeResultFile(outputPath, result); err != nil {
			return err
		}
		log.Info().Str("path", outputPath).Msg("result written")
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printResult(result)
	return nil
}

func writeResultFile(path string, result *models.ScreeningResult) error {
	raw, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("writing result file: %w", err)
	}
	return nil
}

func printResult(result *models.ScreeningResult) {
	fmt.Printf("Run %s  universe=%s  strategy=%s  took %s\n",
		result.RunID, result.Universe, result.StrategyID, result.Duration.Round(time.Millisecond))
	fmt.Printf("Screened %d tickers: %d compliant, %d excluded, %d skipped\n\n",
		result.TotalStocks, result.CompliantCount, result.ExcludedCount, result.SkippedCount)

	if result.MatchesCount == 0 {
		fmt.Println("No matches.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TICKER\tCONFIDENCE\tPRICE\tSIGNALS")
	for _, match := range result.Matches {
		price := "-"
		if match.CurrentPrice != nil {
			price = fmt.Sprintf("%.2f", *match.CurrentPrice)
		}
		fmt.Fprintf(w, "%s\t%.2f\t%s\t%s\n", match.Ticker, match.Confidence, price, summarizeSignals(match))
	}
	w.Flush()

	if len(result.Exclusions) > 0 {
		fmt.Printf("\nExcluded:\n")
		for _, excl := range result.Exclusions {
			detail := ""
			if excl.Detail != "" {
				detail = " (" + excl.Detail + ")"
			}
			fmt.Printf("  %s: %s%s\n", excl.Ticker, excl.Reason, detail)
		}
	}
}

func summarizeSignals(match models.StockMatch) string {
	names := make([]string, 0, len(match.Signals))
	for name := range match.Signals {
		names = append(names, name)
	}
	sort.Strings(names)

	out := ""
	for _, name := range names {
		signal := match.Signals[name]
		primary := ""
		if field, ok := signal.Field("signal"); ok {
			primary = field.String()
		} else if field, ok := signal.Field("color"); ok {
			primary = field.String()
		} else if field, ok := signal.Field("position"); ok {
			primary = field.String()
		}
		if primary == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += name + "=" + primary
	}
	return out
}
