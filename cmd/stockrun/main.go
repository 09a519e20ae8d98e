package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "stockrun"
	version = "v0.4.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Compliance-first equity screener",
		Version: version,
		Long: `stockrun screens equity universes through an ethical compliance
filter and a declarative indicator strategy, producing ranked matches.

Tickers that cannot be positively verified as compliant are excluded.`,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace|debug|info|warn|error)")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("log-level")
		parsed, err := zerolog.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		zerolog.SetGlobalLevel(parsed)
		return nil
	}

	screenCmd := &cobra.Command{
		Use:   "screen",
		Short: "Run a screening pipeline pass",
		Long:  "Resolve a universe, filter it for compliance, evaluate the strategy and print ranked matches",
		RunE:  runScreen,
	}
	screenCmd.Flags().String("universe", "index:sp500", "Universe selector (index:NAME|sector:NAME|etf:NAME|tickers:A,B,C)")
	screenCmd.Flags().String("strategy", "", "Strategy ID (default strategy when empty)")
	screenCmd.Flags().Int("workers", 0, "Evaluation concurrency (config default when 0)")
	screenCmd.Flags().Bool("enrich", true, "Attach price and fundamentals to matches")
	screenCmd.Flags().Bool("offline", false, "Use the deterministic offline data generator")
	screenCmd.Flags().String("output", "", "Write full result JSON to this file")
	screenCmd.Flags().Bool("json", false, "Print the result as JSON instead of a table")

	complianceCmd := &cobra.Command{
		Use:   "compliance",
		Short: "Compliance filter operations",
	}
	complianceCheckCmd := &cobra.Command{
		Use:   "check [ticker...]",
		Short: "Check tickers against the compliance filter",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runComplianceCheck,
	}
	complianceCheckCmd.Flags().Bool("refresh", false, "Invalidate cached verdicts first")
	complianceCmd.AddCommand(complianceCheckCmd)

	indicatorsCmd := &cobra.Command{
		Use:   "indicators",
		Short: "Indicator registry operations",
	}
	indicatorsListCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered indicators and their parameters",
		RunE:  runIndicatorsList,
	}
	indicatorsCmd.AddCommand(indicatorsListCmd)

	strategiesCmd := &cobra.Command{
		Use:   "strategies",
		Short: "Strategy store operations",
	}
	strategiesListCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored strategies",
		RunE:  runStrategiesList,
	}
	strategiesCmd.AddCommand(strategiesListCmd)

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Start the monitoring HTTP server",
		Long:  "Serves /health, /metrics and the /ws/progress websocket stream",
		RunE:  runMonitor,
	}
	monitorCmd.Flags().String("host", "127.0.0.1", "HTTP server host")
	monitorCmd.Flags().Int("port", 8080, "HTTP server port")

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Scheduled screening runs",
	}
	scheduleStartCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler daemon",
		Long:  "Runs configured screening jobs on their cron schedules until interrupted",
		RunE:  runScheduleStart,
	}
	scheduleRunCmd := &cobra.Command{
		Use:   "run [job-name]",
		Short: "Execute a configured job immediately",
		Args:  cobra.ExactArgs(1),
		RunE:  runScheduleOnce,
	}
	scheduleCmd.AddCommand(scheduleStartCmd)
	scheduleCmd.AddCommand(scheduleRunCmd)

	rootCmd.AddCommand(screenCmd)
	rootCmd.AddCommand(complianceCmd)
	rootCmd.AddCommand(indicatorsCmd)
	rootCmd.AddCommand(strategiesCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(scheduleCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
