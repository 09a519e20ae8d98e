package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stockrun/stockrun/internal/gateway"
	"github.com/stockrun/stockrun/internal/models"
	"github.com/stockrun/stockrun/internal/scheduler"
)

// jobUniverse maps a job's symbolic universe name to a query. Job configs
// use the same kind:name syntax as the --universe flag.
func jobUniverse(name string) gateway.UniverseQuery {
	query, err := parseUniverseFlag(name)
	if err != nil {
		// Undecorated names default to index lookup.
		return gateway.UniverseQuery{Kind: gateway.UniverseIndex, Name: name}
	}
	return query
}

// resultWriter persists each scheduled result under the artifacts dir.
func resultWriter(dir string) scheduler.ResultSink {
	return func(job string, result *models.ScreeningResult) {
		name := fmt.Sprintf("%s_%s.json", job, result.CompletedAt.Format("20060102_150405"))
		path := filepath.Join(dir, name)
		raw, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Error().Err(err).Str("job", job).Msg("result marshal failed")
			return
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Error().Err(err).Str("dir", dir).Msg("artifacts dir create failed")
			return
		}
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			log.Error().Err(err).Str("path", path).Msg("result write failed")
			return
		}
		log.Info().Str("job", job).Str("path", path).Int("matches", result.MatchesCount).Msg("scheduled result written")
	}
}

const artifactsDir = "artifacts/screenings"

func runScheduleStart(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	a, err := buildApp(configPath, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	if len(a.cfg.Scheduler.Jobs) == 0 {
		return fmt.Errorf("no scheduled jobs configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(a.pipeline, jobUniverse, a.cfg.Scheduler.Jobs, resultWriter(artifactsDir))
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	log.Info().Int("jobs", len(a.cfg.Scheduler.Jobs)).Msg("scheduler running")

	<-ctx.Done()
	log.Info().Msg("stopping scheduler")
	sched.Stop()
	return nil
}

func runScheduleOnce(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	jobName := args[0]

	a, err := buildApp(configPath, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	sched := scheduler.New(a.pipeline, jobUniverse, a.cfg.Scheduler.Jobs, resultWriter(artifactsDir))
	result, err := sched.RunNow(ctx, jobName)
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}
