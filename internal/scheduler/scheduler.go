// Package scheduler runs screening jobs on cron schedules.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/stockrun/stockrun/internal/config"
	"github.com/stockrun/stockrun/internal/gateway"
	"github.com/stockrun/stockrun/internal/models"
	"github.com/stockrun/stockrun/internal/screen"
)

// Runner executes one screening run; implemented by screen.Pipeline.
type Runner interface {
	Run(ctx context.Context, req screen.Request) (*models.ScreeningResult, error)
}

// ResultSink receives completed scheduled results.
type ResultSink func(job string, result *models.ScreeningResult)

// UniverseResolver maps a job's universe name to a query. Job configs name
// universes symbolically so schedules survive universe file edits.
type UniverseResolver func(name string) gateway.UniverseQuery

// Scheduler drives cron-triggered screening runs.
type Scheduler struct {
	cron     *cron.Cron
	runner   Runner
	resolve  UniverseResolver
	sink     ResultSink
	jobs     []config.ScheduledRun

	mu       sync.Mutex
	running  map[string]bool
	lastRun  map[string]time.Time
}

// New builds a scheduler for the enabled jobs. sink may be nil.
func New(runner Runner, resolve UniverseResolver, jobs []config.ScheduledRun, sink ResultSink) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		runner:  runner,
		resolve: resolve,
		sink:    sink,
		jobs:    jobs,
		running: make(map[string]bool),
		lastRun: make(map[string]time.Time),
	}
}

// Start registers the jobs and starts the cron loop. Invalid schedules are
// rejected up front so a typo fails at boot, not silently at runtime.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, job := range s.jobs {
		if !job.Enabled {
			log.Info().Str("job", job.Name).Msg("scheduled job disabled")
			continue
		}
		job := job
		_, err := s.cron.AddFunc(job.Schedule, func() { s.execute(ctx, job) })
		if err != nil {
			return err
		}
		log.Info().Str("job", job.Name).Str("schedule", job.Schedule).Msg("scheduled job registered")
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron loop and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*models.ScreeningResult, error) {
	for _, job := range s.jobs {
		if job.Name == name {
			return s.run(ctx, job)
		}
	}
	return nil, &UnknownJobError{Name: name}
}

// UnknownJobError is returned by RunNow for unconfigured job names.
type UnknownJobError struct{ Name string }

func (e *UnknownJobError) Error() string { return "unknown scheduled job: " + e.Name }

// execute is the cron entry point: overlapping triggers of the same job
// are dropped rather than queued.
func (s *Scheduler) execute(ctx context.Context, job config.ScheduledRun) {
	s.mu.Lock()
	if s.running[job.Name] {
		s.mu.Unlock()
		log.Warn().Str("job", job.Name).Msg("previous run still in progress, skipping trigger")
		return
	}
	s.running[job.Name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running[job.Name] = false
		s.lastRun[job.Name] = time.Now().UTC()
		s.mu.Unlock()
	}()

	if _, err := s.run(ctx, job); err != nil {
		log.Error().Err(err).Str("job", job.Name).Msg("scheduled screening run failed")
	}
}

func (s *Scheduler) run(ctx context.Context, job config.ScheduledRun) (*models.ScreeningResult, error) {
	log.Info().Str("job", job.Name).Msg("scheduled screening run starting")
	result, err := s.runner.Run(ctx, screen.Request{
		Universe:   s.resolve(job.UniverseID),
		StrategyID: job.StrategyID,
		Enrich:     true,
	})
	if err != nil {
		return nil, err
	}
	if s.sink != nil {
		s.sink(job.Name, result)
	}
	return result, nil
}

// LastRun reports when a job last completed, if ever.
func (s *Scheduler) LastRun(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastRun[name]
	return t, ok
}
