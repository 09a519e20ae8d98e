package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockrun/stockrun/internal/config"
	"github.com/stockrun/stockrun/internal/gateway"
	"github.com/stockrun/stockrun/internal/models"
	"github.com/stockrun/stockrun/internal/screen"
)

type stubRunner struct {
	runs    atomic.Int64
	block   chan struct{}
	request screen.Request
	mu      sync.Mutex
}

func (r *stubRunner) Run(_ context.Context, req screen.Request) (*models.ScreeningResult, error) {
	r.mu.Lock()
	r.request = req
	r.mu.Unlock()
	r.runs.Add(1)
	if r.block != nil {
		<-r.block
	}
	return &models.ScreeningResult{RunID: "test-run"}, nil
}

func staticResolver(name string) gateway.UniverseQuery {
	return gateway.UniverseQuery{Kind: gateway.UniverseIndex, Name: name}
}

func TestRunNowExecutesNamedJob(t *testing.T) {
	runner := &stubRunner{}
	var sunk *models.ScreeningResult
	sched := New(runner, staticResolver, []config.ScheduledRun{
		{Name: "nightly", Schedule: "0 2 * * *", UniverseID: "sp500", StrategyID: "default-momentum"},
	}, func(_ string, result *models.ScreeningResult) { sunk = result })

	result, err := sched.RunNow(context.Background(), "nightly")
	require.NoError(t, err)
	assert.Equal(t, "test-run", result.RunID)
	assert.Equal(t, int64(1), runner.runs.Load())
	require.NotNil(t, sunk)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, "sp500", runner.request.Universe.Name)
	assert.Equal(t, "default-momentum", runner.request.StrategyID)
}

func TestRunNowUnknownJob(t *testing.T) {
	sched := New(&stubRunner{}, staticResolver, nil, nil)
	_, err := sched.RunNow(context.Background(), "missing")
	require.Error(t, err)
	var unknown *UnknownJobError
	assert.ErrorAs(t, err, &unknown)
}

func TestOverlappingTriggersAreDropped(t *testing.T) {
	runner := &stubRunner{block: make(chan struct{})}
	job := config.ScheduledRun{Name: "nightly", Schedule: "* * * * *", Enabled: true}
	sched := New(runner, staticResolver, []config.ScheduledRun{job}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sched.execute(context.Background(), job)
	}()
	// Wait for the first run to be in flight, then trigger again.
	require.Eventually(t, func() bool { return runner.runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	sched.execute(context.Background(), job)
	assert.Equal(t, int64(1), runner.runs.Load(), "overlapping trigger should be dropped")

	close(runner.block)
	<-done

	_, ok := sched.LastRun("nightly")
	assert.True(t, ok)
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	sched := New(&stubRunner{}, staticResolver, []config.ScheduledRun{
		{Name: "broken", Schedule: "not-a-cron", Enabled: true},
	}, nil)
	err := sched.Start(context.Background())
	require.Error(t, err)
	sched.Stop()
}

func TestDisabledJobsNotRegistered(t *testing.T) {
	sched := New(&stubRunner{}, staticResolver, []config.ScheduledRun{
		{Name: "off", Schedule: "* * * * *", Enabled: false},
	}, nil)
	require.NoError(t, sched.Start(context.Background()))
	sched.Stop()
	assert.Equal(t, 0, len(sched.cron.Entries()))
}
