package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	taskengine "github.com/Swind/go-task-engine"
	"github.com/Swind/go-task-engine/core"
	"github.com/Swind/go-task-engine/internal/config"
)

func newScenarioPool(t *testing.T) *taskengine.GoroutineThreadPool {
	t.Helper()
	cfg := core.DefaultTaskSchedulerConfig()
	cfg.Logger = core.NewNoOpLogger()
	cfg.PanicHandler = &core.DefaultPanicHandler{Logger: cfg.Logger}
	cfg.RejectedTaskHandler = &core.DefaultRejectedTaskHandler{Logger: cfg.Logger}

	pool := taskengine.NewGoroutineThreadPoolWithConfig("scenario-pool", 4, cfg)
	pool.Start(context.Background())
	restore := taskengine.SetDefault(pool)
	t.Cleanup(func() {
		restore()
		pool.Stop()
	})
	return pool
}

func TestScenarios(t *testing.T) {
	pool := newScenarioPool(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	for _, sc := range allScenarios {
		t.Run(sc.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			require.NoError(t, sc.run(ctx, pool, logger))
		})
	}
}

func TestSelectScenarios(t *testing.T) {
	all, err := selectScenarios("  ")
	require.NoError(t, err)
	assert.Len(t, all, len(allScenarios))

	picked, err := selectScenarios("wait, cancel")
	require.NoError(t, err)
	require.Len(t, picked, 2)
	assert.Equal(t, "wait", picked[0].name)
	assert.Equal(t, "cancel", picked[1].name)

	_, err = selectScenarios("wait,nope")
	assert.ErrorContains(t, err, `unknown scenario "nope"`)
}

func TestExpectState(t *testing.T) {
	task := core.NewTask(func(context.Context, any) (int, error) { return 1, nil })

	assert.NoError(t, expectState(task, core.StateCreated))
	assert.ErrorContains(t, expectState(task, core.StateRunning), "want Running")
}

func TestCheckServe(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Metrics.Enabled = false

	assert.NoError(t, checkServe(false, cfg))
	assert.ErrorContains(t, checkServe(true, cfg), "requires metrics")

	cfg.Metrics.Enabled = true
	assert.NoError(t, checkServe(true, cfg))
}
