package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketcache/internal/testutils"
)

func TestRunnerRegister(t *testing.T) {
	suite := testutils.NewTestSuite(t, nil)
	defer suite.TearDown()

	runner := NewRunner(suite.Logger)

	require.NoError(t, runner.Every("cache-sweep", 5*time.Minute, func(context.Context) error { return nil }))
	assert.Error(t, runner.Every("cache-sweep", time.Minute, func(context.Context) error { return nil }))
	assert.Error(t, runner.Every("bad", 0, func(context.Context) error { return nil }))

	task, ok := runner.GetTask("cache-sweep")
	require.True(t, ok)
	assert.Equal(t, TaskStatusPending, task.Status)
	assert.Equal(t, 5*time.Minute, task.Interval)

	runner.Remove("cache-sweep")
	_, ok = runner.GetTask("cache-sweep")
	assert.False(t, ok)
}

func TestRunnerRunNow(t *testing.T) {
	suite := testutils.NewTestSuite(t, nil)
	defer suite.TearDown()

	runner := NewRunner(suite.Logger)
	boom := errors.New("boom")
	fail := true
	require.NoError(t, runner.Every("sync", time.Hour, func(context.Context) error {
		if fail {
			return boom
		}
		return nil
	}))

	err := runner.RunNow(context.Background(), "sync")
	assert.ErrorIs(t, err, boom)
	task, _ := runner.GetTask("sync")
	assert.Equal(t, TaskStatusFailed, task.Status)
	assert.Equal(t, "boom", task.Error)

	fail = false
	require.NoError(t, runner.RunNow(context.Background(), "sync"))
	task, _ = runner.GetTask("sync")
	assert.Equal(t, TaskStatusCompleted, task.Status)
	assert.EqualValues(t, 2, task.Runs)

	assert.Error(t, runner.RunNow(context.Background(), "missing"))
	assert.Len(t, runner.ListTasks(), 1)
}

func TestRunnerSchedulesAndStops(t *testing.T) {
	suite := testutils.NewTestSuite(t, nil)
	defer suite.TearDown()

	runner := NewRunner(suite.Logger)

	var runs atomic.Int32
	require.NoError(t, runner.Every("tick", time.Second, func(ctx context.Context) error {
		runs.Add(1)
		panic("recovered by the runner")
	}))

	runner.Start(context.Background())
	testutils.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, "task should run on schedule")

	<-runner.Stop().Done()
	after := runs.Load()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no executions after stop")
}
