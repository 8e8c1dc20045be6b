package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/quantsnap/pkg/logger"
)

type testJob struct {
	name     string
	schedule string
	err      error
	block    chan struct{}
	started  chan struct{}
	runs     atomic.Int32
}

func (j *testJob) Name() string     { return j.name }
func (j *testJob) Schedule() string { return j.schedule }

func (j *testJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.started != nil {
		j.started <- struct{}{}
	}
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

func TestAddJob(t *testing.T) {
	s := New(time.UTC, logger.Nop())

	require.NoError(t, s.AddJob(&testJob{name: "pipeline", schedule: "0 18 * * 1-5"}))
	assert.Error(t, s.AddJob(&testJob{name: "pipeline", schedule: "@daily"}), "duplicate name")
	assert.Error(t, s.AddJob(&testJob{name: "bad", schedule: "not a cron"}))

	require.NoError(t, s.AddJob(&testJob{name: "backfill", schedule: "@weekly"}))
	assert.Equal(t, []string{"backfill", "pipeline"}, s.GetAllJobs())
}

func TestTrigger_RecordsHistory(t *testing.T) {
	s := New(time.UTC, logger.Nop())
	ok := &testJob{name: "ok", schedule: "@daily"}
	bad := &testJob{name: "bad", schedule: "@daily", err: errors.New("boom")}
	require.NoError(t, s.AddJob(ok))
	require.NoError(t, s.AddJob(bad))

	result, err := s.Trigger(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, result.Success)

	result, err = s.Trigger(context.Background(), "bad")
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "boom", result.Error)
	assert.Equal(t, int32(1), bad.runs.Load(), "failed runs are not retried")

	_, err = s.Trigger(context.Background(), "missing")
	assert.Error(t, err)

	history, err := s.GetJobHistory("bad")
	require.NoError(t, err)
	require.Len(t, history.Results, 1)
	assert.Equal(t, 0.0, history.GetSuccessRate())

	stats := s.GetJobStats()
	assert.Equal(t, 1, stats["ok"].SuccessCount)
	assert.Equal(t, 1.0, stats["ok"].SuccessRate)
	assert.Equal(t, 1, stats["bad"].FailureCount)
	assert.NotNil(t, stats["bad"].LastFailure)
	assert.Nil(t, stats["bad"].LastSuccess)
}

func TestTrigger_SkipsWhileRunning(t *testing.T) {
	s := New(time.UTC, logger.Nop())
	job := &testJob{
		name:     "slow",
		schedule: "@daily",
		block:    make(chan struct{}),
		started:  make(chan struct{}, 1),
	}
	require.NoError(t, s.AddJob(job))

	require.NoError(t, s.RunJob("slow"))
	<-job.started

	result, err := s.Trigger(context.Background(), "slow")
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.True(t, s.GetJobStats()["slow"].Running)

	close(job.block)
	require.Eventually(t, func() bool {
		return !s.GetJobStats()["slow"].Running
	}, time.Second, 5*time.Millisecond)
	s.Stop()

	assert.Equal(t, int32(1), job.runs.Load())
	stats := s.GetJobStats()["slow"]
	assert.Equal(t, 1, stats.SkippedCount)
	assert.Equal(t, 1, stats.SuccessCount)
	assert.Equal(t, 1, stats.TotalRuns)
	assert.False(t, stats.Running)
}

func TestStop_CancelsRunningJob(t *testing.T) {
	s := New(time.UTC, logger.Nop())
	job := &testJob{
		name:     "slow",
		schedule: "@daily",
		block:    make(chan struct{}),
		started:  make(chan struct{}, 1),
	}
	require.NoError(t, s.AddJob(job))
	s.Start()

	require.NoError(t, s.RunJob("slow"))
	<-job.started
	s.Stop()

	history, err := s.GetJobHistory("slow")
	require.NoError(t, err)
	require.Len(t, history.Results, 1)
	assert.Contains(t, history.Results[0].Error, "context canceled")
}

func TestNextRuns_UsesLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	s := New(ny, logger.Nop())
	require.NoError(t, s.AddJob(&testJob{name: "pipeline", schedule: "0 18 * * 1-5"}))
	s.Start()
	defer s.Stop()

	next := s.NextRuns()["pipeline"]
	require.False(t, next.IsZero())
	local := next.In(ny)
	assert.Equal(t, 18, local.Hour())
	assert.Equal(t, 0, local.Minute())
	assert.NotEqual(t, time.Saturday, local.Weekday())
	assert.NotEqual(t, time.Sunday, local.Weekday())
}

func TestJobHistory_KeepsNewest(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < maxHistory+5; i++ {
		h.AddResult(JobResult{JobName: "x", Success: i%2 == 0})
	}
	assert.Len(t, h.Results, maxHistory)
	assert.Len(t, h.GetLatestResults(3), 3)
	assert.Empty(t, h.GetLatestResults(0))
	assert.InDelta(t, 0.5, h.GetSuccessRate(), 1e-9)
}
