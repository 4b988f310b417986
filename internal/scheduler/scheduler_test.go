package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("missing deadline")
	}
	return j.err
}

func TestRunNow(t *testing.T) {
	s := New(time.Second, zerolog.Nop())
	job := &countingJob{}

	require.NoError(t, s.RunNow(job))
	assert.Equal(t, int32(1), job.runs.Load())

	job.err = errors.New("boom")
	assert.EqualError(t, s.RunNow(job), "boom")
}

func TestAddJob_InvalidSchedule(t *testing.T) {
	s := New(time.Second, zerolog.Nop())
	assert.Error(t, s.AddJob("not a schedule", &countingJob{}))
}

func TestScheduler_RunsRegisteredJob(t *testing.T) {
	s := New(time.Second, zerolog.Nop())
	job := &countingJob{}

	require.NoError(t, s.AddJob("* * * * * *", job))
	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return job.runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}
