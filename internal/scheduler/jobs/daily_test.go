package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/factorlab/internal/pipeline"
	"github.com/wonny/factorlab/internal/testutil"
	"github.com/wonny/factorlab/pkg/logger"
)

type fakeRunner struct {
	calls [][2]string
	err   error
}

func (f *fakeRunner) Daily(ctx context.Context, bgn, stp string) (*pipeline.RunResult, error) {
	f.calls = append(f.calls, [2]string{bgn, stp})
	return &pipeline.RunResult{Bgn: bgn, Stp: stp}, f.err
}

func clock(date string) func() time.Time {
	return func() time.Time {
		d, _ := time.Parse("20060102", date)
		return d.Add(17 * time.Hour)
	}
}

func TestDailyJobRunsOneTradingDay(t *testing.T) {
	runner := &fakeRunner{}
	job := NewDailyJob(runner, testutil.Calendar(t, 10), "", logger.Nop()).WithClock(clock("20240103"))

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, [][2]string{{"20240103", "20240104"}}, runner.calls)
	assert.Equal(t, DefaultDailySchedule, job.Schedule())
	assert.Equal(t, "daily", job.Name())
}

func TestDailyJobSkipsHolidays(t *testing.T) {
	runner := &fakeRunner{}
	job := NewDailyJob(runner, testutil.Calendar(t, 10), "@daily", logger.Nop()).WithClock(clock("20240106"))

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, runner.calls)
	assert.Equal(t, "@daily", job.Schedule())
}

func TestDailyJobCalendarEnd(t *testing.T) {
	runner := &fakeRunner{}
	job := NewDailyJob(runner, testutil.Calendar(t, 10), "", logger.Nop()).WithClock(clock("20240112"))

	assert.Error(t, job.Run(context.Background()))
	assert.Empty(t, runner.calls)
}

func TestDailyJobPropagatesFailures(t *testing.T) {
	runner := &fakeRunner{err: errors.New("css failed")}
	job := NewDailyJob(runner, testutil.Calendar(t, 10), "", logger.Nop()).WithClock(clock("20240105"))

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "css failed")
}
