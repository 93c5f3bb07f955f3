// Package jobs holds the scheduled pipeline jobs.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/factorlab/internal/calendar"
	"github.com/wonny/factorlab/internal/pipeline"
	"github.com/wonny/factorlab/pkg/logger"
)

// DefaultDailySchedule runs after the night session settles, Monday to Friday
const DefaultDailySchedule = "0 30 16 * * 1-5"

// DailyRunner is the slice of the pipeline runner the daily job needs
type DailyRunner interface {
	Daily(ctx context.Context, bgn, stp string) (*pipeline.RunResult, error)
}

// DailyJob advances every daily stage by one trading day
type DailyJob struct {
	runner   DailyRunner
	cal      *calendar.Calendar
	logger   *logger.Logger
	schedule string
	now      func() time.Time
}

// NewDailyJob creates the job. An empty schedule falls back to DefaultDailySchedule.
func NewDailyJob(runner DailyRunner, cal *calendar.Calendar, schedule string, log *logger.Logger) *DailyJob {
	if schedule == "" {
		schedule = DefaultDailySchedule
	}
	return &DailyJob{
		runner:   runner,
		cal:      cal,
		logger:   log.WithComponent("daily_job"),
		schedule: schedule,
		now:      time.Now,
	}
}

// WithClock replaces the clock, for tests
func (j *DailyJob) WithClock(now func() time.Time) *DailyJob {
	j.now = now
	return j
}

func (j *DailyJob) Name() string     { return "daily" }
func (j *DailyJob) Schedule() string { return j.schedule }

// Run processes today's trade date. Holidays are skipped without error.
func (j *DailyJob) Run(ctx context.Context) error {
	today := j.now().Format("20060102")
	if !j.cal.Contains(today) {
		j.logger.WithField("date", today).Info("Not a trading day, skipping")
		return nil
	}

	stp, err := j.cal.NextDate(today, 1)
	if err != nil {
		return fmt.Errorf("calendar ends at %s, extend it before %s: %w", j.cal.Last(), today, err)
	}

	result, err := j.runner.Daily(ctx, today, stp)
	if result != nil {
		j.logger.WithFields(map[string]interface{}{
			"bgn":      result.Bgn,
			"stp":      result.Stp,
			"stages":   len(result.CompletedStages),
			"duration": result.Duration,
		}).Info("Daily run finished")
	}
	if err != nil {
		return fmt.Errorf("daily run %s: %w", today, err)
	}
	return nil
}
