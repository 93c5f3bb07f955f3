// Package workerpool runs independent tasks with bounded parallelism and
// collects every outcome. A failing task never cancels its siblings.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/factorlab/pkg/logger"
	"github.com/wonny/factorlab/pkg/metrics"
)

// Task is one unit of work, usually one instrument
type Task struct {
	ID  string
	Run func(ctx context.Context) error
}

// Result is the outcome of one task
type Result struct {
	ID       string
	Err      error
	Duration time.Duration
}

// Options configures a pool run
type Options struct {
	Name       string
	Workers    int  // 0 = host core count
	Sequential bool // --nomp
	OnDone     func(Result)
	Metrics    *metrics.Metrics
	Logger     *logger.Logger
}

// TaskError ties a failure to the task that produced it
type TaskError struct {
	ID  string
	Err error
}

func (e *TaskError) Error() string { return fmt.Sprintf("%s: %v", e.ID, e.Err) }
func (e *TaskError) Unwrap() error { return e.Err }

// Report summarizes a run
type Report struct {
	Name      string
	Total     int
	Succeeded int
	Failures  []*TaskError
}

// Failed returns the number of failed tasks
func (r *Report) Failed() int { return len(r.Failures) }

// Err joins all task failures, nil when every task succeeded
func (r *Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return fmt.Errorf("%s: %d of %d tasks failed: %w", r.Name, len(r.Failures), r.Total, errors.Join(errs...))
}

// Merge folds other into r
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	r.Total += other.Total
	r.Succeeded += other.Succeeded
	r.Failures = append(r.Failures, other.Failures...)
}

// Run executes tasks and returns the report. Cancellation of ctx marks the
// tasks that had not started as failed with ctx.Err().
func Run(ctx context.Context, tasks []Task, opts Options) *Report {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if opts.Sequential {
		workers = 1
	}

	log.WithFields(map[string]interface{}{
		"pool":    opts.Name,
		"tasks":   len(tasks),
		"workers": workers,
	}).Info("Starting pool")

	var (
		mu      sync.Mutex
		results = make([]Result, 0, len(tasks))
	)
	record := func(res Result) {
		opts.Metrics.ObserveTask(opts.Name, res.Err, res.Duration)
		if res.Err != nil {
			log.WithError(res.Err).WithField("task", res.ID).Warn("Task failed")
		}
		mu.Lock()
		results = append(results, res)
		mu.Unlock()
		if opts.OnDone != nil {
			opts.OnDone(res)
		}
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			record(Result{ID: task.ID, Err: err})
			continue
		}
		g.Go(func() error {
			record(runOne(ctx, task))
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{Name: opts.Name, Total: len(tasks)}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	for _, res := range results {
		if res.Err != nil {
			report.Failures = append(report.Failures, &TaskError{ID: res.ID, Err: res.Err})
			continue
		}
		report.Succeeded++
	}

	log.WithFields(map[string]interface{}{
		"pool":    opts.Name,
		"total":   report.Total,
		"success": report.Succeeded,
		"failed":  report.Failed(),
	}).Info("Pool completed")

	return report
}

func runOne(ctx context.Context, task Task) (res Result) {
	start := time.Now()
	res.ID = task.ID
	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
		}
		res.Duration = time.Since(start)
	}()
	res.Err = task.Run(ctx)
	return res
}
