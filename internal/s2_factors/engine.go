package s2_factors

import (
	"context"
	"fmt"

	"github.com/wonny/factorlab/internal/store"
	"github.com/wonny/factorlab/internal/workerpool"
	"github.com/wonny/factorlab/pkg/logger"
	"github.com/wonny/factorlab/pkg/metrics"
)

// Engine runs a calculator over the universe and persists one table per instrument
type Engine struct {
	env     Env
	backend store.Backend
	metrics *metrics.Metrics
	log     *logger.Logger
}

// PoolConfig sizes the instrument pool
type PoolConfig struct {
	Workers    int
	Sequential bool
}

func NewEngine(env Env, backend store.Backend, m *metrics.Metrics, log *logger.Logger) *Engine {
	return &Engine{env: env, backend: backend, metrics: m, log: log.WithComponent("factor")}
}

// ProcessInstrument computes [bgn, stp) for one instrument and appends it when continuous.
// An empty result is logged and is not an error.
func (e *Engine) ProcessInstrument(ctx context.Context, c Calculator, instrument, bgn, stp string) error {
	log := e.log.WithFields(map[string]interface{}{
		"class":      c.Class(),
		"instrument": instrument,
		"bgn":        bgn,
		"stp":        stp,
	})

	rows, err := c.Calculate(ctx, e.env, instrument, bgn, stp)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		log.Info("no factor rows computed")
		return nil
	}

	written, err := store.AppendIfContinuous(ctx, e.backend.Table(Schema(c, instrument)), rows, e.env.Cal, e.metrics, log)
	if err != nil {
		return err
	}
	log.WithFields(map[string]interface{}{"rows": len(rows), "written": written}).Debug("instrument done")
	return nil
}

// Run processes every instrument in the pool; failures are isolated per instrument
func (e *Engine) Run(ctx context.Context, c Calculator, instruments []string, bgn, stp string, pool PoolConfig) *workerpool.Report {
	tasks := make([]workerpool.Task, len(instruments))
	for i, inst := range instruments {
		tasks[i] = workerpool.Task{
			ID: inst,
			Run: func(ctx context.Context) error {
				return e.ProcessInstrument(ctx, c, inst, bgn, stp)
			},
		}
	}
	return workerpool.Run(ctx, tasks, workerpool.Options{
		Name:       fmt.Sprintf("factor-%s", c.Class()),
		Workers:    pool.Workers,
		Sequential: pool.Sequential,
		Metrics:    e.metrics,
		Logger:     e.log,
	})
}

// Load reads the persisted factor rows of one instrument
func (e *Engine) Load(ctx context.Context, c Calculator, instrument, bgn, stp string) ([]store.Record, error) {
	rows, err := e.backend.Table(Schema(c, instrument)).ReadByRange(ctx, bgn, stp)
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", c.Class(), instrument, err)
	}
	return rows, nil
}
