package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wonny/factorlab/internal/calendar"
	"github.com/wonny/factorlab/internal/pipeline"
	"github.com/wonny/factorlab/internal/projectconfig"
	"github.com/wonny/factorlab/internal/s0_data/quality"
	"github.com/wonny/factorlab/internal/s2_factors"
	"github.com/wonny/factorlab/internal/store"
	"github.com/wonny/factorlab/pkg/config"
	"github.com/wonny/factorlab/pkg/database"
	"github.com/wonny/factorlab/pkg/logger"
	"github.com/wonny/factorlab/pkg/metrics"
	"github.com/wonny/factorlab/pkg/redis"
)

// deps is the dependency graph shared by every command
type deps struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *metrics.Metrics
	db      *database.DB
	redis   *redis.Client
	cache   *redis.Cache
	backend store.Backend
	project *projectconfig.Config
	cal     *calendar.Calendar
	runner  *pipeline.Runner

	metricsServer *http.Server
}

// loadDeps wires config, logger, store, calendar and runner in that order.
// The caller must Close the result.
func loadDeps(ctx context.Context) (*deps, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if processes > 0 {
		cfg.Workers = processes
	}

	// 2. Initialize logger
	log := logger.New(cfg)
	logger.SetVerbose(verbose)

	d := &deps{cfg: cfg, log: log}
	if cfg.MetricsEnabled {
		d.metrics = metrics.New()
	}

	// 3. Project config
	path := cfg.ProjectConfig
	if projectConfig != "" {
		path = projectConfig
	}
	project, _, err := projectconfig.Load(path)
	if err != nil {
		return nil, err
	}
	hash, err := projectconfig.Hash(project)
	if err != nil {
		return nil, err
	}
	d.project = project

	// 4. Store backend; postgres only when selected
	if cfg.Store.Backend == config.BackendPostgres {
		db, err := database.New(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		d.db = db
	}
	backend, err := store.Open(ctx, cfg, d.db)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	d.backend = backend

	// 5. Calendar through the optional cache
	rc, err := redis.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, continuing without cache")
		rc = redis.Disabled()
	}
	d.redis = rc
	d.cache = redis.NewCache(rc, "factorlab")
	cal, err := calendar.LoadCached(ctx, d.cache, project.Path.Calendar)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("load calendar: %w", err)
	}
	d.cal = cal

	// 6. Pipeline
	d.runner = pipeline.NewRunner(pipeline.Options{
		Backend: backend,
		Cal:     cal,
		Config:  project,
		Pool:    s2_factors.PoolConfig{Workers: cfg.WorkerCount(), Sequential: nomp},
		Quality: quality.DefaultConfig(),
		Metrics: d.metrics,
		Logger:  log,
	})

	log.WithFields(map[string]interface{}{
		"store":       cfg.Store.Backend,
		"config":      path,
		"config_hash": hash,
		"trade_dates": cal.Len(),
		"workers":     cfg.WorkerCount(),
	}).Debug("Dependencies ready")
	return d, nil
}

// serveMetrics exposes /metrics on METRICS_PORT in the background
func (d *deps) serveMetrics() {
	if d.metrics == nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.metrics.Handler())
	d.metricsServer = &http.Server{Addr: ":" + d.cfg.MetricsPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := d.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log.WithError(err).Error("Metrics server failed")
		}
	}()
	d.log.WithField("port", d.cfg.MetricsPort).Info("Serving metrics")
}

// Close releases everything loadDeps opened
func (d *deps) Close() {
	if d.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = d.metricsServer.Shutdown(ctx)
		cancel()
	}
	if d.backend != nil {
		if err := d.backend.Close(); err != nil {
			d.log.WithError(err).Warn("Closing store failed")
		}
	}
	if d.db != nil {
		d.db.Close()
	}
	if d.redis != nil {
		_ = d.redis.Close()
	}
}

// withRange loads the dependencies and resolves the stage date range
func withRange(ctx context.Context) (*deps, string, string, error) {
	d, err := loadDeps(ctx)
	if err != nil {
		return nil, "", "", err
	}
	bgn, stp, err := dateRange(d.cal, bgnFlag, stpFlag)
	if err != nil {
		d.Close()
		return nil, "", "", err
	}
	return d, bgn, stp, nil
}
