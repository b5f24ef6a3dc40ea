package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/trialmatch/go-match-engine/config"
	"github.com/trialmatch/go-match-engine/internal/errors"
	"github.com/trialmatch/go-match-engine/internal/ingest"
	"github.com/trialmatch/go-match-engine/internal/jobs"
	"github.com/trialmatch/go-match-engine/internal/screening"
	"github.com/trialmatch/go-match-engine/services"
)

// maxConcurrentJobs bounds parallel background operations. Roster rebuilds
// are memory-hungry, so two at a time is plenty.
const maxConcurrentJobs = 2

// Engine manages multiple patient datasets.
// It implements the services.DatasetManagerWithAsyncReload interface.
type Engine struct {
	mu       sync.RWMutex
	datasets map[string]*DatasetInstance
	dataDir  string

	matchCfg config.MatchConfig
	taxCfg   config.TaxonomyConfig
	scoring  config.ScoringConfig // defaults for newly loaded datasets

	screening  *screening.Engine
	ingester   *ingest.Service
	jobManager *jobs.Manager
	pool       *ants.Pool
	ownsPool   bool
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom logger. Default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithPool shares an existing worker pool instead of creating one. The
// caller keeps ownership and must release it.
func WithPool(pool *ants.Pool) Option {
	return func(e *Engine) {
		e.pool = pool
		e.ownsPool = false
	}
}

// WithClock overrides the engine's time source, used by recency and
// qualification scoring. Tests pin it for reproducible breakdowns.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithScreeningEngine overrides the screening funnel resolver used during
// ingestion. Default is the built-in funnel over an in-memory store.
func WithScreeningEngine(sc *screening.Engine) Option {
	return func(e *Engine) {
		if sc != nil {
			e.screening = sc
		}
	}
}

// NewEngine creates a new match engine orchestrator. dataDir may be empty,
// which disables snapshot persistence entirely. Previously persisted
// datasets under dataDir are loaded back immediately.
func NewEngine(dataDir string, cfg *config.Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}

	eng := &Engine{
		datasets: make(map[string]*DatasetInstance),
		dataDir:  dataDir,
		matchCfg: cfg.Match,
		taxCfg:   cfg.Taxonomy,
		scoring:  cfg.Scoring,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.pool == nil {
		size := cfg.Match.WorkerPoolSize
		if size <= 0 {
			size = runtime.NumCPU()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			eng.logger.Warn("could not create worker pool, scoring runs inline", zap.Error(err))
		} else {
			eng.pool = pool
			eng.ownsPool = true
		}
	}

	if eng.screening == nil {
		eng.screening = screening.NewEngine(screening.NewMemoryRuleSetStore())
	}
	eng.ingester = ingest.NewService(eng.screening,
		ingest.WithPool(eng.pool),
		ingest.WithLogger(eng.logger),
	)

	eng.jobManager = jobs.NewManager(maxConcurrentJobs, eng.logger)
	eng.jobManager.Start()

	if dataDir != "" {
		if err := os.MkdirAll(dataDir, dataDirPerm); err != nil {
			eng.logger.Warn("could not create data directory, persistence disabled",
				zap.String("data_dir", dataDir),
				zap.Error(err),
			)
		}
		eng.loadDatasetsFromDisk()
	}
	return eng
}

// Close stops background jobs and releases the worker pool when the engine
// owns it. In-flight jobs are waited for.
func (e *Engine) Close() {
	e.jobManager.Stop()
	if e.ownsPool && e.pool != nil {
		e.pool.Release()
	}
}

// ScreeningEngine exposes the funnel resolver for the rule endpoints.
func (e *Engine) ScreeningEngine() *screening.Engine {
	return e.screening
}

// LoadDataset ingests the roster named by cfg and registers it as a new
// dataset. The build runs synchronously; use ReloadDatasetAsync to rebuild
// an existing dataset without blocking.
func (e *Engine) LoadDataset(cfg config.DatasetConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("dataset name cannot be empty")
	}

	e.mu.RLock()
	_, exists := e.datasets[cfg.Name]
	e.mu.RUnlock()
	if exists {
		return errors.NewDatasetAlreadyExistsError(cfg.Name)
	}

	instance, err := NewDatasetInstance(cfg, e.scoring, e.taxCfg, e.matchCfg, e.pool, e.logger, e.now)
	if err != nil {
		return fmt.Errorf("failed to create dataset instance for '%s': %w", cfg.Name, err)
	}

	result, err := e.ingester.BuildSnapshot(context.Background(), cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to build snapshot for dataset '%s': %w", cfg.Name, err)
	}
	if err := instance.Publish(result); err != nil {
		return err
	}

	e.mu.Lock()
	if _, raced := e.datasets[cfg.Name]; raced {
		e.mu.Unlock()
		return errors.NewDatasetAlreadyExistsError(cfg.Name)
	}
	e.datasets[cfg.Name] = instance
	e.mu.Unlock()

	if e.dataDir != "" {
		if err := e.persistDataset(cfg.Name, instance); err != nil {
			e.logger.Warn("dataset loaded but persistence failed",
				zap.String("dataset", cfg.Name),
				zap.Error(err),
			)
		}
	}

	e.logger.Info("dataset loaded",
		zap.String("dataset", cfg.Name),
		zap.String("source", cfg.Source),
		zap.Int("patients", instance.Stats().PatientCount),
	)
	return nil
}

// GetDataset retrieves a dataset by its name.
func (e *Engine) GetDataset(name string) (services.DatasetAccessor, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	instance, exists := e.datasets[name]
	if !exists {
		return nil, errors.NewDatasetNotFoundError(name)
	}
	return instance, nil
}

// instanceFor returns the concrete instance behind a dataset name.
func (e *Engine) instanceFor(name string) (*DatasetInstance, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	instance, exists := e.datasets[name]
	if !exists {
		return nil, errors.NewDatasetNotFoundError(name)
	}
	return instance, nil
}

// ListDatasets returns the names of all loaded datasets, sorted.
func (e *Engine) ListDatasets() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.datasets))
	for name := range e.datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DeleteDataset removes a dataset from memory and disk.
func (e *Engine) DeleteDataset(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.datasets[name]; !exists {
		// Idempotency: a dataset persisted but never loaded can still be
		// removed from disk.
		if e.dataDir == "" {
			return errors.NewDatasetNotFoundError(name)
		}
		datasetPath := filepath.Join(e.dataDir, name)
		if _, err := os.Stat(datasetPath); os.IsNotExist(err) {
			return errors.NewDatasetNotFoundError(name)
		}
	} else {
		delete(e.datasets, name)
	}

	if e.dataDir != "" {
		datasetPath := filepath.Join(e.dataDir, name)
		if err := os.RemoveAll(datasetPath); err != nil {
			return fmt.Errorf("failed to delete dataset data directory %s: %w", datasetPath, err)
		}
	}
	e.logger.Info("dataset deleted", zap.String("dataset", name))
	return nil
}

var _ services.DatasetManager = (*Engine)(nil)
var _ services.DatasetManagerWithAsyncReload = (*Engine)(nil)
var _ services.JobManager = (*Engine)(nil)
