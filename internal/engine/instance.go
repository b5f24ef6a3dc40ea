package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/trialmatch/go-match-engine/config"
	"github.com/trialmatch/go-match-engine/index"
	"github.com/trialmatch/go-match-engine/internal/errors"
	"github.com/trialmatch/go-match-engine/internal/ingest"
	"github.com/trialmatch/go-match-engine/internal/match"
	"github.com/trialmatch/go-match-engine/internal/queryparse"
	"github.com/trialmatch/go-match-engine/internal/taxonomy"
	"github.com/trialmatch/go-match-engine/services"
	"github.com/trialmatch/go-match-engine/store"
)

// snapshot bundles the immutable components of one published roster build.
// Queries hold a pointer to the whole bundle, so a reload swapping in a new
// snapshot never mixes old postings with new records.
type snapshot struct {
	patients    *store.PatientStore
	conditions  *index.ConditionIndex
	coordinates *index.CoordinateIndex
	matcher     *match.Service
	stats       services.DatasetStats
}

// DatasetInstance holds all components and services for a single patient
// dataset. It implements the services.DatasetAccessor interface. The current
// snapshot is replaced wholesale on reload; in-flight queries finish against
// the snapshot they started with.
type DatasetInstance struct {
	mu       sync.RWMutex
	cfg      config.DatasetConfig
	scoring  config.ScoringConfig
	taxCfg   config.TaxonomyConfig
	matchCfg config.MatchConfig

	current *snapshot // nil until the first build is published

	pool   *ants.Pool
	logger *zap.Logger
	now    func() time.Time
}

// NewDatasetInstance creates a DatasetInstance with no published snapshot.
// Queries against it fail with a dataset-unavailable error until Publish.
func NewDatasetInstance(cfg config.DatasetConfig, scoring config.ScoringConfig, taxCfg config.TaxonomyConfig, matchCfg config.MatchConfig, pool *ants.Pool, logger *zap.Logger, now func() time.Time) (*DatasetInstance, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("dataset name cannot be empty in config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &DatasetInstance{
		cfg:      cfg,
		scoring:  scoring,
		taxCfg:   taxCfg,
		matchCfg: matchCfg,
		pool:     pool,
		logger:   logger,
		now:      now,
	}, nil
}

// buildSnapshot assembles the matcher stack over a set of stores. Called
// with i.mu held or on a not-yet-shared instance.
func (i *DatasetInstance) buildSnapshot(patients *store.PatientStore, conditions *index.ConditionIndex, coordinates *index.CoordinateIndex, stats services.DatasetStats) (*snapshot, error) {
	tax := taxonomy.New(i.taxCfg)
	scorer := match.NewScorer(i.scoring, i.taxCfg, tax, coordinates, i.now)
	parser := queryparse.NewParser(i.matchCfg.DefaultTopK, i.matchCfg.TopKCeiling)

	matcher, err := match.NewService(patients, conditions, tax, scorer, parser,
		match.WithPool(i.pool),
		match.WithLogger(i.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create match service for dataset '%s': %w", i.cfg.Name, err)
	}

	return &snapshot{
		patients:    patients,
		conditions:  conditions,
		coordinates: coordinates,
		matcher:     matcher,
		stats:       stats,
	}, nil
}

// Publish swaps in a freshly built roster snapshot. The swap is a pointer
// replacement under a brief write lock; queries never observe a half-built
// dataset.
func (i *DatasetInstance) Publish(result *ingest.Result) error {
	if result == nil {
		return fmt.Errorf("cannot publish nil build result for dataset '%s'", i.cfg.Name)
	}

	stats := services.DatasetStats{
		Name:               i.cfg.Name,
		Source:             result.Stats.Source,
		PatientCount:       result.Stats.PatientCount,
		ConditionCount:     result.Stats.ConditionCount,
		GazetteerSize:      result.Stats.GazetteerSize,
		ZipCoveragePercent: result.Stats.ZipCoveragePercent,
		LoadedAt:           result.Stats.LoadedAt.UTC().Format(time.RFC3339),
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	snap, err := i.buildSnapshot(result.Patients, result.Conditions, result.Coordinates, stats)
	if err != nil {
		return err
	}
	i.current = snap
	return nil
}

// publishLoaded installs stores recovered from disk as the current snapshot.
func (i *DatasetInstance) publishLoaded(patients *store.PatientStore, conditions *index.ConditionIndex, coordinates *index.CoordinateIndex, stats services.DatasetStats) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	snap, err := i.buildSnapshot(patients, conditions, coordinates, stats)
	if err != nil {
		return err
	}
	i.current = snap
	return nil
}

// snapshotRef returns the current snapshot, or an error when none has been
// published yet.
func (i *DatasetInstance) snapshotRef() (*snapshot, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.current == nil {
		return nil, errors.NewDatasetUnavailableError(i.cfg.Name, "no snapshot loaded")
	}
	return i.current, nil
}

// Match delegates to the current snapshot's match service.
// This satisfies a part of the services.DatasetAccessor interface.
func (i *DatasetInstance) Match(ctx context.Context, req services.MatchRequest) (services.MatchResult, error) {
	snap, err := i.snapshotRef()
	if err != nil {
		return services.MatchResult{}, err
	}
	return snap.matcher.Match(ctx, req)
}

// Conditions returns the distinct indications of the current snapshot.
// This satisfies a part of the services.DatasetAccessor interface.
func (i *DatasetInstance) Conditions() []string {
	snap, err := i.snapshotRef()
	if err != nil {
		return []string{}
	}
	return snap.matcher.Conditions()
}

// Stats returns the snapshot summary for this dataset.
// This satisfies a part of the services.DatasetAccessor interface.
func (i *DatasetInstance) Stats() services.DatasetStats {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.current == nil {
		return services.DatasetStats{Name: i.cfg.Name, Source: i.cfg.Source}
	}
	return i.current.stats
}

// ScoringSettings returns the scoring breakpoints this dataset scores with.
// This satisfies a part of the services.DatasetAccessor interface.
func (i *DatasetInstance) ScoringSettings() config.ScoringConfig {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.scoring
}

// Config returns the dataset source configuration.
func (i *DatasetInstance) Config() config.DatasetConfig {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.cfg
}

// UpdateScoring replaces the scoring breakpoints and rebuilds the matcher
// over the unchanged stores. The roster itself is not re-ingested.
func (i *DatasetInstance) UpdateScoring(scoring config.ScoringConfig) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.scoring = scoring
	if i.current == nil {
		return nil // next Publish picks up the new breakpoints
	}

	snap, err := i.buildSnapshot(i.current.patients, i.current.conditions, i.current.coordinates, i.current.stats)
	if err != nil {
		return err
	}
	i.current = snap
	return nil
}

// components returns the current snapshot's stores for persistence. The
// last return is false when no snapshot has been published.
func (i *DatasetInstance) components() (*store.PatientStore, *index.ConditionIndex, *index.CoordinateIndex, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.current == nil {
		return nil, nil, nil, false
	}
	return i.current.patients, i.current.conditions, i.current.coordinates, true
}

var _ services.DatasetAccessor = (*DatasetInstance)(nil)
