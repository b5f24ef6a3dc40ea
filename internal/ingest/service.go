package ingest

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
	"github.com/trialmatch/go-match-engine/internal/screening"
	"github.com/trialmatch/go-match-engine/model"
	"github.com/trialmatch/go-match-engine/store"
)

// buildBatchSize is how many patients one pool task assembles.
const buildBatchSize = 512

// ProgressFunc receives build progress for job reporting. current/total are
// roster rows during reading and patients during assembly.
type ProgressFunc func(current, total int, message string)

// Stats summarizes one snapshot build.
type Stats struct {
	Source             string    `json:"source"`
	TotalRows          int       `json:"total_rows"`
	SkippedRows        int       `json:"skipped_rows"`
	BadDates           int       `json:"bad_dates"`
	PatientCount       int       `json:"patient_count"`
	ConditionCount     int       `json:"condition_count"`
	GazetteerSize      int       `json:"gazetteer_size"`
	ZipCoveragePercent float64   `json:"zip_coverage_percent"`
	LoadedAt           time.Time `json:"loaded_at"`
}

// Result is a fully built, not yet published dataset snapshot.
type Result struct {
	Patients    *store.PatientStore
	Conditions  *index.ConditionIndex
	Coordinates *index.CoordinateIndex
	Stats       Stats
}

// Service builds dataset snapshots from roster sources. It owns no state
// beyond its collaborators and can build concurrently for several datasets.
type Service struct {
	screening *screening.Engine
	pool      *ants.Pool
	logger    *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPool sets the shared worker pool used for parallel record assembly.
// Without a pool the service assembles inline.
func WithPool(pool *ants.Pool) Option {
	return func(s *Service) { s.pool = pool }
}

// WithLogger sets a custom logger. Default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates an ingest service resolving screening statuses through
// the given screening engine.
func NewService(screeningEngine *screening.Engine, opts ...Option) *Service {
	s := &Service{
		screening: screeningEngine,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SourceFor picks the roster source implementation for a dataset config.
func SourceFor(cfg config.DatasetConfig) (Source, error) {
	switch cfg.Source {
	case "csv":
		return NewCSVSource(cfg.RosterPath), nil
	case "xlsx":
		return NewXLSXSource(cfg.RosterPath), nil
	case "sqlite":
		return NewSQLiteSource(cfg.SQLiteDSN, false), nil
	default:
		return nil, errors.NewIngestError(cfg.Source, fmt.Errorf("unknown roster source %q", cfg.Source))
	}
}

// BuildSnapshot reads the roster and gazetteer named by cfg and builds an
// immutable snapshot. progress may be nil. The returned snapshot is not yet
// visible to queries; publishing is the caller's swap.
func (s *Service) BuildSnapshot(ctx context.Context, cfg config.DatasetConfig, progress ProgressFunc) (*Result, error) {
	report := func(current, total int, message string) {
		if progress != nil {
			progress(current, total, message)
		}
	}

	source, err := SourceFor(cfg)
	if err != nil {
		return nil, err
	}

	report(0, 0, "reading roster from "+source.Name())
	rows, err := source.Read(ctx)
	if err != nil {
		return nil, err
	}

	stats := Stats{
		Source:    source.Name(),
		TotalRows: len(rows),
	}

	// Group the long-format rows by patient, preserving first-seen order so
	// snapshot positions are deterministic.
	grouped := make(map[string]*patientRows, len(rows))
	order := make([]string, 0, len(rows))
	for i := range rows {
		id := rows[i].PatientID
		if id == "" {
			stats.SkippedRows++
			continue
		}
		pr, ok := grouped[id]
		if !ok {
			pr = &patientRows{}
			grouped[id] = pr
			order = append(order, id)
		}
		pr.absorb(rows[i])
	}
	if stats.SkippedRows > 0 {
		s.logger.Warn("skipped roster rows without patient id",
			zap.String("source", source.Name()),
			zap.Int("skipped", stats.SkippedRows),
		)
	}

	funnel := s.funnelFor(cfg)

	report(0, len(order), "building patient records")
	records, badDates, err := s.buildRecords(ctx, grouped, order, &funnel, report)
	if err != nil {
		return nil, err
	}
	stats.BadDates = badDates
	if badDates > 0 {
		s.logger.Warn("unparseable roster dates degraded to missing",
			zap.String("source", source.Name()),
			zap.Int("count", badDates),
		)
	}

	patients := store.NewPatientStore()
	conditions := index.NewConditionIndex()
	for i := range records {
		pos := patients.Add(records[i])
		for _, ind := range records[i].AllIndications() {
			conditions.Add(ind, pos)
		}
	}
	stats.PatientCount = patients.Len()
	stats.ConditionCount = conditions.Len()

	report(len(order), len(order), "loading zip gazetteer")
	coords := index.NewCoordinateIndex()
	if cfg.GazetteerPath != "" {
		loaded, droppedRows, err := LoadGazetteer(cfg.GazetteerPath)
		if err != nil {
			return nil, err
		}
		coords = loaded
		if droppedRows > 0 {
			s.logger.Warn("dropped malformed gazetteer rows",
				zap.String("path", cfg.GazetteerPath),
				zap.Int("dropped", droppedRows),
			)
		}
	}
	stats.GazetteerSize = coords.Len()
	stats.ZipCoveragePercent = zipCoverage(records, coords)
	stats.LoadedAt = time.Now()

	s.logger.Info("snapshot built",
		zap.String("dataset", cfg.Name),
		zap.String("source", source.Name()),
		zap.Int("rows", stats.TotalRows),
		zap.Int("patients", stats.PatientCount),
		zap.Int("conditions", stats.ConditionCount),
		zap.Float64("zip_coverage_percent", stats.ZipCoveragePercent),
	)

	return &Result{
		Patients:    patients,
		Conditions:  conditions,
		Coordinates: coords,
		Stats:       stats,
	}, nil
}

// funnelFor resolves the screening rule set the dataset config names, falling
// back to the built-in funnel when the name is unknown.
func (s *Service) funnelFor(cfg config.DatasetConfig) model.ScreeningRuleSet {
	name := cfg.ScreeningRules
	if name == "" || name == screening.DefaultRuleSetName {
		return screening.DefaultRuleSet()
	}
	if s.screening != nil {
		if stored, err := s.screening.GetRuleSet(name); err == nil {
			return stored
		}
	}
	s.logger.Warn("screening rule set not found, using default funnel",
		zap.String("rule_set", name),
	)
	return screening.DefaultRuleSet()
}

// buildRecords assembles patient records from grouped rows, fanning out over
// the worker pool for large rosters. Output order follows the input order
// regardless of which worker built which batch.
func (s *Service) buildRecords(ctx context.Context, grouped map[string]*patientRows, order []string, funnel *model.ScreeningRuleSet, report ProgressFunc) ([]model.PatientRecord, int, error) {
	records := make([]model.PatientRecord, len(order))
	badDates := make([]int, (len(order)+buildBatchSize-1)/buildBatchSize)

	buildBatch := func(batch, start, end int) {
		for i := start; i < end; i++ {
			rec, bad := grouped[order[i]].build(funnel)
			records[i] = rec
			badDates[batch] += bad
		}
	}

	if s.pool == nil || len(order) <= buildBatchSize {
		for b, start := 0, 0; start < len(order); b, start = b+1, start+buildBatchSize {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}
			end := start + buildBatchSize
			if end > len(order) {
				end = len(order)
			}
			buildBatch(b, start, end)
			report(end, len(order), "building patient records")
		}
	} else {
		var wg sync.WaitGroup
		for b, start := 0, 0; start < len(order); b, start = b+1, start+buildBatchSize {
			end := start + buildBatchSize
			if end > len(order) {
				end = len(order)
			}
			batch, batchStart, batchEnd := b, start, end
			wg.Add(1)
			task := func() {
				defer wg.Done()
				if ctx.Err() != nil {
					return
				}
				buildBatch(batch, batchStart, batchEnd)
			}
			if err := s.pool.Submit(task); err != nil {
				// Pool released or saturated; build the batch inline.
				task()
			}
		}
		wg.Wait()
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		report(len(order), len(order), "building patient records")
	}

	total := 0
	for _, n := range badDates {
		total += n
	}
	return records, total, nil
}

// zipCoverage returns the percent of patients whose postal code resolves in
// the gazetteer, one decimal place.
func zipCoverage(records []model.PatientRecord, coords *index.CoordinateIndex) float64 {
	if len(records) == 0 {
		return 0
	}
	covered := 0
	for i := range records {
		if records[i].PostalCode == "" {
			continue
		}
		if _, ok := coords.Lookup(records[i].PostalCode); ok {
			covered++
		}
	}
	return model.Round1(float64(covered) / float64(len(records)) * 100)
}
