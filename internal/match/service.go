package match

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/trialmatch/go-match-engine/index"
	"github.com/trialmatch/go-match-engine/internal/queryparse"
	"github.com/trialmatch/go-match-engine/internal/taxonomy"
	"github.com/trialmatch/go-match-engine/model"
	"github.com/trialmatch/go-match-engine/services"
	"github.com/trialmatch/go-match-engine/store"
)

// scoringBatchSize is how many candidates one pool task scores. Cancellation
// is observed between batches.
const scoringBatchSize = 256

// Service implements the matching pipeline for a single dataset snapshot:
// interpret the query, filter the roster, score candidates, rank, truncate.
// It fulfills the services.Matcher interface.
type Service struct {
	patientStore   *store.PatientStore
	conditionIndex *index.ConditionIndex
	tax            *taxonomy.Taxonomy
	scorer         *Scorer
	parser         *queryparse.Parser

	pool   *ants.Pool
	logger *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPool sets the shared worker pool used for parallel candidate scoring.
// Without a pool the service scores inline.
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

// NewService creates a match Service over one snapshot's stores and indexes.
func NewService(patients *store.PatientStore, conditions *index.ConditionIndex, tax *taxonomy.Taxonomy, scorer *Scorer, parser *queryparse.Parser, opts ...Option) (*Service, error) {
	if patients == nil {
		return nil, fmt.Errorf("patient store cannot be nil")
	}
	if conditions == nil {
		return nil, fmt.Errorf("condition index cannot be nil")
	}
	if tax == nil {
		return nil, fmt.Errorf("taxonomy cannot be nil")
	}
	if scorer == nil {
		return nil, fmt.Errorf("scorer cannot be nil")
	}
	if parser == nil {
		return nil, fmt.Errorf("query parser cannot be nil")
	}

	s := &Service{
		patientStore:   patients,
		conditionIndex: conditions,
		tax:            tax,
		scorer:         scorer,
		parser:         parser,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Match performs a match query against the snapshot.
func (s *Service) Match(ctx context.Context, req services.MatchRequest) (services.MatchResult, error) {
	startTime := time.Now()

	criteria, err := s.parser.Parse(req)
	if err != nil {
		return services.MatchResult{}, err
	}

	positions := s.candidatePositions(&criteria)
	records := make([]model.PatientRecord, 0, len(positions))
	for _, pos := range positions {
		rec, ok := s.patientStore.Get(pos)
		if !ok {
			continue
		}
		if passesPredicates(&rec, &criteria) {
			records = append(records, rec)
		}
	}

	scored, err := s.scoreCandidates(ctx, records, &criteria)
	if err != nil {
		return services.MatchResult{}, err
	}
	rankCandidates(scored)

	total := len(scored)
	kept := criteria.TopK
	if kept > total {
		kept = total
	}
	patients := make([]services.PatientResult, 0, kept)
	for _, cand := range scored[:kept] {
		patients = append(patients, services.PatientResult{
			PatientID:         cand.record.PatientID,
			Age:               cand.record.Age,
			Sex:               cand.record.Sex,
			StudyID:           cand.record.StudyID,
			Indication:        cand.record.Indication,
			LatestMilestone:   cand.record.LatestMilestone,
			ScoreDetails:      cand.details,
			MatchScorePercent: s.scorer.MatchScorePercent(cand.details.TotalBusinessScore),
		})
	}

	s.logger.Debug("match query completed",
		zap.String("target_indication", criteria.TargetIndication),
		zap.Bool("zip_only", criteria.ZipOnly()),
		zap.Int("candidates", total),
		zap.Int("returned", len(patients)),
	)

	return services.MatchResult{
		Patients:              patients,
		TotalMatchingPatients: total,
		ReturnedPatients:      len(patients),
		Took:                  time.Since(startTime).Milliseconds(),
		QueryId:               uuid.New().String(),
	}, nil
}

// scoreCandidates computes breakdowns for all candidates, on the worker pool
// when one is configured and the set is large enough to be worth fanning out.
// Abandoned work after cancellation has no side effects; the partial scores
// are discarded with the returned error.
func (s *Service) scoreCandidates(ctx context.Context, records []model.PatientRecord, criteria *model.MatchCriteria) ([]scoredCandidate, error) {
	scored := make([]scoredCandidate, len(records))

	if s.pool == nil || len(records) <= scoringBatchSize {
		for i := range records {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			scored[i] = scoredCandidate{record: records[i], details: s.scorer.Score(&records[i], criteria)}
		}
		return scored, nil
	}

	var wg sync.WaitGroup
	for start := 0; start < len(records); start += scoringBatchSize {
		end := start + scoringBatchSize
		if end > len(records) {
			end = len(records)
		}
		batchStart, batchEnd := start, end
		wg.Add(1)
		task := func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			for i := batchStart; i < batchEnd; i++ {
				scored[i] = scoredCandidate{record: records[i], details: s.scorer.Score(&records[i], criteria)}
			}
		}
		if err := s.pool.Submit(task); err != nil {
			// Pool released or saturated; score the batch inline.
			task()
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return scored, nil
}

// Conditions returns the distinct indications known to the snapshot,
// canonicalized through the taxonomy, sorted for stable autocomplete.
func (s *Service) Conditions() []string {
	terms := s.conditionIndex.Terms()
	seen := make(map[string]struct{}, len(terms))
	conditions := make([]string, 0, len(terms))
	for _, term := range terms {
		display := s.conditionIndex.DisplayName(term)
		if canonical, ok := s.tax.Canonicalize(display); ok {
			display = canonical
		}
		if _, dup := seen[display]; dup {
			continue
		}
		seen[display] = struct{}{}
		conditions = append(conditions, display)
	}
	sort.Strings(conditions)
	return conditions
}
