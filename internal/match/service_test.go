package match

import (
	"context"
	stderrors "errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/panjf2000/ants/v2"

	"github.com/trialmatch/go-match-engine/config"
	"github.com/trialmatch/go-match-engine/index"
	"github.com/trialmatch/go-match-engine/internal/errors"
	"github.com/trialmatch/go-match-engine/internal/queryparse"
	"github.com/trialmatch/go-match-engine/internal/taxonomy"
	"github.com/trialmatch/go-match-engine/model"
	"github.com/trialmatch/go-match-engine/services"
	"github.com/trialmatch/go-match-engine/store"
)

// --- Test Helpers ---

func intp(v int) *int { return &v }

func newTestService(t *testing.T, records []model.PatientRecord, mutate func(*config.ScoringConfig), opts ...Option) *Service {
	t.Helper()
	patients := store.NewPatientStore()
	conditions := index.NewConditionIndex()
	for _, rec := range records {
		pos := patients.Add(rec)
		conditions.Add(rec.Indication, pos)
	}
	scoring := config.DefaultScoring()
	if mutate != nil {
		mutate(&scoring)
	}
	taxCfg := config.DefaultTaxonomy()
	tax := taxonomy.New(taxCfg)
	scorer := NewScorer(scoring, taxCfg, tax, newTestGazetteer(), fixedClock)
	svc, err := NewService(patients, conditions, tax, scorer, queryparse.NewParser(0, 0), opts...)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

// testRoster is the shared fixture. Against "Target: ADHD Male age>=18" with
// site Z000, P-001 scores 50+25+200+20+0 = 295 and P-002 scores
// 20+10+200+10+15 = 255; the others fall to the filter stage.
func testRoster() []model.PatientRecord {
	return []model.PatientRecord{
		{
			PatientID:       "P-001",
			Age:             intp(34),
			Sex:             model.SexMale,
			Indication:      "ADHD",
			StudyID:         "ST-204",
			LatestMilestone: "Screening Visit",
			PostalCode:      "Z030",
			DiagnosisDate:   daysAgo(10),
			ScreeningStatus: model.ScreeningQualified,
		},
		{
			PatientID:          "P-002",
			Age:                intp(41),
			Sex:                model.SexMale,
			Indication:         "Attention Deficit",
			PostalCode:         "Z150",
			LastActivityDate:   daysAgo(120),
			ScreeningStatus:    model.ScreeningRespondent,
			PastRandomizations: 1,
		},
		{
			PatientID:       "P-003",
			Age:             intp(29),
			Sex:             model.SexFemale,
			Indication:      "MDD",
			PostalCode:      "Z030",
			DiagnosisDate:   daysAgo(20),
			ScreeningStatus: model.ScreeningReleased,
		},
		{
			PatientID:       "P-004",
			Age:             intp(52),
			Sex:             model.SexMale,
			Indication:      "Asthma",
			PostalCode:      "Z000",
			DiagnosisDate:   daysAgo(5),
			ScreeningStatus: model.ScreeningReleased,
		},
		{
			PatientID:     "P-005",
			Age:           intp(15),
			Sex:           model.SexMale,
			Indication:    "ADHD",
			PostalCode:    "Z075",
			DiagnosisDate: daysAgo(40),
		},
		{
			PatientID:       "P-006",
			Sex:             model.SexMale,
			Indication:      "ADHD",
			PostalCode:      "Z030",
			DiagnosisDate:   daysAgo(15),
			ScreeningStatus: model.ScreeningQualified,
		},
	}
}

func resultIDs(result services.MatchResult) []string {
	ids := make([]string, len(result.Patients))
	for i, p := range result.Patients {
		ids[i] = p.PatientID
	}
	return ids
}

// --- Test Cases ---

func TestMatchScenario(t *testing.T) {
	svc := newTestService(t, testRoster(), func(scoring *config.ScoringConfig) {
		scoring.MaxAchievableScore = 295
	})

	result, err := svc.Match(context.Background(), services.MatchRequest{
		Query:        "Target: ADHD Male age >= 18",
		SiteZipCodes: []string{"Z000"},
	})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	if result.TotalMatchingPatients != 2 {
		t.Errorf("total matching = %d, want 2", result.TotalMatchingPatients)
	}
	if result.ReturnedPatients != 2 || len(result.Patients) != 2 {
		t.Fatalf("returned = %d (%d patients), want 2", result.ReturnedPatients, len(result.Patients))
	}
	if got := resultIDs(result); !reflect.DeepEqual(got, []string{"P-001", "P-002"}) {
		t.Fatalf("order = %v, want [P-001 P-002]", got)
	}

	top := result.Patients[0]
	if top.ScoreDetails.TotalBusinessScore != 295 {
		t.Errorf("P-001 total = %v, want 295", top.ScoreDetails.TotalBusinessScore)
	}
	if top.MatchScorePercent != 100 {
		t.Errorf("P-001 percent = %v, want 100 against the 295 ceiling", top.MatchScorePercent)
	}
	if top.StudyID != "ST-204" || top.LatestMilestone != "Screening Visit" {
		t.Errorf("roster fields not carried through: %+v", top)
	}
	wantPoints := []float64{50, 25, 200, 20, 0}
	for i, entry := range top.ScoreDetails.Breakdown {
		if entry.Points != wantPoints[i] {
			t.Errorf("P-001 breakdown[%d] %s = %v, want %v", i, entry.Criterion, entry.Points, wantPoints[i])
		}
	}

	second := result.Patients[1]
	if second.ScoreDetails.TotalBusinessScore != 255 {
		t.Errorf("P-002 total = %v, want 255", second.ScoreDetails.TotalBusinessScore)
	}
	if second.MatchScorePercent != 86.4 {
		t.Errorf("P-002 percent = %v, want 86.4", second.MatchScorePercent)
	}

	if result.QueryId == "" {
		t.Error("query ID missing")
	}
	if result.Took < 0 {
		t.Errorf("took = %d, want non-negative", result.Took)
	}
}

func TestMatchFiltering(t *testing.T) {
	svc := newTestService(t, testRoster(), nil)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{
			// The indication stage is lenient: MDD shares the psychiatric
			// area with ADHD, so P-003 is the one female candidate.
			"female only",
			"Target: ADHD Female age >= 18",
			[]string{"P-003"},
		},
		{
			// No sex filter: P-003 joins, ranked by her 170 total.
			"age floor only",
			"Target: ADHD age >= 18",
			[]string{"P-001", "P-002", "P-003"},
		},
		{
			// No age predicate admits the minor and the missing-age record.
			// P-006 ties P-001 at 295; IDs break the tie ascending.
			"sex only",
			"Target: ADHD Male",
			[]string{"P-001", "P-006", "P-002", "P-005"},
		},
		{
			"upper age bound",
			"Target: ADHD Male age < 40",
			[]string{"P-001", "P-005"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.Match(context.Background(), services.MatchRequest{
				Query:        tt.query,
				SiteZipCodes: []string{"Z000"},
			})
			if err != nil {
				t.Fatalf("Match failed: %v", err)
			}
			if got := resultIDs(result); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("order = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchNoCandidatesIsNotAnError(t *testing.T) {
	svc := newTestService(t, testRoster(), nil)

	result, err := svc.Match(context.Background(), services.MatchRequest{
		Query:        "Target: Hypertension",
		SiteZipCodes: []string{"Z000"},
	})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if result.TotalMatchingPatients != 0 || result.ReturnedPatients != 0 || len(result.Patients) != 0 {
		t.Errorf("want an empty result, got %+v", result)
	}
}

func TestMatchInvalidQuery(t *testing.T) {
	svc := newTestService(t, testRoster(), nil)

	_, err := svc.Match(context.Background(), services.MatchRequest{
		Query: "Male age >= 18",
	})
	if err == nil {
		t.Fatal("want an error for a query with no target and no sites")
	}
	if !stderrors.Is(err, errors.ErrInvalidQuery) {
		t.Errorf("error = %v, want ErrInvalidQuery", err)
	}
}

func TestMatchTopKTruncation(t *testing.T) {
	svc := newTestService(t, testRoster(), nil)

	result, err := svc.Match(context.Background(), services.MatchRequest{
		Query:        "Target: ADHD Male",
		SiteZipCodes: []string{"Z000"},
		TopK:         2,
	})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if result.TotalMatchingPatients != 4 {
		t.Errorf("total matching = %d, want 4 before truncation", result.TotalMatchingPatients)
	}
	if result.ReturnedPatients != 2 {
		t.Errorf("returned = %d, want 2", result.ReturnedPatients)
	}
	if got := resultIDs(result); !reflect.DeepEqual(got, []string{"P-001", "P-006"}) {
		t.Errorf("order = %v, want the top two [P-001 P-006]", got)
	}
}

func TestMatchZipOnly(t *testing.T) {
	svc := newTestService(t, testRoster(), nil)

	result, err := svc.Match(context.Background(), services.MatchRequest{
		SiteZipCodes: []string{"Z000"},
	})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if result.TotalMatchingPatients != 6 {
		t.Errorf("total matching = %d, want the whole roster", result.TotalMatchingPatients)
	}

	// Recency, screening, distance, and history still differentiate:
	// P-003 and P-004 lead at 110, tied, in ID order.
	want := []string{"P-003", "P-004", "P-001", "P-006", "P-002", "P-005"}
	if got := resultIDs(result); !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}

	for _, p := range result.Patients {
		if len(p.ScoreDetails.Breakdown) != 5 {
			t.Fatalf("%s breakdown has %d entries, want all 5", p.PatientID, len(p.ScoreDetails.Breakdown))
		}
		similar := p.ScoreDetails.Breakdown[2]
		if similar.Criterion != model.CriterionSimilarStudies || similar.Points != 0 {
			t.Errorf("%s similar studies entry = %+v, want zero without a target", p.PatientID, similar)
		}
	}
}

func TestMatchExclusions(t *testing.T) {
	svc := newTestService(t, testRoster(), nil)

	without, err := svc.Match(context.Background(), services.MatchRequest{
		Query:        "Target: ADHD age >= 18",
		SiteZipCodes: []string{"Z000"},
	})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if got := resultIDs(without); !reflect.DeepEqual(got, []string{"P-001", "P-002", "P-003"}) {
		t.Fatalf("baseline order = %v, want P-003 included via the area tier", got)
	}

	// "Depression" resolves to P-003's MDD synonym group, so the exclusion
	// removes her; ADHD is only area-related to depression and survives.
	with, err := svc.Match(context.Background(), services.MatchRequest{
		Query:        "Target: ADHD EXCLUSION: Depression age >= 18",
		SiteZipCodes: []string{"Z000"},
	})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if got := resultIDs(with); !reflect.DeepEqual(got, []string{"P-001", "P-002"}) {
		t.Errorf("order with exclusion = %v, want [P-001 P-002]", got)
	}
}

func TestMatchDeterministic(t *testing.T) {
	svc := newTestService(t, testRoster(), nil)
	req := services.MatchRequest{
		Query:        "Target: ADHD Male",
		SiteZipCodes: []string{"Z000"},
	}

	first, err := svc.Match(context.Background(), req)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	second, err := svc.Match(context.Background(), req)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}

	// Everything except the query ID and timing must be identical.
	if !reflect.DeepEqual(first.Patients, second.Patients) {
		t.Error("identical queries produced different patient lists")
	}
	if first.TotalMatchingPatients != second.TotalMatchingPatients {
		t.Errorf("totals differ: %d vs %d", first.TotalMatchingPatients, second.TotalMatchingPatients)
	}
	if first.QueryId == second.QueryId {
		t.Error("query IDs must be unique per query")
	}
}

func TestMatchCancelledContext(t *testing.T) {
	svc := newTestService(t, testRoster(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Match(ctx, services.MatchRequest{
		Query:        "Target: ADHD Male",
		SiteZipCodes: []string{"Z000"},
	})
	if !stderrors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestConditions(t *testing.T) {
	svc := newTestService(t, []model.PatientRecord{
		{PatientID: "P-001", Indication: "ADHD"},
		{PatientID: "P-002", Indication: "Attention Deficit"},
		{PatientID: "P-003", Indication: "Migrain"},
		{PatientID: "P-004", Indication: "asthma"},
		{PatientID: "P-005", Indication: "Rare Syndrome X"},
	}, nil)

	got := svc.Conditions()
	// "Attention Deficit" folds into ADHD, "Migrain" canonicalizes to
	// Migraine, "asthma" recovers its canonical casing, and the unknown
	// indication is listed as spelled.
	want := []string{"ADHD", "Asthma", "Migraine", "Rare Syndrome X"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Conditions() = %v, want %v", got, want)
	}
}

func TestMatchPooledScoringMatchesInline(t *testing.T) {
	// Enough records to split into several batches.
	records := make([]model.PatientRecord, 0, 300)
	zips := []string{"Z000", "Z030", "Z075", "Z150", "Z350", "Z600"}
	statuses := []model.ScreeningStatus{
		model.ScreeningNone, model.ScreeningRespondent, model.ScreeningQualified, model.ScreeningReleased,
	}
	for i := 0; i < 300; i++ {
		rec := model.PatientRecord{
			PatientID:          fmt.Sprintf("P-%03d", i),
			Age:                intp(20 + i%40),
			Sex:                model.SexMale,
			Indication:         "ADHD",
			PostalCode:         zips[i%len(zips)],
			DiagnosisDate:      daysAgo(i % 400),
			ScreeningStatus:    statuses[i%len(statuses)],
			PastRandomizations: i % 4,
		}
		if rec.PastRandomizations > 0 {
			rec.LastRandomization = daysAgo(200 + i%1500)
		}
		records = append(records, rec)
	}

	pool, err := ants.NewPool(4)
	if err != nil {
		t.Fatalf("ants.NewPool failed: %v", err)
	}
	defer pool.Release()

	pooled := newTestService(t, records, nil, WithPool(pool))
	inline := newTestService(t, records, nil)

	req := services.MatchRequest{
		Query:        "Target: ADHD",
		SiteZipCodes: []string{"Z000"},
		TopK:         300,
	}

	pooledResult, err := pooled.Match(context.Background(), req)
	if err != nil {
		t.Fatalf("pooled Match failed: %v", err)
	}
	inlineResult, err := inline.Match(context.Background(), req)
	if err != nil {
		t.Fatalf("inline Match failed: %v", err)
	}

	if pooledResult.TotalMatchingPatients != 300 {
		t.Errorf("total matching = %d, want 300", pooledResult.TotalMatchingPatients)
	}
	if !reflect.DeepEqual(resultIDs(pooledResult), resultIDs(inlineResult)) {
		t.Fatal("pooled and inline scoring ranked the roster differently")
	}
	for i := range pooledResult.Patients {
		if !reflect.DeepEqual(pooledResult.Patients[i].ScoreDetails, inlineResult.Patients[i].ScoreDetails) {
			t.Fatalf("score details diverge at rank %d", i)
		}
	}

	// Ranking is score-descending throughout.
	for i := 1; i < len(pooledResult.Patients); i++ {
		prev := pooledResult.Patients[i-1].ScoreDetails.TotalBusinessScore
		curr := pooledResult.Patients[i].ScoreDetails.TotalBusinessScore
		if curr > prev {
			t.Fatalf("rank %d score %v exceeds rank %d score %v", i, curr, i-1, prev)
		}
	}
}

func TestNewServiceNilDependencies(t *testing.T) {
	patients := store.NewPatientStore()
	conditions := index.NewConditionIndex()
	taxCfg := config.DefaultTaxonomy()
	tax := taxonomy.New(taxCfg)
	scorer := NewScorer(config.DefaultScoring(), taxCfg, tax, newTestGazetteer(), fixedClock)
	parser := queryparse.NewParser(0, 0)

	if _, err := NewService(nil, conditions, tax, scorer, parser); err == nil {
		t.Error("nil patient store accepted")
	}
	if _, err := NewService(patients, nil, tax, scorer, parser); err == nil {
		t.Error("nil condition index accepted")
	}
	if _, err := NewService(patients, conditions, nil, scorer, parser); err == nil {
		t.Error("nil taxonomy accepted")
	}
	if _, err := NewService(patients, conditions, tax, nil, parser); err == nil {
		t.Error("nil scorer accepted")
	}
	if _, err := NewService(patients, conditions, tax, scorer, nil); err == nil {
		t.Error("nil parser accepted")
	}
	if svc, err := NewService(patients, conditions, tax, scorer, parser); err != nil || svc == nil {
		t.Errorf("valid dependencies rejected: %v", err)
	}
}
