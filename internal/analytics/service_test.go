package analytics

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/trialmatch/go-match-engine/config"
	"github.com/trialmatch/go-match-engine/model"
	"github.com/trialmatch/go-match-engine/services"
)

// mockAccessor is a stub dataset accessor backed by fixed stats.
type mockAccessor struct {
	stats services.DatasetStats
}

func (m *mockAccessor) Match(_ context.Context, _ services.MatchRequest) (services.MatchResult, error) {
	return services.MatchResult{}, nil
}
func (m *mockAccessor) Conditions() []string                  { return nil }
func (m *mockAccessor) Stats() services.DatasetStats          { return m.stats }
func (m *mockAccessor) ScoringSettings() config.ScoringConfig { return config.ScoringConfig{} }

// MockDatasetManager is a simple mock for testing
type MockDatasetManager struct {
	datasets map[string]services.DatasetStats
}

func (m *MockDatasetManager) LoadDataset(_ config.DatasetConfig) error { return nil }
func (m *MockDatasetManager) GetDataset(name string) (services.DatasetAccessor, error) {
	return &mockAccessor{stats: m.datasets[name]}, nil
}
func (m *MockDatasetManager) ListDatasets() []string {
	names := make([]string, 0, len(m.datasets))
	for name := range m.datasets {
		names = append(names, name)
	}
	return names
}
func (m *MockDatasetManager) DeleteDataset(_ string) error      { return nil }
func (m *MockDatasetManager) PersistDatasetData(_ string) error { return nil }
func (m *MockDatasetManager) GetScoringSettings(_ string) (config.ScoringConfig, error) {
	return config.ScoringConfig{}, nil
}
func (m *MockDatasetManager) UpdateScoringSettings(_ string, _ config.ScoringConfig) error {
	return nil
}

func TestAnalyticsService_TrackMatchEvent(t *testing.T) {
	mockManager := &MockDatasetManager{
		datasets: map[string]services.DatasetStats{"trial_roster": {Name: "trial_roster"}},
	}

	service := NewService(mockManager, "", nil)

	event := model.MatchEvent{
		Query:            "Target: ADHD",
		TargetIndication: "adhd",
		QueryMode:        "indication",
		ResponseTime:     50 * time.Millisecond,
		ResultCount:      10,
	}

	err := service.TrackMatchEvent(event)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// Verify event was stored
	if len(service.events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(service.events))
	}

	storedEvent := service.events[0]
	if storedEvent.Query != event.Query {
		t.Errorf("Expected Query %s, got %s", event.Query, storedEvent.Query)
	}
	if storedEvent.TargetIndication != event.TargetIndication {
		t.Errorf("Expected TargetIndication %s, got %s", event.TargetIndication, storedEvent.TargetIndication)
	}
	if storedEvent.Timestamp.IsZero() {
		t.Error("Expected event to be stamped with a timestamp")
	}
}

func TestAnalyticsService_GetDashboardData(t *testing.T) {
	mockManager := &MockDatasetManager{
		datasets: map[string]services.DatasetStats{
			"trial_roster": {Name: "trial_roster", PatientCount: 120, ConditionCount: 14, ZipCoveragePercent: 92.5},
		},
	}

	service := NewService(mockManager, "", nil)

	// Add some test events
	events := []model.MatchEvent{
		{
			Query:            "Target: ADHD",
			TargetIndication: "adhd",
			QueryMode:        "indication",
			ResponseTime:     30 * time.Millisecond,
			ResultCount:      5,
			Timestamp:        time.Now().Add(-1 * time.Hour),
		},
		{
			Query:            "Target: Depression not 94105",
			TargetIndication: "depression",
			QueryMode:        "excluded",
			ResponseTime:     45 * time.Millisecond,
			ResultCount:      0,
			Timestamp:        time.Now().Add(-2 * time.Hour),
		},
	}

	for _, event := range events {
		if err := service.TrackMatchEvent(event); err != nil {
			t.Fatalf("Failed to track match event: %v", err)
		}
	}

	dashboard, err := service.GetDashboardData()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// Basic validation
	if dashboard.TotalQueries != 2 {
		t.Errorf("Expected 2 queries in the last 24h, got %d", dashboard.TotalQueries)
	}

	if dashboard.TotalPatients != 120 {
		t.Errorf("Expected 120 total patients, got %d", dashboard.TotalPatients)
	}

	if dashboard.ZeroResultQueryCount != 1 {
		t.Errorf("Expected 1 zero-result query, got %d", dashboard.ZeroResultQueryCount)
	}

	if len(dashboard.MatchPerformance24h) != 24 {
		t.Errorf("Expected 24 hourly performance entries, got %d", len(dashboard.MatchPerformance24h))
	}

	if len(dashboard.PopularIndications) == 0 {
		t.Error("Expected some popular indications, got none")
	}

	if dashboard.QueryModes.Indication != 1 || dashboard.QueryModes.Excluded != 1 {
		t.Errorf("Expected one indication and one excluded query, got %+v", dashboard.QueryModes)
	}

	if dashboard.Dataset.Dataset != "trial_roster" {
		t.Errorf("Expected dataset stats for trial_roster, got %q", dashboard.Dataset.Dataset)
	}
}

func TestAnalyticsService_ZeroResultQueries(t *testing.T) {
	service := NewService(&MockDatasetManager{}, "", nil)

	for i := 0; i < 3; i++ {
		if err := service.TrackMatchEvent(model.MatchEvent{
			Query:     "Target: Narcolepsy",
			QueryMode: "indication",
		}); err != nil {
			t.Fatalf("Failed to track match event: %v", err)
		}
	}
	if err := service.TrackMatchEvent(model.MatchEvent{
		Query:     "Target: Insomnia",
		QueryMode: "indication",
	}); err != nil {
		t.Fatalf("Failed to track match event: %v", err)
	}

	queries := service.GetZeroResultQueries(10)
	if len(queries) != 2 {
		t.Fatalf("Expected 2 distinct zero-result queries, got %d", len(queries))
	}
	if queries[0].Query != "Target: Narcolepsy" || queries[0].Count != 3 {
		t.Errorf("Expected Target: Narcolepsy with count 3 first, got %+v", queries[0])
	}
}

func TestAnalyticsService_PersistAndReload(t *testing.T) {
	// Not t.TempDir: TrackMatchEvent's async save goroutine has no join
	// handle, and its write can land mid-cleanup, failing t.TempDir's strict
	// RemoveAll. Retry removal until the one-shot write has settled.
	dataDir, err := os.MkdirTemp("", "analytics-persist-reload")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() {
		for i := 0; i < 100; i++ {
			if os.RemoveAll(dataDir) == nil {
				return
			}
			time.Sleep(2 * time.Millisecond)
		}
	})

	service := NewService(&MockDatasetManager{}, dataDir, nil)
	if err := service.TrackMatchEvent(model.MatchEvent{
		Query:       "Target: ADHD",
		QueryMode:   "indication",
		ResultCount: 7,
	}); err != nil {
		t.Fatalf("Failed to track match event: %v", err)
	}
	// TrackMatchEvent saves asynchronously; force a synchronous write so the
	// reload below cannot race it.
	if err := service.saveData(); err != nil {
		t.Fatalf("Failed to save analytics data: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dataDir, analyticsFileName)); err != nil {
		t.Fatalf("Failed to stat analytics file: %v", err)
	}

	reloaded := NewService(&MockDatasetManager{}, dataDir, nil)
	if len(reloaded.events) != 1 {
		t.Fatalf("Expected 1 event after reload, got %d", len(reloaded.events))
	}
	if reloaded.events[0].Query != "Target: ADHD" {
		t.Errorf("Expected reloaded query Target: ADHD, got %q", reloaded.events[0].Query)
	}
}
