package analytics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trialmatch/go-match-engine/model"
	"github.com/trialmatch/go-match-engine/services"
)

const (
	analyticsFileName = "analytics.json"
	maxEventsToKeep   = 10000 // Keep last 10k events for performance
)

// Service implements match analytics tracking and reporting. Events are held
// in a bounded in-memory ring and mirrored to a JSON file so dashboards
// survive a restart.
type Service struct {
	mutex        sync.RWMutex
	events       []model.MatchEvent
	datasets     services.DatasetManager
	dataFilePath string // empty disables persistence
	logger       *zap.Logger
}

// NewService creates an analytics service. dataDir may be empty, which keeps
// events in memory only.
func NewService(datasets services.DatasetManager, dataDir string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	service := &Service{
		events:   make([]model.MatchEvent, 0),
		datasets: datasets,
		logger:   logger,
	}
	if dataDir != "" {
		service.dataFilePath = filepath.Join(dataDir, analyticsFileName)
		if err := service.loadData(); err != nil {
			logger.Warn("failed to load analytics data", zap.Error(err))
		}
	}

	return service
}

// TrackMatchEvent records a new match query event. Events arriving without a
// timestamp are stamped with the current time.
func (s *Service) TrackMatchEvent(event model.MatchEvent) error {
	s.mutex.Lock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	s.events = append(s.events, event)

	// Keep only the latest events to prevent unbounded growth
	if len(s.events) > maxEventsToKeep {
		s.events = s.events[len(s.events)-maxEventsToKeep:]
	}
	s.mutex.Unlock()

	// Persist asynchronously; queries never wait on the analytics file.
	if s.dataFilePath != "" {
		go func() {
			if err := s.saveData(); err != nil {
				s.logger.Warn("failed to save analytics data", zap.Error(err))
			}
		}()
	}

	return nil
}

// GetDashboardData returns complete analytics dashboard data.
func (s *Service) GetDashboardData() (model.AnalyticsDashboard, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	now := time.Now()
	yesterday := now.Add(-24 * time.Hour)
	lastWeek := now.Add(-7 * 24 * time.Hour)

	last24hEvents := filterEventsByTime(s.events, yesterday)
	prev24hEvents := filterEventsByTimeRange(s.events, yesterday.Add(-24*time.Hour), yesterday)
	lastWeekEvents := filterEventsByTime(s.events, lastWeek)
	prevWeekEvents := filterEventsByTimeRange(s.events, lastWeek.Add(-7*24*time.Hour), lastWeek)

	dashboard := model.AnalyticsDashboard{
		TotalQueries:             len(last24hEvents),
		QueriesChangePercent:     calculateChangePercent(len(last24hEvents), len(prev24hEvents)),
		AvgResponseTime:          calculateAvgResponseTime(last24hEvents),
		ResponseTimeChange:       calculateResponseTimeChange(last24hEvents, prev24hEvents),
		TotalPatients:            s.getTotalPatients(),
		ZeroResultQueryCount:     countZeroResults(last24hEvents),
		DistinctIndications:      s.getDistinctIndications(),
		AvgResultsPerQuery:       calculateAvgResults(last24hEvents),
		MatchPerformance24h:      getHourlyPerformance(last24hEvents),
		PopularIndications:       getPopularIndications(lastWeekEvents, prevWeekEvents, 5),
		ZeroResultQueries:        getZeroResultQueries(lastWeekEvents, 10),
		ResponseTimeDistribution: getResponseTimeDistribution(last24hEvents),
		QueryModes:               getQueryModeStats(last24hEvents),
		Dataset:                  s.getPrimaryDatasetStats(),
	}

	return dashboard, nil
}

// GetPopularIndications returns the most queried target indications over the
// last week.
func (s *Service) GetPopularIndications(limit int) []model.PopularIndication {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	now := time.Now()
	lastWeek := now.Add(-7 * 24 * time.Hour)
	lastWeekEvents := filterEventsByTime(s.events, lastWeek)
	prevWeekEvents := filterEventsByTimeRange(s.events, lastWeek.Add(-7*24*time.Hour), lastWeek)

	return getPopularIndications(lastWeekEvents, prevWeekEvents, limit)
}

// GetZeroResultQueries returns the queries that matched no patients over the
// last week, most frequent first. Recruiters mine these for taxonomy gaps.
func (s *Service) GetZeroResultQueries(limit int) []model.ZeroResultQuery {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	lastWeekEvents := filterEventsByTime(s.events, time.Now().Add(-7*24*time.Hour))
	return getZeroResultQueries(lastWeekEvents, limit)
}

// filterEventsByTime returns events after the given time.
func filterEventsByTime(events []model.MatchEvent, after time.Time) []model.MatchEvent {
	var filtered []model.MatchEvent
	for _, event := range events {
		if event.Timestamp.After(after) {
			filtered = append(filtered, event)
		}
	}
	return filtered
}

// filterEventsByTimeRange returns events within the given time range.
func filterEventsByTimeRange(events []model.MatchEvent, start, end time.Time) []model.MatchEvent {
	var filtered []model.MatchEvent
	for _, event := range events {
		if event.Timestamp.After(start) && event.Timestamp.Before(end) {
			filtered = append(filtered, event)
		}
	}
	return filtered
}

// calculateChangePercent calculates percentage change between current and
// previous values.
func calculateChangePercent(current, previous int) float64 {
	if previous == 0 {
		if current > 0 {
			return 100.0
		}
		return 0.0
	}
	return float64(current-previous) / float64(previous) * 100.0
}

// calculateAvgResponseTime calculates average response time in milliseconds.
func calculateAvgResponseTime(events []model.MatchEvent) int64 {
	if len(events) == 0 {
		return 0
	}

	var total time.Duration
	for _, event := range events {
		total += event.ResponseTime
	}
	return (total / time.Duration(len(events))).Milliseconds()
}

// calculateResponseTimeChange calculates the response time trend.
func calculateResponseTimeChange(current, previous []model.MatchEvent) string {
	currentAvg := calculateAvgResponseTime(current)
	previousAvg := calculateAvgResponseTime(previous)

	if previousAvg == 0 {
		return "stable"
	}

	change := float64(currentAvg-previousAvg) / float64(previousAvg)
	if change > 0.1 {
		return "up"
	} else if change < -0.1 {
		return "down"
	}
	return "stable"
}

// calculateAvgResults returns the mean result count per query.
func calculateAvgResults(events []model.MatchEvent) float64 {
	if len(events) == 0 {
		return 0
	}
	total := 0
	for _, event := range events {
		total += event.ResultCount
	}
	return model.Round2(float64(total) / float64(len(events)))
}

func countZeroResults(events []model.MatchEvent) int {
	count := 0
	for _, event := range events {
		if event.ResultCount == 0 {
			count++
		}
	}
	return count
}

// getTotalPatients sums the patient counts of every loaded dataset.
func (s *Service) getTotalPatients() int {
	if s.datasets == nil {
		return 0
	}
	total := 0
	for _, name := range s.datasets.ListDatasets() {
		if accessor, err := s.datasets.GetDataset(name); err == nil {
			total += accessor.Stats().PatientCount
		}
	}
	return total
}

// getDistinctIndications sums the condition vocabularies of every loaded
// dataset.
func (s *Service) getDistinctIndications() int {
	if s.datasets == nil {
		return 0
	}
	total := 0
	for _, name := range s.datasets.ListDatasets() {
		if accessor, err := s.datasets.GetDataset(name); err == nil {
			total += accessor.Stats().ConditionCount
		}
	}
	return total
}

// getPrimaryDatasetStats reports the first loaded dataset alongside its
// lifetime query count.
func (s *Service) getPrimaryDatasetStats() model.DatasetStats {
	stats := model.DatasetStats{QueryCount: len(s.events)}
	if s.datasets == nil {
		return stats
	}
	names := s.datasets.ListDatasets()
	if len(names) == 0 {
		return stats
	}
	accessor, err := s.datasets.GetDataset(names[0])
	if err != nil {
		return stats
	}
	ds := accessor.Stats()
	stats.Dataset = ds.Name
	stats.PatientCount = ds.PatientCount
	stats.Conditions = ds.ConditionCount
	stats.ZipCoverage = ds.ZipCoveragePercent
	return stats
}

// getHourlyPerformance returns hourly match performance for the last 24 hours.
func getHourlyPerformance(events []model.MatchEvent) []model.MatchPerformanceHourly {
	hourlyData := make(map[int][]model.MatchEvent)

	for _, event := range events {
		hour := event.Timestamp.Hour()
		hourlyData[hour] = append(hourlyData[hour], event)
	}

	performance := make([]model.MatchPerformanceHourly, 0, 24)
	for hour := 0; hour < 24; hour++ {
		hourEvents := hourlyData[hour]
		performance = append(performance, model.MatchPerformanceHourly{
			Hour:            hour,
			QueryCount:      len(hourEvents),
			AvgResponseTime: calculateAvgResponseTime(hourEvents),
		})
	}

	return performance
}

// getPopularIndications returns the most queried target indications, with a
// trend against the previous week.
func getPopularIndications(events, previous []model.MatchEvent, limit int) []model.PopularIndication {
	counts := make(map[string]int)
	for _, event := range events {
		if event.TargetIndication != "" {
			counts[event.TargetIndication]++
		}
	}
	prevCounts := make(map[string]int)
	for _, event := range previous {
		if event.TargetIndication != "" {
			prevCounts[event.TargetIndication]++
		}
	}

	type indicationCount struct {
		indication string
		count      int
	}
	ranked := make([]indicationCount, 0, len(counts))
	for indication, count := range counts {
		ranked = append(ranked, indicationCount{indication: indication, count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].indication < ranked[j].indication
	})

	popular := make([]model.PopularIndication, 0, limit)
	for i, ic := range ranked {
		if i >= limit {
			break
		}
		popular = append(popular, model.PopularIndication{
			Indication:  ic.indication,
			QueryCount:  ic.count,
			TrendChange: trendFor(ic.count, prevCounts[ic.indication]),
		})
	}
	return popular
}

func trendFor(current, previous int) string {
	switch {
	case current > previous:
		return "up"
	case current < previous:
		return "down"
	default:
		return "stable"
	}
}

// getZeroResultQueries aggregates queries that matched nothing.
func getZeroResultQueries(events []model.MatchEvent, limit int) []model.ZeroResultQuery {
	type zeroAgg struct {
		count    int
		lastSeen time.Time
	}
	byQuery := make(map[string]*zeroAgg)
	for _, event := range events {
		if event.ResultCount != 0 || event.Query == "" {
			continue
		}
		agg, ok := byQuery[event.Query]
		if !ok {
			agg = &zeroAgg{}
			byQuery[event.Query] = agg
		}
		agg.count++
		if event.Timestamp.After(agg.lastSeen) {
			agg.lastSeen = event.Timestamp
		}
	}

	queries := make([]model.ZeroResultQuery, 0, len(byQuery))
	for query, agg := range byQuery {
		queries = append(queries, model.ZeroResultQuery{
			Query:    query,
			Count:    agg.count,
			LastSeen: agg.lastSeen,
		})
	}
	sort.Slice(queries, func(i, j int) bool {
		if queries[i].Count != queries[j].Count {
			return queries[i].Count > queries[j].Count
		}
		return queries[i].LastSeen.After(queries[j].LastSeen)
	})

	if len(queries) > limit {
		queries = queries[:limit]
	}
	return queries
}

// getResponseTimeDistribution returns response time distribution buckets.
func getResponseTimeDistribution(events []model.MatchEvent) model.ResponseTimeDistribution {
	dist := model.ResponseTimeDistribution{}
	total := len(events)

	if total == 0 {
		return dist
	}

	for _, event := range events {
		ms := event.ResponseTime.Milliseconds()
		switch {
		case ms <= 25:
			dist.Bucket0To25ms++
		case ms <= 50:
			dist.Bucket25To50ms++
		case ms <= 100:
			dist.Bucket50To100ms++
		default:
			dist.Bucket100msPlus++
		}
	}

	dist.Percentage0To25 = float64(dist.Bucket0To25ms) / float64(total) * 100
	dist.Percentage25To50 = float64(dist.Bucket25To50ms) / float64(total) * 100
	dist.Percentage50To100 = float64(dist.Bucket50To100ms) / float64(total) * 100
	dist.Percentage100Plus = float64(dist.Bucket100msPlus) / float64(total) * 100

	return dist
}

// getQueryModeStats counts events per query interpretation mode.
func getQueryModeStats(events []model.MatchEvent) model.QueryModeStats {
	stats := model.QueryModeStats{}

	for _, event := range events {
		switch event.QueryMode {
		case "indication":
			stats.Indication++
		case "zip_only":
			stats.ZipOnly++
		case "filtered":
			stats.Filtered++
		case "excluded":
			stats.Excluded++
		}
	}

	return stats
}

// loadData loads analytics events from the JSON mirror.
func (s *Service) loadData() error {
	if _, err := os.Stat(s.dataFilePath); os.IsNotExist(err) {
		return nil // no history yet
	}

	data, err := os.ReadFile(s.dataFilePath)
	if err != nil {
		return fmt.Errorf("failed to read analytics file: %w", err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := json.Unmarshal(data, &s.events); err != nil {
		return fmt.Errorf("failed to unmarshal analytics data: %w", err)
	}
	return nil
}

// saveData mirrors the current events to the JSON file.
func (s *Service) saveData() error {
	dir := filepath.Dir(s.dataFilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create analytics directory: %w", err)
	}

	s.mutex.RLock()
	data, err := json.MarshalIndent(s.events, "", "  ")
	s.mutex.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal analytics data: %w", err)
	}

	if err := os.WriteFile(s.dataFilePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write analytics file: %w", err)
	}
	return nil
}
