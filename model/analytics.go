package model

import "time"

// MatchEvent represents a single match query for analytics tracking
type MatchEvent struct {
	Query            string        `json:"query"`
	TargetIndication string        `json:"target_indication"`
	QueryMode        string        `json:"query_mode"` // "indication", "zip_only", "filtered", "excluded"
	SiteCount        int           `json:"site_count"`
	ResponseTime     time.Duration `json:"response_time"`
	ResultCount      int           `json:"result_count"`
	Timestamp        time.Time     `json:"timestamp"`
}

// PopularIndication represents aggregated data for frequently queried indications
type PopularIndication struct {
	Indication  string `json:"indication"`
	QueryCount  int    `json:"query_count"`
	TrendChange string `json:"trend_change,omitempty"` // "up", "down", "stable"
}

// ZeroResultQuery represents a query that matched no patients
type ZeroResultQuery struct {
	Query    string    `json:"query"`
	Count    int       `json:"count"`
	LastSeen time.Time `json:"last_seen"`
}

// ResponseTimeDistribution represents response time distribution buckets
type ResponseTimeDistribution struct {
	Bucket0To25ms     int     `json:"bucket_0_25ms"`
	Bucket25To50ms    int     `json:"bucket_25_50ms"`
	Bucket50To100ms   int     `json:"bucket_50_100ms"`
	Bucket100msPlus   int     `json:"bucket_100ms_plus"`
	Percentage0To25   float64 `json:"percentage_0_25"`
	Percentage25To50  float64 `json:"percentage_25_50"`
	Percentage50To100 float64 `json:"percentage_50_100"`
	Percentage100Plus float64 `json:"percentage_100_plus"`
}

// QueryModeStats represents counts per query mode
type QueryModeStats struct {
	Indication int `json:"indication"`
	ZipOnly    int `json:"zip_only"`
	Filtered   int `json:"filtered"`
	Excluded   int `json:"excluded"`
}

// MatchPerformanceHourly represents hourly match performance data
type MatchPerformanceHourly struct {
	Hour            int   `json:"hour"`
	QueryCount      int   `json:"query_count"`
	AvgResponseTime int64 `json:"avg_response_time"` // in milliseconds
}

// DatasetStats represents statistics for the loaded dataset snapshot
type DatasetStats struct {
	Dataset      string  `json:"dataset"`
	PatientCount int     `json:"patient_count"`
	Conditions   int     `json:"conditions"`
	ZipCoverage  float64 `json:"zip_coverage_percent"`
	QueryCount   int     `json:"query_count"`
}

// AnalyticsDashboard represents the complete analytics dashboard data
type AnalyticsDashboard struct {
	// Summary metrics
	TotalQueries          int     `json:"total_queries"`
	QueriesChangePercent  float64 `json:"queries_change_percent"`
	AvgResponseTime       int64   `json:"avg_response_time"` // in milliseconds
	ResponseTimeChange    string  `json:"response_time_change"`
	TotalPatients         int     `json:"total_patients"`
	ZeroResultQueryCount  int     `json:"zero_result_query_count"`
	DistinctIndications   int     `json:"distinct_indications"`
	AvgResultsPerQuery    float64 `json:"avg_results_per_query"`

	// Detailed analytics
	MatchPerformance24h      []MatchPerformanceHourly `json:"match_performance_24h"`
	PopularIndications       []PopularIndication      `json:"popular_indications"`
	ZeroResultQueries        []ZeroResultQuery        `json:"zero_result_queries"`
	ResponseTimeDistribution ResponseTimeDistribution `json:"response_time_distribution"`
	QueryModes               QueryModeStats           `json:"query_modes"`
	Dataset                  DatasetStats             `json:"dataset"`
}
