package services

import (
	"context"

	"github.com/trialmatch/go-match-engine/config"
	"github.com/trialmatch/go-match-engine/model"
)

// MatchRequest is the payload of a match query: the recruiter's free-text
// query plus the postal codes of the participating sites. TargetIndication
// is an optional explicit override used when the query text carries no
// "Target:" clause.
type MatchRequest struct {
	Query            string   `json:"query"`
	TargetIndication string   `json:"target_indication,omitempty"`
	SiteZipCodes     []string `json:"site_zip_codes,omitempty"`
	TopK             int      `json:"top_k,omitempty"` // 0 means the configured default
}

// PatientResult represents a single ranked patient in the match results,
// including the roster fields a recruiter needs and the full score breakdown.
type PatientResult struct {
	PatientID         string             `json:"patient_id"`
	Age               *int               `json:"age"`
	Sex               model.Sex          `json:"sex"`
	StudyID           string             `json:"study_id,omitempty"`
	Indication        string             `json:"indication"`
	LatestMilestone   string             `json:"latest_milestone,omitempty"`
	ScoreDetails      model.ScoreDetails `json:"score_details"`
	MatchScorePercent float64            `json:"match_score_percent"`
}

type MatchResult struct {
	Patients              []PatientResult `json:"patients"`
	TotalMatchingPatients int             `json:"total_matching_patients"`
	ReturnedPatients      int             `json:"returned_patients"`
	Took                  int64           `json:"took_ms"`  // milliseconds
	QueryId               string          `json:"query_id"` // unique UUID for this match query
}

// Matcher defines the core operation: interpret a query, filter the roster,
// score and rank the candidates.
type Matcher interface {
	Match(ctx context.Context, req MatchRequest) (MatchResult, error)
}

// ConditionLister exposes the distinct indications of a dataset snapshot,
// canonicalized and sorted, for recruiter-facing autocomplete.
type ConditionLister interface {
	Conditions() []string
}

// DatasetStats summarizes one dataset snapshot.
type DatasetStats struct {
	Name               string  `json:"name"`
	Source             string  `json:"source,omitempty"`
	PatientCount       int     `json:"patient_count"`
	ConditionCount     int     `json:"condition_count"`
	GazetteerSize      int     `json:"gazetteer_size"`
	ZipCoveragePercent float64 `json:"zip_coverage_percent"`
	LoadedAt           string  `json:"loaded_at,omitempty"`
}

// DatasetManager manages the lifecycle of patient datasets.
type DatasetManager interface {
	LoadDataset(cfg config.DatasetConfig) error
	GetDataset(name string) (DatasetAccessor, error)
	ListDatasets() []string
	DeleteDataset(name string) error
	PersistDatasetData(name string) error
	GetScoringSettings(name string) (config.ScoringConfig, error)
	UpdateScoringSettings(name string, scoring config.ScoringConfig) error
}

// DatasetManagerWithAsyncReload extends DatasetManager with background
// reloads that rebuild a snapshot from source without blocking queries.
type DatasetManagerWithAsyncReload interface {
	DatasetManager
	ReloadDatasetAsync(name string) (string, error) // Returns job ID
}

// JobManager defines operations for inspecting background jobs.
type JobManager interface {
	GetJob(jobID string) (*model.Job, error)
	ListJobs(dataset string, status *model.JobStatus) []*model.Job
}

type DatasetAccessor interface {
	Matcher
	ConditionLister
	Stats() DatasetStats
	ScoringSettings() config.ScoringConfig
}
