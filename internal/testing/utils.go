// Package testing provides utilities and helpers for testing the match engine.
package testing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialmatch/go-match-engine/config"
	"github.com/trialmatch/go-match-engine/internal/engine"
	"github.com/trialmatch/go-match-engine/model"
	"github.com/trialmatch/go-match-engine/services"
)

// SeedRoster is a small but representative patient roster: three indications,
// every screening status, zips on both coasts, and one patient (P004) spread
// over two long-format rows with two past randomizations.
const SeedRoster = `PATIENT_ID,AGE,SEX,INDICATION,STUDY_ID,LATEST_MILESTONE,POSTAL_CODE,DIAGNOSIS_DATE,LAST_ACTIVITY_DATE,ACTIVITY_CATEGORY,ACTIVITY_DATE
P001,34,F,ADHD,ST-01,Enrolled,10001,2021-03-01,2024-01-10,RELEASED,2024-01-10
P002,29,M,Depression,ST-02,Screened,10002,2020-05-12,2023-11-02,QUALIFIED RESPONDENTS,2023-11-02
P003,41,F,Migraine,ST-03,Contacted,94105,2019-08-20,2023-06-15,RESPONDENTS,2023-06-15
P004,52,M,ADHD,ST-02,,10001,2018-02-14,,RANDOMIZATION,2020-09-15
P004,52,M,ADHD,ST-04,Enrolled,10001,,2024-02-01,RANDOMIZATION,2022-06-01
P005,47,F,Depression,ST-02,Contacted,94105,2022-07-04,2024-03-20,RELEASED,2024-03-20
`

// SeedGazetteer covers every zip SeedRoster uses.
const SeedGazetteer = `zip,lat,lon
10001,40.7506,-73.9972
10002,40.7157,-73.9860
94105,37.7898,-122.3942
`

// WriteDataset lays the seed roster and gazetteer out in a temp dir and
// returns a dataset config pointing at them.
func WriteDataset(t *testing.T, name string) config.DatasetConfig {
	t.Helper()

	dir := t.TempDir()
	rosterPath := filepath.Join(dir, "roster.csv")
	gazPath := filepath.Join(dir, "gazetteer.csv")
	require.NoError(t, os.WriteFile(rosterPath, []byte(SeedRoster), 0644), "Failed to write roster fixture")
	require.NoError(t, os.WriteFile(gazPath, []byte(SeedGazetteer), 0644), "Failed to write gazetteer fixture")

	return config.DatasetConfig{
		Name:          name,
		Source:        "csv",
		RosterPath:    rosterPath,
		GazetteerPath: gazPath,
	}
}

// CreateTestEngine creates a new engine instance for testing with automatic
// cleanup. Snapshots persist under a temp dir that the test framework removes.
func CreateTestEngine(t *testing.T) *engine.Engine {
	t.Helper()

	cfg := config.Default()
	cfg.Match.WorkerPoolSize = 2
	eng := engine.NewEngine(t.TempDir(), cfg)
	t.Cleanup(eng.Close)
	return eng
}

// LoadSeedDataset loads the seed roster into the engine under the given name.
func LoadSeedDataset(t *testing.T, eng *engine.Engine, name string) config.DatasetConfig {
	t.Helper()

	cfg := WriteDataset(t, name)
	require.NoError(t, eng.LoadDataset(cfg), "Failed to load seed dataset")
	return cfg
}

// JobPollingOptions configures job polling behavior
type JobPollingOptions struct {
	Timeout      time.Duration
	PollInterval time.Duration
	LogProgress  bool
}

// DefaultJobPollingOptions returns sensible defaults for job polling
func DefaultJobPollingOptions() JobPollingOptions {
	return JobPollingOptions{
		Timeout:      10 * time.Second,
		PollInterval: 50 * time.Millisecond,
		LogProgress:  true,
	}
}

// WaitForJobCompletion polls a job until it completes or times out
func WaitForJobCompletion(t *testing.T, jobManager services.JobManager, jobID string, opts JobPollingOptions) *model.Job {
	t.Helper()

	timeout := time.After(opts.Timeout)
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			t.Fatalf("Job %s did not complete within %v timeout", jobID, opts.Timeout)
		case <-ticker.C:
			job, err := jobManager.GetJob(jobID)
			require.NoError(t, err, "Failed to get job status")

			switch job.Status {
			case model.JobStatusCompleted:
				if opts.LogProgress {
					t.Logf("Job %s completed in %v", jobID, job.CompletedAt.Sub(job.CreatedAt))
				}
				return job
			case model.JobStatusFailed:
				t.Fatalf("Job %s failed: %s", jobID, job.Error)
			case model.JobStatusRunning:
				if opts.LogProgress && job.Progress != nil {
					t.Logf("Job %s progress: %d/%d - %s",
						jobID,
						job.Progress.Current,
						job.Progress.Total,
						job.Progress.Message)
				}
			}
		}
	}
}

// AssertJobCompleted verifies that a job completed successfully
func AssertJobCompleted(t *testing.T, job *model.Job, expectedType model.JobType, expectedDataset string) {
	t.Helper()

	assert.Equal(t, model.JobStatusCompleted, job.Status, "Job should be completed")
	assert.Equal(t, expectedType, job.Type, "Job type should match")
	assert.Equal(t, expectedDataset, job.Dataset, "Job dataset should match")
	assert.NotNil(t, job.CompletedAt, "Job should have completion timestamp")
	assert.Empty(t, job.Error, "Job should not have error")
}

// MatchTestCase represents a test case for match queries
type MatchTestCase struct {
	Name          string
	Request       services.MatchRequest
	ExpectedCount int
	ExpectedFirst string // Expected top-ranked patient ID
	ValidateFunc  func(t *testing.T, result *services.MatchResult)
}

// RunMatchTests runs a suite of match tests against a dataset
func RunMatchTests(t *testing.T, accessor services.DatasetAccessor, tests []MatchTestCase) {
	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			result, err := accessor.Match(context.Background(), tt.Request)
			require.NoError(t, err, "Match should not fail")

			assert.Equal(t, tt.ExpectedCount, result.TotalMatchingPatients, "Match count should match")

			if tt.ExpectedFirst != "" && len(result.Patients) > 0 {
				assert.Equal(t, tt.ExpectedFirst, result.Patients[0].PatientID, "Top-ranked patient should match")
			}

			if tt.ValidateFunc != nil {
				tt.ValidateFunc(t, &result)
			}
		})
	}
}
