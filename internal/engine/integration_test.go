package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	enginetest "github.com/trialmatch/go-match-engine/internal/testing"
	"github.com/trialmatch/go-match-engine/model"
	"github.com/trialmatch/go-match-engine/services"
)

func TestSeededEngineMatchSuite(t *testing.T) {
	eng := enginetest.CreateTestEngine(t)
	enginetest.LoadSeedDataset(t, eng, "patients")

	accessor, err := eng.GetDataset("patients")
	require.NoError(t, err, "Failed to get dataset")

	stats := accessor.Stats()
	assert.Equal(t, 5, stats.PatientCount, "P004's two roster rows should collapse into one record")
	assert.Equal(t, 3, stats.ConditionCount)
	assert.Equal(t, 3, stats.GazetteerSize)

	tests := []enginetest.MatchTestCase{
		{
			Name:          "indication target ranks randomization history first",
			Request:       services.MatchRequest{Query: "Target: ADHD"},
			ExpectedCount: 4,
			ExpectedFirst: "P004",
			ValidateFunc: func(t *testing.T, result *services.MatchResult) {
				// P004's two past randomizations (base plus multiple-study
				// bonus) edge out P001's released screening status.
				top := result.Patients[0]
				assert.Equal(t, 245.0, top.ScoreDetails.TotalBusinessScore)
				require.Len(t, top.ScoreDetails.Breakdown, 5)
				assert.Equal(t, 20.0, top.ScoreDetails.Breakdown[4].Points, "qualification entry")
				assert.Equal(t, "P001", result.Patients[1].PatientID)
				assert.Equal(t, 240.0, result.Patients[1].ScoreDetails.TotalBusinessScore)
				assert.NotEmpty(t, result.QueryId)
			},
		},
		{
			Name:          "zip only ranks the released patient at the site first",
			Request:       services.MatchRequest{SiteZipCodes: []string{"94105"}},
			ExpectedCount: 5,
			ExpectedFirst: "P005",
		},
		{
			Name:          "exclusion removes the depression patients",
			Request:       services.MatchRequest{Query: "Target: ADHD EXCLUSION: Depression"},
			ExpectedCount: 2,
			ExpectedFirst: "P004",
		},
		{
			Name:          "sex filter keeps only the women",
			Request:       services.MatchRequest{Query: "Target: ADHD female"},
			ExpectedCount: 2,
			ExpectedFirst: "P001",
		},
		{
			Name:          "age floor keeps the older patients",
			Request:       services.MatchRequest{Query: "Target: ADHD age > 40"},
			ExpectedCount: 2,
			ExpectedFirst: "P004",
		},
		{
			Name:          "top k truncates without changing the total",
			Request:       services.MatchRequest{SiteZipCodes: []string{"94105"}, TopK: 2},
			ExpectedCount: 5,
			ExpectedFirst: "P005",
			ValidateFunc: func(t *testing.T, result *services.MatchResult) {
				assert.Equal(t, 2, result.ReturnedPatients)
				assert.Len(t, result.Patients, 2)
			},
		},
	}
	enginetest.RunMatchTests(t, accessor, tests)
}

func TestSeededEngineAsyncReload(t *testing.T) {
	eng := enginetest.CreateTestEngine(t)
	enginetest.LoadSeedDataset(t, eng, "patients")

	jobID, err := eng.ReloadDatasetAsync("patients")
	require.NoError(t, err, "Failed to start reload")

	job := enginetest.WaitForJobCompletion(t, eng, jobID, enginetest.DefaultJobPollingOptions())
	enginetest.AssertJobCompleted(t, job, model.JobTypeReloadDataset, "patients")

	accessor, err := eng.GetDataset("patients")
	require.NoError(t, err, "Failed to get dataset after reload")
	assert.Equal(t, 5, accessor.Stats().PatientCount)
}
