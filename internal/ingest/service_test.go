package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialmatch/go-match-engine/config"
	"github.com/trialmatch/go-match-engine/internal/errors"
	"github.com/trialmatch/go-match-engine/internal/screening"
	"github.com/trialmatch/go-match-engine/model"
)

const rosterCSV = `PATIENT_ID,age,sex,indication,study_id,POSTAL_CODE,DIAGNOSIS_DATE,ACTIVITY_CATEGORY,ACTIVITY_DATE
P001,34,M,ADHD,S-1,10115,2024-01-10,QUALIFIED RESPONDENTS,2024-02-01
P002,58,F,Asthma,S-2,20095,3/14/2023,RESPONDENTS,2023-04-01
P001,34,M,ADHD,S-1,10115,2024-01-10,RANDOMIZATION,2024-03-15
,99,M,Ghost,S-9,00000,,,
P003,41,F,COPD,S-3,99999,bad-date,,
`

const gazetteerCSV = `zip,lat,lon
10115,52.5323,13.3846
20095,53.5503,10.0006
`

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newTestService() *Service {
	return NewService(screening.NewEngine(screening.NewMemoryRuleSetStore()))
}

func TestBuildSnapshotFromCSV(t *testing.T) {
	cfg := config.DatasetConfig{
		Name:          "patients",
		Source:        "csv",
		RosterPath:    writeFixture(t, "roster.csv", rosterCSV),
		GazetteerPath: writeFixture(t, "gazetteer.csv", gazetteerCSV),
	}

	result, err := newTestService().BuildSnapshot(context.Background(), cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Stats.TotalRows)
	assert.Equal(t, 1, result.Stats.SkippedRows, "row without patient id is skipped")
	assert.Equal(t, 1, result.Stats.BadDates, "P003's diagnosis date cannot be parsed")
	assert.Equal(t, 3, result.Stats.PatientCount)
	assert.Equal(t, 3, result.Stats.ConditionCount)
	assert.Equal(t, 2, result.Stats.GazetteerSize)
	// P001 and P002 have gazetteer zips, P003 does not: 2/3.
	assert.InDelta(t, 66.7, result.Stats.ZipCoveragePercent, 0.01)
	assert.False(t, result.Stats.LoadedAt.IsZero())

	p1, ok := result.Patients.GetByID("P001")
	require.True(t, ok)
	assert.Equal(t, model.ScreeningQualified, p1.ScreeningStatus)
	assert.Equal(t, "RANDOMIZATION", p1.LatestMilestone)
	assert.Equal(t, 1, p1.PastRandomizations)

	p3, ok := result.Patients.GetByID("P003")
	require.True(t, ok)
	assert.Nil(t, p3.DiagnosisDate)
	assert.Equal(t, model.ScreeningNone, p3.ScreeningStatus)

	// The condition index admits lookups by the roster spelling.
	assert.Len(t, result.Conditions.Lookup("ADHD"), 1)
	assert.Len(t, result.Conditions.Lookup("asthma"), 1)
}

func TestBuildSnapshotProgressAndDeterminism(t *testing.T) {
	cfg := config.DatasetConfig{
		Name:       "patients",
		Source:     "csv",
		RosterPath: writeFixture(t, "roster.csv", rosterCSV),
	}

	var messages []string
	progress := func(current, total int, message string) {
		messages = append(messages, message)
	}

	svc := newTestService()
	first, err := svc.BuildSnapshot(context.Background(), cfg, progress)
	require.NoError(t, err)
	require.NotEmpty(t, messages)

	second, err := svc.BuildSnapshot(context.Background(), cfg, nil)
	require.NoError(t, err)

	// Positions are deterministic across rebuilds of the same roster.
	require.Equal(t, first.Patients.Len(), second.Patients.Len())
	for _, id := range []string{"P001", "P002", "P003"} {
		a, ok := first.Patients.GetByID(id)
		require.True(t, ok, id)
		b, ok := second.Patients.GetByID(id)
		require.True(t, ok, id)
		assert.Equal(t, a.Indication, b.Indication, id)
	}
	assert.Equal(t, first.Conditions.Terms(), second.Conditions.Terms())
}

func TestBuildSnapshotMissingRoster(t *testing.T) {
	cfg := config.DatasetConfig{
		Name:       "patients",
		Source:     "csv",
		RosterPath: filepath.Join(t.TempDir(), "missing.csv"),
	}

	_, err := newTestService().BuildSnapshot(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrIngestFailed)
}

func TestBuildSnapshotCustomFunnel(t *testing.T) {
	eng := screening.NewEngine(screening.NewMemoryRuleSetStore())
	_, err := eng.CreateRuleSet(model.ScreeningRuleSet{
		Name: "strict",
		Stages: []model.ScreeningStage{
			{Stage: "QUALIFIED RESPONDENTS", Status: model.ScreeningReleased},
		},
	})
	require.NoError(t, err)

	cfg := config.DatasetConfig{
		Name:           "patients",
		Source:         "csv",
		RosterPath:     writeFixture(t, "roster.csv", rosterCSV),
		ScreeningRules: "strict",
	}

	result, err := NewService(eng).BuildSnapshot(context.Background(), cfg, nil)
	require.NoError(t, err)

	// Under the custom ladder QUALIFIED RESPONDENTS maps to Released and
	// RANDOMIZATION is not a stage at all.
	p1, ok := result.Patients.GetByID("P001")
	require.True(t, ok)
	assert.Equal(t, model.ScreeningReleased, p1.ScreeningStatus)
	assert.Equal(t, "QUALIFIED RESPONDENTS", p1.LatestMilestone)
}

func TestSourceForUnknown(t *testing.T) {
	_, err := SourceFor(config.DatasetConfig{Source: "carrier-pigeon"})
	require.Error(t, err)
}

func TestLoadGazetteerSkipsHeaderAndMalformed(t *testing.T) {
	path := writeFixture(t, "gazetteer.csv", "zip,lat,lon\n10115,52.5323,13.3846\nbroken,x,y\n20095,53.5503,10.0006\n")

	coords, dropped, err := LoadGazetteer(path)
	require.NoError(t, err)
	assert.Equal(t, 2, coords.Len())
	assert.Equal(t, 1, dropped)

	_, ok := coords.Lookup("10115")
	assert.True(t, ok)
}
