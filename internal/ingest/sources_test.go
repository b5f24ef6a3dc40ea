package ingest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/xuri/excelize/v2"
)

func TestXLSXSourceRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"PATIENT_ID", "age", "sex", "indication", "ACTIVITY_CATEGORY", "ACTIVITY_DATE"},
		{"P001", "29", "F", "Migraine", "RESPONDENTS", "2024-01-05"},
		{"P002", "64", "M", "COPD", "", ""},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	got, err := NewXLSXSource(path).Read(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "P001", got[0].PatientID)
	assert.Equal(t, "Migraine", got[0].Indication)
	assert.Equal(t, "RESPONDENTS", got[0].ActivityCategory)
	assert.Equal(t, "P002", got[1].PatientID)
	assert.Equal(t, "64", got[1].Age)
}

func TestXLSXSourceMissingFile(t *testing.T) {
	_, err := NewXLSXSource(filepath.Join(t.TempDir(), "nope.xlsx")).Read(context.Background())
	require.Error(t, err)
}

func TestSQLiteSourceRead(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "roster.db")

	db, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)

	_, err = db.Exec(`CREATE TABLE patient_roster (
		patient_id TEXT,
		age TEXT,
		sex TEXT,
		indication TEXT,
		study_id TEXT,
		latest_milestone TEXT,
		postal_code TEXT,
		diagnosis_date TEXT,
		last_activity_date TEXT,
		activity_category TEXT,
		activity_date TEXT
	)`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO patient_roster
		(patient_id, age, sex, indication, study_id, latest_milestone, postal_code, diagnosis_date, last_activity_date, activity_category, activity_date)
		VALUES
		('P001', '42', 'M', 'ADHD', 'S-1', NULL, '10115', '2024-01-02', NULL, 'QUALIFIED RESPONDENTS', '2024-02-01'),
		('P002', NULL, 'F', 'Asthma', NULL, NULL, NULL, NULL, NULL, NULL, NULL)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	rows, err := NewSQLiteSource(dsn, false).Read(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "P001", rows[0].PatientID)
	assert.Equal(t, "42", rows[0].Age)
	assert.Equal(t, "QUALIFIED RESPONDENTS", rows[0].ActivityCategory)
	assert.Equal(t, "P002", rows[1].PatientID)
	assert.Empty(t, rows[1].Age, "NULL column reads back empty")
}

func TestCSVSourceRejectsMissingPatientIDColumn(t *testing.T) {
	path := writeFixture(t, "roster.csv", "name,age\nAda,35\n")

	_, err := NewCSVSource(path).Read(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PATIENT_ID")
}
