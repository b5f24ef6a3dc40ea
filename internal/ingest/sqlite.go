package ingest

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/trialmatch/go-match-engine/internal/errors"
)

// rosterRowModel maps the patient_roster table onto roster rows. Every
// column is nullable text in the exports, so sql.NullString throughout.
type rosterRowModel struct {
	bun.BaseModel `bun:"table:patient_roster"`

	PatientID        sql.NullString `bun:"patient_id"`
	Age              sql.NullString `bun:"age"`
	Sex              sql.NullString `bun:"sex"`
	Indication       sql.NullString `bun:"indication"`
	StudyID          sql.NullString `bun:"study_id"`
	LatestMilestone  sql.NullString `bun:"latest_milestone"`
	PostalCode       sql.NullString `bun:"postal_code"`
	DiagnosisDate    sql.NullString `bun:"diagnosis_date"`
	LastActivityDate sql.NullString `bun:"last_activity_date"`
	ActivityCategory sql.NullString `bun:"activity_category"`
	ActivityDate     sql.NullString `bun:"activity_date"`
}

// SQLiteSource reads a patient roster from the patient_roster table of a
// SQLite database.
type SQLiteSource struct {
	dsn   string
	debug bool
}

// NewSQLiteSource creates a roster source over the SQLite database at dsn.
// debug enables query logging via bundebug.
func NewSQLiteSource(dsn string, debug bool) *SQLiteSource {
	return &SQLiteSource{dsn: dsn, debug: debug}
}

func (s *SQLiteSource) Name() string { return "sqlite:" + s.dsn }

func (s *SQLiteSource) Read(ctx context.Context) ([]RosterRow, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, s.dsn)
	if err != nil {
		return nil, errors.NewIngestError(s.Name(), err)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())
	defer func() { _ = db.Close() }()

	if s.debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	var models []rosterRowModel
	if err := db.NewSelect().Model(&models).Order("rowid").Scan(ctx); err != nil {
		return nil, errors.NewIngestError(s.Name(), err)
	}

	rows := make([]RosterRow, 0, len(models))
	for _, m := range models {
		rows = append(rows, RosterRow{
			PatientID:        m.PatientID.String,
			Age:              m.Age.String,
			Sex:              m.Sex.String,
			Indication:       m.Indication.String,
			StudyID:          m.StudyID.String,
			LatestMilestone:  m.LatestMilestone.String,
			PostalCode:       m.PostalCode.String,
			DiagnosisDate:    m.DiagnosisDate.String,
			LastActivityDate: m.LastActivityDate.String,
			ActivityCategory: m.ActivityCategory.String,
			ActivityDate:     m.ActivityDate.String,
		})
	}
	return rows, nil
}
