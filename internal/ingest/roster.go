package ingest

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/trialmatch/go-match-engine/internal/screening"
	"github.com/trialmatch/go-match-engine/model"
)

// RosterRow is one raw row from a roster source, all values still strings.
// Roster exports are long format: a patient appears once per study activity,
// so several rows usually describe the same patient.
type RosterRow struct {
	PatientID        string
	Age              string
	Sex              string
	Indication       string
	StudyID          string
	LatestMilestone  string
	PostalCode       string
	DiagnosisDate    string
	LastActivityDate string
	ActivityCategory string
	ActivityDate     string
}

// Source streams roster rows from a backing file or database.
type Source interface {
	// Name identifies the source for logs and errors.
	Name() string
	// Read returns every roster row. Row-level problems are left in the
	// returned rows; only unreadable sources fail.
	Read(ctx context.Context) ([]RosterRow, error)
}

// columnMap holds the resolved column position per logical field, -1 when the
// source has no such column.
type columnMap struct {
	patientID        int
	age              int
	sex              int
	indication       int
	studyID          int
	latestMilestone  int
	postalCode       int
	diagnosisDate    int
	lastActivityDate int
	activityCategory int
	activityDate     int
}

// columnAliases maps the header spellings seen across roster exports to
// logical fields. Resolution is case-insensitive.
var columnAliases = map[string]string{
	"patient_id":         "patient_id",
	"age":                "age",
	"sex":                "sex",
	"gender":             "sex",
	"indication":         "indication",
	"indication_name":    "indication",
	"study_id":           "study_id",
	"latest_milestone":   "latest_milestone",
	"postal_code":        "postal_code",
	"zip":                "postal_code",
	"zip_code":           "postal_code",
	"diagnosis_date":     "diagnosis_date",
	"last_activity_date": "last_activity_date",
	"activity_category":  "activity_category",
	"activity_date":      "activity_date",
}

func resolveColumns(header []string) columnMap {
	cm := columnMap{
		patientID: -1, age: -1, sex: -1, indication: -1, studyID: -1,
		latestMilestone: -1, postalCode: -1, diagnosisDate: -1,
		lastActivityDate: -1, activityCategory: -1, activityDate: -1,
	}
	for i, name := range header {
		logical, ok := columnAliases[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			continue
		}
		switch logical {
		case "patient_id":
			cm.patientID = i
		case "age":
			cm.age = i
		case "sex":
			if cm.sex == -1 {
				cm.sex = i
			}
		case "indication":
			if cm.indication == -1 {
				cm.indication = i
			}
		case "study_id":
			cm.studyID = i
		case "latest_milestone":
			cm.latestMilestone = i
		case "postal_code":
			if cm.postalCode == -1 {
				cm.postalCode = i
			}
		case "diagnosis_date":
			cm.diagnosisDate = i
		case "last_activity_date":
			cm.lastActivityDate = i
		case "activity_category":
			cm.activityCategory = i
		case "activity_date":
			cm.activityDate = i
		}
	}
	return cm
}

func (cm columnMap) hasPatientID() bool { return cm.patientID >= 0 }

// rowFromRecord picks the mapped cells out of one raw record. Short records
// simply leave the missing fields empty.
func rowFromRecord(record []string, cm columnMap) RosterRow {
	cell := func(idx int) string {
		if idx < 0 || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}
	return RosterRow{
		PatientID:        cell(cm.patientID),
		Age:              cell(cm.age),
		Sex:              cell(cm.sex),
		Indication:       cell(cm.indication),
		StudyID:          cell(cm.studyID),
		LatestMilestone:  cell(cm.latestMilestone),
		PostalCode:       cell(cm.postalCode),
		DiagnosisDate:    cell(cm.diagnosisDate),
		LastActivityDate: cell(cm.lastActivityDate),
		ActivityCategory: cell(cm.activityCategory),
		ActivityDate:     cell(cm.activityDate),
	}
}

// rosterDateFormats covers the date spellings the roster exports actually
// contain. Slash formats are tried month-first, then day-first, so an
// unambiguous day-first date like 23/4/2021 still parses.
var rosterDateFormats = []string{
	"1/2/2006",
	"2006-01-02",
	"2/1/2006",
	time.RFC3339,
}

// parseRosterDate parses a roster date string. ok is false for blank or
// unparseable values; blank is normal, unparseable should be warned about.
func parseRosterDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range rosterDateFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// randomizationStage is the activity category counted as a randomization.
const randomizationStage = "RANDOMIZATION"

// rowEvent is one activity event attached to a patient.
type rowEvent struct {
	Category string
	Date     *time.Time
}

// patientRows accumulates the roster rows of one patient before the final
// record is built.
type patientRows struct {
	last        RosterRow // demographic fields, last non-empty wins
	events      []rowEvent
	indications []string // distinct, first-seen order
	badDates    int
}

func (pr *patientRows) absorb(row RosterRow) {
	merge := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	merge(&pr.last.PatientID, row.PatientID)
	merge(&pr.last.Age, row.Age)
	merge(&pr.last.Sex, row.Sex)
	merge(&pr.last.Indication, row.Indication)
	merge(&pr.last.StudyID, row.StudyID)
	merge(&pr.last.LatestMilestone, row.LatestMilestone)
	merge(&pr.last.PostalCode, row.PostalCode)
	merge(&pr.last.DiagnosisDate, row.DiagnosisDate)
	merge(&pr.last.LastActivityDate, row.LastActivityDate)

	if row.Indication != "" {
		key := strings.ToLower(row.Indication)
		known := false
		for _, ind := range pr.indications {
			if strings.ToLower(ind) == key {
				known = true
				break
			}
		}
		if !known {
			pr.indications = append(pr.indications, row.Indication)
		}
	}

	if row.ActivityCategory != "" {
		ev := rowEvent{Category: row.ActivityCategory}
		if row.ActivityDate != "" {
			if d, ok := parseRosterDate(row.ActivityDate); ok {
				ev.Date = &d
			} else {
				pr.badDates++
			}
		}
		pr.events = append(pr.events, ev)
	}
}

// build turns the accumulated rows into the immutable patient record. The
// screening ladder resolves the deepest stage across the patient's events;
// missing or malformed fields degrade to their zero values.
func (pr *patientRows) build(funnel *model.ScreeningRuleSet) (model.PatientRecord, int) {
	badDates := pr.badDates
	rec := model.PatientRecord{
		PatientID:       pr.last.PatientID,
		Sex:             model.ParseSex(pr.last.Sex),
		Indication:      pr.last.Indication,
		StudyID:         pr.last.StudyID,
		LatestMilestone: pr.last.LatestMilestone,
		PostalCode:      pr.last.PostalCode,
	}

	if pr.last.Age != "" {
		if age, err := strconv.Atoi(pr.last.Age); err == nil && age >= 0 {
			rec.Age = &age
		}
	}

	if pr.last.DiagnosisDate != "" {
		if d, ok := parseRosterDate(pr.last.DiagnosisDate); ok {
			rec.DiagnosisDate = &d
		} else {
			badDates++
		}
	}

	// Last activity is the max over the dedicated column and event dates.
	var lastActivity *time.Time
	if pr.last.LastActivityDate != "" {
		if d, ok := parseRosterDate(pr.last.LastActivityDate); ok {
			lastActivity = &d
		} else {
			badDates++
		}
	}
	for i := range pr.events {
		if d := pr.events[i].Date; d != nil {
			if lastActivity == nil || d.After(*lastActivity) {
				copied := *d
				lastActivity = &copied
			}
		}
	}
	rec.LastActivityDate = lastActivity

	// Randomization history.
	for i := range pr.events {
		ev := &pr.events[i]
		if !strings.EqualFold(strings.TrimSpace(ev.Category), randomizationStage) {
			continue
		}
		rec.PastRandomizations++
		if ev.Date != nil {
			if rec.LastRandomization == nil || ev.Date.After(*rec.LastRandomization) {
				copied := *ev.Date
				rec.LastRandomization = &copied
			}
		}
	}

	// Screening status from the deepest funnel stage.
	categories := make([]string, 0, len(pr.events))
	for i := range pr.events {
		categories = append(categories, pr.events[i].Category)
	}
	stage, status := screening.ResolveStatus(funnel, categories)
	rec.ScreeningStatus = status
	if stage != "" {
		rec.LatestMilestone = stage
	}

	// Past indications are the distinct ones beyond the primary.
	primary := strings.ToLower(rec.Indication)
	for _, ind := range pr.indications {
		if strings.ToLower(ind) == primary {
			continue
		}
		rec.PastIndications = append(rec.PastIndications, ind)
	}
	sort.Strings(rec.PastIndications)

	return rec, badDates
}
