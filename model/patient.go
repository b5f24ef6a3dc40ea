package model

import (
	"strings"
	"time"
)

// Sex is a patient's recorded sex.
type Sex string

const (
	SexMale    Sex = "M"
	SexFemale  Sex = "F"
	SexOther   Sex = "Other"
	SexUnknown Sex = "Unknown"
)

// ParseSex normalizes free-form roster values ("male", "F", "Female") to a Sex.
func ParseSex(raw string) Sex {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "m", "male":
		return SexMale
	case "f", "female":
		return SexFemale
	case "":
		return SexUnknown
	default:
		return SexOther
	}
}

// ScreeningStatus is a patient's stage in the pre-screening pipeline.
type ScreeningStatus string

const (
	ScreeningNone       ScreeningStatus = "none"
	ScreeningRespondent ScreeningStatus = "respondent"
	ScreeningQualified  ScreeningStatus = "qualified"
	ScreeningReleased   ScreeningStatus = "released"
)

// Rank orders statuses by pipeline depth: Released > Qualified > Respondent > None.
func (s ScreeningStatus) Rank() int {
	switch s {
	case ScreeningReleased:
		return 3
	case ScreeningQualified:
		return 2
	case ScreeningRespondent:
		return 1
	default:
		return 0
	}
}

// PatientRecord is one candidate in the dataset snapshot. Records are built
// once at ingestion and are read-only afterwards; scoring never mutates them.
type PatientRecord struct {
	PatientID string `json:"patient_id"`

	// Age is nil when the roster row carried none. An age predicate excludes
	// such candidates.
	Age *int `json:"age"`

	Sex              Sex             `json:"sex"`
	Indication       string          `json:"indication"`
	StudyID          string          `json:"study_id,omitempty"`
	LatestMilestone  string          `json:"latest_milestone,omitempty"`
	PostalCode       string          `json:"postal_code,omitempty"`
	DiagnosisDate    *time.Time      `json:"diagnosis_date,omitempty"`
	LastActivityDate *time.Time      `json:"last_activity_date,omitempty"`
	ScreeningStatus  ScreeningStatus `json:"screening_status"`

	// PastRandomizations counts prior study randomizations;
	// LastRandomization is the most recent one, if any.
	PastRandomizations int        `json:"past_randomizations"`
	LastRandomization  *time.Time `json:"last_randomization,omitempty"`

	// PastIndications are indications from the patient's earlier studies,
	// distinct from the primary Indication. Used for similar-studies stacking.
	PastIndications []string `json:"past_indications,omitempty"`
}

// LastEngagement returns the later of the diagnosis and last-activity dates.
// ok is false when neither date is present.
func (p *PatientRecord) LastEngagement() (time.Time, bool) {
	switch {
	case p.DiagnosisDate == nil && p.LastActivityDate == nil:
		return time.Time{}, false
	case p.DiagnosisDate == nil:
		return *p.LastActivityDate, true
	case p.LastActivityDate == nil:
		return *p.DiagnosisDate, true
	case p.LastActivityDate.After(*p.DiagnosisDate):
		return *p.LastActivityDate, true
	default:
		return *p.DiagnosisDate, true
	}
}

// AllIndications returns the primary indication followed by the distinct past
// ones, skipping blanks and duplicates.
func (p *PatientRecord) AllIndications() []string {
	out := make([]string, 0, 1+len(p.PastIndications))
	seen := make(map[string]struct{}, 1+len(p.PastIndications))
	if p.Indication != "" {
		out = append(out, p.Indication)
		seen[strings.ToLower(p.Indication)] = struct{}{}
	}
	for _, ind := range p.PastIndications {
		if ind == "" {
			continue
		}
		key := strings.ToLower(ind)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ind)
	}
	return out
}
