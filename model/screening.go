package model

import "time"

// ScreeningStage binds one funnel stage label to the screening status it
// implies for scoring.
type ScreeningStage struct {
	Stage  string          `json:"stage"`
	Status ScreeningStatus `json:"status"`
}

// ScreeningRuleSet is an ordered pre-screening funnel, earliest stage first.
// Roster activity categories are matched against stage labels
// case-insensitively; the deepest matched stage wins.
type ScreeningRuleSet struct {
	Name      string           `json:"name"`
	Stages    []ScreeningStage `json:"stages"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// StageNames returns the funnel stage labels in order.
func (rs *ScreeningRuleSet) StageNames() []string {
	names := make([]string, len(rs.Stages))
	for i, s := range rs.Stages {
		names[i] = s.Stage
	}
	return names
}
