package model

import "math"

// Criterion names, in the fixed order they appear in every breakdown.
const (
	CriterionRecency           = "Recency"
	CriterionScreening         = "PPD Screening"
	CriterionSimilarStudies    = "Similar Studies"
	CriterionDistance          = "Distance to Site"
	CriterionPastQualification = "Past Qualification"
)

// ScoreEntry is one line of a score breakdown: the criterion, a
// human-readable reason, and the points awarded.
type ScoreEntry struct {
	Criterion string  `json:"criterion"`
	Reason    string  `json:"reason"`
	Points    float64 `json:"points"`
}

// ScoreDetails carries the full scoring outcome for one candidate. The total
// is always the exact sum of the breakdown entries, and the breakdown always
// holds all five criteria, zip-only queries included.
type ScoreDetails struct {
	TotalBusinessScore      float64      `json:"total_business_score"`
	BusinessScoreNormalized float64      `json:"business_score_normalized"`
	BusinessScorePercent    float64      `json:"business_score_percent"`
	Breakdown               []ScoreEntry `json:"breakdown"`
}

// Round1 rounds to one decimal place, the precision used for percentages.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Round4 rounds to four decimal places, used for the normalized score.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
