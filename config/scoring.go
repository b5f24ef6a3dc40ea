// Package config provides configuration structures for the matching engine.
// It defines scoring breakpoints, taxonomy settings, and runtime options.
package config

import "fmt"

// RecencyBucket awards Points when the last engagement is at most MaxDays old.
// Buckets are evaluated in order; anything older than the last bucket scores 0.
type RecencyBucket struct {
	MaxDays int     `json:"max_days" yaml:"max_days"`
	Points  float64 `json:"points" yaml:"points"`
}

// DistanceTier awards Points when the closest site is under MaxKm away.
// Bounds are exclusive upper bounds, so a candidate at exactly 50 km falls
// into the 50-100 km tier.
type DistanceTier struct {
	MaxKm  float64 `json:"max_km" yaml:"max_km"`
	Points float64 `json:"points" yaml:"points"`
}

// ScreeningPoints maps each screening status to its score.
type ScreeningPoints struct {
	Released   float64 `json:"released" yaml:"released"`
	Qualified  float64 `json:"qualified" yaml:"qualified"`
	Respondent float64 `json:"respondent" yaml:"respondent"`
	None       float64 `json:"none" yaml:"none"`
}

// QualificationPoints controls the past-qualification factor. A patient with
// no randomization history scores 0. Any history earns Base; MultipleBonus is
// added at MultipleThreshold or more prior randomizations; RecentBonus is
// added when the most recent randomization is between CooldownDays and
// WindowDays old. The sum is capped at MaxPoints.
type QualificationPoints struct {
	Base              float64 `json:"base" yaml:"base"`
	MultipleBonus     float64 `json:"multiple_bonus" yaml:"multiple_bonus"`
	MultipleThreshold int     `json:"multiple_threshold" yaml:"multiple_threshold"`
	RecentBonus       float64 `json:"recent_bonus" yaml:"recent_bonus"`
	CooldownDays      int     `json:"cooldown_days" yaml:"cooldown_days"`
	WindowDays        int     `json:"window_days" yaml:"window_days"`
	MaxPoints         float64 `json:"max_points" yaml:"max_points"`
}

// ScoringConfig holds every scoring breakpoint. The shipped defaults reflect
// the documented model; deployments tune them against their reference data.
type ScoringConfig struct {
	RecencyBuckets []RecencyBucket     `json:"recency_buckets" yaml:"recency_buckets"`
	Screening      ScreeningPoints     `json:"screening" yaml:"screening"`
	DistanceTiers  []DistanceTier      `json:"distance_tiers" yaml:"distance_tiers"`
	MaxDistanceKm  float64             `json:"max_distance_km" yaml:"max_distance_km"`
	Qualification  QualificationPoints `json:"qualification" yaml:"qualification"`

	// MaxAchievableScore is the fixed normalization ceiling for
	// match_score_percent. It must stay consistent across queries so
	// percentages are comparable.
	MaxAchievableScore float64 `json:"max_achievable_score" yaml:"max_achievable_score"`
}

// DefaultScoring returns the documented scoring breakpoints.
func DefaultScoring() ScoringConfig {
	return ScoringConfig{
		RecencyBuckets: []RecencyBucket{
			{MaxDays: 30, Points: 50},
			{MaxDays: 90, Points: 35},
			{MaxDays: 180, Points: 20},
			{MaxDays: 365, Points: 10},
		},
		Screening: ScreeningPoints{
			Released:   40,
			Qualified:  25,
			Respondent: 10,
			None:       0,
		},
		DistanceTiers: []DistanceTier{
			{MaxKm: 50, Points: 20},
			{MaxKm: 100, Points: 15},
			{MaxKm: 200, Points: 10},
			{MaxKm: 500, Points: 5},
		},
		MaxDistanceKm: 500,
		Qualification: QualificationPoints{
			Base:              15,
			MultipleBonus:     5,
			MultipleThreshold: 2,
			RecentBonus:       5,
			CooldownDays:      365,
			WindowDays:        1095,
			MaxPoints:         25,
		},
		MaxAchievableScore: 335,
	}
}

// ApplyDefaults fills zero-valued settings with the defaults
func (sc *ScoringConfig) ApplyDefaults() {
	def := DefaultScoring()
	if len(sc.RecencyBuckets) == 0 {
		sc.RecencyBuckets = def.RecencyBuckets
	}
	if sc.Screening == (ScreeningPoints{}) {
		sc.Screening = def.Screening
	}
	if len(sc.DistanceTiers) == 0 {
		sc.DistanceTiers = def.DistanceTiers
	}
	if sc.MaxDistanceKm == 0 {
		sc.MaxDistanceKm = def.MaxDistanceKm
	}
	if sc.Qualification == (QualificationPoints{}) {
		sc.Qualification = def.Qualification
	}
	if sc.MaxAchievableScore == 0 {
		sc.MaxAchievableScore = def.MaxAchievableScore
	}
}

// Validate checks the breakpoints for basic requirements and returns a list
// of conflicts, empty when the config is usable.
func (sc *ScoringConfig) Validate() []string {
	var conflicts []string

	prevDays := 0
	for i, b := range sc.RecencyBuckets {
		if b.MaxDays <= prevDays {
			conflicts = append(conflicts, fmt.Sprintf("recency_buckets[%d]: max_days %d not strictly increasing", i, b.MaxDays))
		}
		if b.Points < 0 {
			conflicts = append(conflicts, fmt.Sprintf("recency_buckets[%d]: negative points", i))
		}
		prevDays = b.MaxDays
	}

	prevKm := 0.0
	for i, tier := range sc.DistanceTiers {
		if tier.MaxKm <= prevKm {
			conflicts = append(conflicts, fmt.Sprintf("distance_tiers[%d]: max_km %.1f not strictly increasing", i, tier.MaxKm))
		}
		if tier.Points < 0 {
			conflicts = append(conflicts, fmt.Sprintf("distance_tiers[%d]: negative points", i))
		}
		prevKm = tier.MaxKm
	}
	if sc.MaxDistanceKm <= 0 {
		conflicts = append(conflicts, "max_distance_km must be positive")
	}

	if sc.Screening.Released < 0 || sc.Screening.Qualified < 0 || sc.Screening.Respondent < 0 || sc.Screening.None < 0 {
		conflicts = append(conflicts, "screening points must not be negative")
	}

	q := sc.Qualification
	if q.MaxPoints <= 0 {
		conflicts = append(conflicts, "qualification.max_points must be positive")
	}
	if q.Base < 0 || q.MultipleBonus < 0 || q.RecentBonus < 0 {
		conflicts = append(conflicts, "qualification bonuses must not be negative")
	}
	if q.WindowDays < q.CooldownDays {
		conflicts = append(conflicts, "qualification.window_days must not be below cooldown_days")
	}

	if sc.MaxAchievableScore <= 0 {
		conflicts = append(conflicts, "max_achievable_score must be positive")
	}

	return conflicts
}

// RecencyMax returns the highest recency bucket's points.
func (sc *ScoringConfig) RecencyMax() float64 {
	max := 0.0
	for _, b := range sc.RecencyBuckets {
		if b.Points > max {
			max = b.Points
		}
	}
	return max
}

// DistanceMax returns the highest distance tier's points.
func (sc *ScoringConfig) DistanceMax() float64 {
	max := 0.0
	for _, t := range sc.DistanceTiers {
		if t.Points > max {
			max = t.Points
		}
	}
	return max
}
