package match

import (
	"fmt"
	"time"

	"github.com/trialmatch/go-match-engine/config"
	"github.com/trialmatch/go-match-engine/index"
	"github.com/trialmatch/go-match-engine/internal/taxonomy"
	"github.com/trialmatch/go-match-engine/model"
)

// Scorer computes the five-factor score breakdown for a candidate. It is
// deterministic: the same record, criteria, and clock always produce the same
// breakdown. Missing inputs degrade the affected factor to zero, they never
// fail the candidate.
type Scorer struct {
	scoring config.ScoringConfig
	tiers   config.TaxonomyConfig
	matcher taxonomy.Matcher
	coords  *index.CoordinateIndex
	now     func() time.Time
}

// NewScorer creates a scorer. A nil now falls back to time.Now; tests inject
// a fixed clock so recency is reproducible.
func NewScorer(scoring config.ScoringConfig, tiers config.TaxonomyConfig, matcher taxonomy.Matcher, coords *index.CoordinateIndex, now func() time.Time) *Scorer {
	if now == nil {
		now = time.Now
	}
	return &Scorer{
		scoring: scoring,
		tiers:   tiers,
		matcher: matcher,
		coords:  coords,
		now:     now,
	}
}

// Score computes the breakdown for one candidate. The five entries always
// appear, in fixed order, and the total is their exact sum.
func (sc *Scorer) Score(rec *model.PatientRecord, criteria *model.MatchCriteria) model.ScoreDetails {
	entries := []model.ScoreEntry{
		sc.recencyEntry(rec),
		sc.screeningEntry(rec),
		sc.similarStudiesEntry(rec, criteria),
		sc.distanceEntry(rec, criteria),
		sc.qualificationEntry(rec),
	}

	total := 0.0
	for _, entry := range entries {
		total += entry.Points
	}
	ratio := total / sc.scoring.MaxAchievableScore
	percent := model.Round2(ratio * 100)
	if percent > 100 {
		percent = 100
	}
	return model.ScoreDetails{
		TotalBusinessScore:      total,
		BusinessScoreNormalized: model.Round4(ratio),
		BusinessScorePercent:    percent,
		Breakdown:               entries,
	}
}

// MatchScorePercent converts a total business score into the 0-100 display
// percent, one decimal place, against the fixed achievable maximum.
func (sc *Scorer) MatchScorePercent(total float64) float64 {
	percent := model.Round1(total / sc.scoring.MaxAchievableScore * 100)
	if percent > 100 {
		return 100
	}
	if percent < 0 {
		return 0
	}
	return percent
}

// recencyEntry scores time since the last engagement, the later of diagnosis
// and last activity, through the configured day buckets.
func (sc *Scorer) recencyEntry(rec *model.PatientRecord) model.ScoreEntry {
	engagement, ok := rec.LastEngagement()
	if !ok {
		return model.ScoreEntry{
			Criterion: model.CriterionRecency,
			Reason:    "no diagnosis or activity date on file",
		}
	}
	days := int(sc.now().Sub(engagement).Hours() / 24)
	if days < 0 {
		days = 0
	}
	for _, bucket := range sc.scoring.RecencyBuckets {
		if days <= bucket.MaxDays {
			return model.ScoreEntry{
				Criterion: model.CriterionRecency,
				Reason:    fmt.Sprintf("last engagement %d days ago", days),
				Points:    bucket.Points,
			}
		}
	}
	return model.ScoreEntry{
		Criterion: model.CriterionRecency,
		Reason:    fmt.Sprintf("last engagement %d days ago, outside the scored window", days),
	}
}

func (sc *Scorer) screeningEntry(rec *model.PatientRecord) model.ScoreEntry {
	var points float64
	switch rec.ScreeningStatus {
	case model.ScreeningReleased:
		points = sc.scoring.Screening.Released
	case model.ScreeningQualified:
		points = sc.scoring.Screening.Qualified
	case model.ScreeningRespondent:
		points = sc.scoring.Screening.Respondent
	default:
		return model.ScoreEntry{
			Criterion: model.CriterionScreening,
			Reason:    "no screening history",
			Points:    sc.scoring.Screening.None,
		}
	}
	return model.ScoreEntry{
		Criterion: model.CriterionScreening,
		Reason:    fmt.Sprintf("screening status %s", rec.ScreeningStatus),
		Points:    points,
	}
}

// similarStudiesEntry stacks every known indication of the patient against
// the target: each contributes base tier points weighted by similarity, and
// each tier's contribution is capped on its own.
func (sc *Scorer) similarStudiesEntry(rec *model.PatientRecord, criteria *model.MatchCriteria) model.ScoreEntry {
	if criteria.TargetIndication == "" {
		return model.ScoreEntry{
			Criterion: model.CriterionSimilarStudies,
			Reason:    "no target indication supplied",
		}
	}

	tierSums := make(map[taxonomy.Tier]float64, 3)
	var best taxonomy.Match
	matched := 0
	for _, indication := range rec.AllIndications() {
		m := sc.matcher.Match(indication, criteria.TargetIndication)
		if m.Tier == taxonomy.TierUnrelated || m.Similarity <= 0 {
			continue
		}
		points, ok := sc.tierPoints(m.Tier)
		if !ok {
			continue
		}
		tierSums[m.Tier] += points.Base * m.Similarity
		matched++
		if m.Tier > best.Tier || (m.Tier == best.Tier && m.Similarity > best.Similarity) {
			best = m
		}
	}
	if matched == 0 {
		return model.ScoreEntry{
			Criterion: model.CriterionSimilarStudies,
			Reason:    fmt.Sprintf("no indication overlap with %s", criteria.TargetIndication),
		}
	}

	total := 0.0
	for tier, sum := range tierSums {
		points, _ := sc.tierPoints(tier)
		if points.Cap > 0 && sum > points.Cap {
			sum = points.Cap
		}
		total += sum
	}

	reason := fmt.Sprintf("%s (similarity %.2f)", tierPhrase(best.Tier, best.Canonical), best.Similarity)
	if matched > 1 {
		reason += fmt.Sprintf(", stacking %d indications", matched)
	}
	return model.ScoreEntry{
		Criterion: model.CriterionSimilarStudies,
		Reason:    reason,
		Points:    total,
	}
}

func (sc *Scorer) tierPoints(tier taxonomy.Tier) (config.TierPoints, bool) {
	switch tier {
	case taxonomy.TierExact:
		return sc.tiers.ExactTier, true
	case taxonomy.TierArea:
		return sc.tiers.AreaTier, true
	case taxonomy.TierRelated:
		return sc.tiers.RelatedTier, true
	default:
		return config.TierPoints{}, false
	}
}

func tierPhrase(tier taxonomy.Tier, canonical string) string {
	switch tier {
	case taxonomy.TierExact:
		return fmt.Sprintf("exact indication match on %s", canonical)
	case taxonomy.TierArea:
		return fmt.Sprintf("same therapeutic area as %s", canonical)
	default:
		return fmt.Sprintf("related indication %s", canonical)
	}
}

// distanceEntry scores the minimum great-circle distance between the patient
// and any site. Whenever a postal code cannot be resolved the factor is zero,
// the candidate is never excluded for it.
func (sc *Scorer) distanceEntry(rec *model.PatientRecord, criteria *model.MatchCriteria) model.ScoreEntry {
	if len(criteria.SiteZipCodes) == 0 {
		return model.ScoreEntry{
			Criterion: model.CriterionDistance,
			Reason:    "no site postal codes supplied",
		}
	}
	if rec.PostalCode == "" {
		return model.ScoreEntry{
			Criterion: model.CriterionDistance,
			Reason:    "patient postal code missing",
		}
	}
	km, ok := sc.coords.MinDistanceKm(rec.PostalCode, criteria.SiteZipCodes)
	if !ok {
		return model.ScoreEntry{
			Criterion: model.CriterionDistance,
			Reason:    "patient or site postal code not in the gazetteer",
		}
	}
	points := distancePoints(km, sc.scoring.DistanceTiers, sc.scoring.MaxDistanceKm)
	if points == 0 {
		return model.ScoreEntry{
			Criterion: model.CriterionDistance,
			Reason:    fmt.Sprintf("nearest site %.1f km away, beyond the %.0f km cutoff", km, sc.scoring.MaxDistanceKm),
		}
	}
	return model.ScoreEntry{
		Criterion: model.CriterionDistance,
		Reason:    fmt.Sprintf("nearest site %.1f km away", km),
		Points:    points,
	}
}

// distancePoints maps a distance to its tier's points. Tier bounds are
// exclusive above, so a candidate at exactly 50 km falls into the 50-100 km
// tier; at or beyond maxKm the factor is zero.
func distancePoints(km float64, tiers []config.DistanceTier, maxKm float64) float64 {
	if km >= maxKm {
		return 0
	}
	for _, tier := range tiers {
		if km < tier.MaxKm {
			return tier.Points
		}
	}
	return 0
}

// qualificationEntry scores prior randomization history: any history earns
// the base, with bonuses for multiple studies and for a most recent
// randomization inside the configured engagement window, capped overall.
func (sc *Scorer) qualificationEntry(rec *model.PatientRecord) model.ScoreEntry {
	q := sc.scoring.Qualification
	if rec.PastRandomizations <= 0 {
		return model.ScoreEntry{
			Criterion: model.CriterionPastQualification,
			Reason:    "no prior randomizations",
		}
	}

	points := q.Base
	reason := fmt.Sprintf("%d prior randomizations", rec.PastRandomizations)
	if rec.PastRandomizations == 1 {
		reason = "1 prior randomization"
	}
	if q.MultipleThreshold > 0 && rec.PastRandomizations >= q.MultipleThreshold {
		points += q.MultipleBonus
	}
	if rec.LastRandomization != nil {
		days := int(sc.now().Sub(*rec.LastRandomization).Hours() / 24)
		reason += fmt.Sprintf(", most recent %d days ago", days)
		if days >= q.CooldownDays && days <= q.WindowDays {
			points += q.RecentBonus
		}
	}
	if points > q.MaxPoints {
		points = q.MaxPoints
	}
	return model.ScoreEntry{
		Criterion: model.CriterionPastQualification,
		Reason:    reason,
		Points:    points,
	}
}
