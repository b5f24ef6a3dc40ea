package config

import (
	"fmt"
	"strings"
)

// SynonymGroup maps alias spellings onto one canonical indication. Groups in
// the same therapeutic area earn the area tier when they are not the exact
// target.
type SynonymGroup struct {
	Canonical       string   `json:"canonical" yaml:"canonical"`
	Synonyms        []string `json:"synonyms" yaml:"synonyms"`
	TherapeuticArea string   `json:"therapeutic_area" yaml:"therapeutic_area"`
}

// TierPoints is the base score and stacking cap for one priority tier.
type TierPoints struct {
	Base float64 `json:"base" yaml:"base"`
	Cap  float64 `json:"cap" yaml:"cap"`
}

// TaxonomyConfig drives the condition taxonomy and fuzzy matcher.
type TaxonomyConfig struct {
	SynonymGroups []SynonymGroup `json:"synonym_groups" yaml:"synonym_groups"`

	// Tier points: an exact indication match, a different indication in the
	// same therapeutic area, and a merely related (fuzzy) indication.
	ExactTier   TierPoints `json:"exact_tier" yaml:"exact_tier"`
	AreaTier    TierPoints `json:"area_tier" yaml:"area_tier"`
	RelatedTier TierPoints `json:"related_tier" yaml:"related_tier"`

	// SimilarityThreshold is the full-credit fuzzy floor; FallbackThreshold
	// is the partial/token-sort floor tried when nothing clears the first.
	// Both are ratios in (0, 1].
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold"`
	FallbackThreshold   float64 `json:"fallback_threshold" yaml:"fallback_threshold"`
}

// DefaultTaxonomy returns the built-in synonym groups and tier points.
func DefaultTaxonomy() TaxonomyConfig {
	return TaxonomyConfig{
		SynonymGroups: []SynonymGroup{
			{
				Canonical:       "ADHD",
				Synonyms:        []string{"Attention Deficit", "ADD", "Attention Deficit Hyperactivity Disorder"},
				TherapeuticArea: "Psychiatry",
			},
			{
				Canonical:       "Major Depressive Disorder",
				Synonyms:        []string{"MDD", "Depression", "Clinical Depression"},
				TherapeuticArea: "Psychiatry",
			},
			{
				Canonical:       "Generalized Anxiety Disorder",
				Synonyms:        []string{"GAD", "Anxiety"},
				TherapeuticArea: "Psychiatry",
			},
			{
				Canonical:       "Type 2 Diabetes",
				Synonyms:        []string{"T2D", "Diabetes Mellitus Type 2", "Adult-Onset Diabetes"},
				TherapeuticArea: "Endocrinology",
			},
			{
				Canonical:       "Migraine",
				Synonyms:        []string{"Chronic Migraine", "Migraine Headache"},
				TherapeuticArea: "Neurology",
			},
			{
				Canonical:       "Asthma",
				Synonyms:        []string{"Bronchial Asthma"},
				TherapeuticArea: "Respiratory",
			},
			{
				Canonical:       "Hypertension",
				Synonyms:        []string{"High Blood Pressure", "HTN"},
				TherapeuticArea: "Cardiology",
			},
		},
		ExactTier:           TierPoints{Base: 200, Cap: 200},
		AreaTier:            TierPoints{Base: 60, Cap: 120},
		RelatedTier:         TierPoints{Base: 30, Cap: 60},
		SimilarityThreshold: 0.85,
		FallbackThreshold:   0.60,
	}
}

// ApplyDefaults fills zero-valued settings with the defaults
func (tc *TaxonomyConfig) ApplyDefaults() {
	def := DefaultTaxonomy()
	if len(tc.SynonymGroups) == 0 {
		tc.SynonymGroups = def.SynonymGroups
	}
	if tc.ExactTier == (TierPoints{}) {
		tc.ExactTier = def.ExactTier
	}
	if tc.AreaTier == (TierPoints{}) {
		tc.AreaTier = def.AreaTier
	}
	if tc.RelatedTier == (TierPoints{}) {
		tc.RelatedTier = def.RelatedTier
	}
	if tc.SimilarityThreshold == 0 {
		tc.SimilarityThreshold = def.SimilarityThreshold
	}
	if tc.FallbackThreshold == 0 {
		tc.FallbackThreshold = def.FallbackThreshold
	}
}

// Validate checks the taxonomy for basic requirements and returns a list of
// conflicts, empty when the config is usable.
func (tc *TaxonomyConfig) Validate() []string {
	var conflicts []string

	seen := make(map[string]string)
	for i, g := range tc.SynonymGroups {
		if strings.TrimSpace(g.Canonical) == "" {
			conflicts = append(conflicts, fmt.Sprintf("synonym_groups[%d]: canonical name cannot be empty", i))
			continue
		}
		key := strings.ToLower(g.Canonical)
		if prev, dup := seen[key]; dup {
			conflicts = append(conflicts, fmt.Sprintf("synonym_groups[%d]: canonical '%s' duplicates '%s'", i, g.Canonical, prev))
		}
		seen[key] = g.Canonical
		for _, syn := range g.Synonyms {
			if strings.TrimSpace(syn) == "" {
				conflicts = append(conflicts, fmt.Sprintf("synonym_groups[%d]: empty synonym for '%s'", i, g.Canonical))
			}
		}
	}

	for name, tier := range map[string]TierPoints{
		"exact_tier":   tc.ExactTier,
		"area_tier":    tc.AreaTier,
		"related_tier": tc.RelatedTier,
	} {
		if tier.Base < 0 || tier.Cap < 0 {
			conflicts = append(conflicts, name+": points must not be negative")
		}
		if tier.Cap < tier.Base {
			conflicts = append(conflicts, name+": cap below base")
		}
	}

	if tc.SimilarityThreshold <= 0 || tc.SimilarityThreshold > 1 {
		conflicts = append(conflicts, "similarity_threshold must be in (0, 1]")
	}
	if tc.FallbackThreshold <= 0 || tc.FallbackThreshold > 1 {
		conflicts = append(conflicts, "fallback_threshold must be in (0, 1]")
	}
	if tc.FallbackThreshold > tc.SimilarityThreshold {
		conflicts = append(conflicts, "fallback_threshold must not exceed similarity_threshold")
	}

	return conflicts
}
