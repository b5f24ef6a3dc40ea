// Package taxonomy canonicalizes free-text indication strings and scores how
// relevant a candidate's indication is to a query target. Relevance is a
// priority tier (exact > same therapeutic area > related > unrelated) plus a
// similarity in [0, 1]; the scoring engine multiplies tier base points by
// similarity.
package taxonomy

import (
	"sort"
	"strings"

	"github.com/trialmatch/go-match-engine/config"
	"github.com/trialmatch/go-match-engine/internal/strsim"
)

// Tier orders indication relevance from none to exact.
type Tier int

const (
	TierUnrelated Tier = iota
	TierRelated
	TierArea
	TierExact
)

// String returns the tier's display name.
func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierArea:
		return "therapeutic_area"
	case TierRelated:
		return "related"
	default:
		return "unrelated"
	}
}

// Match is the outcome of comparing a candidate indication against a target.
type Match struct {
	Canonical  string
	Tier       Tier
	Similarity float64
}

type group struct {
	canonical string
	area      string
}

// Taxonomy resolves indications through configured synonym groups, falling
// back to fuzzy string comparison for spellings the table does not know.
type Taxonomy struct {
	groups []group

	// aliasToGroup maps normalized canonical names and synonyms to a group
	// index for O(1) resolution.
	aliasToGroup map[string]int

	aliases []string // normalized, for fuzzy resolution scans

	simThreshold      float64
	fallbackThreshold float64
}

// New builds a Taxonomy from configuration. The config is expected to have
// passed validation; duplicate aliases keep their first group.
func New(cfg config.TaxonomyConfig) *Taxonomy {
	t := &Taxonomy{
		groups:            make([]group, 0, len(cfg.SynonymGroups)),
		aliasToGroup:      make(map[string]int),
		simThreshold:      cfg.SimilarityThreshold,
		fallbackThreshold: cfg.FallbackThreshold,
	}

	for _, g := range cfg.SynonymGroups {
		idx := len(t.groups)
		t.groups = append(t.groups, group{canonical: g.Canonical, area: g.TherapeuticArea})

		names := append([]string{g.Canonical}, g.Synonyms...)
		for _, name := range names {
			key := Normalize(name)
			if key == "" {
				continue
			}
			if _, taken := t.aliasToGroup[key]; taken {
				continue
			}
			t.aliasToGroup[key] = idx
			t.aliases = append(t.aliases, key)
		}
	}

	return t
}

// Normalize lowercases, trims, and collapses inner whitespace so
// "  Attention  Deficit " and "attention deficit" compare equal.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Canonicalize maps a free-text indication onto its canonical taxonomy term.
// Exact alias hits win; otherwise the closest alias above the similarity
// threshold does. Unknown indications come back trimmed but otherwise as
// given, with ok false.
func (t *Taxonomy) Canonicalize(raw string) (string, bool) {
	norm := Normalize(raw)
	if norm == "" {
		return "", false
	}
	if idx, ok := t.aliasToGroup[norm]; ok {
		return t.groups[idx].canonical, true
	}

	if idx, _, ok := t.fuzzyResolve(norm); ok {
		return t.groups[idx].canonical, true
	}

	// Preserve the caller's casing for unknown terms, just tidied.
	return strings.Join(strings.Fields(raw), " "), false
}

// Canonicals returns the canonical names of every configured group, sorted.
func (t *Taxonomy) Canonicals() []string {
	out := make([]string, len(t.groups))
	for i, g := range t.groups {
		out[i] = g.canonical
	}
	sort.Strings(out)
	return out
}

// resolve finds the synonym group for a normalized term along with the
// resolution confidence: 1.0 for an alias hit, the fuzzy ratio otherwise.
func (t *Taxonomy) resolve(norm string) (int, float64, bool) {
	if idx, ok := t.aliasToGroup[norm]; ok {
		return idx, 1.0, true
	}
	return t.fuzzyResolve(norm)
}

func (t *Taxonomy) fuzzyResolve(norm string) (int, float64, bool) {
	bestIdx := -1
	bestRatio := 0.0
	for _, alias := range t.aliases {
		if r := strsim.RatioAtLeast(norm, alias, t.simThreshold); r > bestRatio {
			bestRatio = r
			bestIdx = t.aliasToGroup[alias]
		}
	}
	if bestIdx < 0 {
		return 0, 0, false
	}
	return bestIdx, bestRatio, true
}

// Matcher is the narrow similarity interface the scoring engine depends on.
type Matcher interface {
	Match(candidate, target string) Match
}

// Match compares a candidate indication against the query target.
//
// The cascade mirrors how coordinators actually query: same synonym group is
// an exact match; different groups sharing a therapeutic area earn the area
// tier; a near-miss spelling of the target earns the exact tier with decayed
// similarity; substring or reordered-token overlap earns the related tier;
// anything below the fallback threshold is unrelated with similarity 0.
func (t *Taxonomy) Match(candidate, target string) Match {
	candNorm := Normalize(candidate)
	targetNorm := Normalize(target)
	if candNorm == "" || targetNorm == "" {
		return Match{Tier: TierUnrelated, Similarity: 0}
	}

	if candNorm == targetNorm {
		canonical, _ := t.Canonicalize(candidate)
		return Match{Canonical: canonical, Tier: TierExact, Similarity: 1.0}
	}

	candIdx, candConf, candOK := t.resolve(candNorm)
	targetIdx, targetConf, targetOK := t.resolve(targetNorm)

	if candOK && targetOK {
		if candIdx == targetIdx {
			return Match{
				Canonical:  t.groups[candIdx].canonical,
				Tier:       TierExact,
				Similarity: candConf * targetConf,
			}
		}
		candArea := t.groups[candIdx].area
		if candArea != "" && candArea == t.groups[targetIdx].area {
			return Match{
				Canonical:  t.groups[candIdx].canonical,
				Tier:       TierArea,
				Similarity: candConf * targetConf,
			}
		}
		// Two known, unrelated conditions never fuzzy-match each other.
		return Match{Canonical: t.groups[candIdx].canonical, Tier: TierUnrelated, Similarity: 0}
	}

	canonical, _ := t.Canonicalize(candidate)

	// Near-miss spelling of the target itself.
	if r := strsim.RatioAtLeast(candNorm, targetNorm, t.simThreshold); r > 0 {
		return Match{Canonical: canonical, Tier: TierExact, Similarity: r}
	}

	// Weaker overlap: substring or token order differences.
	partial := strsim.PartialRatio(candNorm, targetNorm)
	tokenSort := strsim.TokenSortRatio(candNorm, targetNorm)
	best := partial
	if tokenSort > best {
		best = tokenSort
	}
	if best >= t.fallbackThreshold {
		return Match{Canonical: canonical, Tier: TierRelated, Similarity: best}
	}

	return Match{Canonical: canonical, Tier: TierUnrelated, Similarity: 0}
}
