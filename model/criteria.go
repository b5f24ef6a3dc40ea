package model

// AgeOp is a comparison operator in an age predicate.
type AgeOp string

const (
	AgeGTE AgeOp = ">="
	AgeLTE AgeOp = "<="
	AgeGT  AgeOp = ">"
	AgeLT  AgeOp = "<"
	AgeEQ  AgeOp = "="
)

// AgePredicate is a parsed age constraint such as "age >= 18".
type AgePredicate struct {
	Op    AgeOp `json:"op"`
	Value int   `json:"value"`
}

// Matches reports whether the given age satisfies the predicate.
func (a AgePredicate) Matches(age int) bool {
	switch a.Op {
	case AgeGTE:
		return age >= a.Value
	case AgeLTE:
		return age <= a.Value
	case AgeGT:
		return age > a.Value
	case AgeLT:
		return age < a.Value
	case AgeEQ:
		return age == a.Value
	default:
		return false
	}
}

// MatchCriteria is the normalized form of a matching query. It is produced by
// the query interpreter and consumed by the candidate filter and scorer.
type MatchCriteria struct {
	// TargetIndication is empty in zip-only mode.
	TargetIndication string `json:"target_indication"`

	SexFilter    *Sex          `json:"sex_filter,omitempty"`
	AgePredicate *AgePredicate `json:"age_predicate,omitempty"`

	// Exclusions lists indication terms whose matches must be dropped.
	Exclusions []string `json:"exclusions,omitempty"`

	// SiteZipCodes keeps the caller's order for display; scoring only takes
	// the minimum distance so order does not matter there.
	SiteZipCodes []string `json:"site_zip_codes,omitempty"`

	TopK int `json:"top_k"`
}

// ZipOnly reports whether the criteria carry no target indication and rank
// purely on distance, recency, screening, and qualification history.
func (c *MatchCriteria) ZipOnly() bool {
	return c.TargetIndication == "" && len(c.SiteZipCodes) > 0
}
