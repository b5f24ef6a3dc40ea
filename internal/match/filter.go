package match

import (
	"github.com/trialmatch/go-match-engine/index"
	"github.com/trialmatch/go-match-engine/internal/taxonomy"
	"github.com/trialmatch/go-match-engine/model"
)

// candidatePositions returns the snapshot positions of patients whose primary
// indication clears the indication stage. With a target, the query is matched
// against the distinct vocabulary of the condition index and the surviving
// terms' postings are unioned; the stage is deliberately lenient, precision
// comes from scoring. Zip-only queries admit the whole roster. Exclusion
// terms knock out postings whose indication matches them exactly or through
// a synonym group.
func (s *Service) candidatePositions(criteria *model.MatchCriteria) []uint32 {
	var candidates []uint32
	if criteria.TargetIndication == "" {
		n := s.patientStore.Len()
		candidates = make([]uint32, n)
		for i := range candidates {
			candidates[i] = uint32(i)
		}
	} else {
		var lists []index.PostingList
		for _, term := range s.conditionIndex.Terms() {
			m := s.tax.Match(term, criteria.TargetIndication)
			if m.Tier == taxonomy.TierUnrelated || m.Similarity <= 0 {
				continue
			}
			lists = append(lists, s.conditionIndex.Lookup(term))
		}
		candidates = index.UnionPostings(lists...)
	}
	if len(candidates) == 0 || len(criteria.Exclusions) == 0 {
		return candidates
	}

	excluded := make(map[uint32]struct{})
	for _, term := range s.conditionIndex.Terms() {
		for _, exclusion := range criteria.Exclusions {
			if m := s.tax.Match(term, exclusion); m.Tier == taxonomy.TierExact {
				for _, pos := range s.conditionIndex.Lookup(term) {
					excluded[pos] = struct{}{}
				}
				break
			}
		}
	}
	if len(excluded) == 0 {
		return candidates
	}
	kept := candidates[:0]
	for _, pos := range candidates {
		if _, drop := excluded[pos]; !drop {
			kept = append(kept, pos)
		}
	}
	return kept
}

// passesPredicates reports whether a record clears the demographic
// constraints. A missing age fails any age predicate.
func passesPredicates(rec *model.PatientRecord, criteria *model.MatchCriteria) bool {
	if criteria.SexFilter != nil && rec.Sex != *criteria.SexFilter {
		return false
	}
	if criteria.AgePredicate != nil {
		if rec.Age == nil {
			return false
		}
		if !criteria.AgePredicate.Matches(*rec.Age) {
			return false
		}
	}
	return true
}
