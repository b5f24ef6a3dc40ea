package match

import "sort"

// rankCandidates orders candidates by total business score descending,
// breaking ties by patient ID ascending so identical inputs always produce
// identical order regardless of how scoring interleaved.
func rankCandidates(scored []scoredCandidate) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].details.TotalBusinessScore != scored[j].details.TotalBusinessScore {
			return scored[i].details.TotalBusinessScore > scored[j].details.TotalBusinessScore
		}
		return scored[i].record.PatientID < scored[j].record.PatientID
	})
}
