package match

import "github.com/trialmatch/go-match-engine/model"

// scoredCandidate carries one patient through scoring and ranking.
type scoredCandidate struct {
	record  model.PatientRecord
	details model.ScoreDetails
}
