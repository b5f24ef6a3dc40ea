package queryparse

import (
	"strconv"
	"strings"

	"github.com/trialmatch/go-match-engine/internal/errors"
	"github.com/trialmatch/go-match-engine/model"
	"github.com/trialmatch/go-match-engine/services"
)

const (
	// DefaultTopK bounds the result size when the caller does not ask for one.
	DefaultTopK = 50
	// TopKCeiling is the hard upper bound on top_k regardless of the request.
	TopKCeiling = 500
)

// Parser turns free-text match queries into typed MatchCriteria.
type Parser struct {
	defaultTopK int
	topKCeiling int
}

// NewParser creates a parser with the given top-k bounds. Non-positive values
// fall back to the package defaults.
func NewParser(defaultTopK, topKCeiling int) *Parser {
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	if topKCeiling <= 0 {
		topKCeiling = TopKCeiling
	}
	if defaultTopK > topKCeiling {
		defaultTopK = topKCeiling
	}
	return &Parser{defaultTopK: defaultTopK, topKCeiling: topKCeiling}
}

type clause int

const (
	clauseNone clause = iota
	clauseTarget
	clauseExclusion
)

// Parse interprets the request into MatchCriteria.
//
// The target indication is whatever follows a "Target:" marker up to the next
// marker or recognized demographic token. "EXCLUSION:" starts an exclusion
// term the same way. Sex tokens and well-formed age predicates are picked up
// anywhere; the first of each wins. Unrecognized text, a lone comparator, or
// a malformed age predicate is skipped, never an error. The query is invalid
// only when it yields no target indication, the request carries no explicit
// one, and no site postal codes were supplied (which would allow zip-only
// ranking).
func (p *Parser) Parse(req services.MatchRequest) (model.MatchCriteria, error) {
	criteria := model.MatchCriteria{
		SiteZipCodes: dedupeZips(req.SiteZipCodes),
		TopK:         p.clampTopK(req.TopK),
	}

	var (
		targetTerms  []string
		exclusions   []string
		exclusionRun []string
		active       = clauseNone
	)
	flushExclusion := func() {
		if len(exclusionRun) > 0 {
			exclusions = append(exclusions, strings.Join(exclusionRun, " "))
			exclusionRun = nil
		}
	}
	endClause := func() {
		flushExclusion()
		active = clauseNone
	}

	tokens := Tokenize(req.Query)
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch tok.Kind {
		case TokenTargetMarker:
			flushExclusion()
			active = clauseTarget
		case TokenExclusionMarker:
			flushExclusion()
			active = clauseExclusion
		case TokenSex:
			if criteria.SexFilter == nil {
				sex := tok.Sex
				criteria.SexFilter = &sex
			}
			endClause()
		case TokenAge:
			// Only a well-formed "age <cmp> <int>" forms a predicate; a bare
			// or malformed "age" is dropped like any unrecognized text. The
			// keyword ends the surrounding clause either way.
			if i+2 < len(tokens) && tokens[i+1].Kind == TokenComparator && tokens[i+2].Kind == TokenInt {
				if criteria.AgePredicate == nil {
					value, err := strconv.Atoi(tokens[i+2].Text)
					if err == nil {
						criteria.AgePredicate = &model.AgePredicate{
							Op:    model.AgeOp(tokens[i+1].Text),
							Value: value,
						}
					}
				}
				i += 2
			}
			endClause()
		case TokenWord, TokenInt:
			switch active {
			case clauseTarget:
				targetTerms = append(targetTerms, tok.Text)
			case clauseExclusion:
				exclusionRun = append(exclusionRun, tok.Text)
			}
		case TokenComparator:
			// A comparator without a leading "age" is unrecognized text.
		}
	}
	flushExclusion()

	criteria.TargetIndication = strings.Join(targetTerms, " ")
	if criteria.TargetIndication == "" {
		criteria.TargetIndication = strings.TrimSpace(req.TargetIndication)
	}
	criteria.Exclusions = exclusions

	if criteria.TargetIndication == "" && len(criteria.SiteZipCodes) == 0 {
		return model.MatchCriteria{}, errors.NewInvalidQueryError(req.Query,
			"no target indication found and no site postal codes supplied")
	}
	return criteria, nil
}

func (p *Parser) clampTopK(topK int) int {
	if topK <= 0 {
		return p.defaultTopK
	}
	if topK > p.topKCeiling {
		return p.topKCeiling
	}
	return topK
}

// dedupeZips drops blank entries and repeats while preserving the caller's
// order.
func dedupeZips(zips []string) []string {
	if len(zips) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(zips))
	out := make([]string, 0, len(zips))
	for _, zip := range zips {
		zip = strings.TrimSpace(zip)
		if zip == "" {
			continue
		}
		key := strings.ToUpper(zip)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, zip)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
