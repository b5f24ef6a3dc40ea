// Package screening derives a patient's screening status from roster
// activity events. A rule set is an ordered pre-screening funnel; the deepest
// stage a patient's events reach determines the status the scoring engine
// sees.
package screening

import (
	"strings"

	"github.com/trialmatch/go-match-engine/model"
)

// DefaultRuleSetName names the built-in funnel.
const DefaultRuleSetName = "default"

// DefaultRuleSet returns the built-in pre-screening funnel, earliest stage
// first. Released patients score highest: they finished a prior screening
// and are available again, while patients deep in an active funnel are
// already engaged.
func DefaultRuleSet() model.ScreeningRuleSet {
	return model.ScreeningRuleSet{
		Name: DefaultRuleSetName,
		Stages: []model.ScreeningStage{
			{Stage: "RELEASED", Status: model.ScreeningReleased},
			{Stage: "RESPONDENTS", Status: model.ScreeningRespondent},
			{Stage: "REFERRAL", Status: model.ScreeningRespondent},
			{Stage: "QUALIFIED RESPONDENTS", Status: model.ScreeningQualified},
			{Stage: "FOV", Status: model.ScreeningQualified},
			{Stage: "FOV SCHEDULED", Status: model.ScreeningQualified},
			{Stage: "CONSENT", Status: model.ScreeningQualified},
			{Stage: "RANDOMIZATION", Status: model.ScreeningQualified},
		},
	}
}

// Engine resolves activity events through configurable funnel rule sets.
type Engine struct {
	store RuleSetStore
}

// NewEngine creates a screening engine over the given rule set store.
func NewEngine(store RuleSetStore) *Engine {
	return &Engine{store: store}
}

// GetRuleSet retrieves a rule set by name.
func (e *Engine) GetRuleSet(name string) (model.ScreeningRuleSet, error) {
	return e.store.GetRuleSet(name)
}

// CreateRuleSet creates a new rule set.
func (e *Engine) CreateRuleSet(rs model.ScreeningRuleSet) (model.ScreeningRuleSet, error) {
	return e.store.CreateRuleSet(rs)
}

// UpdateRuleSet updates an existing rule set.
func (e *Engine) UpdateRuleSet(rs model.ScreeningRuleSet) error {
	return e.store.UpdateRuleSet(rs)
}

// DeleteRuleSet deletes a rule set.
func (e *Engine) DeleteRuleSet(name string) error {
	return e.store.DeleteRuleSet(name)
}

// ListRuleSets lists all stored rule sets.
func (e *Engine) ListRuleSets() []model.ScreeningRuleSet {
	return e.store.ListRuleSets()
}

// Resolve maps a patient's activity categories onto the named funnel. An
// empty or unknown name falls back to the built-in default so ingestion
// always resolves.
func (e *Engine) Resolve(ruleSetName string, categories []string) (string, model.ScreeningStatus) {
	rs := DefaultRuleSet()
	if ruleSetName != "" && ruleSetName != DefaultRuleSetName {
		if stored, err := e.store.GetRuleSet(ruleSetName); err == nil {
			rs = stored
		}
	}
	return ResolveStatus(&rs, categories)
}

// ResolveStatus returns the deepest funnel stage reached across the given
// activity categories and the screening status it implies. Category matching
// is case-insensitive; unknown categories are ignored. No matched stage
// returns ("", ScreeningNone).
func ResolveStatus(rs *model.ScreeningRuleSet, categories []string) (string, model.ScreeningStatus) {
	depth := make(map[string]int, len(rs.Stages))
	for i, stage := range rs.Stages {
		depth[normalizeStage(stage.Stage)] = i
	}

	best := -1
	for _, category := range categories {
		if i, ok := depth[normalizeStage(category)]; ok && i > best {
			best = i
		}
	}
	if best < 0 {
		return "", model.ScreeningNone
	}
	return rs.Stages[best].Stage, rs.Stages[best].Status
}

func normalizeStage(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}
