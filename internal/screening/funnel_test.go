package screening

import (
	"testing"

	"github.com/trialmatch/go-match-engine/model"
)

func TestResolveStatusDeepestStageWins(t *testing.T) {
	rs := DefaultRuleSet()

	tests := []struct {
		name       string
		categories []string
		wantStage  string
		wantStatus model.ScreeningStatus
	}{
		{"no events", nil, "", model.ScreeningNone},
		{"unknown categories only", []string{"SMS SENT", "CALLBACK"}, "", model.ScreeningNone},
		{"respondent", []string{"RESPONDENTS"}, "RESPONDENTS", model.ScreeningRespondent},
		{"referral maps to respondent", []string{"REFERRAL"}, "REFERRAL", model.ScreeningRespondent},
		{"qualified", []string{"RESPONDENTS", "QUALIFIED RESPONDENTS"}, "QUALIFIED RESPONDENTS", model.ScreeningQualified},
		{
			"randomization outranks everything after release",
			[]string{"RELEASED", "RESPONDENTS", "QUALIFIED RESPONDENTS", "RANDOMIZATION"},
			"RANDOMIZATION", model.ScreeningQualified,
		},
		{"released alone", []string{"RELEASED"}, "RELEASED", model.ScreeningReleased},
		{"event order does not matter", []string{"CONSENT", "RESPONDENTS"}, "CONSENT", model.ScreeningQualified},
		{"case-insensitive with stray spaces", []string{" fov  scheduled "}, "FOV SCHEDULED", model.ScreeningQualified},
		{"unknown mixed with known", []string{"SMS SENT", "fov"}, "FOV", model.ScreeningQualified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage, status := ResolveStatus(&rs, tt.categories)
			if stage != tt.wantStage || status != tt.wantStatus {
				t.Errorf("ResolveStatus(%v) = (%q, %q), want (%q, %q)",
					tt.categories, stage, status, tt.wantStage, tt.wantStatus)
			}
		})
	}
}

func TestEngineResolveFallsBackToDefault(t *testing.T) {
	engine := NewEngine(NewMemoryRuleSetStore())

	stage, status := engine.Resolve("", []string{"RELEASED"})
	if stage != "RELEASED" || status != model.ScreeningReleased {
		t.Errorf("default resolve = (%q, %q), want (RELEASED, released)", stage, status)
	}

	// An unknown name must not fail ingestion.
	stage, status = engine.Resolve("no-such-funnel", []string{"CONSENT"})
	if stage != "CONSENT" || status != model.ScreeningQualified {
		t.Errorf("fallback resolve = (%q, %q), want (CONSENT, qualified)", stage, status)
	}
}

func TestEngineResolveUsesStoredRuleSet(t *testing.T) {
	store := NewMemoryRuleSetStore()
	engine := NewEngine(store)

	// A shortened funnel where consent is the only qualified stage.
	custom := model.ScreeningRuleSet{
		Name: "phone-only",
		Stages: []model.ScreeningStage{
			{Stage: "CALLED", Status: model.ScreeningRespondent},
			{Stage: "CONSENT", Status: model.ScreeningQualified},
		},
	}
	if _, err := engine.CreateRuleSet(custom); err != nil {
		t.Fatalf("CreateRuleSet failed: %v", err)
	}

	stage, status := engine.Resolve("phone-only", []string{"CALLED", "CONSENT"})
	if stage != "CONSENT" || status != model.ScreeningQualified {
		t.Errorf("custom resolve = (%q, %q), want (CONSENT, qualified)", stage, status)
	}

	// Default ladder stages mean nothing to the custom funnel.
	stage, status = engine.Resolve("phone-only", []string{"RANDOMIZATION"})
	if stage != "" || status != model.ScreeningNone {
		t.Errorf("custom resolve = (%q, %q), want no stage", stage, status)
	}
}

func TestDefaultRuleSetCoversEveryStatus(t *testing.T) {
	rs := DefaultRuleSet()
	if err := validateRuleSet(rs); err != nil {
		t.Fatalf("default rule set invalid: %v", err)
	}

	seen := make(map[model.ScreeningStatus]bool)
	for _, stage := range rs.Stages {
		seen[stage.Status] = true
	}
	for _, status := range []model.ScreeningStatus{
		model.ScreeningRespondent, model.ScreeningQualified, model.ScreeningReleased,
	} {
		if !seen[status] {
			t.Errorf("default funnel has no stage mapping to %q", status)
		}
	}
}
