package api

import (
	"testing"

	"github.com/trialmatch/go-match-engine/config"
	"github.com/trialmatch/go-match-engine/internal/queryparse"
)

func TestValidationResult_AddError(t *testing.T) {
	result := &ValidationResult{Valid: true}

	result.AddError("field1", "error message")

	if result.Valid {
		t.Error("Expected Valid to be false after adding error")
	}

	if len(result.Errors) != 1 {
		t.Errorf("Expected 1 error, got %d", len(result.Errors))
	}

	if result.Errors[0].Field != "field1" {
		t.Errorf("Expected field 'field1', got '%s'", result.Errors[0].Field)
	}

	if result.Errors[0].Message != "error message" {
		t.Errorf("Expected message 'error message', got '%s'", result.Errors[0].Message)
	}
}

func TestValidationResult_HasErrors(t *testing.T) {
	result := &ValidationResult{Valid: true}

	if result.HasErrors() {
		t.Error("Expected HasErrors to be false for empty result")
	}

	result.AddError("field", "message")

	if !result.HasErrors() {
		t.Error("Expected HasErrors to be true after adding error")
	}
}

func TestValidateDatasetName(t *testing.T) {
	tests := []struct {
		name      string
		dataset   string
		wantValid bool
		wantError string
	}{
		{
			name:      "valid dataset name",
			dataset:   "trial-roster",
			wantValid: true,
		},
		{
			name:      "empty dataset name",
			dataset:   "",
			wantValid: false,
			wantError: "Dataset name is required",
		},
		{
			name:      "dataset name with leading whitespace",
			dataset:   " trial-roster",
			wantValid: false,
			wantError: "Dataset name cannot have leading or trailing whitespace",
		},
		{
			name:      "dataset name with trailing whitespace",
			dataset:   "trial-roster ",
			wantValid: false,
			wantError: "Dataset name cannot have leading or trailing whitespace",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateDatasetName(tt.dataset)

			if result.Valid != tt.wantValid {
				t.Errorf("ValidateDatasetName() Valid = %v, want %v", result.Valid, tt.wantValid)
			}

			if !tt.wantValid && len(result.Errors) > 0 {
				if result.Errors[0].Message != tt.wantError {
					t.Errorf("ValidateDatasetName() error = %v, want %v", result.Errors[0].Message, tt.wantError)
				}
			}
		})
	}
}

func TestValidateMatchRequest(t *testing.T) {
	tests := []struct {
		name      string
		req       *MatchQueryRequest
		wantValid bool
		wantField string
	}{
		{
			name:      "valid query",
			req:       &MatchQueryRequest{Query: "Target: ADHD"},
			wantValid: true,
		},
		{
			name:      "explicit target without query text",
			req:       &MatchQueryRequest{TargetIndication: "adhd"},
			wantValid: true,
		},
		{
			name:      "site zips without query text",
			req:       &MatchQueryRequest{SiteZipCodes: []string{"10001"}},
			wantValid: true,
		},
		{
			name:      "nil request",
			req:       nil,
			wantValid: false,
			wantField: "request_body",
		},
		{
			name:      "nothing provided",
			req:       &MatchQueryRequest{},
			wantValid: false,
			wantField: "query",
		},
		{
			name:      "negative top_k",
			req:       &MatchQueryRequest{Query: "Target: ADHD", TopK: -1},
			wantValid: false,
			wantField: "top_k",
		},
		{
			name:      "top_k above ceiling",
			req:       &MatchQueryRequest{Query: "Target: ADHD", TopK: queryparse.TopKCeiling + 1},
			wantValid: false,
			wantField: "top_k",
		},
		{
			name:      "top_k at ceiling",
			req:       &MatchQueryRequest{Query: "Target: ADHD", TopK: queryparse.TopKCeiling},
			wantValid: true,
		},
		{
			name:      "blank site zip",
			req:       &MatchQueryRequest{Query: "Target: ADHD", SiteZipCodes: []string{"10001", "  "}},
			wantValid: false,
			wantField: "site_zip_codes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateMatchRequest(tt.req)

			if result.Valid != tt.wantValid {
				t.Errorf("ValidateMatchRequest() Valid = %v, want %v (errors: %+v)", result.Valid, tt.wantValid, result.Errors)
			}

			if !tt.wantValid && len(result.Errors) > 0 {
				if result.Errors[0].Field != tt.wantField {
					t.Errorf("ValidateMatchRequest() error field = %v, want %v", result.Errors[0].Field, tt.wantField)
				}
			}
		})
	}
}

func TestValidateScoringSettings(t *testing.T) {
	t.Run("nil settings", func(t *testing.T) {
		result := ValidateScoringSettings(nil)
		if result.Valid {
			t.Error("Expected nil settings to be invalid")
		}
	})

	t.Run("empty settings take defaults", func(t *testing.T) {
		scoring := config.ScoringConfig{}
		result := ValidateScoringSettings(&scoring)
		if !result.Valid {
			t.Errorf("Expected defaults to validate, got %+v", result.Errors)
		}
		if scoring.MaxAchievableScore != 335 {
			t.Errorf("Expected defaults applied in place, got ceiling %v", scoring.MaxAchievableScore)
		}
	})

	t.Run("out of order recency buckets", func(t *testing.T) {
		scoring := config.ScoringConfig{
			RecencyBuckets: []config.RecencyBucket{
				{MaxDays: 90, Points: 35},
				{MaxDays: 30, Points: 50},
			},
		}
		result := ValidateScoringSettings(&scoring)
		if result.Valid {
			t.Error("Expected out-of-order buckets to be invalid")
		}
	})
}
