// Package api provides validation utilities for API request handling.
package api

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/trialmatch/go-match-engine/config"
	"github.com/trialmatch/go-match-engine/internal/queryparse"
)

// ValidationError represents a validation error with field context
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds the result of validation operations
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// AddError adds a validation error to the result
func (vr *ValidationResult) AddError(field, message string) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, ValidationError{
		Field:   field,
		Message: message,
	})
}

// HasErrors returns true if there are validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// ValidateDatasetName validates a dataset name parameter
func ValidateDatasetName(dataset string) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if dataset == "" {
		result.AddError("dataset", "Dataset name is required")
		return result
	}

	if strings.TrimSpace(dataset) != dataset {
		result.AddError("dataset", "Dataset name cannot have leading or trailing whitespace")
		return result
	}

	return result
}

// ValidateMatchRequest validates the shape of a match query request. Query
// interpretation itself is the engine's job; this only rejects requests no
// interpretation could make sense of.
func ValidateMatchRequest(req *MatchQueryRequest) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if req == nil {
		result.AddError("request_body", "Match request is required")
		return result
	}

	if strings.TrimSpace(req.Query) == "" && strings.TrimSpace(req.TargetIndication) == "" && len(req.SiteZipCodes) == 0 {
		result.AddError("query", "A query, target_indication, or site_zip_codes must be provided")
	}

	if req.TopK < 0 {
		result.AddError("top_k", "top_k cannot be negative")
	}
	if req.TopK > queryparse.TopKCeiling {
		result.AddError("top_k", "top_k cannot exceed "+strconv.Itoa(queryparse.TopKCeiling))
	}

	for i, zip := range req.SiteZipCodes {
		if strings.TrimSpace(zip) == "" {
			result.AddError("site_zip_codes", "Site zip code at index "+strconv.Itoa(i)+" is empty")
		}
	}

	return result
}

// ValidateScoringSettings validates scoring settings for an update. Defaults
// are applied in place before validation so a partial payload only replaces
// the breakpoints it names.
func ValidateScoringSettings(scoring *config.ScoringConfig) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if scoring == nil {
		result.AddError("scoring", "Scoring settings are required")
		return result
	}

	scoring.ApplyDefaults()

	if conflicts := scoring.Validate(); len(conflicts) > 0 {
		for _, conflict := range conflicts {
			result.AddError("scoring_validation", conflict)
		}
	}

	return result
}

// SendValidationError sends a standardized validation error response
func SendValidationError(c *gin.Context, result *ValidationResult) {
	SendStructuredValidationError(c, result)
}

// ValidateJSONBinding validates JSON binding and returns a standardized error
func ValidateJSONBinding(c *gin.Context, target interface{}) *ValidationResult {
	result := &ValidationResult{Valid: true}

	if err := c.ShouldBindJSON(target); err != nil {
		result.AddError("request_body", "Invalid request body: "+err.Error())
	}

	return result
}
