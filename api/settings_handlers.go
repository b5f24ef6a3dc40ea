package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trialmatch/go-match-engine/config"
	internalErrors "github.com/trialmatch/go-match-engine/internal/errors"
	"github.com/trialmatch/go-match-engine/model"
)

// GetScoringSettingsHandler returns the scoring breakpoints of the default
// dataset.
func (api *API) GetScoringSettingsHandler(c *gin.Context) {
	dataset := api.datasetName()

	settings, err := api.engine.GetScoringSettings(dataset)
	if err != nil {
		if errors.Is(err, internalErrors.ErrDatasetNotFound) {
			SendDatasetNotFoundError(c, dataset)
			return
		}
		SendInternalError(c, "get scoring settings", err)
		return
	}

	c.JSON(http.StatusOK, settings)
}

// UpdateScoringSettingsHandler replaces the scoring breakpoints of the
// default dataset. The new settings take effect for subsequent queries;
// in-flight queries finish under the old ones.
// Request Body: config.ScoringConfig
func (api *API) UpdateScoringSettingsHandler(c *gin.Context) {
	dataset := api.datasetName()

	var scoring config.ScoringConfig
	if result := ValidateJSONBinding(c, &scoring); result.HasErrors() {
		SendValidationError(c, result)
		return
	}

	if result := ValidateScoringSettings(&scoring); result.HasErrors() {
		SendValidationError(c, result)
		return
	}

	if err := api.engine.UpdateScoringSettings(dataset, scoring); err != nil {
		switch {
		case errors.Is(err, internalErrors.ErrDatasetNotFound):
			SendDatasetNotFoundError(c, dataset)
		case errors.Is(err, internalErrors.ErrInvalidInput):
			SendError(c, http.StatusBadRequest, ErrorCodeValidationFailed, err.Error())
		default:
			SendInternalError(c, "update scoring settings", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":              "Scoring settings updated for dataset '" + dataset + "'",
		"max_achievable_score": scoring.MaxAchievableScore,
	})
}

// ListScreeningRuleSetsHandler returns every stored screening funnel.
func (api *API) ListScreeningRuleSetsHandler(c *gin.Context) {
	ruleSets := api.screening.ListRuleSets()
	c.JSON(http.StatusOK, gin.H{
		"rule_sets": ruleSets,
		"count":     len(ruleSets),
	})
}

// UpdateScreeningRuleSetHandler creates or replaces a screening funnel.
// Patients already ingested keep their resolved status until the next
// dataset reload.
// Request Body: model.ScreeningRuleSet
func (api *API) UpdateScreeningRuleSetHandler(c *gin.Context) {
	var ruleSet model.ScreeningRuleSet
	if result := ValidateJSONBinding(c, &ruleSet); result.HasErrors() {
		SendValidationError(c, result)
		return
	}

	if ruleSet.Name == "" {
		SendError(c, http.StatusBadRequest, ErrorCodeInvalidRequest, "Rule set name is required")
		return
	}

	var err error
	var created bool
	if _, getErr := api.screening.GetRuleSet(ruleSet.Name); getErr != nil {
		_, err = api.screening.CreateRuleSet(ruleSet)
		created = true
	} else {
		err = api.screening.UpdateRuleSet(ruleSet)
	}
	if err != nil {
		SendError(c, http.StatusBadRequest, ErrorCodeValidationFailed, err.Error())
		return
	}

	status := http.StatusOK
	message := "Screening rule set '" + ruleSet.Name + "' updated"
	if created {
		status = http.StatusCreated
		message = "Screening rule set '" + ruleSet.Name + "' created"
	}
	c.JSON(status, gin.H{"message": message})
}
