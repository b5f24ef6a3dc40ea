package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	internalErrors "github.com/trialmatch/go-match-engine/internal/errors"
	"github.com/trialmatch/go-match-engine/internal/queryparse"
	"github.com/trialmatch/go-match-engine/model"
	"github.com/trialmatch/go-match-engine/services"
)

// MatchQueryRequest defines the structure for match queries.
type MatchQueryRequest struct {
	Query            string   `json:"query"`
	TargetIndication string   `json:"target_indication,omitempty"` // Optional: explicit target when the query text has no Target: clause
	SiteZipCodes     []string `json:"site_zip_codes,omitempty"`
	TopK             int      `json:"top_k,omitempty"` // Optional: 0 uses the configured default
}

// MatchHandler handles match queries against the default dataset.
// Request Body: MatchQueryRequest
func (api *API) MatchHandler(c *gin.Context) {
	startTime := time.Now()
	dataset := api.datasetName()

	accessor, err := api.engine.GetDataset(dataset)
	if err != nil {
		if errors.Is(err, internalErrors.ErrDatasetNotFound) {
			SendDatasetUnavailableError(c, dataset)
			return
		}
		SendInternalError(c, "get dataset", err)
		return
	}

	var req MatchQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendError(c, http.StatusBadRequest, ErrorCodeInvalidQuery, "Invalid request body: "+err.Error())
		return
	}

	if result := ValidateMatchRequest(&req); result.HasErrors() {
		SendValidationError(c, result)
		return
	}

	matchReq := services.MatchRequest{
		Query:            req.Query,
		TargetIndication: req.TargetIndication,
		SiteZipCodes:     req.SiteZipCodes,
		TopK:             req.TopK,
	}

	results, err := accessor.Match(c.Request.Context(), matchReq)
	if err != nil {
		switch {
		case errors.Is(err, internalErrors.ErrInvalidQuery):
			SendError(c, http.StatusBadRequest, ErrorCodeInvalidQuery, err.Error())
		case errors.Is(err, internalErrors.ErrDatasetUnavailable):
			SendDatasetUnavailableError(c, dataset)
		default:
			SendMatchError(c, dataset, err)
		}
		return
	}

	// Track analytics event
	responseTime := time.Since(startTime)
	event := model.MatchEvent{
		Query:            req.Query,
		TargetIndication: targetOf(req),
		QueryMode:        determineQueryMode(req),
		SiteCount:        len(req.SiteZipCodes),
		ResponseTime:     responseTime,
		ResultCount:      results.TotalMatchingPatients,
	}

	// Track the event asynchronously to avoid slowing down the response
	go func() {
		if err := api.analytics.TrackMatchEvent(event); err != nil {
			api.logger.Warn("failed to track match event", zap.Error(err))
		}
	}()

	c.JSON(http.StatusOK, results)
}

// ListConditionsHandler returns the distinct indications of the default
// dataset, canonicalized and sorted, for recruiter-facing autocomplete.
func (api *API) ListConditionsHandler(c *gin.Context) {
	dataset := api.datasetName()

	accessor, err := api.engine.GetDataset(dataset)
	if err != nil {
		if errors.Is(err, internalErrors.ErrDatasetNotFound) {
			SendDatasetUnavailableError(c, dataset)
			return
		}
		SendInternalError(c, "get dataset", err)
		return
	}

	conditions := accessor.Conditions()
	c.JSON(http.StatusOK, gin.H{
		"available_conditions": conditions,
		"total_count":          len(conditions),
	})
}

// queryShape tokenizes the query text the same way the engine's parser does
// and reports the target term plus whether exclusion or demographic clauses
// were present. The engine's own parse is authoritative for matching; this
// only feeds analytics.
func queryShape(req MatchQueryRequest) (target string, excluded, filtered bool) {
	var targetTerms []string
	inTarget := false
	for _, tok := range queryparse.Tokenize(req.Query) {
		switch tok.Kind {
		case queryparse.TokenTargetMarker:
			inTarget = true
		case queryparse.TokenExclusionMarker:
			inTarget = false
			excluded = true
		case queryparse.TokenSex, queryparse.TokenAge:
			inTarget = false
			filtered = true
		case queryparse.TokenWord, queryparse.TokenInt:
			if inTarget {
				targetTerms = append(targetTerms, tok.Text)
			}
		}
	}
	target = strings.ToLower(strings.Join(targetTerms, " "))
	if target == "" {
		target = strings.ToLower(strings.TrimSpace(req.TargetIndication))
	}
	return target, excluded, filtered
}

// targetOf extracts the target indication for analytics. A Target: clause in
// the query text wins; otherwise the explicit target_indication field is used.
func targetOf(req MatchQueryRequest) string {
	target, _, _ := queryShape(req)
	return target
}

// determineQueryMode classifies the query for analytics dashboards.
func determineQueryMode(req MatchQueryRequest) string {
	target, excluded, filtered := queryShape(req)
	switch {
	case excluded:
		return "excluded"
	case filtered:
		return "filtered"
	case target == "":
		return "zip_only"
	default:
		return "indication"
	}
}
