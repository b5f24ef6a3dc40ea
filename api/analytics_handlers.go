package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetAnalyticsHandler handles the request to get analytics dashboard data
func (api *API) GetAnalyticsHandler(c *gin.Context) {
	dashboard, err := api.analytics.GetDashboardData()
	if err != nil {
		SendInternalError(c, "retrieve analytics data", err)
		return
	}

	c.JSON(http.StatusOK, dashboard)
}

// GetPopularIndicationsHandler returns the most queried target indications.
func (api *API) GetPopularIndicationsHandler(c *gin.Context) {
	limit := limitParam(c, 5)
	indications := api.analytics.GetPopularIndications(limit)
	c.JSON(http.StatusOK, gin.H{
		"popular_indications": indications,
		"count":               len(indications),
	})
}

// GetZeroResultQueriesHandler returns the queries that matched no patients.
func (api *API) GetZeroResultQueriesHandler(c *gin.Context) {
	limit := limitParam(c, 10)
	queries := api.analytics.GetZeroResultQueries(limit)
	c.JSON(http.StatusOK, gin.H{
		"zero_result_queries": queries,
		"count":               len(queries),
	})
}

func limitParam(c *gin.Context, fallback int) int {
	raw := c.Query("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
