package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trialmatch/go-match-engine/internal/analytics"
	"github.com/trialmatch/go-match-engine/internal/screening"
	"github.com/trialmatch/go-match-engine/services"
)

// API holds dependencies for API handlers, primarily the dataset manager.
type API struct {
	engine    services.DatasetManager
	analytics *analytics.Service
	screening *screening.Engine
	dataset   string // default dataset name for the unscoped routes
	logger    *zap.Logger
}

// NewAPI creates a new API handler structure. dataset names the dataset the
// unscoped routes (query, conditions, reload) operate on; empty falls back to
// the first loaded dataset.
func NewAPI(engine services.DatasetManager, analyticsService *analytics.Service, screeningEngine *screening.Engine, dataset string, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		engine:    engine,
		analytics: analyticsService,
		screening: screeningEngine,
		dataset:   dataset,
		logger:    logger,
	}
}

// SetupRoutes defines all the API routes for the match engine.
func SetupRoutes(router *gin.Engine, apiHandler *API) {
	// Health check routes
	router.GET("/", apiHandler.RootHandler)
	router.GET("/health", apiHandler.HealthCheckHandler)

	// Core match routes
	router.POST("/query", apiHandler.MatchHandler)
	router.GET("/conditions", apiHandler.ListConditionsHandler)

	// Dataset routes
	datasetRoutes := router.Group("/dataset")
	{
		datasetRoutes.GET("", apiHandler.GetDatasetHandler)            // Current snapshot info
		datasetRoutes.POST("/reload", apiHandler.ReloadDatasetHandler) // Async snapshot rebuild
	}

	// Settings routes
	settingsRoutes := router.Group("/settings")
	{
		settingsRoutes.GET("/scoring", apiHandler.GetScoringSettingsHandler)
		settingsRoutes.PUT("/scoring", apiHandler.UpdateScoringSettingsHandler)
		settingsRoutes.GET("/screening", apiHandler.ListScreeningRuleSetsHandler)
		settingsRoutes.PUT("/screening", apiHandler.UpdateScreeningRuleSetHandler)
	}

	// Job management routes
	jobRoutes := router.Group("/jobs")
	{
		jobRoutes.GET("", apiHandler.ListJobsHandler)              // List jobs, optionally filtered
		jobRoutes.GET("/metrics", apiHandler.GetJobMetricsHandler) // Get job performance metrics
		jobRoutes.GET("/:jobId", apiHandler.GetJobHandler)         // Get job status by ID
	}

	// Analytics routes
	analyticsRoutes := router.Group("/analytics")
	{
		analyticsRoutes.GET("", apiHandler.GetAnalyticsHandler)
		analyticsRoutes.GET("/popular-indications", apiHandler.GetPopularIndicationsHandler)
		analyticsRoutes.GET("/zero-result-queries", apiHandler.GetZeroResultQueriesHandler)
	}
}

// datasetName resolves the dataset the unscoped routes operate on.
func (api *API) datasetName() string {
	if api.dataset != "" {
		return api.dataset
	}
	if names := api.engine.ListDatasets(); len(names) > 0 {
		return names[0]
	}
	return ""
}

// defaultDataset returns the accessor for the default dataset.
func (api *API) defaultDataset() (services.DatasetAccessor, error) {
	return api.engine.GetDataset(api.datasetName())
}

// RootHandler reports service identity plus a dataset summary.
func (api *API) RootHandler(c *gin.Context) {
	datasets, patients := api.datasetSummary()
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"message":  "clinical trial match engine",
		"datasets": datasets,
		"patients": patients,
	})
}

// HealthCheckHandler provides a simple health check endpoint.
func (api *API) HealthCheckHandler(c *gin.Context) {
	datasets, patients := api.datasetSummary()
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "go-match-engine",
		"datasets":  datasets,
		"patients":  patients,
		"timestamp": time.Now().Unix(),
	})
}

func (api *API) datasetSummary() (int, int) {
	names := api.engine.ListDatasets()
	patients := 0
	for _, name := range names {
		if accessor, err := api.engine.GetDataset(name); err == nil {
			patients += accessor.Stats().PatientCount
		}
	}
	return len(names), patients
}
