package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trialmatch/go-match-engine/internal/engine"
	internalErrors "github.com/trialmatch/go-match-engine/internal/errors"
	"github.com/trialmatch/go-match-engine/model"
	"github.com/trialmatch/go-match-engine/services"
)

// GetJobHandler handles requests to get job status by ID
func (api *API) GetJobHandler(c *gin.Context) {
	jobID := c.Param("jobId")

	jobManager, ok := api.engine.(services.JobManager)
	if !ok {
		SendError(c, http.StatusNotImplemented, ErrorCodeInvalidRequest,
			"Job management not supported by this engine")
		return
	}

	job, err := jobManager.GetJob(jobID)
	if err != nil {
		if errors.Is(err, internalErrors.ErrJobNotFound) {
			SendJobNotFoundError(c, jobID)
			return
		}
		SendInternalError(c, "get job", err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// ListJobsHandler handles requests to list jobs, optionally filtered by
// dataset and status.
func (api *API) ListJobsHandler(c *gin.Context) {
	dataset := c.Query("dataset")
	statusParam := c.Query("status")

	var statusFilter *model.JobStatus
	if statusParam != "" {
		status := model.JobStatus(statusParam)
		statusFilter = &status
	}

	jobManager, ok := api.engine.(services.JobManager)
	if !ok {
		SendError(c, http.StatusNotImplemented, ErrorCodeInvalidRequest,
			"Job management not supported by this engine")
		return
	}

	jobs := jobManager.ListJobs(dataset, statusFilter)
	c.JSON(http.StatusOK, gin.H{
		"jobs":    jobs,
		"dataset": dataset,
		"total":   len(jobs),
	})
}

// GetJobMetricsHandler handles requests to get job performance metrics
func (api *API) GetJobMetricsHandler(c *gin.Context) {
	engineWithMetrics, ok := api.engine.(*engine.Engine)
	if !ok {
		SendError(c, http.StatusNotImplemented, ErrorCodeInvalidRequest,
			"Job metrics not supported by this engine")
		return
	}

	c.JSON(http.StatusOK, engineWithMetrics.JobMetrics())
}
