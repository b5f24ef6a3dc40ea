package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	internalErrors "github.com/trialmatch/go-match-engine/internal/errors"
	"github.com/trialmatch/go-match-engine/services"
)

// GetDatasetHandler returns information about the current dataset snapshot.
func (api *API) GetDatasetHandler(c *gin.Context) {
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

	c.JSON(http.StatusOK, accessor.Stats())
}

// ReloadDatasetHandler starts an asynchronous snapshot rebuild from the
// dataset's configured source. Queries keep running against the old snapshot
// until the new one is published.
func (api *API) ReloadDatasetHandler(c *gin.Context) {
	dataset := c.Query("dataset")
	if dataset == "" {
		dataset = api.datasetName()
	}

	if result := ValidateDatasetName(dataset); result.HasErrors() {
		SendValidationError(c, result)
		return
	}

	asyncEngine, ok := api.engine.(services.DatasetManagerWithAsyncReload)
	if !ok {
		SendError(c, http.StatusNotImplemented, ErrorCodeInvalidRequest,
			"Dataset reload not supported by this engine")
		return
	}

	jobID, err := asyncEngine.ReloadDatasetAsync(dataset)
	if err != nil {
		if errors.Is(err, internalErrors.ErrDatasetNotFound) {
			SendDatasetNotFoundError(c, dataset)
			return
		}
		SendJobExecutionError(c, "dataset reload", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":  "accepted",
		"message": "Dataset reload started for '" + dataset + "'",
		"job_id":  jobID,
		"dataset": dataset,
	})
}
