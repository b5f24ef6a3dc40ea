package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/trialmatch/go-match-engine/model"
)

func TestJobManager_CreateJob(t *testing.T) {
	manager := NewManager(2, zap.NewNop())
	defer manager.Stop()

	jobID := manager.CreateJob(model.JobTypeReloadDataset, "patients", map[string]string{
		"operation": "test",
	})

	if jobID == "" {
		t.Error("Expected non-empty job ID")
	}

	job, err := manager.GetJob(jobID)
	if err != nil {
		t.Fatalf("Failed to get created job: %v", err)
	}

	if job.Type != model.JobTypeReloadDataset {
		t.Errorf("Expected job type %s, got %s", model.JobTypeReloadDataset, job.Type)
	}

	if job.Status != model.JobStatusPending {
		t.Errorf("Expected job status %s, got %s", model.JobStatusPending, job.Status)
	}

	if job.Dataset != "patients" {
		t.Errorf("Expected dataset 'patients', got %s", job.Dataset)
	}
}

func TestJobManager_ExecuteJob(t *testing.T) {
	manager := NewManager(2, zap.NewNop())
	manager.Start()
	defer manager.Stop()

	jobID := manager.CreateJob(model.JobTypeReloadDataset, "patients", nil)

	// Execute a simple job that updates progress
	err := manager.ExecuteJob(jobID, func(ctx context.Context, job *model.Job) error {
		manager.UpdateJobProgress(jobID, 50, 100, "Halfway done")
		time.Sleep(10 * time.Millisecond) // Simulate work
		manager.UpdateJobProgress(jobID, 100, 100, "Completed")
		return nil
	})

	if err != nil {
		t.Fatalf("Failed to execute job: %v", err)
	}

	// Wait a bit for job to complete
	time.Sleep(50 * time.Millisecond)

	job, err := manager.GetJob(jobID)
	if err != nil {
		t.Fatalf("Failed to get job after execution: %v", err)
	}

	if job.Status != model.JobStatusCompleted {
		t.Errorf("Expected job status %s, got %s", model.JobStatusCompleted, job.Status)
	}

	if job.Progress == nil {
		t.Error("Expected job progress to be set")
	} else {
		if job.Progress.Current != 100 {
			t.Errorf("Expected progress current 100, got %d", job.Progress.Current)
		}
		if job.Progress.Total != 100 {
			t.Errorf("Expected progress total 100, got %d", job.Progress.Total)
		}
	}
}

func TestJobManager_ExecuteJobFailure(t *testing.T) {
	manager := NewManager(2, zap.NewNop())
	manager.Start()
	defer manager.Stop()

	jobID := manager.CreateJob(model.JobTypePersistSnapshot, "patients", nil)

	err := manager.ExecuteJob(jobID, func(ctx context.Context, job *model.Job) error {
		return errors.New("disk full")
	})
	if err != nil {
		t.Fatalf("Failed to execute job: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	job, err := manager.GetJob(jobID)
	if err != nil {
		t.Fatalf("Failed to get job after execution: %v", err)
	}

	if job.Status != model.JobStatusFailed {
		t.Errorf("Expected job status %s, got %s", model.JobStatusFailed, job.Status)
	}
	if job.Error != "disk full" {
		t.Errorf("Expected job error 'disk full', got %q", job.Error)
	}
	if job.CompletedAt == nil {
		t.Error("Expected CompletedAt to be set for a failed job")
	}
}

func TestJobManager_ListJobsFiltering(t *testing.T) {
	manager := NewManager(2, zap.NewNop())
	defer manager.Stop()

	manager.CreateJob(model.JobTypeReloadDataset, "patients", nil)
	manager.CreateJob(model.JobTypeUpdateScoring, "patients", nil)
	manager.CreateJob(model.JobTypeReloadDataset, "pilot", nil)

	if got := len(manager.ListJobs("patients", nil)); got != 2 {
		t.Errorf("Expected 2 jobs for dataset 'patients', got %d", got)
	}
	if got := len(manager.ListJobs("", nil)); got != 3 {
		t.Errorf("Expected 3 jobs without a dataset filter, got %d", got)
	}

	pending := model.JobStatusPending
	if got := len(manager.ListJobs("pilot", &pending)); got != 1 {
		t.Errorf("Expected 1 pending job for dataset 'pilot', got %d", got)
	}

	running := model.JobStatusRunning
	if got := len(manager.ListJobs("pilot", &running)); got != 0 {
		t.Errorf("Expected 0 running jobs for dataset 'pilot', got %d", got)
	}
}

func TestJobManager_GetJobNotFound(t *testing.T) {
	manager := NewManager(1, zap.NewNop())
	defer manager.Stop()

	if _, err := manager.GetJob("nope"); err == nil {
		t.Error("Expected an error for an unknown job ID")
	}
}

func TestJobMetrics_SuccessRate(t *testing.T) {
	metrics := NewJobMetrics()

	if rate := metrics.GetSuccessRate(); rate != 1.0 {
		t.Errorf("Expected success rate 1.0 with no jobs, got %f", rate)
	}

	metrics.RecordJobCreated(model.JobTypeReloadDataset)
	metrics.RecordJobCompleted(model.JobTypeReloadDataset, 10*time.Millisecond)
	metrics.RecordJobCreated(model.JobTypeReloadDataset)
	metrics.RecordJobFailed(model.JobTypeReloadDataset)

	if rate := metrics.GetSuccessRate(); rate != 0.5 {
		t.Errorf("Expected success rate 0.5, got %f", rate)
	}

	data := metrics.GetMetrics()
	if data.JobsCreated != 2 {
		t.Errorf("Expected 2 jobs created, got %d", data.JobsCreated)
	}
	if data.AverageExecutionTime != 10*time.Millisecond {
		t.Errorf("Expected average execution time 10ms, got %v", data.AverageExecutionTime)
	}
}
