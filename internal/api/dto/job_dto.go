package dto

import (
	"encoding/json"
	"time"

	"github.com/dealscout/pipeline/internal/domain"
)

type CreateJobRequest struct {
	Kind    string          `json:"kind" binding:"required"`
	Payload json.RawMessage `json:"payload" binding:"required"`
}

type ListJobsRequest struct {
	Status string `form:"status"`
	Kind   string `form:"kind"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
	Sort   string `form:"sort"` // asc (default) or desc
}

type ListJobsResponse struct {
	Jobs   []JobDTO `json:"jobs"`
	Total  int      `json:"total"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
}

type JobDTO struct {
	JobID          string            `json:"job_id"`
	Kind           string            `json:"kind"`
	Payload        json.RawMessage   `json:"payload"`
	Status         string            `json:"status"`
	Attempt        int               `json:"attempt"`
	MaxAttempts    int               `json:"max_attempts"`
	PreviousErrors []domain.JobError `json:"previous_errors"`
	Result         json.RawMessage   `json:"result,omitempty"`
	CreatedAt      string            `json:"created_at"`
	UpdatedAt      string            `json:"updated_at"`
}

// FromJob maps a domain job onto the response shape.
func FromJob(job *domain.Job) JobDTO {
	errs := []domain.JobError(job.PreviousErrors)
	if errs == nil {
		errs = []domain.JobError{}
	}
	return JobDTO{
		JobID:          job.JobID,
		Kind:           job.Kind,
		Payload:        job.Payload,
		Status:         job.Status,
		Attempt:        job.Attempt,
		MaxAttempts:    job.MaxAttempts,
		PreviousErrors: errs,
		Result:         job.Result,
		CreatedAt:      job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      job.UpdatedAt.Format(time.RFC3339),
	}
}
