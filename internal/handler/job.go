package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/internal/registry"
	"github.com/storyreel/api/internal/service"
	"github.com/storyreel/api/pkg/response"
)

// JobHandler exposes the dispatch API and job status lookups
type JobHandler struct {
	dispatcher *service.Dispatcher
	jobs       registry.JobStore
	validator  *validator.Validate
}

// NewJobHandler creates a new job handler
func NewJobHandler(dispatcher *service.Dispatcher, jobs registry.JobStore, v *validator.Validate) *JobHandler {
	return &JobHandler{
		dispatcher: dispatcher,
		jobs:       jobs,
		validator:  v,
	}
}

// Dispatch handles POST /api/jobs
func (h *JobHandler) Dispatch(c *fiber.Ctx) error {
	var req model.DispatchRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}
	if !validJobType(req.Type) {
		return response.ValidationError(c, "Unknown job type", nil)
	}

	job, err := h.dispatcher.Submit(c.Context(), req.Type, model.EntityRef{ID: req.EntityID, Kind: req.Kind}, req.Params)
	if err != nil {
		if job != nil {
			// Submission failed but the job record exists in failed state;
			// surface both the failure and the id for follow-up.
			return response.Error(c, fiber.StatusBadGateway, response.CodeProcessorError, job.ErrorDetail, fiber.Map{"jobId": job.ID})
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, model.DispatchResponse{
		JobID:          job.ID,
		Status:         job.Status,
		ExternalTaskID: job.ExternalTaskID,
		CreatedAt:      job.CreatedAt,
	})
}

// Status handles GET /api/jobs/:jobId
func (h *JobHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.jobs.GetJob(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, model.JobStatusResponse{
		JobID:          job.ID,
		Type:           job.Type,
		Status:         job.Status,
		ExternalTaskID: job.ExternalTaskID,
		OutputURL:      job.OutputURL,
		ErrorDetail:    job.ErrorDetail,
		Notes:          job.Notes,
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
	})
}

func validJobType(t model.JobType) bool {
	for _, v := range model.ValidJobTypes {
		if t == v {
			return true
		}
	}
	return false
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
