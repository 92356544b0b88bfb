package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/internal/registry"
	"github.com/storyreel/api/pkg/logger"
)

// OperationFor maps a job type to the operation tag embedded in the
// callback URL and recorded in the request context.
func OperationFor(t model.JobType) string {
	if t == model.JobTypeMusic {
		return "add_music"
	}
	return string(t)
}

// Dispatcher records a durable intent to do external work and hands it to
// the owning processor. Callers get a terminal-or-active guarantee: a job
// returned by Submit is processing or failed, never pending.
type Dispatcher struct {
	jobs         registry.JobStore
	clients      map[model.ProcessorFamily]client.ProcessorClient
	callbackBase string
	hub          Broadcaster
}

// NewDispatcher creates a dispatcher. callbackBase is the public base URL
// webhook callbacks are built from; hub may be nil.
func NewDispatcher(jobs registry.JobStore, clients map[model.ProcessorFamily]client.ProcessorClient, callbackBase string, hub Broadcaster) *Dispatcher {
	return &Dispatcher{
		jobs:         jobs,
		clients:      clients,
		callbackBase: callbackBase,
		hub:          hub,
	}
}

// Submit creates a pending job, submits it to the processor with a callback
// URL embedding the job id and operation tag, and persists the processor's
// task id. On submission failure the job is moved directly to failed with
// the error captured; the error also surfaces to the caller.
func (d *Dispatcher) Submit(ctx context.Context, jobType model.JobType, entity model.EntityRef, params map[string]string) (*model.Job, error) {
	family := model.ProcessorFor(jobType)
	proc, ok := d.clients[family]
	if !ok {
		return nil, fmt.Errorf("no client configured for processor %s", family)
	}

	op := OperationFor(jobType)
	jobID := uuid.New().String()

	rc := model.RequestContext{
		Entity:    entity,
		Operation: op,
		Params:    params,
	}
	rcBytes, err := json.Marshal(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request context: %w", err)
	}

	job := &model.Job{
		ID:             jobID,
		Type:           jobType,
		Status:         model.JobStatusPending,
		CallbackURL:    d.buildCallbackURL(family, jobID, op, entity.ID),
		RequestContext: string(rcBytes),
		CreatedAt:      time.Now(),
	}

	if err := d.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	resp, err := proc.Submit(ctx, &client.SubmitRequest{
		Operation:   op,
		CallbackURL: job.CallbackURL,
		Params:      params,
	})
	if err != nil {
		job.Status = model.JobStatusFailed
		job.ErrorDetail = fmt.Sprintf("submission failed: %v", err)
		if uerr := d.jobs.UpdateJob(ctx, job); uerr != nil {
			logger.Errorf("Job %s could not be marked failed after submission error: %v", job.ID, uerr)
		}
		if d.hub != nil {
			d.hub.BroadcastError(job.ID, "SUBMISSION_FAILED", job.ErrorDetail)
		}
		return job, fmt.Errorf("failed to submit %s job to %s: %w", jobType, family, err)
	}

	job.ExternalTaskID = resp.TaskID
	job.Status = model.JobStatusProcessing
	if err := d.jobs.UpdateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist dispatched job %s: %w", job.ID, err)
	}

	logger.Infof("Job %s dispatched to %s as task %s", job.ID, family, resp.TaskID)
	if d.hub != nil {
		d.hub.BroadcastStatus(job.ID, model.JobStatusProcessing)
	}
	return job, nil
}

// buildCallbackURL constructs
// {base}/webhooks/{processor}?job_id={id}&operation={op}[&target_id={entityID}].
// The query string is the only channel every processor reliably echoes.
func (d *Dispatcher) buildCallbackURL(family model.ProcessorFamily, jobID, op, targetID string) string {
	q := url.Values{}
	q.Set("job_id", jobID)
	q.Set("operation", op)
	if targetID != "" {
		q.Set("target_id", targetID)
	}
	return fmt.Sprintf("%s/webhooks/%s?%s", d.callbackBase, family, q.Encode())
}
