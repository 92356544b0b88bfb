package model

import "time"

// DispatchRequest is the body of POST /api/jobs
type DispatchRequest struct {
	Type     JobType           `json:"type" validate:"required"`
	EntityID string            `json:"entityId" validate:"required"`
	Kind     EntityKind        `json:"kind" validate:"required,oneof=segment video"`
	Params   map[string]string `json:"params,omitempty"`
}

// DispatchResponse acknowledges a dispatched job
type DispatchResponse struct {
	JobID          string    `json:"jobId"`
	Status         JobStatus `json:"status"`
	ExternalTaskID string    `json:"externalTaskId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// JobStatusResponse reports the current state of a job
type JobStatusResponse struct {
	JobID          string    `json:"jobId"`
	Type           JobType   `json:"type"`
	Status         JobStatus `json:"status"`
	ExternalTaskID string    `json:"externalTaskId,omitempty"`
	OutputURL      string    `json:"outputUrl,omitempty"`
	ErrorDetail    string    `json:"errorDetail,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// WebhookAck is returned for every notification that was parsed and routed.
// A 200 communicates "received", not "job succeeded".
type WebhookAck struct {
	Received bool    `json:"received"`
	JobID    string  `json:"jobId"`
	Outcome  Outcome `json:"outcome"`
}
