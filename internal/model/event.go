package model

import "time"

// Outcome is the canonical, processor-agnostic result of a job
type Outcome string

const (
	OutcomeCompleted     Outcome = "completed"
	OutcomeFailed        Outcome = "failed"
	OutcomeIndeterminate Outcome = "indeterminate"
)

// CompletionEvent is the normalized form of a processor notification. Both
// the webhook path and the reconciliation sweeper produce these; the applier
// consumes nothing else.
type CompletionEvent struct {
	Outcome      Outcome `json:"outcome"`
	OutputURL    string  `json:"outputUrl,omitempty"`
	ErrorMessage string  `json:"errorMessage,omitempty"`
	SourceJobID  string  `json:"sourceJobId,omitempty"`
	// PayloadKeys preserves the top-level keys of an unrecognized payload so
	// unseen processor formats show up in logs instead of vanishing.
	PayloadKeys []string `json:"payloadKeys,omitempty"`
}

// WebhookEvent is an append-only audit record of one inbound notification.
// Written for every delivery, successful or not; never read back into
// control flow.
type WebhookEvent struct {
	ID         string          `json:"id"`
	Processor  ProcessorFamily `json:"processor"`
	JobID      string          `json:"jobId,omitempty"`
	Operation  string          `json:"operation,omitempty"`
	RawBody    string          `json:"rawBody"`
	Processed  bool            `json:"processed"`
	Success    bool            `json:"success"`
	Error      string          `json:"error,omitempty"`
	ReceivedAt time.Time       `json:"receivedAt"`
}
