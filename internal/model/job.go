package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// JobType identifies the kind of outsourced work a job represents
type JobType string

const (
	JobTypeVoiceover       JobType = "voiceover"
	JobTypeCombine         JobType = "combine"
	JobTypeConcatenate     JobType = "concatenate"
	JobTypeMusic           JobType = "music"
	JobTypeFinal           JobType = "final"
	JobTypeAIImage         JobType = "ai_image"
	JobTypeVideoGeneration JobType = "video_generation"
)

var ValidJobTypes = []JobType{
	JobTypeVoiceover, JobTypeCombine, JobTypeConcatenate, JobTypeMusic,
	JobTypeFinal, JobTypeAIImage, JobTypeVideoGeneration,
}

// JobStatus represents the lifecycle state of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	// JobStatusUnknown quarantines jobs whose completion could not be mapped
	// to a known operation. Terminal for automated processing; surfaced
	// distinctly from failed for operator triage.
	JobStatusUnknown JobStatus = "unknown"
	// JobStatusWebhookError marks jobs hit by an unexpected fault inside the
	// webhook path itself, so the failure is visibly ours rather than the
	// processor's.
	JobStatusWebhookError JobStatus = "webhook_error"
)

// IsTerminal reports whether no further automated transition may occur.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusUnknown, JobStatusWebhookError:
		return true
	}
	return false
}

// ProcessorFamily identifies which third-party processor handles a job
type ProcessorFamily string

const (
	ProcessorSpeech     ProcessorFamily = "speech"
	ProcessorMedia      ProcessorFamily = "media"
	ProcessorGenerative ProcessorFamily = "generative"
)

// ProcessorFor maps a job type to the processor family that executes it.
func ProcessorFor(t JobType) ProcessorFamily {
	switch t {
	case JobTypeVoiceover:
		return ProcessorSpeech
	case JobTypeCombine, JobTypeConcatenate:
		return ProcessorMedia
	default:
		return ProcessorGenerative
	}
}

// EntityKind discriminates the targets a job writes its output into
type EntityKind string

const (
	EntitySegment EntityKind = "segment"
	EntityVideo   EntityKind = "video"
)

// EntityRef is a weak pointer to the segment or video a job's output belongs
// to. Resolved from the job's request context, never owned by the job.
type EntityRef struct {
	ID   string     `json:"id"`
	Kind EntityKind `json:"kind"`
}

// RequestContext records what was requested at dispatch time. Some processors
// never echo back enough information to resolve the target entity, so this is
// the authoritative record.
type RequestContext struct {
	Entity    EntityRef         `json:"entity"`
	Operation string            `json:"operation"`
	Params    map[string]string `json:"params,omitempty"`
}

// ParseRequestContext parses a serialized request context strictly. A parse
// failure is a recorded anomaly, not a silently swallowed one.
func ParseRequestContext(raw string) (*RequestContext, error) {
	if raw == "" {
		return nil, fmt.Errorf("request context is empty")
	}
	var rc RequestContext
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rc); err != nil {
		return nil, fmt.Errorf("failed to parse request context: %w", err)
	}
	return &rc, nil
}

// NotePendingEntityWrite flags a terminal job whose entity update has not
// landed yet, so a sweep pass or a redelivery of the same event can retry
// the write without re-dispatching the external work.
const NotePendingEntityWrite = "entity_write_pending"

// Job is the durable record of one unit of outsourced asynchronous work
type Job struct {
	ID             string    `json:"id"`
	Type           JobType   `json:"type"`
	Status         JobStatus `json:"status"`
	ExternalTaskID string    `json:"externalTaskId,omitempty"`
	CallbackURL    string    `json:"callbackUrl,omitempty"`
	RequestContext string    `json:"requestContext,omitempty"` // serialized RequestContext
	OutputURL      string    `json:"outputUrl,omitempty"`
	ErrorDetail    string    `json:"errorDetail,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Processor returns the processor family responsible for this job.
func (j *Job) Processor() ProcessorFamily {
	return ProcessorFor(j.Type)
}

// Context parses the job's serialized request context.
func (j *Job) Context() (*RequestContext, error) {
	return ParseRequestContext(j.RequestContext)
}

// Age returns how long ago the job was created.
func (j *Job) Age(now time.Time) time.Duration {
	return now.Sub(j.CreatedAt)
}

// HasPendingEntityWrite reports whether the job's entity update still needs
// to be retried.
func (j *Job) HasPendingEntityWrite() bool {
	return strings.Contains(j.Notes, NotePendingEntityWrite)
}
