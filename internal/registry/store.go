package registry

import (
	"context"
	"errors"

	"github.com/storyreel/api/internal/model"
)

// ErrNotFound is returned when a record id does not exist in the registry.
var ErrNotFound = errors.New("record not found")

// JobStore is the narrow interface the engine has onto the job registry:
// create, get and update by id, plus a simple status filter for the sweeper.
// No transactions, no joins.
type JobStore interface {
	CreateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	UpdateJob(ctx context.Context, job *model.Job) error
	ListProcessing(ctx context.Context) ([]*model.Job, error)
	ListPendingEntityWrites(ctx context.Context) ([]*model.Job, error)
}

// EntityStore provides get/update-by-id access to the segment and video
// records that job outputs are written into.
type EntityStore interface {
	GetSegment(ctx context.Context, id string) (*model.Segment, error)
	UpdateSegment(ctx context.Context, seg *model.Segment) error
	GetVideo(ctx context.Context, id string) (*model.Video, error)
	UpdateVideo(ctx context.Context, vid *model.Video) error
}

// AuditLog records every inbound notification, append-only. Write failures
// must never block webhook processing; callers log and move on.
type AuditLog interface {
	Append(ctx context.Context, event *model.WebhookEvent) error
}

// Store bundles the three registry surfaces a fully wired engine needs.
type Store interface {
	JobStore
	EntityStore
	AuditLog
}
