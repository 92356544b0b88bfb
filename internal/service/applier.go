package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/internal/registry"
	"github.com/storyreel/api/pkg/logger"
)

// Broadcaster pushes job state transitions to live subscribers. Nil-safe on
// the applier side so tests and the sweeper can run without a hub.
type Broadcaster interface {
	BroadcastStatus(jobID string, status model.JobStatus)
	BroadcastComplete(jobID string, outputURL string)
	BroadcastError(jobID, code, message string)
}

// Applier is the single idempotent state-transition point for job
// completions. Both the webhook path and the reconciliation sweeper feed it;
// its terminal-state guard is what makes the two paths safe to race.
type Applier struct {
	store   registry.Store
	clients map[model.ProcessorFamily]client.ProcessorClient
	hub     Broadcaster
}

// NewApplier creates an applier over the given registry. The client map is
// used only for deterministic artifact-URL reconstruction; hub may be nil.
func NewApplier(store registry.Store, clients map[model.ProcessorFamily]client.ProcessorClient, hub Broadcaster) *Applier {
	return &Applier{
		store:   store,
		clients: clients,
		hub:     hub,
	}
}

// Apply decides the job's new status and the associated entity update for
// one completion event. Applying the same event twice, or a stale event
// after a terminal state, has no additional effect. Nothing here raises for
// a bad event; every failure mode downgrades to a recorded state.
func (a *Applier) Apply(ctx context.Context, job *model.Job, event *model.CompletionEvent) (*model.Job, error) {
	if job.Status.IsTerminal() {
		return a.replayTerminal(ctx, job, event)
	}

	switch event.Outcome {
	case model.OutcomeCompleted:
		return a.applyCompleted(ctx, job, event)
	case model.OutcomeFailed:
		return a.applyFailed(ctx, job, event)
	default:
		return a.quarantine(ctx, job, event)
	}
}

// replayTerminal handles duplicate and late deliveries. The only mutation
// allowed is retrying an entity write that failed on first application.
func (a *Applier) replayTerminal(ctx context.Context, job *model.Job, event *model.CompletionEvent) (*model.Job, error) {
	logger.Infof("Job %s already %s, ignoring duplicate %s event", job.ID, job.Status, event.Outcome)

	if job.Status == model.JobStatusCompleted &&
		event.Outcome == model.OutcomeCompleted &&
		job.HasPendingEntityWrite() &&
		job.OutputURL != "" {
		if err := a.updateEntity(ctx, job, job.OutputURL, ""); err != nil {
			logger.Warnf("Job %s entity write retry failed: %v", job.ID, err)
			return job, nil
		}
		job.Notes = strings.TrimSpace(strings.ReplaceAll(job.Notes, model.NotePendingEntityWrite, ""))
		if err := a.store.UpdateJob(ctx, job); err != nil {
			logger.Warnf("Job %s note cleanup failed: %v", job.ID, err)
		}
	}
	return job, nil
}

func (a *Applier) applyCompleted(ctx context.Context, job *model.Job, event *model.CompletionEvent) (*model.Job, error) {
	outputURL := event.OutputURL
	if outputURL == "" {
		outputURL = a.reconstructOutputURL(job)
	}
	if outputURL == "" {
		// No URL in the payload and no way to rebuild one; a stuck
		// "completed without output" job helps nobody, so downgrade.
		downgraded := &model.CompletionEvent{
			Outcome:      model.OutcomeFailed,
			ErrorMessage: fmt.Sprintf("completed notification carried no output URL and reconstruction failed (task %q)", job.ExternalTaskID),
			SourceJobID:  event.SourceJobID,
		}
		return a.applyFailed(ctx, job, downgraded)
	}

	rc, err := job.Context()
	if err != nil || !knownOperation(rc.Operation) {
		return a.quarantine(ctx, job, event)
	}

	job.Status = model.JobStatusCompleted
	job.OutputURL = outputURL
	job.ErrorDetail = ""

	entityErr := a.updateEntity(ctx, job, outputURL, "")
	if entityErr != nil {
		// The job transition is authoritative; the entity write is retried
		// on replay rather than blocking the completion.
		logger.Errorf("Job %s entity update failed: %v", job.ID, entityErr)
		job.Notes = appendNote(job.Notes, model.NotePendingEntityWrite)
	}

	if err := a.store.UpdateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist completed job %s: %w", job.ID, err)
	}

	logger.Infof("Job %s completed, output %s", job.ID, outputURL)
	if a.hub != nil {
		a.hub.BroadcastComplete(job.ID, outputURL)
	}
	return job, nil
}

func (a *Applier) applyFailed(ctx context.Context, job *model.Job, event *model.CompletionEvent) (*model.Job, error) {
	job.Status = model.JobStatusFailed
	job.ErrorDetail = event.ErrorMessage
	if job.ErrorDetail == "" {
		job.ErrorDetail = "processor reported failure without detail"
	}

	// Entity failure markers are best effort; an unresolvable entity leaves
	// the failure recorded on the job only.
	if err := a.updateEntity(ctx, job, "", job.ErrorDetail); err != nil {
		logger.Warnf("Job %s failure marker not applied to entity: %v", job.ID, err)
	}

	if err := a.store.UpdateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist failed job %s: %w", job.ID, err)
	}

	logger.Infof("Job %s failed: %s", job.ID, job.ErrorDetail)
	if a.hub != nil {
		a.hub.BroadcastError(job.ID, "JOB_FAILED", job.ErrorDetail)
	}
	return job, nil
}

// quarantine routes indeterminate events and unrecognized operation tags
// into the unknown state: terminal for automation, visibly distinct from
// failed so "we cannot tell" is never conflated with "we know it broke".
func (a *Applier) quarantine(ctx context.Context, job *model.Job, event *model.CompletionEvent) (*model.Job, error) {
	job.Status = model.JobStatusUnknown
	if len(event.PayloadKeys) > 0 {
		job.Notes = appendNote(job.Notes, "payload keys: "+strings.Join(event.PayloadKeys, ","))
	} else {
		job.Notes = appendNote(job.Notes, "unrecognized operation or outcome")
	}

	if err := a.store.UpdateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist quarantined job %s: %w", job.ID, err)
	}

	logger.Warnf("Job %s quarantined for manual triage (%s)", job.ID, job.Notes)
	if a.hub != nil {
		a.hub.BroadcastStatus(job.ID, model.JobStatusUnknown)
	}
	return job, nil
}

// updateEntity resolves the job's operation tag to its entity-update recipe.
// outputURL set means success recipe; errMsg set means failure marker.
func (a *Applier) updateEntity(ctx context.Context, job *model.Job, outputURL, errMsg string) error {
	rc, err := job.Context()
	if err != nil {
		return fmt.Errorf("cannot resolve entity: %w", err)
	}

	switch rc.Entity.Kind {
	case model.EntitySegment:
		return a.updateSegment(ctx, rc, outputURL, errMsg)
	case model.EntityVideo:
		return a.updateVideo(ctx, rc, outputURL, errMsg)
	default:
		return fmt.Errorf("unknown entity kind %q", rc.Entity.Kind)
	}
}

func (a *Applier) updateSegment(ctx context.Context, rc *model.RequestContext, outputURL, errMsg string) error {
	seg, err := a.store.GetSegment(ctx, rc.Entity.ID)
	if err != nil {
		return fmt.Errorf("failed to load segment %s: %w", rc.Entity.ID, err)
	}

	if errMsg != "" {
		seg.Error = errMsg
		switch rc.Operation {
		case "voiceover":
			seg.Status = model.SegmentStatusVoiceoverFailed
		case "ai_image":
			seg.Status = model.SegmentStatusImageFailed
		case "video_generation":
			seg.Status = model.SegmentStatusVideoFailed
		case "combine":
			seg.Status = model.SegmentStatusCombineFailed
		}
		return a.store.UpdateSegment(ctx, seg)
	}

	switch rc.Operation {
	case "voiceover":
		seg.AudioURL = outputURL
		seg.Status = model.SegmentStatusVoiceoverReady
	case "ai_image":
		seg.ImageURL = outputURL
		seg.Status = model.SegmentStatusImageReady
	case "video_generation":
		seg.VideoURL = outputURL
		seg.Status = model.SegmentStatusVideoReady
	case "combine":
		seg.CombinedURL = outputURL
		seg.Status = model.SegmentStatusCombined
	default:
		return fmt.Errorf("operation %q does not target segments", rc.Operation)
	}
	seg.Error = ""
	return a.store.UpdateSegment(ctx, seg)
}

func (a *Applier) updateVideo(ctx context.Context, rc *model.RequestContext, outputURL, errMsg string) error {
	vid, err := a.store.GetVideo(ctx, rc.Entity.ID)
	if err != nil {
		return fmt.Errorf("failed to load video %s: %w", rc.Entity.ID, err)
	}

	if errMsg != "" {
		vid.Error = errMsg
		switch rc.Operation {
		case "concatenate":
			vid.Status = model.VideoStatusConcatFailed
		case "add_music", "music":
			vid.Status = model.VideoStatusMusicFailed
		case "final":
			vid.Status = model.VideoStatusFinalFailed
		}
		return a.store.UpdateVideo(ctx, vid)
	}

	switch rc.Operation {
	case "concatenate":
		vid.ConcatenatedURL = outputURL
		vid.Status = model.VideoStatusConcatenated
	case "add_music", "music":
		vid.MusicURL = outputURL
		vid.Status = model.VideoStatusScored
	case "final":
		vid.FinalURL = outputURL
		vid.Status = model.VideoStatusFinal
	default:
		return fmt.Errorf("operation %q does not target videos", rc.Operation)
	}
	vid.Error = ""
	return a.store.UpdateVideo(ctx, vid)
}

// reconstructOutputURL rebuilds the deterministic artifact location from the
// processor's naming convention when a completed notification arrives
// without one.
func (a *Applier) reconstructOutputURL(job *model.Job) string {
	if job.ExternalTaskID == "" {
		return ""
	}
	c, ok := a.clients[job.Processor()]
	if !ok {
		return ""
	}
	return c.ArtifactURL(job.ExternalTaskID)
}

func knownOperation(op string) bool {
	switch op {
	case "voiceover", "ai_image", "video_generation", "combine",
		"concatenate", "add_music", "music", "final":
		return true
	}
	return false
}

func appendNote(notes, note string) string {
	if notes == "" {
		return note
	}
	return notes + "; " + note
}
