package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyreel/api/internal/model"
)

func TestMemoryStoreJobLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	job := &model.Job{ID: "j1", Type: model.JobTypeVoiceover, Status: model.JobStatusPending, CreatedAt: time.Now()}
	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, got.Status)

	// Mutating the returned copy does not touch the stored record
	got.Status = model.JobStatusCompleted
	again, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, again.Status)

	job.Status = model.JobStatusProcessing
	require.NoError(t, s.UpdateJob(ctx, job))

	processing, err := s.ListProcessing(ctx)
	require.NoError(t, err)
	require.Len(t, processing, 1)
	assert.Equal(t, "j1", processing[0].ID)
}

func TestMemoryStoreListProcessingFiltersTerminal(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, j := range []*model.Job{
		{ID: "a", Status: model.JobStatusProcessing},
		{ID: "b", Status: model.JobStatusCompleted},
		{ID: "c", Status: model.JobStatusFailed},
		{ID: "d", Status: model.JobStatusPending},
	} {
		require.NoError(t, s.CreateJob(ctx, j))
	}

	processing, err := s.ListProcessing(ctx)
	require.NoError(t, err)
	require.Len(t, processing, 1)
	assert.Equal(t, "a", processing[0].ID)
}

func TestMemoryStoreEntities(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.UpdateSegment(ctx, &model.Segment{ID: "seg-1", Text: "hello"}))
	seg, err := s.GetSegment(ctx, "seg-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", seg.Text)

	require.NoError(t, s.UpdateVideo(ctx, &model.Video{ID: "vid-1", Title: "story"}))
	vid, err := s.GetVideo(ctx, "vid-1")
	require.NoError(t, err)
	assert.Equal(t, "story", vid.Title)

	_, err = s.GetSegment(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreAudit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, &model.WebhookEvent{ID: "e1", Processor: model.ProcessorSpeech}))
	require.NoError(t, s.Append(ctx, &model.WebhookEvent{ID: "e2", Processor: model.ProcessorMedia}))

	events := s.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "e1", events[0].ID)
}

func TestMemoryStoreListPendingEntityWrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateJob(ctx, &model.Job{ID: "a", Status: model.JobStatusCompleted, Notes: model.NotePendingEntityWrite}))
	require.NoError(t, s.CreateJob(ctx, &model.Job{ID: "b", Status: model.JobStatusCompleted}))

	pending, err := s.ListPendingEntityWrites(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a", pending[0].ID)
}
