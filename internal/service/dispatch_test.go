package service

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/internal/registry"
)

func TestOperationFor(t *testing.T) {
	assert.Equal(t, "add_music", OperationFor(model.JobTypeMusic))
	assert.Equal(t, "voiceover", OperationFor(model.JobTypeVoiceover))
	assert.Equal(t, "concatenate", OperationFor(model.JobTypeConcatenate))
}

func TestSubmitSuccess(t *testing.T) {
	store := registry.NewMemoryStore()
	hub := &recordingHub{}
	speech := &fakeProcessor{
		family:     model.ProcessorSpeech,
		submitResp: &client.SubmitResponse{TaskID: "task-9", Status: "queued"},
	}
	d := NewDispatcher(store, map[model.ProcessorFamily]client.ProcessorClient{
		model.ProcessorSpeech: speech,
	}, "https://api.storyreel.io", hub)

	job, err := d.Submit(context.Background(), model.JobTypeVoiceover,
		model.EntityRef{ID: "seg-1", Kind: model.EntitySegment},
		map[string]string{"text": "hello"})
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusProcessing, job.Status)
	assert.Equal(t, "task-9", job.ExternalTaskID)

	// Submission carried the callback URL with the correlation channel
	require.Len(t, speech.submitted, 1)
	u, err := url.Parse(speech.submitted[0].CallbackURL)
	require.NoError(t, err)
	assert.Equal(t, "/webhooks/speech", u.Path)
	assert.Equal(t, job.ID, u.Query().Get("job_id"))
	assert.Equal(t, "voiceover", u.Query().Get("operation"))
	assert.Equal(t, "seg-1", u.Query().Get("target_id"))

	// The durable record round-trips with its request context intact
	stored, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	rc, err := stored.Context()
	require.NoError(t, err)
	assert.Equal(t, "seg-1", rc.Entity.ID)
	assert.Equal(t, "voiceover", rc.Operation)
	assert.Equal(t, "hello", rc.Params["text"])

	assert.Equal(t, []model.JobStatus{model.JobStatusProcessing}, hub.statuses)
}

func TestSubmitMusicUsesAddMusicTag(t *testing.T) {
	store := registry.NewMemoryStore()
	gen := &fakeProcessor{
		family:     model.ProcessorGenerative,
		submitResp: &client.SubmitResponse{TaskID: "task-1"},
	}
	d := NewDispatcher(store, map[model.ProcessorFamily]client.ProcessorClient{
		model.ProcessorGenerative: gen,
	}, "https://api.storyreel.io", nil)

	job, err := d.Submit(context.Background(), model.JobTypeMusic,
		model.EntityRef{ID: "vid-1", Kind: model.EntityVideo}, nil)
	require.NoError(t, err)

	u, err := url.Parse(job.CallbackURL)
	require.NoError(t, err)
	assert.Equal(t, "add_music", u.Query().Get("operation"))
}

func TestSubmitFailureMarksJobFailed(t *testing.T) {
	store := registry.NewMemoryStore()
	hub := &recordingHub{}
	speech := &fakeProcessor{
		family:    model.ProcessorSpeech,
		submitErr: errors.New("503 service unavailable"),
	}
	d := NewDispatcher(store, map[model.ProcessorFamily]client.ProcessorClient{
		model.ProcessorSpeech: speech,
	}, "https://api.storyreel.io", hub)

	job, err := d.Submit(context.Background(), model.JobTypeVoiceover,
		model.EntityRef{ID: "seg-1", Kind: model.EntitySegment}, nil)
	require.Error(t, err)
	require.NotNil(t, job)

	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorDetail, "503")

	// The failed record is durable for follow-up
	stored, serr := store.GetJob(context.Background(), job.ID)
	require.NoError(t, serr)
	assert.Equal(t, model.JobStatusFailed, stored.Status)
	assert.Len(t, hub.errors, 1)
}

func TestSubmitUnknownProcessor(t *testing.T) {
	d := NewDispatcher(registry.NewMemoryStore(), map[model.ProcessorFamily]client.ProcessorClient{}, "https://api.storyreel.io", nil)

	job, err := d.Submit(context.Background(), model.JobTypeVoiceover,
		model.EntityRef{ID: "seg-1", Kind: model.EntitySegment}, nil)
	assert.Error(t, err)
	assert.Nil(t, job)
}
