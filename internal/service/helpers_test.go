package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/model"
)

// fakeProcessor is a scriptable ProcessorClient for service tests.
type fakeProcessor struct {
	family       model.ProcessorFamily
	artifactBase string

	submitResp *client.SubmitResponse
	submitErr  error
	status     *client.TaskStatus
	statusErr  error

	mu        sync.Mutex
	submitted []*client.SubmitRequest
	polled    []string
}

func (f *fakeProcessor) Family() model.ProcessorFamily { return f.family }

func (f *fakeProcessor) Submit(_ context.Context, req *client.SubmitRequest) (*client.SubmitResponse, error) {
	f.mu.Lock()
	f.submitted = append(f.submitted, req)
	f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.submitResp, nil
}

func (f *fakeProcessor) GetTaskStatus(_ context.Context, taskID string) (*client.TaskStatus, error) {
	f.mu.Lock()
	f.polled = append(f.polled, taskID)
	f.mu.Unlock()
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.status, nil
}

func (f *fakeProcessor) ArtifactURL(taskID string) string {
	if f.artifactBase == "" || taskID == "" {
		return ""
	}
	return f.artifactBase + "/" + taskID + ".mp4"
}

func (f *fakeProcessor) IsConfigured() bool { return true }

// fakeProber resolves artifact URLs against a fixed existence map.
type fakeProber struct {
	exists map[string]bool
	err    error
}

func (p *fakeProber) Exists(_ context.Context, url string) (bool, error) {
	if p.err != nil {
		return false, p.err
	}
	return p.exists[url], nil
}

// recordingHub captures broadcasts for assertion.
type recordingHub struct {
	mu        sync.Mutex
	statuses  []model.JobStatus
	completes []string
	errors    []string
}

func (h *recordingHub) BroadcastStatus(_ string, status model.JobStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses = append(h.statuses, status)
}

func (h *recordingHub) BroadcastComplete(_ string, outputURL string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.completes = append(h.completes, outputURL)
}

func (h *recordingHub) BroadcastError(_ string, _, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, message)
}

func mustContext(t *testing.T, kind model.EntityKind, entityID, operation string) string {
	t.Helper()
	raw, err := json.Marshal(model.RequestContext{
		Entity:    model.EntityRef{ID: entityID, Kind: kind},
		Operation: operation,
	})
	require.NoError(t, err)
	return string(raw)
}
