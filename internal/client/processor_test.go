package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyreel/api/internal/config"
	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/internal/resilience"
)

func testGuard() *Guard {
	return NewGuard(resilience.RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Millisecond}, 5, time.Minute, 100, time.Second)
}

func TestSpeechClientSubmit(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(SubmitResponse{TaskID: "task-1", Status: "queued"})
	}))
	defer srv.Close()

	c := NewSpeechClient(&config.ProcessorConfig{
		APIKey:      "key-1",
		BaseURL:     srv.URL,
		ArtifactURL: "https://cdn.speech",
	}, testGuard())

	resp, err := c.Submit(context.Background(), &SubmitRequest{
		Operation:   "voiceover",
		CallbackURL: "https://api/webhooks/speech?job_id=J1",
		Params:      map[string]string{"text": "hello", "voice": "narrator"},
	})
	require.NoError(t, err)

	assert.Equal(t, "task-1", resp.TaskID)
	assert.Equal(t, "/v1/speech/synthesize", gotPath)
	assert.Equal(t, "Bearer key-1", gotAuth)
	assert.Equal(t, "hello", gotBody["text"])
	assert.Equal(t, "narrator", gotBody["voice"])
	assert.Equal(t, "https://api/webhooks/speech?job_id=J1", gotBody["callback_url"])
}

func TestMediaClientSubmitSplitsInputs(t *testing.T) {
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(SubmitResponse{TaskID: "task-2"})
	}))
	defer srv.Close()

	c := NewMediaClient(&config.ProcessorConfig{APIKey: "k", BaseURL: srv.URL}, testGuard())

	_, err := c.Submit(context.Background(), &SubmitRequest{
		Operation: "concatenate",
		Params:    map[string]string{"inputs": "https://a.mp4,https://b.mp4"},
	})
	require.NoError(t, err)

	assert.Equal(t, "concatenate", gotBody["operation"])
	assert.Equal(t, []interface{}{"https://a.mp4", "https://b.mp4"}, gotBody["inputs"])
}

func TestGenerativeClientUnwrapsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Write([]byte(`{"data":{"task_id":"task-3","status":"queued"}}`))
			return
		}
		w.Write([]byte(`{"data":{"task_id":"task-3","status":"completed","output_url":"https://cdn/g.mp4"}}`))
	}))
	defer srv.Close()

	c := NewGenerativeClient(&config.ProcessorConfig{APIKey: "k", BaseURL: srv.URL}, testGuard())

	resp, err := c.Submit(context.Background(), &SubmitRequest{Params: map[string]string{"mode": "video", "prompt": "a forest"}})
	require.NoError(t, err)
	assert.Equal(t, "task-3", resp.TaskID)

	status, err := c.GetTaskStatus(context.Background(), "task-3")
	require.NoError(t, err)
	assert.True(t, status.Completed())
	assert.Equal(t, "https://cdn/g.mp4", status.OutputURL)
}

func TestClientRetriesUnderGuard(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(TaskStatus{TaskID: "task-1", Status: "running"})
	}))
	defer srv.Close()

	c := NewSpeechClient(&config.ProcessorConfig{APIKey: "k", BaseURL: srv.URL}, testGuard())

	status, err := c.GetTaskStatus(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClientNonRetryableAfterBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"broken"}`))
	}))
	defer srv.Close()

	c := NewSpeechClient(&config.ProcessorConfig{APIKey: "k", BaseURL: srv.URL}, testGuard())

	_, err := c.GetTaskStatus(context.Background(), "task-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestArtifactURLs(t *testing.T) {
	guard := testGuard()
	speech := NewSpeechClient(&config.ProcessorConfig{ArtifactURL: "https://cdn.speech/"}, guard)
	media := NewMediaClient(&config.ProcessorConfig{ArtifactURL: "https://cdn.media"}, guard)
	gen := NewGenerativeClient(&config.ProcessorConfig{ArtifactURL: "https://cdn.gen"}, guard)

	assert.Equal(t, "https://cdn.speech/voiceover/t1.mp3", speech.ArtifactURL("t1"))
	assert.Equal(t, "https://cdn.media/t1_output_0.mp4", media.ArtifactURL("t1"))
	assert.Equal(t, "https://cdn.gen/generated/t1.mp4", gen.ArtifactURL("t1"))

	assert.Empty(t, speech.ArtifactURL(""))
}

func TestGuardNilIsPassthrough(t *testing.T) {
	var g *Guard
	calls := 0
	err := g.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestProcessorFamilies(t *testing.T) {
	guard := testGuard()
	assert.Equal(t, model.ProcessorSpeech, NewSpeechClient(&config.ProcessorConfig{}, guard).Family())
	assert.Equal(t, model.ProcessorMedia, NewMediaClient(&config.ProcessorConfig{}, guard).Family())
	assert.Equal(t, model.ProcessorGenerative, NewGenerativeClient(&config.ProcessorConfig{}, guard).Family())
}
