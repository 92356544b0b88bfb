package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/storyreel/api/internal/config"
	"github.com/storyreel/api/internal/model"
)

// SpeechClient submits voiceover synthesis tasks to the speech processor
type SpeechClient struct {
	baseClient
	artifactURL string
}

// NewSpeechClient creates a new speech synthesis client
func NewSpeechClient(cfg *config.ProcessorConfig, guard *Guard) *SpeechClient {
	return &SpeechClient{
		baseClient:  newBaseClient(cfg.BaseURL, cfg.APIKey, "[Speech API]", secondsToDuration(cfg.Timeout), guard),
		artifactURL: strings.TrimRight(cfg.ArtifactURL, "/"),
	}
}

// Family returns the processor family this client serves.
func (c *SpeechClient) Family() model.ProcessorFamily {
	return model.ProcessorSpeech
}

// Submit requests synthesis of the text in req.Params["text"]. The processor
// acknowledges immediately and reports completion to the callback URL.
func (c *SpeechClient) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	payload := map[string]interface{}{
		"text":         req.Params["text"],
		"voice":        req.Params["voice"],
		"callback_url": req.CallbackURL,
	}
	var result SubmitResponse
	if err := c.post(ctx, "/v1/speech/synthesize", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTaskStatus retrieves the status of a synthesis task
func (c *SpeechClient) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	var result TaskStatus
	if err := c.get(ctx, fmt.Sprintf("/v1/speech/tasks/%s", taskID), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ArtifactURL returns where finished voiceovers land on the processor's CDN.
func (c *SpeechClient) ArtifactURL(taskID string) string {
	if taskID == "" {
		return ""
	}
	return fmt.Sprintf("%s/voiceover/%s.mp3", c.artifactURL, taskID)
}

// IsConfigured returns true if the client has valid configuration
func (c *SpeechClient) IsConfigured() bool {
	return c.apiKey != ""
}
