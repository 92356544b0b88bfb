package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/storyreel/api/internal/config"
	"github.com/storyreel/api/internal/model"
)

// GenerativeClient submits image, video and music generation tasks to the
// generative processor
type GenerativeClient struct {
	baseClient
	artifactURL string
}

// NewGenerativeClient creates a new generative media client
func NewGenerativeClient(cfg *config.ProcessorConfig, guard *Guard) *GenerativeClient {
	return &GenerativeClient{
		baseClient:  newBaseClient(cfg.BaseURL, cfg.APIKey, "[Generative API]", secondsToDuration(cfg.Timeout), guard),
		artifactURL: strings.TrimRight(cfg.ArtifactURL, "/"),
	}
}

// Family returns the processor family this client serves.
func (c *GenerativeClient) Family() model.ProcessorFamily {
	return model.ProcessorGenerative
}

// Submit requests a generation run. req.Params["mode"] selects image, video
// or music; "prompt" carries the generation prompt.
func (c *GenerativeClient) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	payload := map[string]interface{}{
		"mode":         req.Params["mode"],
		"prompt":       req.Params["prompt"],
		"callback_url": req.CallbackURL,
	}
	if src := req.Params["source_url"]; src != "" {
		payload["source_url"] = src
	}

	// The generative API wraps responses one level under "data"
	var envelope struct {
		Data SubmitResponse `json:"data"`
	}
	if err := c.post(ctx, "/v1/generate", payload, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

// GetTaskStatus retrieves the status of a generation task
func (c *GenerativeClient) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	var envelope struct {
		Data TaskStatus `json:"data"`
	}
	if err := c.get(ctx, fmt.Sprintf("/v1/generate/tasks/%s", taskID), &envelope); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

// ArtifactURL returns where finished generations land on the processor's CDN.
func (c *GenerativeClient) ArtifactURL(taskID string) string {
	if taskID == "" {
		return ""
	}
	return fmt.Sprintf("%s/generated/%s.mp4", c.artifactURL, taskID)
}

// IsConfigured returns true if the client has valid configuration
func (c *GenerativeClient) IsConfigured() bool {
	return c.apiKey != ""
}
