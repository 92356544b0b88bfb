package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/storyreel/api/internal/config"
	"github.com/storyreel/api/internal/model"
)

// MediaClient submits composition and concatenation tasks to the media
// processor
type MediaClient struct {
	baseClient
	artifactURL string
}

// NewMediaClient creates a new media composition client
func NewMediaClient(cfg *config.ProcessorConfig, guard *Guard) *MediaClient {
	return &MediaClient{
		baseClient:  newBaseClient(cfg.BaseURL, cfg.APIKey, "[Media API]", secondsToDuration(cfg.Timeout), guard),
		artifactURL: strings.TrimRight(cfg.ArtifactURL, "/"),
	}
}

// Family returns the processor family this client serves.
func (c *MediaClient) Family() model.ProcessorFamily {
	return model.ProcessorMedia
}

// Submit requests a compose (audio over image/video) or concatenate run.
// req.Params["inputs"] carries a comma-separated list of source URLs.
func (c *MediaClient) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	payload := map[string]interface{}{
		"operation":    req.Operation,
		"inputs":       strings.Split(req.Params["inputs"], ","),
		"callback_url": req.CallbackURL,
	}
	var result SubmitResponse
	if err := c.post(ctx, "/v1/media/compose", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTaskStatus retrieves the status of a composition task
func (c *MediaClient) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	var result TaskStatus
	if err := c.get(ctx, fmt.Sprintf("/v1/media/tasks/%s", taskID), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ArtifactURL returns where finished compositions land. The processor names
// outputs {task}_output_0.mp4 at the CDN root.
func (c *MediaClient) ArtifactURL(taskID string) string {
	if taskID == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s_output_0.mp4", c.artifactURL, taskID)
}

// IsConfigured returns true if the client has valid configuration
func (c *MediaClient) IsConfigured() bool {
	return c.apiKey != ""
}
