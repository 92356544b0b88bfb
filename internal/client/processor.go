package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/internal/resilience"
	"github.com/storyreel/api/pkg/logger"
)

// SubmitRequest carries everything a processor needs to accept a task. The
// callback URL embeds the job id and operation tag; it is the only channel
// guaranteed to echo the job id back.
type SubmitRequest struct {
	Operation   string            `json:"operation"`
	CallbackURL string            `json:"callback_url"`
	Params      map[string]string `json:"params,omitempty"`
}

// SubmitResponse is the processor's acknowledgement of a submission.
type SubmitResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// TaskStatus is the processor's view of a running task, as reported by its
// status endpoint.
type TaskStatus struct {
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
	OutputURL string `json:"output_url,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Completed reports whether the processor considers the task finished.
func (t *TaskStatus) Completed() bool {
	switch strings.ToLower(t.Status) {
	case "completed", "success", "succeeded", "done":
		return true
	}
	return false
}

// Failed reports whether the processor considers the task failed.
func (t *TaskStatus) Failed() bool {
	switch strings.ToLower(t.Status) {
	case "failed", "error", "cancelled":
		return true
	}
	return false
}

// ProcessorClient is the submission-side interface onto one third-party
// processor family.
type ProcessorClient interface {
	Family() model.ProcessorFamily
	Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error)
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	// ArtifactURL returns the deterministic location the processor publishes
	// a finished task's output to. Used for webhook-free recovery.
	ArtifactURL(taskID string) string
	IsConfigured() bool
}

// Guard bundles the resilience primitives applied around every processor
// network call: sliding-window rate limit, then circuit breaker, then
// retry with backoff inside the breaker.
type Guard struct {
	Retry   resilience.RetryPolicy
	Breaker *resilience.CircuitBreaker
	Limiter *resilience.RateLimiter
}

// NewGuard builds one processor's call guard from config values.
func NewGuard(retry resilience.RetryPolicy, breakerThreshold int, breakerCooldown time.Duration, rateLimit int, rateWindow time.Duration) *Guard {
	return &Guard{
		Retry:   retry,
		Breaker: resilience.NewCircuitBreaker(breakerThreshold, breakerCooldown),
		Limiter: resilience.NewRateLimiter(rateLimit, rateWindow),
	}
}

// Do runs fn under the guard.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if g == nil {
		return fn(ctx)
	}
	if g.Limiter != nil {
		if err := g.Limiter.Wait(ctx); err != nil {
			return err
		}
	}
	call := func(ctx context.Context) error {
		if g.Retry.MaxAttempts > 0 {
			return g.Retry.Do(ctx, fn)
		}
		return fn(ctx)
	}
	if g.Breaker != nil {
		return g.Breaker.Execute(ctx, call)
	}
	return call(ctx)
}

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

// baseClient carries the HTTP plumbing shared by the processor clients.
type baseClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	tag        string
	guard      *Guard
}

func newBaseClient(baseURL, apiKey, tag string, timeout time.Duration, guard *Guard) baseClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return baseClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		tag:        tag,
		guard:      guard,
	}
}

// post sends a POST request with JSON body under the call guard
func (c *baseClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	return c.guard.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		return c.doRequest(req, result)
	})
}

// get sends a GET request and parses the JSON response under the call guard
func (c *baseClient) get(ctx context.Context, endpoint string, result interface{}) error {
	return c.guard.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		return c.doRequest(req, result)
	})
}

func (c *baseClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	logger.Debugf("%s → %s %s", c.tag, req.Method, req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warnf("%s ✗ %s %s — request failed: %v", c.tag, req.Method, req.URL.String(), err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	logger.Debugf("%s ← %d %s %s", c.tag, resp.StatusCode, req.Method, req.URL.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s error (status %d): %s", c.tag, resp.StatusCode, string(respBody))
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}
