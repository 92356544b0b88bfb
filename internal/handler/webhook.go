package handler

import (
	"errors"
	"fmt"
	"net/url"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/internal/registry"
	"github.com/storyreel/api/internal/service"
	"github.com/storyreel/api/pkg/logger"
	"github.com/storyreel/api/pkg/response"
)

// WebhookHandler ingests completion notifications from the processors. One
// request per notification; everything is caught locally so a malformed
// delivery can never take the listener down.
type WebhookHandler struct {
	normalizer *service.Normalizer
	applier    *service.Applier
	store      registry.Store
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(normalizer *service.Normalizer, applier *service.Applier, store registry.Store) *WebhookHandler {
	return &WebhookHandler{
		normalizer: normalizer,
		applier:    applier,
		store:      store,
	}
}

// Handle processes POST /webhooks/:processor. Response codes communicate
// receipt, not job outcome: 200 for anything parsed and routed, 400 for an
// unparseable body or a missing job id, 404 for an unknown job, 500 only
// for unexpected internal faults.
func (h *WebhookHandler) Handle(c *fiber.Ctx) (err error) {
	family, ok := parseFamily(c.Params("processor"))
	if !ok {
		return response.NotFound(c, "Unknown processor")
	}

	body := append([]byte(nil), c.Body()...)
	query := url.Values{}
	for _, key := range []string{"job_id", "operation", "target_id"} {
		if v := c.Query(key); v != "" {
			query.Set(key, v)
		}
	}

	audit := &model.WebhookEvent{
		ID:         uuid.New().String(),
		Processor:  family,
		JobID:      query.Get("job_id"),
		Operation:  query.Get("operation"),
		RawBody:    string(body),
		ReceivedAt: time.Now(),
	}
	defer h.appendAudit(c, audit)

	// The outermost boundary: an unexpected fault must still produce a
	// structured 500 and a visibly distinct job status, never a dropped
	// connection.
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Webhook panic for %s: %v\n%s", family, r, debug.Stack())
			audit.Error = fmt.Sprintf("panic: %v", r)
			h.markWebhookError(c, audit.JobID, audit.Error)
			err = response.WebhookError(c, "Internal error while processing notification")
		}
	}()

	event, nerr := h.normalizer.Normalize(family, body, query)
	if nerr != nil {
		audit.Error = nerr.Error()
		switch {
		case errors.Is(nerr, service.ErrMalformedPayload):
			return response.ValidationError(c, "Notification body is not a JSON object", nil)
		case errors.Is(nerr, service.ErrNoJobID):
			return response.ValidationError(c, "Notification carries no resolvable job id", nil)
		default:
			return response.WebhookError(c, "Failed to normalize notification")
		}
	}
	audit.JobID = event.SourceJobID

	job, gerr := h.store.GetJob(c.Context(), event.SourceJobID)
	if gerr != nil {
		audit.Error = gerr.Error()
		if errors.Is(gerr, registry.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.WebhookError(c, "Failed to load job")
	}

	job, aerr := h.applier.Apply(c.Context(), job, event)
	if aerr != nil {
		logger.Errorf("Webhook apply failed for job %s: %v", event.SourceJobID, aerr)
		audit.Error = aerr.Error()
		h.markWebhookError(c, event.SourceJobID, aerr.Error())
		return response.WebhookError(c, "Failed to apply completion")
	}

	audit.Processed = true
	audit.Success = true
	return response.OK(c, model.WebhookAck{
		Received: true,
		JobID:    job.ID,
		Outcome:  event.Outcome,
	})
}

// markWebhookError flags the job with the webhook_error status so a fault in
// our own pipeline is never mistaken for a processor-reported failure. Best
// effort; terminal jobs are left alone.
func (h *WebhookHandler) markWebhookError(c *fiber.Ctx, jobID, detail string) {
	if jobID == "" {
		return
	}
	job, err := h.store.GetJob(c.Context(), jobID)
	if err != nil || job.Status.IsTerminal() {
		return
	}
	job.Status = model.JobStatusWebhookError
	job.ErrorDetail = detail
	if err := h.store.UpdateJob(c.Context(), job); err != nil {
		logger.Errorf("Failed to mark job %s as webhook_error: %v", jobID, err)
	}
}

func (h *WebhookHandler) appendAudit(c *fiber.Ctx, audit *model.WebhookEvent) {
	if err := h.store.Append(c.Context(), audit); err != nil {
		logger.Warnf("Failed to append webhook audit record: %v", err)
	}
}

func parseFamily(raw string) (model.ProcessorFamily, bool) {
	switch model.ProcessorFamily(raw) {
	case model.ProcessorSpeech, model.ProcessorMedia, model.ProcessorGenerative:
		return model.ProcessorFamily(raw), true
	}
	return "", false
}
