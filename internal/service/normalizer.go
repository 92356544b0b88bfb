package service

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/storyreel/api/internal/model"
)

// ErrNoJobID is returned when neither the payload nor the callback query
// carries a resolvable job id. Such notifications are audit-logged only.
var ErrNoJobID = fmt.Errorf("notification carries no resolvable job id")

// ErrMalformedPayload is returned when the body cannot be parsed as a JSON
// object at all.
var ErrMalformedPayload = fmt.Errorf("payload is not a JSON object")

// Normalizer turns one processor family's idiosyncratic JSON notification
// into a canonical CompletionEvent. Each family's signal fields were
// discovered empirically and are non-orthogonal, so extraction runs a
// priority-ordered rule chain and stops at the first rule that yields a
// status.
type Normalizer struct{}

// NewNormalizer creates a Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize parses an arbitrary, partially-typed notification body. The
// query values come from the callback URL and are the fallback channel for
// the job id. Returns ErrMalformedPayload or ErrNoJobID when the
// notification cannot be handed to the applier at all.
func (n *Normalizer) Normalize(family model.ProcessorFamily, body []byte, query url.Values) (*model.CompletionEvent, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil || payload == nil {
		return nil, ErrMalformedPayload
	}

	jobID := resolveJobID(payload, query)
	if jobID == "" {
		return nil, ErrNoJobID
	}

	// The generative processor nests completion signals one level under a
	// "data" object; the same rule chain applies to the inner value.
	signals := payload
	if family == model.ProcessorGenerative {
		if data, ok := payload["data"].(map[string]interface{}); ok {
			signals = data
		}
	}

	event := n.extract(family, signals)
	event.SourceJobID = jobID
	if event.Outcome == model.OutcomeIndeterminate {
		event.PayloadKeys = topLevelKeys(payload)
	}
	return event, nil
}

// extract applies the priority rule chain to the signal-bearing object.
func (n *Normalizer) extract(family model.ProcessorFamily, signals map[string]interface{}) *model.CompletionEvent {
	// Rule 1: a numeric response code field wins over everything else.
	if code, ok := numericField(signals, "code"); ok {
		switch {
		case code == 200:
			return &model.CompletionEvent{
				Outcome:   model.OutcomeCompleted,
				OutputURL: outputFromResponse(signals["response"]),
			}
		case code >= 400:
			return &model.CompletionEvent{
				Outcome:      model.OutcomeFailed,
				ErrorMessage: errorFromResponse(signals["response"]),
			}
		}
	}

	// Rule 2: a generic status field, case-insensitive.
	status, statusPresent := stringField(signals, "status")
	if statusPresent {
		switch strings.ToLower(status) {
		case "completed", "success":
			return &model.CompletionEvent{
				Outcome:   model.OutcomeCompleted,
				OutputURL: rootOutputURL(family, signals),
			}
		case "failed", "error":
			return &model.CompletionEvent{
				Outcome:      model.OutcomeFailed,
				ErrorMessage: firstString(signals, "error", "message", "error_details"),
			}
		}
	}

	// An explicit output URL is authoritative over a null or absent status
	// field; some processors report success only by publishing the location.
	// An unmapped non-empty status ("queued", "processing") suppresses this.
	if !statusPresent {
		if out := rootOutputURL(family, signals); out != "" {
			return &model.CompletionEvent{
				Outcome:   model.OutcomeCompleted,
				OutputURL: out,
			}
		}
	}

	// Rule 3: free-text message, lowest priority.
	if msg, ok := stringField(signals, "message"); ok {
		lower := strings.ToLower(msg)
		switch {
		case strings.Contains(lower, "success") || strings.Contains(lower, "complete"):
			return &model.CompletionEvent{
				Outcome:   model.OutcomeCompleted,
				OutputURL: rootOutputURL(family, signals),
			}
		case strings.Contains(lower, "error") || strings.Contains(lower, "fail"):
			return &model.CompletionEvent{
				Outcome:      model.OutcomeFailed,
				ErrorMessage: msg,
			}
		}
	}

	return &model.CompletionEvent{Outcome: model.OutcomeIndeterminate}
}

// resolveJobID trusts an id field in the payload first, then falls back to
// the job_id query parameter on the callback URL. The fallback exists
// because some processor operations never echo the id.
func resolveJobID(payload map[string]interface{}, query url.Values) string {
	if id := firstString(payload, "id", "job_id"); id != "" {
		return id
	}
	if data, ok := payload["data"].(map[string]interface{}); ok {
		if id := firstString(data, "id", "job_id"); id != "" {
			return id
		}
	}
	return query.Get("job_id")
}

// outputFromResponse inspects the nested "response" value of a rule-1
// payload for an output location.
func outputFromResponse(response interface{}) string {
	switch v := response.(type) {
	case string:
		return v
	case map[string]interface{}:
		if outputs, ok := v["outputs"].([]interface{}); ok && len(outputs) > 0 {
			if first, ok := outputs[0].(map[string]interface{}); ok {
				if u := firstString(first, "url"); u != "" {
					return u
				}
			}
		}
		return firstString(v, "url", "output_url", "text_url", "file_url")
	}
	return ""
}

// errorFromResponse inspects the nested "response" value of a failed rule-1
// payload for a diagnostic.
func errorFromResponse(response interface{}) string {
	switch v := response.(type) {
	case string:
		return v
	case map[string]interface{}:
		return firstString(v, "error", "message")
	}
	return ""
}

// rootOutputURL reads the flat output fields at the signal root. For the
// generative family it special-cases the list-of-generated-works shape,
// taking the first work's primary media resource and preferring a
// watermark-free variant when both exist.
func rootOutputURL(family model.ProcessorFamily, signals map[string]interface{}) string {
	if family == model.ProcessorGenerative {
		if works, ok := signals["works"].([]interface{}); ok && len(works) > 0 {
			if first, ok := works[0].(map[string]interface{}); ok {
				if res, ok := first["resource"].(map[string]interface{}); ok {
					if u := firstString(res, "resource_without_watermark", "resourceWithoutWatermark"); u != "" {
						return u
					}
					if u := firstString(res, "resource", "url"); u != "" {
						return u
					}
				}
				if u := firstString(first, "url", "video_url", "audio_url"); u != "" {
					return u
				}
			}
		}
		if u := firstString(signals, "video_url", "audio_url", "url"); u != "" {
			return u
		}
	}
	return firstString(signals, "output_url", "file_url", "url")
}

// numericField reads a field that should be a number but may arrive as a
// float, an integer or a numeric string.
func numericField(m map[string]interface{}, key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n, true
		}
	}
	return 0, false
}

// stringField reads a field as a non-empty string. Null and missing are
// indistinguishable on purpose.
func stringField(m map[string]interface{}, key string) (string, bool) {
	if s, ok := m[key].(string); ok && s != "" {
		return s, true
	}
	return "", false
}

// firstString returns the first of the named fields that holds a non-empty
// string. Numbers are stringified since some processors send ids as numbers.
func firstString(m map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func topLevelKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
