package service

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyreel/api/internal/model"
)

func normalize(t *testing.T, family model.ProcessorFamily, body string, query url.Values) *model.CompletionEvent {
	t.Helper()
	if query == nil {
		query = url.Values{}
	}
	event, err := NewNormalizer().Normalize(family, []byte(body), query)
	require.NoError(t, err)
	return event
}

func TestNormalizeMalformedBody(t *testing.T) {
	n := NewNormalizer()

	for _, body := range []string{"not json", "[1,2,3]", `"just a string"`, "null"} {
		_, err := n.Normalize(model.ProcessorSpeech, []byte(body), url.Values{})
		assert.ErrorIs(t, err, ErrMalformedPayload, "body %q", body)
	}
}

func TestNormalizeNoJobID(t *testing.T) {
	n := NewNormalizer()

	_, err := n.Normalize(model.ProcessorSpeech, []byte(`{"status":"completed"}`), url.Values{})
	assert.ErrorIs(t, err, ErrNoJobID)
}

func TestNormalizeJobIDFromPayload(t *testing.T) {
	event := normalize(t, model.ProcessorSpeech, `{"id":"job-1","status":"completed","url":"https://cdn/x.mp3"}`, nil)

	assert.Equal(t, "job-1", event.SourceJobID)
	assert.Equal(t, model.OutcomeCompleted, event.Outcome)
	assert.Equal(t, "https://cdn/x.mp3", event.OutputURL)
}

func TestNormalizeJobIDFallsBackToQuery(t *testing.T) {
	// Some operations never echo the id; the callback query is the channel
	query := url.Values{"job_id": {"J123"}}
	event := normalize(t, model.ProcessorMedia, `{"id":null,"status":"completed","output_url":"https://cdn/out.mp4"}`, query)

	assert.Equal(t, "J123", event.SourceJobID)
	assert.Equal(t, model.OutcomeCompleted, event.Outcome)
}

func TestNormalizeNumericJobID(t *testing.T) {
	event := normalize(t, model.ProcessorMedia, `{"id":42,"status":"completed","output_url":"https://cdn/out.mp4"}`, nil)

	assert.Equal(t, "42", event.SourceJobID)
}

func TestNormalizeResponseCodeSuccess(t *testing.T) {
	body := `{"job_id":"j1","code":200,"response":{"outputs":[{"url":"https://cdn/result.mp4"}]}}`
	event := normalize(t, model.ProcessorMedia, body, nil)

	assert.Equal(t, model.OutcomeCompleted, event.Outcome)
	assert.Equal(t, "https://cdn/result.mp4", event.OutputURL)
}

func TestNormalizeResponseCodeBareStringResponse(t *testing.T) {
	body := `{"job_id":"j1","code":200,"response":"https://cdn/direct.mp3"}`
	event := normalize(t, model.ProcessorSpeech, body, nil)

	assert.Equal(t, model.OutcomeCompleted, event.Outcome)
	assert.Equal(t, "https://cdn/direct.mp3", event.OutputURL)
}

func TestNormalizeResponseCodeFailure(t *testing.T) {
	body := `{"job_id":"j1","code":500,"response":{"error":"render crashed"}}`
	event := normalize(t, model.ProcessorMedia, body, nil)

	assert.Equal(t, model.OutcomeFailed, event.Outcome)
	assert.Equal(t, "render crashed", event.ErrorMessage)
}

func TestNormalizeCodeWinsOverConflictingStatus(t *testing.T) {
	// A numeric code is deliberate; a stale status string next to it is not
	body := `{"job_id":"j1","code":200,"status":"failed","response":"https://cdn/out.mp4"}`
	event := normalize(t, model.ProcessorMedia, body, nil)

	assert.Equal(t, model.OutcomeCompleted, event.Outcome)
}

func TestNormalizeCodeAsNumericString(t *testing.T) {
	body := `{"job_id":"j1","code":"200","response":"https://cdn/out.mp4"}`
	event := normalize(t, model.ProcessorMedia, body, nil)

	assert.Equal(t, model.OutcomeCompleted, event.Outcome)
}

func TestNormalizeStatusField(t *testing.T) {
	cases := []struct {
		body    string
		outcome model.Outcome
	}{
		{`{"id":"j1","status":"completed","output_url":"https://cdn/a.mp4"}`, model.OutcomeCompleted},
		{`{"id":"j1","status":"SUCCESS","output_url":"https://cdn/a.mp4"}`, model.OutcomeCompleted},
		{`{"id":"j1","status":"failed","error":"oom"}`, model.OutcomeFailed},
		{`{"id":"j1","status":"Error","message":"bad input"}`, model.OutcomeFailed},
	}

	for _, tc := range cases {
		event := normalize(t, model.ProcessorMedia, tc.body, nil)
		assert.Equal(t, tc.outcome, event.Outcome, "body %s", tc.body)
	}
}

func TestNormalizeOutputURLOverNullStatus(t *testing.T) {
	// Publishing the location is the only success signal some processors send
	body := `{"id":"j1","status":null,"output_url":"https://cdn/a.mp4"}`
	event := normalize(t, model.ProcessorMedia, body, nil)

	assert.Equal(t, model.OutcomeCompleted, event.Outcome)
	assert.Equal(t, "https://cdn/a.mp4", event.OutputURL)
}

func TestNormalizeUnmappedStatusSuppressesURLInference(t *testing.T) {
	body := `{"id":"j1","status":"processing","output_url":"https://cdn/a.mp4"}`
	event := normalize(t, model.ProcessorMedia, body, nil)

	assert.Equal(t, model.OutcomeIndeterminate, event.Outcome)
}

func TestNormalizeMessageSubstring(t *testing.T) {
	event := normalize(t, model.ProcessorSpeech, `{"id":"j1","message":"Task completed successfully","url":"https://cdn/v.mp3"}`, nil)
	assert.Equal(t, model.OutcomeCompleted, event.Outcome)
	assert.Equal(t, "https://cdn/v.mp3", event.OutputURL)

	event = normalize(t, model.ProcessorSpeech, `{"id":"j1","message":"internal error during synthesis"}`, nil)
	assert.Equal(t, model.OutcomeFailed, event.Outcome)
	assert.Equal(t, "internal error during synthesis", event.ErrorMessage)
}

func TestNormalizeGenerativeDataEnvelope(t *testing.T) {
	body := `{"data":{"id":"j9","status":"completed","video_url":"https://cdn/gen.mp4"}}`
	event := normalize(t, model.ProcessorGenerative, body, nil)

	assert.Equal(t, "j9", event.SourceJobID)
	assert.Equal(t, model.OutcomeCompleted, event.Outcome)
	assert.Equal(t, "https://cdn/gen.mp4", event.OutputURL)
}

func TestNormalizeGenerativeWorksPrefersWatermarkFree(t *testing.T) {
	body := `{"id":"j9","status":"completed","works":[{"resource":{"resource":"https://cdn/wm.mp4","resource_without_watermark":"https://cdn/clean.mp4"}}]}`
	event := normalize(t, model.ProcessorGenerative, body, nil)

	assert.Equal(t, model.OutcomeCompleted, event.Outcome)
	assert.Equal(t, "https://cdn/clean.mp4", event.OutputURL)
}

func TestNormalizeGenerativeWorksFallsBackToResource(t *testing.T) {
	body := `{"id":"j9","status":"completed","works":[{"resource":{"resource":"https://cdn/wm.mp4"}}]}`
	event := normalize(t, model.ProcessorGenerative, body, nil)

	assert.Equal(t, "https://cdn/wm.mp4", event.OutputURL)
}

func TestNormalizeIndeterminateRecordsPayloadKeys(t *testing.T) {
	body := `{"id":"j1","zeta":1,"alpha":true}`
	event := normalize(t, model.ProcessorMedia, body, nil)

	assert.Equal(t, model.OutcomeIndeterminate, event.Outcome)
	assert.Equal(t, []string{"alpha", "id", "zeta"}, event.PayloadKeys)
}
