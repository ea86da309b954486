package summarizer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mail-summary-service/pkg/circuitbreaker"
	"mail-summary-service/pkg/trace"
	"mail-summary-service/pkg/util"
)

const twoEntries = `[{"sender":"alice@example.com","subject":"Invoice","summary":["Pay by Friday"]},` +
	`{"sender":"bob@example.com","subject":"Lunch","summary":["Noon","Bring badge"]}]`

func geminiBody(t *testing.T, text string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"candidates": []any{
			map[string]any{
				"content":      map[string]any{"role": "model", "parts": []any{map[string]any{"text": text}}},
				"finishReason": "STOP",
			},
		},
	})
	require.NoError(t, err)
	return b
}

func newTestClient(t *testing.T, url string) *GeminiClient {
	t.Helper()
	return NewGeminiClient(Config{APIKey: "test-key", BaseURL: url, Model: "gemini-test"}, zap.NewNop())
}

func TestGenerate_NotConfigured(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := NewGeminiClient(Config{BaseURL: srv.URL}, zap.NewNop())
	_, err := c.Generate(context.Background(), "prompt")

	require.ErrorIs(t, err, ErrNotConfigured)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
	assert.Equal(t, "not_configured", util.ClassifyError(err))
	assert.Zero(t, hits.Load(), "unconfigured client must not call the service")
}

func TestGenerate_SendsStructuredOutputRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		assert.Equal(t, "trace-123", r.Header.Get(trace.HeaderName()))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req generateRequest
		require.NoError(t, json.Unmarshal(raw, &req))
		require.Len(t, req.Contents, 1)
		assert.Equal(t, "the prompt", req.Contents[0].Parts[0].Text)
		assert.Equal(t, "application/json", req.GenerationConfig.ResponseMimeType)
		assert.Equal(t, "ARRAY", req.GenerationConfig.ResponseSchema["type"])

		_, _ = w.Write(geminiBody(t, twoEntries))
	}))
	defer srv.Close()

	ctx := trace.WithContext(context.Background(), "trace-123")
	out, err := newTestClient(t, srv.URL).Generate(ctx, "the prompt")
	require.NoError(t, err)

	entries, err := Parse(out)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.NotEmpty(t, e.Sender)
		assert.NotEmpty(t, e.Subject)
		assert.NotEmpty(t, e.Summary)
	}
}

func TestGenerate_ConcatenatesParts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"[{\"sender\":\"a\","},` +
			`{"text":"\"subject\":\"b\",\"summary\":[\"c\"]}]"}]}}]}`))
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv.URL).Generate(context.Background(), "p")
	require.NoError(t, err)
	entries, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, "a", entries[0].Sender)
}

func TestGenerate_StatusErrors(t *testing.T) {
	cases := []struct {
		status   int
		wantType string
	}{
		{http.StatusBadRequest, "upstream_error"},
		{http.StatusForbidden, "upstream_error"},
		{http.StatusInternalServerError, "upstream_5xx"},
		{http.StatusServiceUnavailable, "upstream_5xx"},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv.URL).Generate(context.Background(), "p")
			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tc.status, se.StatusCode)
			assert.Contains(t, se.Body, "nope")
			assert.Equal(t, tc.wantType, util.ClassifyError(err))
		})
	}
}

func TestGenerate_UnusableEnvelopes(t *testing.T) {
	cases := map[string]string{
		"no candidates":   `{"candidates":[]}`,
		"blocked":         `{"promptFeedback":{"blockReason":"SAFETY"}}`,
		"empty text":      `{"candidates":[{"content":{"parts":[{"text":"  "}]},"finishReason":"MAX_TOKENS"}]}`,
		"not an envelope": `<html>oops</html>`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv.URL).Generate(context.Background(), "p")
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
		})
	}
}

func TestGenerate_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewGeminiClient(Config{APIKey: "k", BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, zap.NewNop())
	_, err := c.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "timeout", util.ClassifyError(err))
}

func TestGenerate_CircuitOpensOnRepeated5xx(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	for i := 0; i < 5; i++ {
		_, err := c.Generate(context.Background(), "p")
		require.Error(t, err)
	}
	_, err := c.Generate(context.Background(), "p")
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitBreakerOpen)
	assert.Equal(t, "circuit_open", util.ClassifyError(err))
	assert.Equal(t, int32(5), hits.Load())
}

func TestGenerate_ClientErrorsDoNotOpenCircuit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	for i := 0; i < 8; i++ {
		_, err := c.Generate(context.Background(), "p")
		var se *StatusError
		require.ErrorAs(t, err, &se, "attempt %d", i)
	}
}
