package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/lyzr/workflowcore/internal/models"
)

// EchoHandler returns its resolved config back as output, unchanged. Useful
// for tests and for workflow stages that only need to fan a value forward.
type EchoHandler struct{}

func NewEchoHandler() *EchoHandler { return &EchoHandler{} }

func (h *EchoHandler) Name() string { return "echo" }

func (h *EchoHandler) Process(ctx context.Context, config map[string]interface{}) (json.RawMessage, error) {
	return json.Marshal(config)
}

// SleepHandler blocks for a configured duration before returning, standing
// in for handlers that do real I/O long enough to matter for timeout and
// cancellation tests.
type SleepHandler struct{}

func NewSleepHandler() *SleepHandler { return &SleepHandler{} }

func (h *SleepHandler) Name() string { return "sleep" }

func (h *SleepHandler) Process(ctx context.Context, config map[string]interface{}) (json.RawMessage, error) {
	ms, _ := config["duration_ms"].(float64)
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return json.Marshal(map[string]interface{}{"slept_ms": ms})
}

// HTTPHandler issues a single HTTP request described by the node's config
// and returns the response status/body as output.
type HTTPHandler struct {
	client *http.Client
}

// NewHTTPHandler builds an HTTPHandler with the given request timeout.
func NewHTTPHandler(timeout time.Duration) *HTTPHandler {
	return &HTTPHandler{client: &http.Client{Timeout: timeout}}
}

func (h *HTTPHandler) Name() string { return "http_get" }

func (h *HTTPHandler) Process(ctx context.Context, config map[string]interface{}) (json.RawMessage, error) {
	url, _ := config["url"].(string)
	if url == "" {
		return nil, models.NewCodedError("ValueError", fmt.Errorf("missing or invalid url in config"))
	}
	method, _ := config["method"].(string)
	if method == "" {
		method = "GET"
	}
	var body []byte
	if payload, ok := config["payload"].(string); ok {
		body = []byte(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, models.NewCodedError("ValueError", fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, models.NewCodedError("TimeoutError", fmt.Errorf("request timed out: %w", err))
		}
		return nil, models.NewCodedError("ConnectionError", fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewCodedError("ConnectionError", fmt.Errorf("read response: %w", err))
	}

	var decoded interface{}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		decoded = string(respBody)
	}

	if resp.StatusCode >= 400 {
		return nil, models.NewCodedError("HTTPStatusError", fmt.Errorf("http %s %s returned status %d", method, url, resp.StatusCode))
	}

	return json.Marshal(map[string]interface{}{
		"status_code": resp.StatusCode,
		"body":        decoded,
	})
}

// ExternalServiceHandler simulates a call to an external dependency that
// fails on demand, letting tests exercise the circuit breaker without a
// live network dependency. Grounded on original_source's
// ExternalServiceWorker mock.
type ExternalServiceHandler struct {
	rng *rand.Rand
}

func NewExternalServiceHandler() *ExternalServiceHandler {
	return &ExternalServiceHandler{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (h *ExternalServiceHandler) Name() string { return "call_external_service" }

func (h *ExternalServiceHandler) Process(ctx context.Context, config map[string]interface{}) (json.RawMessage, error) {
	url, _ := config["url"].(string)
	if url == "" {
		url = "http://example.com/api"
	}
	if containsFail(url) {
		return nil, models.NewCodedError("ExternalServiceError", fmt.Errorf("external service at %s failed", url))
	}
	return json.Marshal(map[string]interface{}{
		"status_code": 200,
		"url":         url,
		"data": map[string]interface{}{
			"id":     h.rng.Intn(1000) + 1,
			"result": fmt.Sprintf("mock response from %s", url),
		},
	})
}

func containsFail(url string) bool {
	for i := 0; i+4 <= len(url); i++ {
		if url[i:i+4] == "fail" {
			return true
		}
	}
	return false
}
