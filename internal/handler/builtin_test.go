package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/workflowcore/internal/models"
)

func TestEchoHandler_ReturnsConfigUnchanged(t *testing.T) {
	h := NewEchoHandler()
	out, err := h.Process(context.Background(), map[string]interface{}{"a": float64(1)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(out))
}

func TestHTTPHandler_MissingURLIsValueError(t *testing.T) {
	h := NewHTTPHandler(time.Second)
	_, err := h.Process(context.Background(), map[string]interface{}{})
	require.Error(t, err)
	assert.Equal(t, "ValueError", models.ErrorCodeFor(err))
}

func TestHTTPHandler_NonSuccessStatusIsHTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := NewHTTPHandler(time.Second)
	_, err := h.Process(context.Background(), map[string]interface{}{"url": srv.URL})
	require.Error(t, err)
	assert.Equal(t, "HTTPStatusError", models.ErrorCodeFor(err))
}

func TestHTTPHandler_ConnectionFailureIsConnectionError(t *testing.T) {
	h := NewHTTPHandler(time.Second)
	_, err := h.Process(context.Background(), map[string]interface{}{"url": "http://127.0.0.1:1"})
	require.Error(t, err)
	assert.Equal(t, "ConnectionError", models.ErrorCodeFor(err))
}

func TestExternalServiceHandler_FailsOnFailURL(t *testing.T) {
	h := NewExternalServiceHandler()
	_, err := h.Process(context.Background(), map[string]interface{}{"url": "http://example.com/fail"})
	require.Error(t, err)
	assert.Equal(t, "ExternalServiceError", models.ErrorCodeFor(err))
}
