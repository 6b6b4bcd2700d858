package nodes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/BaSui01/flowgate/types"
	"github.com/BaSui01/flowgate/workflow"
)

func TestHTTPToolGetRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "42", r.URL.Query().Get("limit"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"status": "ok", "count": 3})
	}))
	defer srv.Close()

	r := NewRegistry(Services{})
	res, err := r.runHTTPTool(context.Background(), testPayload(
		testNode("http", workflow.NodeTypeHTTPTool),
		map[string]any{
			InputHTTPURL:     srv.URL,
			InputHTTPMethod:  "get",
			InputHTTPParams:  map[string]any{"limit": 42},
			InputHTTPHeaders: map[string]any{"X-Api-Key": "secret"},
		},
	))
	require.NoError(t, err)

	assert.Equal(t, 200, res.Outputs[OutputHTTPStatusCode])
	assert.Contains(t, res.Outputs[OutputHTTPRaw], "ok")
	// JSON body keys surface as first-class outputs.
	assert.Equal(t, "ok", res.Outputs["status"])
	assert.Equal(t, float64(3), res.Outputs["count"])
}

func TestHTTPToolPostBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ada", body["name"])
		w.Write([]byte(`{"created":true}`))
	}))
	defer srv.Close()

	r := NewRegistry(Services{})
	res, err := r.runHTTPTool(context.Background(), testPayload(
		testNode("http", workflow.NodeTypeHTTPTool),
		map[string]any{
			InputHTTPURL:    srv.URL,
			InputHTTPMethod: "POST",
			InputHTTPBody:   map[string]any{"name": "ada"},
		},
	))
	require.NoError(t, err)
	assert.Equal(t, true, res.Outputs["created"])
}

func TestHTTPToolUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewRegistry(Services{})
	_, err := r.runHTTPTool(context.Background(), testPayload(
		testNode("http", workflow.NodeTypeHTTPTool),
		map[string]any{InputHTTPURL: srv.URL},
	))
	require.Error(t, err)
	assert.Equal(t, types.ErrUpstreamError, types.GetErrorCode(err))

	var e *types.Error
	require.ErrorAs(t, err, &e)
	assert.True(t, e.Retryable)
}

func TestHTTPToolRejectsInvalidURL(t *testing.T) {
	r := NewRegistry(Services{})
	_, err := r.runHTTPTool(context.Background(), testPayload(
		testNode("http", workflow.NodeTypeHTTPTool),
		map[string]any{InputHTTPURL: "not a url"},
	))
	require.Error(t, err)

	_, err = r.runHTTPTool(context.Background(), testPayload(
		testNode("http", workflow.NodeTypeHTTPTool),
		map[string]any{},
	))
	require.Error(t, err)
}

func TestHostLimitersThrottlePerHost(t *testing.T) {
	// 1 request per second with burst 1: the second call must wait.
	h := newHostLimiters(rate.Limit(1), 1)

	require.NoError(t, h.wait(context.Background(), "api.example.com"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := h.wait(ctx, "api.example.com")
	assert.Error(t, err)

	// A different host has its own bucket.
	require.NoError(t, h.wait(context.Background(), "other.example.com"))
}

func TestHostLimitersDisabled(t *testing.T) {
	h := newHostLimiters(0, 0)
	for i := 0; i < 100; i++ {
		require.NoError(t, h.wait(context.Background(), "api.example.com"))
	}
}
