package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/kube-context-monitor/internal/server/middleware"
)

func TestHTTPServer_Routes(t *testing.T) {
	m := newFakeMonitor()
	m.addContext("dev", true)
	hs := NewHTTPServer(newTestServerContext(t, m))
	t.Cleanup(hs.Events().Close)

	for _, target := range []string{
		"/healthz",
		"/readyz",
		"/healthz/detailed",
		"/api/v1/contexts",
		"/api/v1/contexts/health",
		"/api/v1/permissions",
		"/api/v1/resources/counts",
		"/api/v1/resources/pods",
		"/api/v1/current-context",
	} {
		rec := httptest.NewRecorder()
		hs.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusOK, rec.Code, target)
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"), target)
	}
}

func TestHTTPServer_MCPHandler(t *testing.T) {
	var called bool
	mcp := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusAccepted)
	})

	hs := NewHTTPServer(newTestServerContext(t, newFakeMonitor()), WithMCPHandler("/mcp", mcp))
	t.Cleanup(hs.Events().Close)

	rec := httptest.NewRecorder()
	hs.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))

	assert.True(t, called)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestHTTPServer_CORS(t *testing.T) {
	hs := NewHTTPServer(newTestServerContext(t, newFakeMonitor(),
		WithAllowedOrigins([]string{"https://ui.example"})))
	t.Cleanup(hs.Events().Close)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/contexts", nil)
	req.Header.Set("Origin", "https://ui.example")
	rec := httptest.NewRecorder()
	hs.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://ui.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHTTPServer_ShutdownWithoutStart(t *testing.T) {
	hs := NewHTTPServer(newTestServerContext(t, newFakeMonitor()))

	require.NoError(t, hs.Shutdown(context.Background()))
	assert.False(t, hs.HealthHandlers().Ready())

	rec := httptest.NewRecorder()
	hs.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHTTPServer_TraceHeaderAbsentWithoutSampling(t *testing.T) {
	hs := NewHTTPServer(newTestServerContext(t, newFakeMonitor()))
	t.Cleanup(hs.Events().Close)

	rec := httptest.NewRecorder()
	hs.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	// The global tracer provider is a no-op unless instrumentation installs one.
	assert.Empty(t, rec.Header().Get(middleware.TraceIDHeader))
}
