package middleware

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/gorilla/mux"
)

// HTTPRecorder records one served HTTP request.
type HTTPRecorder interface {
	RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration)
}

// statusWriter remembers the first status code sent through it. A handler
// that writes a body without calling WriteHeader answered 200.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Flush keeps the MCP event streams and websocket pushes flowing.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack hands the connection over for /api/v1/ws upgrades.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	w.wroteHeader = true
	return h.Hijack()
}

// HTTPMetrics records method, route, status and latency of every request.
// Inside a gorilla/mux router the route template is the path label, so
// context names never become label values; outside one the raw path is
// normalized. A nil recorder disables the middleware.
func HTTPMetrics(recorder HTTPRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if recorder == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			recorder.RecordHTTPRequest(r.Context(), r.Method, routePath(r), sw.status, time.Since(start))
		})
	}
}

func routePath(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return normalizePath(r.URL.Path)
}

// pathRules rewrite the variable segments of a request path, applied in
// order.
var pathRules = []struct {
	pattern *regexp.Regexp
	replace string
}{
	{regexp.MustCompile(`^/mcp/[a-zA-Z0-9_-]{8,64}$`), "/mcp/:session"},
	{regexp.MustCompile(`^/api/v1/contexts/[^/]+/`), "/api/v1/contexts/:name/"},
	{regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`), ":uuid"},
	{regexp.MustCompile(`/\d+(/|$)`), "/:id$1"},
}

func normalizePath(path string) string {
	for _, rule := range pathRules {
		path = rule.pattern.ReplaceAllString(path, rule.replace)
	}
	return path
}
