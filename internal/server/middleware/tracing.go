package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/giantswarm/kube-context-monitor/internal/instrumentation"
)

// TraceIDHeader carries the request's trace ID back to the caller.
const TraceIDHeader = "X-Trace-ID"

// Tracing wraps handlers with otelhttp server spans and sets TraceIDHeader
// on responses when the request is sampled.
func Tracing(next http.Handler) http.Handler {
	return otelhttp.NewHandler(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if traceID := instrumentation.GetTraceID(r.Context()); traceID != "" {
				w.Header().Set(TraceIDHeader, traceID)
			}
			next.ServeHTTP(w, r)
		}),
		"http.request",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + normalizePath(r.URL.Path)
		}),
		otelhttp.WithPropagators(otel.GetTextMapPropagator()),
	)
}
