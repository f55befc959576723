// Package instrumentation provides OpenTelemetry metrics and tracing for
// kube-context-monitor.
//
// # Metrics
//
// Monitor metrics:
//   - kcm_health_checks_total: Counter of health checks by context_type and result
//   - kcm_health_check_duration_seconds: Histogram of health check durations
//   - kcm_access_reviews_total: Counter of SelfSubjectAccessReviews by result (allowed, denied, error)
//   - kcm_informer_events_total: Counter of cache events by resource and event (add, update, delete)
//   - kcm_informer_offline_total: Counter of informers whose watch failed after sync
//   - kcm_contexts: Gauge of monitored contexts
//
// HTTP API metrics:
//   - kcm_http_requests_total: Counter of requests by method, path template and status
//   - kcm_http_request_duration_seconds: Histogram of request durations
//
// # Cardinality Considerations
//
// Context names come from user kubeconfigs and are unbounded. Metrics label
// them with ClassifyContextName (production, staging, development, local,
// cicd, operations, other). Set METRICS_DETAILED_LABELS=true to add the raw
// name as a "context" label when the number of contexts is known to be small.
//
// # Tracing
//
// Spans are created for:
//   - health checks (monitor.health_check)
//   - permission checkers (monitor.permission_review)
//   - informer start up (monitor.informer_start)
//   - readiness waits (monitor.readiness_wait)
//   - MCP tool invocations (tool.<name>)
//   - HTTP requests, via otelhttp
//
// # Configuration
//
// Instrumentation is configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: false)
//   - METRICS_EXPORTER: prometheus, otlp, stdout or none (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint URL for traces and metrics
//   - OTEL_EXPORTER_OTLP_INSECURE: use plain HTTP for OTLP
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: kube-context-monitor)
//   - METRICS_DETAILED_LABELS: add raw context names to monitor metrics
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.LoadConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	mgr, err := monitor.NewManager(catalog.Default(),
//		monitor.WithManagerMetrics(provider.Metrics()))
//
// A disabled provider returns no-op instruments, so Metrics() is always safe
// to pass along.
package instrumentation
