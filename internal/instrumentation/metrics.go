package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrMethod      = "method"
	attrPath        = "path"
	attrStatus      = "status"
	attrResult      = "result"
	attrEvent       = "event"
	attrResource    = "resource"
	attrContext     = "context"
	attrContextType = "context_type"
)

// Metrics records the monitor and HTTP API metrics. It satisfies the
// monitor package's MetricsRecorder interface.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Health checks
	healthChecksTotal   metric.Int64Counter
	healthCheckDuration metric.Float64Histogram

	// Permission reviews
	accessReviewsTotal metric.Int64Counter

	// Informers
	informerEventsTotal  metric.Int64Counter
	informerOfflineTotal metric.Int64Counter

	contexts metric.Int64Gauge

	// detailedLabels adds the full context name next to its classified type.
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all instruments initialized.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"kcm_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kcm_http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"kcm_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kcm_http_request_duration_seconds histogram: %w", err)
	}

	m.healthChecksTotal, err = meter.Int64Counter(
		"kcm_health_checks_total",
		metric.WithDescription("Total number of context health checks"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kcm_health_checks_total counter: %w", err)
	}

	m.healthCheckDuration, err = meter.Float64Histogram(
		"kcm_health_check_duration_seconds",
		metric.WithDescription("Context health check duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kcm_health_check_duration_seconds histogram: %w", err)
	}

	m.accessReviewsTotal, err = meter.Int64Counter(
		"kcm_access_reviews_total",
		metric.WithDescription("Total number of SelfSubjectAccessReviews by result"),
		metric.WithUnit("{review}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kcm_access_reviews_total counter: %w", err)
	}

	m.informerEventsTotal, err = meter.Int64Counter(
		"kcm_informer_events_total",
		metric.WithDescription("Total number of informer cache events"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kcm_informer_events_total counter: %w", err)
	}

	m.informerOfflineTotal, err = meter.Int64Counter(
		"kcm_informer_offline_total",
		metric.WithDescription("Total number of informers that went offline"),
		metric.WithUnit("{informer}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kcm_informer_offline_total counter: %w", err)
	}

	m.contexts, err = meter.Int64Gauge(
		"kcm_contexts",
		metric.WithDescription("Number of monitored kubeconfig contexts"),
		metric.WithUnit("{context}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kcm_contexts gauge: %w", err)
	}

	return m, nil
}

// contextAttrs returns the context labels, honouring detailedLabels.
func (m *Metrics) contextAttrs(contextName string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(attrContextType, ClassifyContextName(contextName)),
	}
	if m.detailedLabels {
		attrs = append(attrs, attribute.String(attrContext, contextName))
	}
	return attrs
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordHealthCheck records the outcome and duration of one health check.
func (m *Metrics) RecordHealthCheck(ctx context.Context, contextName string, reachable bool, duration time.Duration) {
	if m == nil || m.healthChecksTotal == nil {
		return
	}

	result := HealthResultUnreachable
	if reachable {
		result = HealthResultReachable
	}
	attrs := append(m.contextAttrs(contextName), attribute.String(attrResult, result))

	m.healthChecksTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.healthCheckDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordAccessReview records one access review result ("allowed", "denied" or "error").
func (m *Metrics) RecordAccessReview(ctx context.Context, contextName, result string) {
	if m == nil || m.accessReviewsTotal == nil {
		return
	}

	attrs := append(m.contextAttrs(contextName), attribute.String(attrResult, result))
	m.accessReviewsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordInformerEvent records one add, update or delete applied to a cache.
// resource is bounded by the kind catalog.
func (m *Metrics) RecordInformerEvent(ctx context.Context, contextName, resource, event string) {
	if m == nil || m.informerEventsTotal == nil {
		return
	}

	attrs := append(m.contextAttrs(contextName),
		attribute.String(attrResource, resource),
		attribute.String(attrEvent, event),
	)
	m.informerEventsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordInformerOffline records an informer whose watch failed after its initial sync.
func (m *Metrics) RecordInformerOffline(ctx context.Context, contextName, resource string) {
	if m == nil || m.informerOfflineTotal == nil {
		return
	}

	attrs := append(m.contextAttrs(contextName), attribute.String(attrResource, resource))
	m.informerOfflineTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// SetContextCount sets the number of monitored contexts.
func (m *Metrics) SetContextCount(ctx context.Context, count int) {
	if m == nil || m.contexts == nil {
		return
	}
	m.contexts.Record(ctx, int64(count))
}
