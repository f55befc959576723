package instrumentation

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// scrape creates a prometheus-backed provider, runs record against its
// metrics and returns the text exposition of its registry.
func scrape(t *testing.T, detailedLabels bool, record func(ctx context.Context, m *Metrics)) string {
	t.Helper()

	config := Config{
		ServiceName:     "test-metrics-integration",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: ExporterPrometheus,
		TracingExporter: ExporterNone,
		DetailedLabels:  detailedLabels,
	}

	ctx := context.Background()
	provider, err := NewProvider(ctx, config)
	if err != nil {
		t.Fatalf("Failed to create instrumentation provider: %v", err)
	}
	defer func() { _ = provider.Shutdown(ctx) }()

	registry := provider.PrometheusRegistry()
	if registry == nil {
		t.Fatal("PrometheusRegistry should not be nil for the prometheus exporter")
	}

	record(ctx, provider.Metrics())

	server := httptest.NewServer(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("Failed to fetch metrics: %v", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read metrics body: %v", err)
	}
	return string(body)
}

// TestAllMetricsExposedViaPrometheus verifies every instrument in metrics.go
// shows up on the Prometheus endpoint once recorded.
func TestAllMetricsExposedViaPrometheus(t *testing.T) {
	metricsOutput := scrape(t, false, func(ctx context.Context, m *Metrics) {
		m.RecordHTTPRequest(ctx, "GET", "/api/v1/contexts", 200, 10*time.Millisecond)
		m.RecordHealthCheck(ctx, "prod-a", true, 20*time.Millisecond)
		m.RecordAccessReview(ctx, "prod-a", "allowed")
		m.RecordInformerEvent(ctx, "prod-a", "pods", "add")
		m.RecordInformerOffline(ctx, "prod-a", "pods")
		m.SetContextCount(ctx, 2)
	})

	expectedMetrics := []struct {
		name        string
		isHistogram bool
	}{
		{"kcm_http_requests_total", false},
		{"kcm_http_request_duration_seconds", true},
		{"kcm_health_checks_total", false},
		{"kcm_health_check_duration_seconds", true},
		{"kcm_access_reviews_total", false},
		{"kcm_informer_events_total", false},
		{"kcm_informer_offline_total", false},
		{"kcm_contexts", false},
	}

	for _, m := range expectedMetrics {
		found := false
		if m.isHistogram {
			for _, suffix := range []string{"_bucket", "_sum", "_count"} {
				if containsMetric(metricsOutput, m.name+suffix) {
					found = true
					break
				}
			}
		} else {
			found = containsMetric(metricsOutput, m.name)
		}

		if !found {
			t.Errorf("Missing metric %s", m.name)
		}
	}

	// The go and process collectors are registered alongside.
	if !containsMetric(metricsOutput, "go_goroutines") {
		t.Error("Missing go_goroutines from the go collector")
	}
}

// containsMetric checks if the metrics output contains a metric with the given name.
func containsMetric(output, metricName string) bool {
	for _, line := range strings.Split(output, "\n") {
		if strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, metricName+"{") || strings.HasPrefix(line, metricName+" ") {
			return true
		}
	}
	return false
}

func TestMetricLabelsAreRecorded(t *testing.T) {
	metricsOutput := scrape(t, false, func(ctx context.Context, m *Metrics) {
		m.RecordHTTPRequest(ctx, "POST", "/mcp", 201, 50*time.Millisecond)
		m.RecordHealthCheck(ctx, "minikube", false, time.Second)
		m.RecordInformerEvent(ctx, "stg-eu", "deployments", "delete")
	})

	labelTests := []struct {
		description string
		expected    string
	}{
		{"HTTP method label", `method="POST"`},
		{"HTTP path label", `path="/mcp"`},
		{"HTTP status label", `status="201"`},
		{"Health result label", `result="unreachable"`},
		{"Local context classification", `context_type="local"`},
		{"Staging context classification", `context_type="staging"`},
		{"Informer resource label", `resource="deployments"`},
		{"Informer event label", `event="delete"`},
	}

	for _, tc := range labelTests {
		if !strings.Contains(metricsOutput, tc.expected) {
			t.Errorf("Missing label %s (%s)", tc.expected, tc.description)
		}
	}

	if strings.Contains(metricsOutput, `context="minikube"`) {
		t.Error("raw context name exported without detailed labels")
	}
}

func TestMetricLabelsAreRecorded_Detailed(t *testing.T) {
	metricsOutput := scrape(t, true, func(ctx context.Context, m *Metrics) {
		m.RecordHealthCheck(ctx, "minikube", true, time.Second)
	})

	if !strings.Contains(metricsOutput, `context="minikube"`) {
		t.Error("expected raw context label with detailed labels enabled")
	}
}
