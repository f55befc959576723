package instrumentation

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Exporter names.
const (
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"
)

// Label values shared by the recorders.
const (
	StatusSuccess = "success"
	StatusError   = "error"

	HealthResultReachable   = "reachable"
	HealthResultUnreachable = "unreachable"
)

// DefaultMetricInterval is the push period of the otlp and stdout metric
// exporters.
const DefaultMetricInterval = 10 * time.Second

// Config holds the configuration for OpenTelemetry instrumentation.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// Enabled turns on metrics and tracing. Off, every recorder is a no-op.
	Enabled bool

	// MetricsExporter is one of prometheus, otlp, stdout or none.
	MetricsExporter string
	// TracingExporter is one of otlp, stdout or none.
	TracingExporter string

	// OTLPEndpoint is the collector URL, e.g. http://localhost:4318.
	OTLPEndpoint string
	// OTLPInsecure sends OTLP over plain HTTP. Only for local collectors.
	OTLPInsecure bool

	// TraceSamplingRate is the parent-based ratio of sampled root spans.
	TraceSamplingRate float64

	// DetailedLabels labels monitor metrics with the full context name
	// instead of its classified type.
	DetailedLabels bool

	ExportInterval time.Duration
}

// DefaultConfig returns the built-in configuration: instrumentation off,
// prometheus metrics and no tracing once enabled.
func DefaultConfig() Config {
	return Config{
		ServiceName:       "kube-context-monitor",
		ServiceVersion:    "unknown",
		MetricsExporter:   ExporterPrometheus,
		TracingExporter:   ExporterNone,
		TraceSamplingRate: 0.1,
		ExportInterval:    DefaultMetricInterval,
	}
}

// envBindings maps Config keys onto the environment variables that set them.
// The OTEL_ names follow the OpenTelemetry SDK conventions.
var envBindings = map[string]string{
	"service-name":        "OTEL_SERVICE_NAME",
	"enabled":             "INSTRUMENTATION_ENABLED",
	"metrics-exporter":    "METRICS_EXPORTER",
	"tracing-exporter":    "TRACING_EXPORTER",
	"otlp-endpoint":       "OTEL_EXPORTER_OTLP_ENDPOINT",
	"otlp-insecure":       "OTEL_EXPORTER_OTLP_INSECURE",
	"trace-sampling-rate": "OTEL_TRACES_SAMPLER_ARG",
	"detailed-labels":     "METRICS_DETAILED_LABELS",
}

// LoadConfig returns DefaultConfig overridden by the environment. Values
// that do not parse keep their zero value and are caught by Validate where
// that matters.
func LoadConfig() Config {
	def := DefaultConfig()

	v := viper.New()
	v.SetDefault("service-name", def.ServiceName)
	v.SetDefault("metrics-exporter", def.MetricsExporter)
	v.SetDefault("tracing-exporter", def.TracingExporter)
	v.SetDefault("trace-sampling-rate", def.TraceSamplingRate)
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := def
	cfg.ServiceName = v.GetString("service-name")
	cfg.Enabled = v.GetBool("enabled")
	cfg.MetricsExporter = v.GetString("metrics-exporter")
	cfg.TracingExporter = v.GetString("tracing-exporter")
	cfg.OTLPEndpoint = v.GetString("otlp-endpoint")
	cfg.OTLPInsecure = v.GetBool("otlp-insecure")
	cfg.TraceSamplingRate = v.GetFloat64("trace-sampling-rate")
	cfg.DetailedLabels = v.GetBool("detailed-labels")
	return cfg
}

// Validate checks the exporter names, the OTLP endpoint and the sampling
// rate of an enabled configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	switch c.MetricsExporter {
	case ExporterPrometheus, ExporterOTLP, ExporterStdout, ExporterNone, "":
	default:
		return fmt.Errorf("unsupported metrics exporter %q", c.MetricsExporter)
	}
	switch c.TracingExporter {
	case ExporterOTLP, ExporterStdout, ExporterNone, "":
	default:
		return fmt.Errorf("unsupported tracing exporter %q", c.TracingExporter)
	}

	usesOTLP := c.MetricsExporter == ExporterOTLP || c.TracingExporter == ExporterOTLP
	if usesOTLP && c.OTLPEndpoint == "" {
		return fmt.Errorf("%s is required for the otlp exporter", envBindings["otlp-endpoint"])
	}
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0 and 1, got %v", c.TraceSamplingRate)
	}
	return nil
}
