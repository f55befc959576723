package instrumentation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func clearInstrumentationEnv(t *testing.T) {
	t.Helper()
	for _, env := range envBindings {
		t.Setenv(env, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "kube-context-monitor", config.ServiceName)
	assert.False(t, config.Enabled)
	assert.Equal(t, ExporterPrometheus, config.MetricsExporter)
	assert.Equal(t, ExporterNone, config.TracingExporter)
	assert.InDelta(t, 0.1, config.TraceSamplingRate, 1e-9)
	assert.False(t, config.DetailedLabels)
	assert.Equal(t, DefaultMetricInterval, config.ExportInterval)
}

func TestLoadConfig(t *testing.T) {
	t.Run("empty environment keeps defaults", func(t *testing.T) {
		clearInstrumentationEnv(t)
		assert.Equal(t, DefaultConfig(), LoadConfig())
	})

	t.Run("environment overrides", func(t *testing.T) {
		clearInstrumentationEnv(t)
		t.Setenv("OTEL_SERVICE_NAME", "kcm-staging")
		t.Setenv("INSTRUMENTATION_ENABLED", "true")
		t.Setenv("METRICS_EXPORTER", "stdout")
		t.Setenv("TRACING_EXPORTER", "otlp")
		t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318")
		t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")
		t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.5")
		t.Setenv("METRICS_DETAILED_LABELS", "true")

		config := LoadConfig()
		assert.Equal(t, "kcm-staging", config.ServiceName)
		assert.True(t, config.Enabled)
		assert.Equal(t, ExporterStdout, config.MetricsExporter)
		assert.Equal(t, ExporterOTLP, config.TracingExporter)
		assert.Equal(t, "http://localhost:4318", config.OTLPEndpoint)
		assert.True(t, config.OTLPInsecure)
		assert.InDelta(t, 0.5, config.TraceSamplingRate, 1e-9)
		assert.True(t, config.DetailedLabels)
		assert.Equal(t, DefaultMetricInterval, config.ExportInterval)
	})

	t.Run("unparsable boolean is false", func(t *testing.T) {
		clearInstrumentationEnv(t)
		t.Setenv("INSTRUMENTATION_ENABLED", "maybe")
		assert.False(t, LoadConfig().Enabled)
	})
}

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Enabled:           true,
		MetricsExporter:   ExporterPrometheus,
		TracingExporter:   ExporterNone,
		TraceSamplingRate: 0.1,
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "disabled skips validation", mutate: func(c *Config) {
			c.Enabled = false
			c.MetricsExporter = "graphite"
		}},
		{name: "sampling rate above one", mutate: func(c *Config) { c.TraceSamplingRate = 1.5 }, wantErr: "sampling rate"},
		{name: "negative sampling rate", mutate: func(c *Config) { c.TraceSamplingRate = -0.1 }, wantErr: "sampling rate"},
		{name: "unknown metrics exporter", mutate: func(c *Config) { c.MetricsExporter = "graphite" }, wantErr: "unsupported metrics exporter"},
		{name: "unknown tracing exporter", mutate: func(c *Config) { c.TracingExporter = "zipkin" }, wantErr: "unsupported tracing exporter"},
		{name: "otlp traces need an endpoint", mutate: func(c *Config) { c.TracingExporter = ExporterOTLP }, wantErr: "OTEL_EXPORTER_OTLP_ENDPOINT"},
		{name: "otlp metrics need an endpoint", mutate: func(c *Config) { c.MetricsExporter = ExporterOTLP }, wantErr: "OTEL_EXPORTER_OTLP_ENDPOINT"},
		{name: "otlp with endpoint", mutate: func(c *Config) {
			c.TracingExporter = ExporterOTLP
			c.OTLPEndpoint = "http://localhost:4318"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid
			tt.mutate(&config)
			err := config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
