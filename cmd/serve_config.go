package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/giantswarm/kube-context-monitor/internal/kubeconfig"
	"github.com/giantswarm/kube-context-monitor/internal/logging"
	"github.com/giantswarm/kube-context-monitor/internal/monitor"
	"github.com/giantswarm/kube-context-monitor/internal/server"
)

// Transport types for the MCP surface.
const (
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"
	transportNone           = "none"
)

// envPrefix prefixes every environment variable read by serve, e.g.
// KCM_HTTP_ADDR for --http-addr.
const envPrefix = "kcm"

// Keys of the serve flags. They double as viper keys and, upper-cased with
// "-" replaced by "_", as environment variable suffixes.
const (
	keyConfig = "config" // string

	keyKubeconfig      = "kubeconfig"       // string
	keyWatchKubeconfig = "watch-kubeconfig" // bool
	keyCatalogFile     = "catalog-file"     // string
	keyMonitorAll      = "monitor-all-contexts"

	keyQPS           = "qps-limit"      // float32
	keyBurst         = "burst-limit"    // int
	keyClientTimeout = "client-timeout" // time.Duration

	keyHealthInterval     = "health-interval"      // time.Duration
	keyHealthRetryBackoff = "health-retry-backoff" // time.Duration
	keyHealthCheckTimeout = "health-check-timeout" // time.Duration
	keyConnectionTimeout  = "connection-timeout"   // time.Duration

	keyTransport      = "transport"       // string
	keyHTTPAddr       = "http-addr"       // string
	keyHTTPEndpoint   = "http-endpoint"   // string
	keyAllowedOrigins = "allowed-origins" // []string
	keyEnableHSTS     = "enable-hsts"     // bool

	keyMetricsEnabled = "metrics-enabled" // bool
	keyMetricsAddr    = "metrics-addr"    // string

	keyLogLevel  = "log-level"  // string
	keyLogFormat = "log-format" // string
	keyLogFile   = "log-file"   // string

	keyOutputMaxItems         = "output-max-items"         // int
	keyOutputMaxContexts      = "output-max-contexts"      // int
	keyOutputSlim             = "output-slim"              // bool
	keyOutputMaskSecrets      = "output-mask-secrets"      // bool
	keyOutputSummaryThreshold = "output-summary-threshold" // int
)

// ServeConfig holds the configuration of the serve command.
type ServeConfig struct {
	// Kubeconfig
	Kubeconfig      string
	WatchKubeconfig bool
	CatalogFile     string

	// Monitoring
	MonitorAllContexts bool
	Health             monitor.HealthConfig
	ConnectionTimeout  time.Duration

	// Kubernetes client performance settings
	QPSLimit      float32
	BurstLimit    int
	ClientTimeout time.Duration

	// Transport
	Transport      string
	HTTPAddr       string
	HTTPEndpoint   string
	AllowedOrigins []string
	EnableHSTS     bool

	// Metrics server
	Metrics MetricsServeConfig

	// Logging
	LogLevel  string
	LogFormat string
	LogFile   string

	// MCP tool output
	Output server.OutputConfig
}

// MetricsServeConfig holds configuration for the dedicated metrics server.
type MetricsServeConfig struct {
	Enabled bool
	Addr    string
}

// addServeFlags registers the serve flags with their defaults.
func addServeFlags(cmd *cobra.Command) {
	health := monitor.DefaultHealthConfig()
	output := server.DefaultOutputConfig()
	f := cmd.Flags()

	f.String(keyConfig, "", "Optional YAML config file; keys are the flag names")

	f.String(keyKubeconfig, "", "Path to the kubeconfig file (default: $KUBECONFIG or ~/.kube/config)")
	f.Bool(keyWatchKubeconfig, true, "Reload contexts when the kubeconfig file changes")
	f.String(keyCatalogFile, "", "YAML file with additional resource kinds to monitor")
	f.Bool(keyMonitorAll, true, "Monitor every context; when false only the current context is health checked")

	f.Float32(keyQPS, kubeconfig.DefaultQPS, "QPS limit for Kubernetes API calls per context")
	f.Int(keyBurst, kubeconfig.DefaultBurst, "Burst limit for Kubernetes API calls per context")
	f.Duration(keyClientTimeout, kubeconfig.DefaultTimeout, "Timeout of Kubernetes API requests")

	f.Duration(keyHealthInterval, health.Interval, "Delay between health checks of a reachable context")
	f.Duration(keyHealthRetryBackoff, health.RetryBackoff, "First retry delay after a failed health check, doubled per failure")
	f.Duration(keyHealthCheckTimeout, health.CheckTimeout, "Timeout of a single health check")
	f.Duration(keyConnectionTimeout, monitor.DefaultConnectivityConfig().ConnectionTimeout, "Timeout of the /healthz request, TLS handshake included")

	f.String(keyTransport, transportStreamableHTTP, "MCP transport: stdio, streamable-http, or none")
	f.String(keyHTTPAddr, ":8080", "HTTP server address for the query API, event stream and streamable-http MCP")
	f.String(keyHTTPEndpoint, "/mcp", "HTTP endpoint path (for streamable-http transport)")
	f.StringSlice(keyAllowedOrigins, nil, "Origins allowed by CORS and the event stream (\"*\" allows all)")
	f.Bool(keyEnableHSTS, false, "Send Strict-Transport-Security headers")

	f.Bool(keyMetricsEnabled, true, "Serve /metrics on a dedicated listener")
	f.String(keyMetricsAddr, server.DefaultMetricsAddr, "Metrics server address")

	f.String(keyLogLevel, "info", "Log level: debug, info, warn, or error")
	f.String(keyLogFormat, string(logging.FormatText), "Log format: text or json")
	f.String(keyLogFile, "", "Write logs to this file with rotation instead of stderr")

	f.Int(keyOutputMaxItems, output.MaxItems, "Default per-context item limit of MCP resource listings")
	f.Int(keyOutputMaxContexts, output.MaxContexts, "Default context limit of MCP resource listings")
	f.Bool(keyOutputSlim, output.SlimOutput, "Strip verbose metadata from MCP resource listings")
	f.Bool(keyOutputMaskSecrets, output.MaskSecrets, "Redact Secret data in MCP resource listings")
	f.Int(keyOutputSummaryThreshold, output.SummaryThreshold, "Item count above which MCP listings suggest summary mode")
}

// newViper binds the command's flags to a viper instance that also reads
// KCM_* environment variables and, when --config is given, a YAML file.
// Precedence: flag, environment, config file, flag default.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	vp := viper.New()
	if err := vp.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}
	vp.SetEnvPrefix(envPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	vp.AutomaticEnv()

	if path := vp.GetString(keyConfig); path != "" {
		vp.SetConfigFile(path)
		vp.SetConfigType("yaml")
		if err := vp.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	return vp, nil
}

// loadServeConfig resolves the serve configuration from flags, environment
// and the optional config file, and validates it.
func loadServeConfig(cmd *cobra.Command) (ServeConfig, error) {
	vp, err := newViper(cmd)
	if err != nil {
		return ServeConfig{}, err
	}

	config := ServeConfig{
		Kubeconfig:         vp.GetString(keyKubeconfig),
		WatchKubeconfig:    vp.GetBool(keyWatchKubeconfig),
		CatalogFile:        vp.GetString(keyCatalogFile),
		MonitorAllContexts: vp.GetBool(keyMonitorAll),
		Health: monitor.HealthConfig{
			Interval:     vp.GetDuration(keyHealthInterval),
			RetryBackoff: vp.GetDuration(keyHealthRetryBackoff),
			CheckTimeout: vp.GetDuration(keyHealthCheckTimeout),
		},
		ConnectionTimeout: vp.GetDuration(keyConnectionTimeout),
		QPSLimit:          float32(vp.GetFloat64(keyQPS)),
		BurstLimit:        vp.GetInt(keyBurst),
		ClientTimeout:     vp.GetDuration(keyClientTimeout),
		Transport:         vp.GetString(keyTransport),
		HTTPAddr:          vp.GetString(keyHTTPAddr),
		HTTPEndpoint:      vp.GetString(keyHTTPEndpoint),
		AllowedOrigins:    splitList(vp.GetStringSlice(keyAllowedOrigins)),
		EnableHSTS:        vp.GetBool(keyEnableHSTS),
		Metrics: MetricsServeConfig{
			Enabled: vp.GetBool(keyMetricsEnabled),
			Addr:    vp.GetString(keyMetricsAddr),
		},
		LogLevel:  vp.GetString(keyLogLevel),
		LogFormat: vp.GetString(keyLogFormat),
		LogFile:   vp.GetString(keyLogFile),
		Output: server.OutputConfig{
			MaxItems:         vp.GetInt(keyOutputMaxItems),
			MaxContexts:      vp.GetInt(keyOutputMaxContexts),
			SlimOutput:       vp.GetBool(keyOutputSlim),
			MaskSecrets:      vp.GetBool(keyOutputMaskSecrets),
			SummaryThreshold: vp.GetInt(keyOutputSummaryThreshold),
		},
	}

	if err := config.Validate(); err != nil {
		return ServeConfig{}, err
	}
	return config, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c ServeConfig) Validate() error {
	switch c.Transport {
	case transportStdio, transportStreamableHTTP, transportNone:
	default:
		return fmt.Errorf("unsupported transport type: %q (supported: %s, %s, %s)",
			c.Transport, transportStdio, transportStreamableHTTP, transportNone)
	}

	if c.Transport != transportStdio && c.HTTPAddr == "" {
		return fmt.Errorf("--%s is required for the %s transport", keyHTTPAddr, c.Transport)
	}
	if c.Transport == transportStreamableHTTP {
		if !strings.HasPrefix(c.HTTPEndpoint, "/") {
			return fmt.Errorf("--%s must start with /: %q", keyHTTPEndpoint, c.HTTPEndpoint)
		}
		if strings.HasPrefix(c.HTTPEndpoint, server.APIPrefix) {
			return fmt.Errorf("--%s must not be under %s", keyHTTPEndpoint, server.APIPrefix)
		}
	}

	if c.QPSLimit <= 0 {
		return fmt.Errorf("--%s must be positive", keyQPS)
	}
	if c.BurstLimit <= 0 {
		return fmt.Errorf("--%s must be positive", keyBurst)
	}

	durations := map[string]time.Duration{
		keyClientTimeout:      c.ClientTimeout,
		keyHealthInterval:     c.Health.Interval,
		keyHealthRetryBackoff: c.Health.RetryBackoff,
		keyHealthCheckTimeout: c.Health.CheckTimeout,
		keyConnectionTimeout:  c.ConnectionTimeout,
	}
	for key, d := range durations {
		if d < 0 {
			return fmt.Errorf("--%s must not be negative", key)
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unsupported log level: %q", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case string(logging.FormatText), string(logging.FormatJSON):
	default:
		return fmt.Errorf("unsupported log format: %q", c.LogFormat)
	}

	if c.Output.MaxItems < 0 || c.Output.MaxContexts < 0 || c.Output.SummaryThreshold < 0 {
		return fmt.Errorf("output limits must not be negative")
	}

	return nil
}

// loggingConfig maps the log settings onto a logging.Config.
func (c ServeConfig) loggingConfig() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(c.LogLevel)
	lc.Format = logging.ParseFormat(c.LogFormat)
	lc.FilePath = c.LogFile
	return lc
}

// clientOptions maps the client settings onto kubeconfig.ClientOptions.
func (c ServeConfig) clientOptions() kubeconfig.ClientOptions {
	return kubeconfig.ClientOptions{
		QPS:     c.QPSLimit,
		Burst:   c.BurstLimit,
		Timeout: c.ClientTimeout,
	}
}

// connectivityConfig maps the connection timeout onto a monitor.ConnectivityConfig.
func (c ServeConfig) connectivityConfig() monitor.ConnectivityConfig {
	cc := monitor.DefaultConnectivityConfig()
	if c.ConnectionTimeout > 0 {
		cc.ConnectionTimeout = c.ConnectionTimeout
	}
	return cc
}

// serverConfig builds the server configuration for the given version.
func (c ServeConfig) serverConfig(version string) *server.Config {
	sc := server.NewDefaultConfig()
	sc.ServerName = appName
	sc.Version = version
	sc.MonitorAllContexts = c.MonitorAllContexts
	sc.AllowedOrigins = c.AllowedOrigins
	sc.EnableHSTS = c.EnableHSTS
	sc.Output = c.Output
	return sc
}

// splitList flattens comma-separated entries, as given through environment
// variables, and drops empty ones.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
