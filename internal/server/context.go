package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/giantswarm/kube-context-monitor/internal/catalog"
	"github.com/giantswarm/kube-context-monitor/internal/instrumentation"
	"github.com/giantswarm/kube-context-monitor/internal/kubeconfig"
	"github.com/giantswarm/kube-context-monitor/internal/monitor"
)

// Monitor is the read side of the contexts manager that the HTTP, WebSocket
// and MCP surfaces query. *monitor.Manager implements it.
type Monitor interface {
	HealthStates() map[string]monitor.HealthState
	Permissions() []monitor.PermissionRecord
	ResourcesCount() []monitor.ResourceCount
	ActiveResourcesCount() []monitor.ResourceCount
	Resources(contextNames []string, kind string) []monitor.ContextResources
	Contexts() []kubeconfig.Context
	CurrentContext() string
	CurrentContextHealth() (monitor.HealthState, bool)
	CheckNow(ctx context.Context, contextName string) (monitor.HealthState, error)

	OnResourceUpdated(fn func(monitor.CacheUpdate)) func()
	OnResourceCountUpdated(fn func(monitor.CacheUpdate)) func()
	OnHealthChanged(fn func(monitor.HealthState)) func()
}

var _ Monitor = (*monitor.Manager)(nil)

// ServerContext encapsulates all dependencies needed by the query surfaces
// and provides a clean abstraction for dependency injection and lifecycle management.
type ServerContext struct {
	// Core dependencies
	monitor Monitor
	catalog *catalog.Catalog
	logger  *slog.Logger
	config  *Config

	// Observability
	instrumentationProvider *instrumentation.Provider
	auditLogger             *instrumentation.AuditLogger

	// Context management
	ctx    context.Context
	cancel context.CancelFunc

	// Lifecycle management
	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a new ServerContext with default values.
// Use the provided functional options to customize the context.
func NewServerContext(ctx context.Context, opts ...Option) (*ServerContext, error) {
	serverCtx, cancel := context.WithCancel(ctx)

	sc := &ServerContext{
		ctx:    serverCtx,
		cancel: cancel,
		config: NewDefaultConfig(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(sc); err != nil {
			cancel()
			return nil, err
		}
	}

	if err := sc.validate(); err != nil {
		cancel()
		return nil, err
	}

	if sc.auditLogger == nil {
		sc.auditLogger = instrumentation.NewAuditLogger(sc.logger)
	}

	return sc, nil
}

// Context returns the server context for cancellation and deadlines.
func (sc *ServerContext) Context() context.Context {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.ctx
}

// Monitor returns the contexts manager.
func (sc *ServerContext) Monitor() Monitor {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.monitor
}

// Catalog returns the resource kind catalog the manager was built with.
func (sc *ServerContext) Catalog() *catalog.Catalog {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.catalog
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.logger
}

// Config returns the server configuration.
func (sc *ServerContext) Config() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config
}

// InstrumentationProvider returns the OpenTelemetry provider, or nil.
func (sc *ServerContext) InstrumentationProvider() *instrumentation.Provider {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.instrumentationProvider
}

// Metrics returns the instrumentation metrics, or nil when no provider is set.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.InstrumentationProvider().Metrics()
}

// OutputConfig returns the MCP tool output settings.
func (sc *ServerContext) OutputConfig() OutputConfig {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Output
}

// AuditLogger returns the tool invocation audit logger.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.auditLogger
}

// Shutdown gracefully shuts down the server context.
// This cancels the context and releases any resources.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.logger.Info("Shutting down server context")

	if sc.cancel != nil {
		sc.cancel()
	}
	sc.shutdown = true

	sc.logger.Info("Server context shutdown complete")
	return nil
}

// IsShutdown returns true if the server context has been shutdown.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// validate ensures all required dependencies are set.
func (sc *ServerContext) validate() error {
	if sc.monitor == nil {
		return ErrMissingMonitor
	}
	if sc.catalog == nil {
		return ErrMissingCatalog
	}
	if sc.logger == nil {
		return ErrMissingLogger
	}
	if sc.config == nil {
		return ErrMissingConfig
	}
	return nil
}

// Config holds the server configuration.
type Config struct {
	// Server settings
	ServerName string `json:"serverName"`
	Version    string `json:"version"`

	// Monitoring settings
	MonitorAllContexts bool `json:"monitorAllContexts"`

	// HTTP settings
	AllowedOrigins  []string `json:"allowedOrigins"`
	EnableHSTS      bool     `json:"enableHSTS"`
	MaxRequestBytes int64    `json:"maxRequestBytes"`

	// Event stream settings
	PingInterval time.Duration `json:"pingInterval"`

	// MCP tool output settings
	Output OutputConfig `json:"output"`
}

// OutputConfig limits and shapes resource listings returned by MCP tools.
type OutputConfig struct {
	MaxItems         int  `json:"maxItems"`
	MaxContexts      int  `json:"maxContexts"`
	SlimOutput       bool `json:"slimOutput"`
	MaskSecrets      bool `json:"maskSecrets"`
	SummaryThreshold int  `json:"summaryThreshold"`
}

// DefaultOutputConfig returns the default output settings.
func DefaultOutputConfig() OutputConfig {
	return OutputConfig{
		MaxItems:         100,
		MaxContexts:      20,
		SlimOutput:       true,
		MaskSecrets:      true,
		SummaryThreshold: 500,
	}
}

// NewDefaultConfig creates a configuration with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		ServerName:         "kube-context-monitor",
		Version:            "dev",
		MonitorAllContexts: true,
		MaxRequestBytes:    1 << 20,
		PingInterval:       DefaultPingInterval,
		Output:             DefaultOutputConfig(),
	}
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	clone := *c
	if c.AllowedOrigins != nil {
		clone.AllowedOrigins = make([]string, len(c.AllowedOrigins))
		copy(clone.AllowedOrigins, c.AllowedOrigins)
	}

	return &clone
}
