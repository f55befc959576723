package server

import (
	"errors"
	"log/slog"

	"github.com/giantswarm/kube-context-monitor/internal/catalog"
	"github.com/giantswarm/kube-context-monitor/internal/instrumentation"
)

// Option configures a ServerContext.
type Option func(*ServerContext) error

var (
	ErrMissingMonitor = errors.New("contexts monitor is required")
	ErrMissingCatalog = errors.New("resource catalog is required")
	ErrMissingLogger  = errors.New("logger is required")
	ErrMissingConfig  = errors.New("configuration is required")
	ErrServerShutdown = errors.New("server context has been shutdown")
)

// WithMonitor sets the contexts manager the queries and tools read from.
func WithMonitor(m Monitor) Option {
	return func(sc *ServerContext) error {
		if m == nil {
			return ErrMissingMonitor
		}
		sc.monitor = m
		return nil
	}
}

// WithCatalog sets the resource kind catalog.
func WithCatalog(cat *catalog.Catalog) Option {
	return func(sc *ServerContext) error {
		if cat == nil {
			return ErrMissingCatalog
		}
		sc.catalog = cat
		return nil
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(sc *ServerContext) error {
		if logger == nil {
			return ErrMissingLogger
		}
		sc.logger = logger
		return nil
	}
}

// WithConfig replaces the whole configuration with a copy of config.
// Options that edit single fields must come after it.
func WithConfig(config *Config) Option {
	return func(sc *ServerContext) error {
		if config == nil {
			return ErrMissingConfig
		}
		sc.config = config.Clone()
		return nil
	}
}

// editConfig applies edit to the configuration, starting from the defaults
// when none was set yet.
func editConfig(edit func(*Config)) Option {
	return func(sc *ServerContext) error {
		if sc.config == nil {
			sc.config = NewDefaultConfig()
		}
		edit(sc.config)
		return nil
	}
}

// WithServerName sets the name announced to MCP clients.
func WithServerName(name string) Option {
	return editConfig(func(c *Config) { c.ServerName = name })
}

// WithVersion sets the version reported by the health endpoints and MCP.
func WithVersion(version string) Option {
	return editConfig(func(c *Config) { c.Version = version })
}

// WithAllowedOrigins sets the origins accepted by CORS and the event stream.
func WithAllowedOrigins(origins []string) Option {
	return editConfig(func(c *Config) { c.AllowedOrigins = append([]string(nil), origins...) })
}

// WithInstrumentationProvider sets the OpenTelemetry provider. Nil leaves
// metrics off.
func WithInstrumentationProvider(provider *instrumentation.Provider) Option {
	return func(sc *ServerContext) error {
		sc.instrumentationProvider = provider
		return nil
	}
}

// WithAuditLogger overrides the audit logger derived from the server logger.
func WithAuditLogger(audit *instrumentation.AuditLogger) Option {
	return func(sc *ServerContext) error {
		sc.auditLogger = audit
		return nil
	}
}
