package server

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/giantswarm/kube-context-monitor/internal/instrumentation"
)

// DefaultMetricsAddr is the listen address of the dedicated metrics server.
const DefaultMetricsAddr = ":9090"

// MetricsServerConfig configures the dedicated metrics server.
type MetricsServerConfig struct {
	// Addr is the listen address; empty means DefaultMetricsAddr.
	Addr string
	// Enabled reports whether the caller wants the server started.
	Enabled bool
	// InstrumentationProvider supplies the Prometheus registry.
	InstrumentationProvider *instrumentation.Provider
}

// MetricsServer serves /metrics on its own port so scrapes never share the
// query API listener.
type MetricsServer struct {
	addr       string
	httpServer *http.Server

	mu      sync.Mutex
	started bool
}

// NewMetricsServer builds a metrics server for the provider's Prometheus
// registry. When the provider has no registry (otlp or stdout exporters, or
// disabled instrumentation) /metrics answers 404.
func NewMetricsServer(config MetricsServerConfig) (*MetricsServer, error) {
	if config.InstrumentationProvider == nil {
		return nil, errors.New("instrumentation provider is required")
	}

	addr := config.Addr
	if addr == "" {
		addr = DefaultMetricsAddr
	}

	var metricsHandler http.Handler
	if registry := config.InstrumentationProvider.PrometheusRegistry(); registry != nil {
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	} else {
		metricsHandler = http.NotFoundHandler()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &MetricsServer{
		addr: addr,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
		},
	}, nil
}

// Addr returns the listen address.
func (s *MetricsServer) Addr() string {
	return s.addr
}

// Start listens and serves until Shutdown. It returns http.ErrServerClosed
// after a graceful shutdown.
func (s *MetricsServer) Start() error {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server. It is a no-op before Start.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
