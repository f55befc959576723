package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/giantswarm/kube-context-monitor/internal/logging"
	"github.com/giantswarm/kube-context-monitor/internal/server/middleware"
)

// HTTP server timeouts
const (
	// DefaultReadHeaderTimeout is the default timeout for reading request headers
	DefaultReadHeaderTimeout = 10 * time.Second

	// DefaultWriteTimeout is the default timeout for writing responses
	DefaultWriteTimeout = 120 * time.Second

	// DefaultIdleTimeout is the default idle timeout for keepalive connections
	DefaultIdleTimeout = 120 * time.Second

	// DefaultShutdownTimeout is the default timeout for graceful server shutdown
	DefaultShutdownTimeout = 30 * time.Second
)

// HTTPServerOption configures an HTTPServer.
type HTTPServerOption func(*HTTPServer)

// WithMCPHandler mounts an MCP streamable HTTP handler at endpoint.
func WithMCPHandler(endpoint string, handler http.Handler) HTTPServerOption {
	return func(s *HTTPServer) {
		s.mcpEndpoint = endpoint
		s.mcpHandler = handler
	}
}

// HTTPServer serves the health endpoints, the query API, the event stream
// and optionally MCP on one listener.
type HTTPServer struct {
	sc      *ServerContext
	health  *HealthHandlers
	events  *EventHub
	handler http.Handler

	mcpEndpoint string
	mcpHandler  http.Handler

	mu         sync.Mutex
	httpServer *http.Server
}

// NewHTTPServer builds the router and middleware chain.
func NewHTTPServer(sc *ServerContext, opts ...HTTPServerOption) *HTTPServer {
	s := &HTTPServer{
		sc:     sc,
		health: NewHealthHandlers(sc),
		events: NewEventHub(sc),
	}
	for _, opt := range opts {
		opt(s)
	}

	router := mux.NewRouter()
	// Inside the router so metrics see route templates.
	if m := sc.Metrics(); m != nil {
		router.Use(middleware.HTTPMetrics(m))
	}

	s.health.Register(router)
	router.Handle(EventsPath, s.events).Methods(http.MethodGet)
	RegisterAPIRoutes(router, sc)
	if s.mcpHandler != nil && s.mcpEndpoint != "" {
		router.Handle(s.mcpEndpoint, s.mcpHandler)
	}

	cfg := sc.Config()
	var handler http.Handler = router
	handler = middleware.MaxRequestSize(cfg.MaxRequestBytes)(handler)
	handler = middleware.CORS(cfg.AllowedOrigins)(handler)
	handler = middleware.SecurityHeaders(cfg.EnableHSTS)(handler)
	handler = middleware.Tracing(handler)
	s.handler = handler

	return s
}

// Handler returns the full middleware chain, for httptest and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

// HealthHandlers returns the liveness and readiness state.
func (s *HTTPServer) HealthHandlers() *HealthHandlers {
	return s.health
}

// Events returns the event stream hub.
func (s *HTTPServer) Events() *EventHub {
	return s.events
}

// Start listens on addr and serves until Shutdown. It returns
// http.ErrServerClosed after a graceful shutdown.
func (s *HTTPServer) Start(addr string) error {
	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.sc.Logger().Info("HTTP server starting",
		"addr", addr,
		"api_prefix", APIPrefix,
		"events", EventsPath,
		"mcp_endpoint", s.mcpEndpoint)
	return srv.ListenAndServe()
}

// Shutdown marks the server not ready, disconnects stream clients and
// drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	s.events.Close()

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.sc.Logger().Error("HTTP server shutdown failed", logging.Err(err))
		return err
	}
	return nil
}
