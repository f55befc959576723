// Package server provides the ServerContext pattern and the HTTP surfaces of
// kube-context-monitor.
//
// ServerContext encapsulates the dependencies shared by every surface:
//
//   - the contexts manager, behind the read-only Monitor interface
//   - the resource kind catalog
//   - a *slog.Logger and the tool audit logger
//   - the instrumentation provider
//   - configuration and lifecycle (Shutdown, IsShutdown)
//
// All dependencies are injected using functional options:
//
//	sc, err := server.NewServerContext(ctx,
//		server.WithMonitor(manager),
//		server.WithCatalog(cat),
//		server.WithLogger(logger),
//		server.WithInstrumentationProvider(provider),
//	)
//	if err != nil {
//		return err
//	}
//	defer sc.Shutdown()
//
// HTTPServer mounts, on one gorilla/mux router:
//
//   - /healthz, /readyz and /healthz/detailed (HealthHandlers)
//   - the query API under /api/v1 (contexts, health, permissions, counts,
//     cached resources, current context)
//   - the /api/v1/events WebSocket stream of resource and health events
//   - optionally the MCP streamable HTTP endpoint
//
// Requests pass through the middleware package: otelhttp tracing, security
// headers, rs/cors, request size limits and per-route HTTP metrics.
//
// MetricsServer serves the Prometheus registry of the instrumentation
// provider on a separate listener.
package server
