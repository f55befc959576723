package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/giantswarm/kube-context-monitor/internal/logging"
	"github.com/giantswarm/kube-context-monitor/internal/server"
)

// runHTTPServer serves the health endpoints, the query API, the event stream and,
// when mounted, streamable-http MCP until ctx is cancelled. The dedicated
// metrics server runs alongside when enabled.
func runHTTPServer(ctx context.Context, sc *server.ServerContext, config ServeConfig, logger *slog.Logger, opts []server.HTTPServerOption) error {
	httpServer := server.NewHTTPServer(sc, opts...)

	var metricsServer *server.MetricsServer
	if config.Metrics.Enabled && sc.InstrumentationProvider().Enabled() {
		var err error
		metricsServer, err = startMetricsServer(config.Metrics, sc, logger)
		if err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.Start(config.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, stopping HTTP server")
	case err := <-serverDone:
		if err != nil {
			shutdownMetricsServer(metricsServer, logger)
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
		logger.Info("HTTP server stopped normally")
		shutdownMetricsServer(metricsServer, logger)
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancel()

	shutdownMetricsServer(metricsServer, logger)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error shutting down HTTP server: %w", err)
	}

	logger.Info("HTTP server gracefully stopped")
	return nil
}

func startMetricsServer(config MetricsServeConfig, sc *server.ServerContext, logger *slog.Logger) (*server.MetricsServer, error) {
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    config.Addr,
		Enabled:                 config.Enabled,
		InstrumentationProvider: sc.InstrumentationProvider(),
	})
	if err != nil {
		return nil, err
	}

	go func() {
		logger.Info("Metrics server starting", slog.String("addr", metricsServer.Addr()))
		if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server stopped with error", logging.Err(err))
		}
	}()
	return metricsServer, nil
}

func shutdownMetricsServer(metricsServer *server.MetricsServer, logger *slog.Logger) {
	if metricsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancel()
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error("Error shutting down metrics server", logging.Err(err))
	}
}
