package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/giantswarm/kube-context-monitor/internal/instrumentation"
	"github.com/giantswarm/kube-context-monitor/internal/logging"
	"github.com/giantswarm/kube-context-monitor/internal/server"
	monitortools "github.com/giantswarm/kube-context-monitor/internal/tools/monitor"
)

// newServeCmd creates the Cobra command for starting the monitor.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the kubeconfig contexts monitor",
		Long: `Start monitoring every context of the kubeconfig file.

The cached health, permissions and resources are served on --http-addr:
  /healthz, /readyz, /healthz/detailed   health
  /api/v1/...                            query API
  /api/v1/events                         WebSocket event stream

The Model Context Protocol (MCP) tools are served over one of:
  - streamable-http: on the HTTP server at --http-endpoint (default)
  - stdio: standard input/output, for local MCP clients
  - none: MCP disabled

Every flag can also be set through a KCM_ environment variable, for example
KCM_HTTP_ADDR for --http-addr, or through the YAML file given with --config.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadServeConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), config)
		},
	}

	addServeFlags(cmd)
	return cmd
}

func runServe(parent context.Context, config ServeConfig) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := logging.New(config.loggingConfig())
	slog.SetDefault(logger)
	logging.RouteKlog(logger)

	instrumentationConfig := instrumentation.LoadConfig()
	instrumentationConfig.ServiceVersion = rootCmd.Version
	provider, err := instrumentation.NewProvider(ctx, instrumentationConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Error("Error during instrumentation shutdown", logging.Err(err))
		}
	}()
	if provider.Enabled() {
		logger.Info("OpenTelemetry instrumentation enabled",
			slog.String("metrics", instrumentationConfig.MetricsExporter),
			slog.String("tracing", instrumentationConfig.TracingExporter))
	}

	eng, err := startEngine(ctx, logger, engineConfig{
		Kubeconfig:   config.Kubeconfig,
		Watch:        config.WatchKubeconfig,
		CatalogFile:  config.CatalogFile,
		MonitorAll:   config.MonitorAllContexts,
		Health:       config.Health,
		Connectivity: config.connectivityConfig(),
		Client:       config.clientOptions(),
		Metrics:      provider.Metrics(),
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	sc, err := server.NewServerContext(ctx,
		server.WithMonitor(eng.manager),
		server.WithCatalog(eng.catalog),
		server.WithLogger(logger),
		server.WithConfig(config.serverConfig(rootCmd.Version)),
		server.WithInstrumentationProvider(provider),
	)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		if err := sc.Shutdown(); err != nil {
			logger.Error("Error during server context shutdown", logging.Err(err))
		}
	}()

	mcpSrv := mcpserver.NewMCPServer(appName, rootCmd.Version,
		mcpserver.WithToolCapabilities(true),
	)
	if err := monitortools.RegisterMonitorTools(mcpSrv, sc); err != nil {
		return fmt.Errorf("failed to register monitor tools: %w", err)
	}

	var httpOpts []server.HTTPServerOption
	if config.Transport == transportStreamableHTTP {
		httpOpts = append(httpOpts, server.WithMCPHandler(config.HTTPEndpoint,
			mcpserver.NewStreamableHTTPServer(mcpSrv, mcpserver.WithEndpointPath(config.HTTPEndpoint))))
	}

	if config.Transport == transportStdio {
		// stdout belongs to the MCP protocol; the HTTP surfaces run alongside.
		return runWithStdio(ctx, cancel, mcpSrv, sc, config, logger, httpOpts)
	}
	return runHTTPServer(ctx, sc, config, logger, httpOpts)
}

// runWithStdio serves MCP on stdin/stdout until the client disconnects or ctx
// is cancelled. The HTTP surfaces are served too when --http-addr is set.
func runWithStdio(ctx context.Context, cancel context.CancelFunc, mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, config ServeConfig, logger *slog.Logger, httpOpts []server.HTTPServerOption) error {
	httpDone := make(chan error, 1)
	if config.HTTPAddr != "" {
		go func() {
			httpDone <- runHTTPServer(ctx, sc, config, logger, httpOpts)
		}()
	} else {
		close(httpDone)
	}

	stdioErr := runStdioServer(ctx, mcpSrv, logger)
	cancel()
	if err := <-httpDone; err != nil && stdioErr == nil {
		return err
	}
	return stdioErr
}
