package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"
)

// runStdioServer runs the MCP server over stdin/stdout until the input is
// closed or ctx is cancelled.
func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, logger *slog.Logger) error {
	stdio := mcpserver.NewStdioServer(mcpSrv)
	stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))

	logger.Info("MCP stdio server starting")
	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server stopped with error: %w", err)
	}

	// Don't print to stdout in stdio mode as it interferes with MCP communication
	return nil
}
