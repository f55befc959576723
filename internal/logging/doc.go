// Package logging provides structured logging utilities for kube-context-monitor.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Process logger construction with optional file rotation (lumberjack)
//   - Routing of client-go's klog output into slog
//   - Host/URL sanitization for API server addresses
//   - Consistent attribute naming across the codebase
//
// # Usage Patterns
//
// Create a logger scoped to a context and resource kind:
//
//	logger := logging.WithResource(slog.Default(), "prod-eu", "pods")
//	logger.Info("informer started", logging.Namespace("default"))
//
// Sanitize API server addresses before logging:
//
//	logger.Warn("health check failed",
//	    logging.Host(restConfig.Host),
//	    logging.SanitizedErr(err))
package logging
