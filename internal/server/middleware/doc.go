// Package middleware provides HTTP middleware for the kube-context-monitor
// API server: request metrics, otelhttp tracing, CORS, security headers and
// request size limits.
package middleware
