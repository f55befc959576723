package logging

import (
	"log/slog"
	"time"
)

// Attribute keys shared by every log line of the monitor.
const (
	KeyOperation = "operation"
	KeyContext   = "context"
	KeyCluster   = "cluster"
	KeyNamespace = "namespace"
	KeyResource  = "resource"
	KeyDuration  = "duration"
	KeyError     = "error"
	KeyHost      = "host"
	KeyReason    = "reason"
)

// WithContext scopes logger to one kubeconfig context.
func WithContext(logger *slog.Logger, contextName string) *slog.Logger {
	return logger.With(Context(contextName))
}

// WithResource scopes logger to one resource kind of one context.
func WithResource(logger *slog.Logger, contextName, resource string) *slog.Logger {
	return logger.With(Context(contextName), Resource(resource))
}

// Attribute constructors for the shared keys.

func Operation(op string) slog.Attr { return slog.String(KeyOperation, op) }
func Context(name string) slog.Attr { return slog.String(KeyContext, name) }
func Cluster(name string) slog.Attr { return slog.String(KeyCluster, name) }
func Namespace(ns string) slog.Attr { return slog.String(KeyNamespace, ns) }
func Resource(name string) slog.Attr { return slog.String(KeyResource, name) }
func Reason(reason string) slog.Attr { return slog.String(KeyReason, reason) }
func Duration(d time.Duration) slog.Attr { return slog.Duration(KeyDuration, d) }

// Err logs err's message; a nil error logs an empty string.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

// SanitizedErr is Err with IP addresses redacted. Use it for errors that
// quote API server addresses.
func SanitizedErr(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, SanitizeHost(err.Error()))
}

// Host logs an API server address with IP addresses redacted.
func Host(host string) slog.Attr {
	return slog.String(KeyHost, SanitizeHost(host))
}
