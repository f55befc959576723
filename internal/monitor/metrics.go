package monitor

import (
	"context"
	"time"
)

// Access review results.
const (
	ReviewAllowed = "allowed"
	ReviewDenied  = "denied"
	ReviewError   = "error"
)

// Informer event kinds.
const (
	InformerEventAdd    = "add"
	InformerEventUpdate = "update"
	InformerEventDelete = "delete"
)

// MetricsRecorder defines the interface for recording monitor metrics.
// This allows decoupling from the concrete instrumentation implementation.
type MetricsRecorder interface {
	// RecordHealthCheck records the outcome and duration of one health check.
	RecordHealthCheck(ctx context.Context, contextName string, reachable bool, duration time.Duration)

	// RecordAccessReview records one SelfSubjectAccessReview result.
	RecordAccessReview(ctx context.Context, contextName, result string)

	// RecordInformerEvent records one add, update or delete processed by an informer.
	RecordInformerEvent(ctx context.Context, contextName, resource, event string)

	// RecordInformerOffline records an informer going offline.
	RecordInformerOffline(ctx context.Context, contextName, resource string)

	// SetContextCount sets the number of monitored contexts.
	SetContextCount(ctx context.Context, count int)
}

// noopMetricsRecorder is a no-op implementation of MetricsRecorder.
type noopMetricsRecorder struct{}

func (noopMetricsRecorder) RecordHealthCheck(context.Context, string, bool, time.Duration) {}
func (noopMetricsRecorder) RecordAccessReview(context.Context, string, string)             {}
func (noopMetricsRecorder) RecordInformerEvent(context.Context, string, string, string)    {}
func (noopMetricsRecorder) RecordInformerOffline(context.Context, string, string)          {}
func (noopMetricsRecorder) SetContextCount(context.Context, int)                           {}
