package instrumentation

import (
	"context"
	"log/slog"
	"time"
)

// ToolInvocation captures one MCP tool call for structured logging.
//
// Two attribute sets are available: LogAttrs keeps label cardinality low
// (context type instead of name) for high-volume logs, while LogAuditAttrs
// carries the full context name and trace identifiers for audit trails.
type ToolInvocation struct {
	Tool         string
	StartTime    time.Time
	Duration     time.Duration
	Success      bool
	Error        string
	ContextName  string
	ResourceType string
	ItemCount    int
	TraceID      string
	SpanID       string
}

// NewToolInvocation starts timing a tool call.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{
		Tool:      tool,
		StartTime: time.Now(),
	}
}

// WithContext sets the kubeconfig context the call targeted.
func (ti *ToolInvocation) WithContext(contextName string) *ToolInvocation {
	ti.ContextName = contextName
	return ti
}

// WithResource sets the resource kind the call targeted.
func (ti *ToolInvocation) WithResource(resourceType string) *ToolInvocation {
	ti.ResourceType = resourceType
	return ti
}

// WithItemCount records how many items the call returned.
func (ti *ToolInvocation) WithItemCount(n int) *ToolInvocation {
	ti.ItemCount = n
	return ti
}

// WithSpanContext copies the trace and span IDs from ctx, if any.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	ti.TraceID = GetTraceID(ctx)
	ti.SpanID = GetSpanID(ctx)
	return ti
}

// Complete records the outcome and duration.
func (ti *ToolInvocation) Complete(success bool, err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = success
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// CompleteSuccess marks the call as successful.
func (ti *ToolInvocation) CompleteSuccess() *ToolInvocation {
	return ti.Complete(true, nil)
}

// CompleteWithError marks the call as failed with err.
func (ti *ToolInvocation) CompleteWithError(err error) *ToolInvocation {
	return ti.Complete(false, err)
}

// ContextType returns the classified context type.
func (ti *ToolInvocation) ContextType() string {
	return ClassifyContextName(ti.ContextName)
}

// Status returns StatusSuccess or StatusError.
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns low-cardinality attributes.
func (ti *ToolInvocation) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("tool", ti.Tool),
		slog.String("context_type", ti.ContextType()),
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}
	if ti.ResourceType != "" {
		attrs = append(attrs, slog.String("resource", ti.ResourceType))
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String("error", ti.Error))
	}
	return attrs
}

// LogAuditAttrs returns the full attributes for audit logging.
func (ti *ToolInvocation) LogAuditAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("tool", ti.Tool),
		slog.String("context", ti.ContextName),
		slog.String("context_type", ti.ContextType()),
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
		slog.Int("items", ti.ItemCount),
	}
	if ti.ResourceType != "" {
		attrs = append(attrs, slog.String("resource", ti.ResourceType))
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String("error", ti.Error))
	}
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID))
	}
	if ti.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", ti.SpanID))
	}
	return attrs
}

// AuditLogger writes tool invocations as structured audit records.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates an AuditLogger. A nil logger uses slog.Default().
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{logger: logger}
}

// LogToolInvocation writes ti at info level, or warn level when it failed.
func (a *AuditLogger) LogToolInvocation(ctx context.Context, ti *ToolInvocation) {
	level := slog.LevelInfo
	if !ti.Success {
		level = slog.LevelWarn
	}
	a.logger.LogAttrs(ctx, level, "tool invocation", ti.LogAuditAttrs()...)
}

// TraceIDFromContext returns the trace ID in ctx, or "" if there is none.
func TraceIDFromContext(ctx context.Context) string {
	return GetTraceID(ctx)
}
