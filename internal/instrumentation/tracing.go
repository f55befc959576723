package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer every monitor and tool span is started on.
const TracerName = "github.com/giantswarm/kube-context-monitor"

// Span attribute keys.
const (
	SpanAttrContext      = "kcm.context"
	SpanAttrContextType  = "kcm.context_type"
	SpanAttrOperation    = "kcm.operation"
	SpanAttrTool         = "mcp.tool"
	SpanAttrNamespace    = "k8s.namespace"
	SpanAttrResourceType = "k8s.resource_type"
)

// SpanTarget describes what a span operates on. Empty fields produce no
// attribute.
type SpanTarget struct {
	Context   string
	Namespace string
	Resource  string
}

// Attributes converts the target to span attributes. A context name is
// always accompanied by its classified type so dashboards can group spans
// without exploding cardinality.
func (t SpanTarget) Attributes() []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if t.Context != "" {
		attrs = append(attrs,
			attribute.String(SpanAttrContext, t.Context),
			attribute.String(SpanAttrContextType, ClassifyContextName(t.Context)))
	}
	if t.Namespace != "" {
		attrs = append(attrs, attribute.String(SpanAttrNamespace, t.Namespace))
	}
	if t.Resource != "" {
		attrs = append(attrs, attribute.String(SpanAttrResourceType, t.Resource))
	}
	return attrs
}

func tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(TracerName)
}

// StartToolSpan starts a server span named "tool.<name>" for an MCP tool call.
func StartToolSpan(ctx context.Context, toolName string, target SpanTarget) (context.Context, trace.Span) {
	attrs := append([]attribute.KeyValue{attribute.String(SpanAttrTool, toolName)}, target.Attributes()...)
	return tracer().Start(ctx, "tool."+toolName,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindServer))
}

// StartMonitorSpan starts a client span named "monitor.<operation>" for a
// call the monitor makes against the API server of contextName.
func StartMonitorSpan(ctx context.Context, operation, contextName string, extra ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs := append([]attribute.KeyValue{attribute.String(SpanAttrOperation, operation)},
		SpanTarget{Context: contextName}.Attributes()...)
	attrs = append(attrs, extra...)
	return tracer().Start(ctx, "monitor."+operation,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient))
}

// SetSpanError marks the span failed. A nil error leaves it untouched.
func SetSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanSuccess marks the span OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// GetTraceID returns the trace ID of the span in ctx, or "" without one.
func GetTraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID().String()
	}
	return ""
}

// GetSpanID returns the span ID of the span in ctx, or "" without one.
func GetSpanID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.SpanID().String()
	}
	return ""
}
