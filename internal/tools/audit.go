// Package tools provides shared utilities and types for MCP tool implementations.
package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/giantswarm/kube-context-monitor/internal/instrumentation"
	"github.com/giantswarm/kube-context-monitor/internal/server"
)

// ToolHandler is the signature for MCP tool handler functions that take ServerContext.
type ToolHandler func(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error)

// WrapWithAuditLogging wraps a tool handler with a tool span and an audit
// record. The record carries the targeted context and resource kind from the
// request arguments, the call duration, and the outcome taken from either the
// Go error or the IsError flag of the result.
func WrapWithAuditLogging(
	toolName string,
	handler ToolHandler,
	sc *server.ServerContext,
) func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		invocation := instrumentation.NewToolInvocation(toolName)
		extractAuditInfoFromArgs(invocation, request.GetArguments())

		ctx, span := instrumentation.StartToolSpan(ctx, toolName, instrumentation.SpanTarget{
			Context:  invocation.ContextName,
			Resource: invocation.ResourceType,
		})
		defer span.End()
		invocation.WithSpanContext(ctx)

		result, err := handler(ctx, request, sc)

		switch {
		case err != nil:
			invocation.CompleteWithError(err)
			instrumentation.SetSpanError(span, err)
		case result != nil && result.IsError:
			// MCP tool errors are returned in the result, not as Go errors
			invocation.Complete(false, nil)
			if len(result.Content) > 0 {
				if text, ok := result.Content[0].(mcp.TextContent); ok {
					invocation.Error = text.Text
				}
			}
			span.SetAttributes(attribute.Bool("mcp.tool.error", true))
		default:
			invocation.CompleteSuccess()
			instrumentation.SetSpanSuccess(span)
		}

		if audit := sc.AuditLogger(); audit != nil {
			audit.LogToolInvocation(ctx, invocation)
		}
		return result, err
	}
}

// extractAuditInfoFromArgs fills the context and resource kind of the
// invocation. A single-element "contexts" list counts as a context.
func extractAuditInfoFromArgs(invocation *instrumentation.ToolInvocation, args map[string]interface{}) {
	if name, ok := args[ParamContext].(string); ok && name != "" {
		invocation.WithContext(name)
	} else if names := StringSlice(args, ParamContexts); len(names) == 1 {
		invocation.WithContext(names[0])
	}

	if kind, ok := args[ParamKind].(string); ok && kind != "" {
		invocation.WithResource(kind)
	}
}
