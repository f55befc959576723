// Package monitortools exposes the contexts manager's read side as MCP tools.
package monitortools

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/kube-context-monitor/internal/server"
	"github.com/giantswarm/kube-context-monitor/internal/tools"
)

// Tool names.
const (
	ToolContextsHealth      = "contexts_health"
	ToolContextsPermissions = "contexts_permissions"
	ToolResourcesCount      = "resources_count"
	ToolResourcesList       = "resources_list"
	ToolContextCheck        = "context_check"
	ToolCurrentContext      = "current_context"
)

func contextsParam() mcp.ToolOption {
	return mcp.WithArray(tools.ParamContexts,
		mcp.Description("Context names to include (optional, all monitored contexts when empty)"),
		mcp.WithStringItems(),
	)
}

// RegisterMonitorTools registers all monitor query tools with the MCP server.
func RegisterMonitorTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	kinds := sc.Catalog().Names()

	contextsHealthTool := mcp.NewTool(ToolContextsHealth,
		mcp.WithDescription("Report reachability, last error and server version of every monitored kubeconfig context"),
		contextsParam(),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(contextsHealthTool, tools.WrapWithAuditLogging(ToolContextsHealth, handleContextsHealth, sc))

	permissionsTool := mcp.NewTool(ToolContextsPermissions,
		mcp.WithDescription("List which resource kinds the current user may list and watch in each reachable context"),
		contextsParam(),
		mcp.WithString(tools.ParamKind,
			mcp.Description("Only report this resource kind (optional)"),
			mcp.Enum(kinds...),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(permissionsTool, tools.WrapWithAuditLogging(ToolContextsPermissions, handleContextsPermissions, sc))

	countTool := mcp.NewTool(ToolResourcesCount,
		mcp.WithDescription("Count cached objects per context and resource kind"),
		contextsParam(),
		mcp.WithBoolean(tools.ParamActive,
			mcp.Description("Count only active objects, e.g. running pods or ready nodes (default: false)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(countTool, tools.WrapWithAuditLogging(ToolResourcesCount, handleResourcesCount, sc))

	listTool := mcp.NewTool(ToolResourcesList,
		mcp.WithDescription("List cached objects of one resource kind across contexts. Secret values are redacted and verbose fields removed."),
		mcp.WithString(tools.ParamKind,
			mcp.Required(),
			mcp.Description("Resource kind to list"),
			mcp.Enum(kinds...),
		),
		contextsParam(),
		mcp.WithString(tools.ParamNamespace,
			mcp.Description("Only list objects in this namespace (optional)"),
		),
		mcp.WithString(tools.ParamSelector,
			mcp.Description("Label selector to filter objects (e.g., app=nginx,tier!=cache)"),
		),
		mcp.WithNumber(tools.ParamLimit,
			mcp.Description("Maximum objects per context (optional, capped by server configuration)"),
		),
		mcp.WithBoolean(tools.ParamSummary,
			mcp.Description("Return counts by status and namespace instead of objects (default: false)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(listTool, tools.WrapWithAuditLogging(ToolResourcesList, handleResourcesList, sc))

	checkTool := mcp.NewTool(ToolContextCheck,
		mcp.WithDescription("Run a connectivity check against one context now and return its health"),
		mcp.WithString(tools.ParamContext,
			mcp.Required(),
			mcp.Description("Name of the kubeconfig context to check"),
		),
	)
	s.AddTool(checkTool, tools.WrapWithAuditLogging(ToolContextCheck, handleContextCheck, sc))

	currentTool := mcp.NewTool(ToolCurrentContext,
		mcp.WithDescription("Get the kubeconfig current context and its health"),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(currentTool, tools.WrapWithAuditLogging(ToolCurrentContext, handleCurrentContext, sc))

	return nil
}
