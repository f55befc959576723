package monitortools

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"k8s.io/apimachinery/pkg/labels"

	"github.com/giantswarm/kube-context-monitor/internal/monitor"
	"github.com/giantswarm/kube-context-monitor/internal/server"
	"github.com/giantswarm/kube-context-monitor/internal/tools"
	"github.com/giantswarm/kube-context-monitor/internal/tools/output"
)

// ContextsHealthResult is returned by contexts_health.
type ContextsHealthResult struct {
	Contexts    []monitor.HealthState `json:"contexts"`
	Reachable   int                   `json:"reachable"`
	Unreachable int                   `json:"unreachable"`
	Checking    int                   `json:"checking"`
}

// CurrentContextResult is returned by current_context.
type CurrentContextResult struct {
	Name   string               `json:"name"`
	Health *monitor.HealthState `json:"health,omitempty"`
}

// ResourcesListResult is returned by resources_list.
type ResourcesListResult struct {
	Kind string `json:"kind"`
	*output.Result
}

func handleContextsHealth(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	states := sc.Monitor().HealthStates()
	keep := selection(tools.StringSlice(request.GetArguments(), tools.ParamContexts))

	result := ContextsHealthResult{Contexts: make([]monitor.HealthState, 0, len(states))}
	for _, name := range sortedKeys(states) {
		if !keep(name) {
			continue
		}
		state := states[name]
		switch {
		case state.Checking:
			result.Checking++
		case state.Reachable:
			result.Reachable++
		default:
			result.Unreachable++
		}
		result.Contexts = append(result.Contexts, state)
	}

	return jsonResult(result)
}

func handleContextsPermissions(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	keep := selection(tools.StringSlice(args, tools.ParamContexts))
	kind := request.GetString(tools.ParamKind, "")

	records := make([]monitor.PermissionRecord, 0)
	for _, rec := range sc.Monitor().Permissions() {
		if !keep(rec.ContextName) || (kind != "" && rec.ResourceName != kind) {
			continue
		}
		records = append(records, rec)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].ContextName != records[j].ContextName {
			return records[i].ContextName < records[j].ContextName
		}
		return records[i].ResourceName < records[j].ResourceName
	})

	return jsonResult(map[string]interface{}{"permissions": records})
}

func handleResourcesCount(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	keep := selection(tools.StringSlice(args, tools.ParamContexts))
	active := tools.Bool(args, tools.ParamActive)

	m := sc.Monitor()
	var all []monitor.ResourceCount
	if active {
		all = m.ActiveResourcesCount()
	} else {
		all = m.ResourcesCount()
	}

	counts := make([]monitor.ResourceCount, 0, len(all))
	for _, c := range all {
		if keep(c.ContextName) {
			counts = append(counts, c)
		}
	}
	sort.SliceStable(counts, func(i, j int) bool {
		if counts[i].ContextName != counts[j].ContextName {
			return counts[i].ContextName < counts[j].ContextName
		}
		return counts[i].ResourceName < counts[j].ResourceName
	})

	return jsonResult(map[string]interface{}{"active": active, "counts": counts})
}

func handleResourcesList(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	kind, err := request.RequireString(tools.ParamKind)
	if err != nil {
		return mcp.NewToolResultError("kind is required"), nil
	}
	if _, ok := sc.Catalog().Get(kind); !ok {
		return mcp.NewToolResultError(fmt.Sprintf("Unknown resource kind %q", kind)), nil
	}

	var selector labels.Selector
	if raw := request.GetString(tools.ParamSelector, ""); raw != "" {
		selector, err = labels.Parse(raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid label selector: %v", err)), nil
		}
	}

	args := request.GetArguments()
	m := sc.Monitor()
	names := tools.StringSlice(args, tools.ParamContexts)
	if len(names) == 0 {
		names = sortedKeys(m.HealthStates())
	}

	sets := make([]output.ContextItems, 0, len(names))
	for _, res := range m.Resources(names, kind) {
		sets = append(sets, output.ContextItems{ContextName: res.ContextName, Items: res.Items})
	}

	processed := getOutputProcessor(sc).Process(sets, output.Request{
		Limit:     tools.Int(args, tools.ParamLimit),
		Namespace: request.GetString(tools.ParamNamespace, ""),
		Selector:  selector,
		Summary:   tools.Bool(args, tools.ParamSummary),
	})

	return jsonResult(ResourcesListResult{Kind: kind, Result: processed})
}

func handleContextCheck(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	name, err := request.RequireString(tools.ParamContext)
	if err != nil || name == "" {
		return mcp.NewToolResultError("context is required"), nil
	}

	state, err := sc.Monitor().CheckNow(ctx, name)
	switch {
	case errors.Is(err, monitor.ErrUnknownContext):
		return mcp.NewToolResultError(fmt.Sprintf("Unknown context %q", name)), nil
	case err != nil:
		return mcp.NewToolResultError(fmt.Sprintf("Failed to check context: %v", err)), nil
	}

	return jsonResult(state)
}

func handleCurrentContext(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	m := sc.Monitor()
	result := CurrentContextResult{Name: m.CurrentContext()}
	if state, ok := m.CurrentContextHealth(); ok {
		result.Health = &state
	}
	return jsonResult(result)
}

// getOutputProcessor creates an output processor from server context configuration.
func getOutputProcessor(sc *server.ServerContext) *output.Processor {
	outputCfg := sc.OutputConfig()
	cfg := output.DefaultConfig()
	cfg.MaxItems = outputCfg.MaxItems
	cfg.MaxContexts = outputCfg.MaxContexts
	cfg.SlimOutput = outputCfg.SlimOutput
	cfg.MaskSecrets = outputCfg.MaskSecrets
	cfg.SummaryThreshold = outputCfg.SummaryThreshold
	return output.NewProcessor(cfg)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	text, err := tools.JSONResult(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

// selection returns a filter that accepts every name when names is empty.
func selection(names []string) func(string) bool {
	if len(names) == 0 {
		return func(string) bool { return true }
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}

func sortedKeys(states map[string]monitor.HealthState) []string {
	names := make([]string, 0, len(states))
	for name := range states {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
