package monitortools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/kube-context-monitor/internal/monitor"
	"github.com/giantswarm/kube-context-monitor/internal/server"
	"github.com/giantswarm/kube-context-monitor/internal/tools/output"
	"github.com/giantswarm/kube-context-monitor/internal/tools/testdata"
)

func newTestServerContext(t *testing.T, m *testdata.MockMonitor, opts ...server.Option) *server.ServerContext {
	t.Helper()
	sc, err := testdata.NewServerContext(m, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func newRequest(args map[string]interface{}) mcp.CallToolRequest {
	var request mcp.CallToolRequest
	request.Params.Arguments = args
	return request
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func decodeResult[T any](t *testing.T, result *mcp.CallToolResult) T {
	t.Helper()
	require.False(t, result.IsError, resultText(t, result))
	var out T
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &out))
	return out
}

func TestHandleContextsHealth(t *testing.T) {
	m := testdata.NewMockMonitor()
	m.AddContext("prod", false)
	m.AddContext("dev", true)
	m.AddContext("staging", true)
	sc := newTestServerContext(t, m)

	t.Run("all contexts sorted", func(t *testing.T) {
		result, err := handleContextsHealth(context.Background(), newRequest(nil), sc)
		require.NoError(t, err)

		got := decodeResult[ContextsHealthResult](t, result)
		require.Len(t, got.Contexts, 3)
		assert.Equal(t, "dev", got.Contexts[0].ContextName)
		assert.Equal(t, "prod", got.Contexts[1].ContextName)
		assert.Equal(t, "connection refused", got.Contexts[1].LastError)
		assert.Equal(t, 2, got.Reachable)
		assert.Equal(t, 1, got.Unreachable)
	})

	t.Run("filtered", func(t *testing.T) {
		result, err := handleContextsHealth(context.Background(), newRequest(map[string]interface{}{
			"contexts": []interface{}{"staging"},
		}), sc)
		require.NoError(t, err)

		got := decodeResult[ContextsHealthResult](t, result)
		require.Len(t, got.Contexts, 1)
		assert.Equal(t, "staging", got.Contexts[0].ContextName)
	})
}

func TestHandleContextsPermissions(t *testing.T) {
	m := testdata.NewMockMonitor()
	m.AddContext("dev", true)
	m.AddContext("prod", true)
	m.AddPermission("prod", "pods", true)
	m.AddPermission("dev", "secrets", false)
	m.AddPermission("dev", "pods", true)
	sc := newTestServerContext(t, m)

	result, err := handleContextsPermissions(context.Background(), newRequest(nil), sc)
	require.NoError(t, err)
	got := decodeResult[struct {
		Permissions []monitor.PermissionRecord `json:"permissions"`
	}](t, result)
	require.Len(t, got.Permissions, 3)
	assert.Equal(t, "dev", got.Permissions[0].ContextName)
	assert.Equal(t, "pods", got.Permissions[0].ResourceName)
	assert.Equal(t, "secrets", got.Permissions[1].ResourceName)
	assert.False(t, got.Permissions[1].Permitted)

	result, err = handleContextsPermissions(context.Background(), newRequest(map[string]interface{}{
		"kind": "pods",
	}), sc)
	require.NoError(t, err)
	got = decodeResult[struct {
		Permissions []monitor.PermissionRecord `json:"permissions"`
	}](t, result)
	assert.Len(t, got.Permissions, 2)
}

func TestHandleResourcesCount(t *testing.T) {
	m := testdata.NewMockMonitor()
	m.AddContext("dev", true)
	m.AddContext("prod", true)
	m.SetResources("dev", "pods",
		testdata.Pod("default", "a", "Running"),
		testdata.Pod("default", "b", "Pending"),
	)
	m.SetResources("prod", "pods", testdata.Pod("default", "c", "Running"))
	sc := newTestServerContext(t, m)

	type countsResult struct {
		Active bool                    `json:"active"`
		Counts []monitor.ResourceCount `json:"counts"`
	}

	tests := []struct {
		name string
		args map[string]interface{}
		want []monitor.ResourceCount
	}{
		{
			name: "all objects",
			args: nil,
			want: []monitor.ResourceCount{
				{ContextName: "dev", ResourceName: "pods", Count: 2},
				{ContextName: "prod", ResourceName: "pods", Count: 1},
			},
		},
		{
			name: "active only",
			args: map[string]interface{}{"active": true},
			want: []monitor.ResourceCount{
				{ContextName: "dev", ResourceName: "pods", Count: 1},
				{ContextName: "prod", ResourceName: "pods", Count: 1},
			},
		},
		{
			name: "one context",
			args: map[string]interface{}{"contexts": []interface{}{"prod"}},
			want: []monitor.ResourceCount{
				{ContextName: "prod", ResourceName: "pods", Count: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := handleResourcesCount(context.Background(), newRequest(tt.args), sc)
			require.NoError(t, err)
			got := decodeResult[countsResult](t, result)
			assert.Equal(t, tt.want, got.Counts)
		})
	}
}

func TestHandleResourcesList(t *testing.T) {
	m := testdata.NewMockMonitor()
	m.AddContext("dev", true)
	m.AddContext("prod", true)
	m.SetResources("dev", "secrets", testdata.Secret("default", "db", "password", "c2VjcmV0"))
	m.SetResources("prod", "pods",
		testdata.Pod("default", "web-2", "Running"),
		testdata.Pod("default", "web-1", "Running"),
		testdata.Pod("kube-system", "dns", "Running"),
	)
	sc := newTestServerContext(t, m)

	t.Run("masks secrets", func(t *testing.T) {
		result, err := handleResourcesList(context.Background(), newRequest(map[string]interface{}{
			"kind": "secrets",
		}), sc)
		require.NoError(t, err)

		got := decodeResult[ResourcesListResult](t, result)
		assert.Equal(t, "secrets", got.Kind)
		require.Len(t, got.Contexts, 1)
		require.Len(t, got.Contexts[0].Items, 1)
		data := got.Contexts[0].Items[0]["data"].(map[string]interface{})
		assert.Equal(t, output.RedactedValue, data["password"])
		assert.Equal(t, 1, got.SecretsMasked)
	})

	t.Run("namespace and limit", func(t *testing.T) {
		result, err := handleResourcesList(context.Background(), newRequest(map[string]interface{}{
			"kind":      "pods",
			"contexts":  []interface{}{"prod"},
			"namespace": "default",
			"limit":     float64(1),
		}), sc)
		require.NoError(t, err)

		got := decodeResult[ResourcesListResult](t, result)
		require.Len(t, got.Contexts, 1)
		prod := got.Contexts[0]
		assert.Equal(t, 2, prod.Total)
		require.Len(t, prod.Items, 1)
		metadata := prod.Items[0]["metadata"].(map[string]interface{})
		assert.Equal(t, "web-1", metadata["name"])
		require.NotNil(t, prod.Warning)
		assert.Equal(t, 2, prod.Warning.Total)
	})

	t.Run("summary", func(t *testing.T) {
		result, err := handleResourcesList(context.Background(), newRequest(map[string]interface{}{
			"kind":    "pods",
			"summary": true,
		}), sc)
		require.NoError(t, err)

		got := decodeResult[ResourcesListResult](t, result)
		require.Len(t, got.Contexts, 1)
		require.NotNil(t, got.Contexts[0].Summary)
		assert.Equal(t, 3, got.Contexts[0].Summary.Total)
		assert.Equal(t, 3, got.Contexts[0].Summary.ByStatus["Running"])
	})

	t.Run("invalid label selector", func(t *testing.T) {
		result, err := handleResourcesList(context.Background(), newRequest(map[string]interface{}{
			"kind":          "pods",
			"labelSelector": "app in (",
		}), sc)
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "Invalid label selector")
	})

	t.Run("unknown kind", func(t *testing.T) {
		result, err := handleResourcesList(context.Background(), newRequest(map[string]interface{}{
			"kind": "widgets",
		}), sc)
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, resultText(t, result), "widgets")
	})

	t.Run("missing kind", func(t *testing.T) {
		result, err := handleResourcesList(context.Background(), newRequest(nil), sc)
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})
}

func TestHandleResourcesList_RespectsOutputConfig(t *testing.T) {
	m := testdata.NewMockMonitor()
	m.AddContext("dev", true)
	m.SetResources("dev", "secrets", testdata.Secret("default", "db", "password", "c2VjcmV0"))

	cfg := server.NewDefaultConfig()
	cfg.Output.MaskSecrets = false
	sc := newTestServerContext(t, m, server.WithConfig(cfg))

	result, err := handleResourcesList(context.Background(), newRequest(map[string]interface{}{
		"kind": "secrets",
	}), sc)
	require.NoError(t, err)

	got := decodeResult[ResourcesListResult](t, result)
	data := got.Contexts[0].Items[0]["data"].(map[string]interface{})
	assert.Equal(t, "c2VjcmV0", data["password"])
}

func TestHandleContextCheck(t *testing.T) {
	m := testdata.NewMockMonitor()
	m.AddContext("dev", true)
	sc := newTestServerContext(t, m)

	result, err := handleContextCheck(context.Background(), newRequest(map[string]interface{}{
		"context": "dev",
	}), sc)
	require.NoError(t, err)
	got := decodeResult[monitor.HealthState](t, result)
	assert.True(t, got.Reachable)
	assert.Equal(t, []string{"dev"}, m.Checked())

	result, err = handleContextCheck(context.Background(), newRequest(map[string]interface{}{
		"context": "missing",
	}), sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Unknown context")

	result, err = handleContextCheck(context.Background(), newRequest(nil), sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)

	m.CheckErr = monitor.ErrManagerClosed
	result, err = handleContextCheck(context.Background(), newRequest(map[string]interface{}{
		"context": "dev",
	}), sc)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Failed to check context")
}

func TestHandleCurrentContext(t *testing.T) {
	m := testdata.NewMockMonitor()
	sc := newTestServerContext(t, m)

	result, err := handleCurrentContext(context.Background(), newRequest(nil), sc)
	require.NoError(t, err)
	got := decodeResult[CurrentContextResult](t, result)
	assert.Empty(t, got.Name)
	assert.Nil(t, got.Health)

	m.AddContext("dev", true)
	m.SetCurrent("dev")

	result, err = handleCurrentContext(context.Background(), newRequest(nil), sc)
	require.NoError(t, err)
	got = decodeResult[CurrentContextResult](t, result)
	assert.Equal(t, "dev", got.Name)
	require.NotNil(t, got.Health)
	assert.True(t, got.Health.Reachable)
}
