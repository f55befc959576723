// Package testdata provides mock implementations for testing the MCP tool packages.
package testdata

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/giantswarm/kube-context-monitor/internal/catalog"
	"github.com/giantswarm/kube-context-monitor/internal/kubeconfig"
	"github.com/giantswarm/kube-context-monitor/internal/monitor"
	"github.com/giantswarm/kube-context-monitor/internal/server"
)

// Compile-time interface compliance check.
var _ server.Monitor = (*MockMonitor)(nil)

// MockMonitor implements server.Monitor with state set by the test.
type MockMonitor struct {
	mu            sync.Mutex
	contexts      []kubeconfig.Context
	health        map[string]monitor.HealthState
	current       string
	permissions   []monitor.PermissionRecord
	resources     map[string]map[string][]*unstructured.Unstructured
	checked       []string
	CheckErr      error
	resourceEvent monitor.Emitter[monitor.CacheUpdate]
	countEvent    monitor.Emitter[monitor.CacheUpdate]
	healthEvent   monitor.Emitter[monitor.HealthState]
}

// NewMockMonitor creates an empty MockMonitor.
func NewMockMonitor() *MockMonitor {
	return &MockMonitor{
		health:    make(map[string]monitor.HealthState),
		resources: make(map[string]map[string][]*unstructured.Unstructured),
	}
}

// AddContext registers a context with the given reachability.
func (m *MockMonitor) AddContext(name string, reachable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kctx := kubeconfig.Context{Name: name, Cluster: "cluster-" + name, User: "user-" + name}
	m.contexts = append(m.contexts, kctx)
	state := monitor.HealthState{ContextName: name, Reachable: reachable, Context: kctx}
	if !reachable {
		state.LastError = "connection refused"
	}
	m.health[name] = state
}

// SetCurrent sets the current context name.
func (m *MockMonitor) SetCurrent(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = name
}

// AddPermission appends a permission record.
func (m *MockMonitor) AddPermission(contextName, resource string, permitted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.permissions = append(m.permissions, monitor.PermissionRecord{
		ContextName:  contextName,
		ResourceName: resource,
		Permitted:    permitted,
	})
}

// SetResources replaces the cached objects of a kind in a context.
func (m *MockMonitor) SetResources(contextName, kind string, items ...*unstructured.Unstructured) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resources[contextName] == nil {
		m.resources[contextName] = make(map[string][]*unstructured.Unstructured)
	}
	m.resources[contextName][kind] = items
}

// Checked returns the contexts passed to CheckNow.
func (m *MockMonitor) Checked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.checked...)
}

// HealthStates implements server.Monitor.
func (m *MockMonitor) HealthStates() map[string]monitor.HealthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]monitor.HealthState, len(m.health))
	for k, v := range m.health {
		out[k] = v
	}
	return out
}

// Permissions implements server.Monitor.
func (m *MockMonitor) Permissions() []monitor.PermissionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]monitor.PermissionRecord(nil), m.permissions...)
}

// ResourcesCount implements server.Monitor. Only permitted kinds with a
// cache are counted.
func (m *MockMonitor) ResourcesCount() []monitor.ResourceCount {
	return m.counts(false)
}

// ActiveResourcesCount implements server.Monitor. Objects count as active
// when their status.phase is Running.
func (m *MockMonitor) ActiveResourcesCount() []monitor.ResourceCount {
	return m.counts(true)
}

func (m *MockMonitor) counts(active bool) []monitor.ResourceCount {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []monitor.ResourceCount
	for _, kctx := range m.contexts {
		for kind, items := range m.resources[kctx.Name] {
			n := 0
			for _, obj := range items {
				phase, _, _ := unstructured.NestedString(obj.Object, "status", "phase")
				if !active || phase == "Running" {
					n++
				}
			}
			out = append(out, monitor.ResourceCount{ContextName: kctx.Name, ResourceName: kind, Count: n})
		}
	}
	return out
}

// Resources implements server.Monitor.
func (m *MockMonitor) Resources(contextNames []string, kind string) []monitor.ContextResources {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]monitor.ContextResources, 0, len(contextNames))
	for _, name := range contextNames {
		items, ok := m.resources[name][kind]
		if !ok {
			continue
		}
		out = append(out, monitor.ContextResources{ContextName: name, Items: items})
	}
	return out
}

// Contexts implements server.Monitor.
func (m *MockMonitor) Contexts() []kubeconfig.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]kubeconfig.Context(nil), m.contexts...)
}

// CurrentContext implements server.Monitor.
func (m *MockMonitor) CurrentContext() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// CurrentContextHealth implements server.Monitor.
func (m *MockMonitor) CurrentContextHealth() (monitor.HealthState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.health[m.current]
	return state, ok
}

// CheckNow implements server.Monitor.
func (m *MockMonitor) CheckNow(_ context.Context, contextName string) (monitor.HealthState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CheckErr != nil {
		return monitor.HealthState{}, m.CheckErr
	}
	state, ok := m.health[contextName]
	if !ok {
		return monitor.HealthState{}, fmt.Errorf("%w: %q", monitor.ErrUnknownContext, contextName)
	}
	m.checked = append(m.checked, contextName)
	return state, nil
}

// OnResourceUpdated implements server.Monitor.
func (m *MockMonitor) OnResourceUpdated(fn func(monitor.CacheUpdate)) func() {
	return m.resourceEvent.Subscribe(fn)
}

// OnResourceCountUpdated implements server.Monitor.
func (m *MockMonitor) OnResourceCountUpdated(fn func(monitor.CacheUpdate)) func() {
	return m.countEvent.Subscribe(fn)
}

// OnHealthChanged implements server.Monitor.
func (m *MockMonitor) OnHealthChanged(fn func(monitor.HealthState)) func() {
	return m.healthEvent.Subscribe(fn)
}

// Catalog returns a catalog with pods, secrets and nodes.
func Catalog() *catalog.Catalog {
	watch := func(resource string) *catalog.WatchSpec {
		return &catalog.WatchSpec{GVR: schema.GroupVersionResource{Version: "v1", Resource: resource}}
	}
	return catalog.MustNew(
		catalog.Descriptor{Name: "pods", Namespaced: true, Watch: watch("pods"),
			PermissionRequests: []catalog.PermissionRequest{{Resource: "pods", Verb: "list"}}},
		catalog.Descriptor{Name: "secrets", Namespaced: true, Watch: watch("secrets"),
			PermissionRequests: []catalog.PermissionRequest{{Resource: "secrets", Verb: "list"}}},
		catalog.Descriptor{Name: "nodes", Watch: watch("nodes"),
			PermissionRequests: []catalog.PermissionRequest{{Resource: "nodes", Verb: "list"}}},
	)
}

// NewServerContext builds a ServerContext around m that logs nowhere.
func NewServerContext(m server.Monitor, opts ...server.Option) (*server.ServerContext, error) {
	base := []server.Option{
		server.WithMonitor(m),
		server.WithCatalog(Catalog()),
		server.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return server.NewServerContext(context.Background(), append(base, opts...)...)
}

// Pod returns a pod object in the given phase.
func Pod(namespace, name, phase string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "Pod",
		"metadata":   map[string]interface{}{"name": name, "namespace": namespace},
		"status":     map[string]interface{}{"phase": phase},
	}}
}

// Secret returns a secret holding one key.
func Secret(namespace, name, key, value string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "Secret",
		"metadata":   map[string]interface{}{"name": name, "namespace": namespace},
		"type":       "Opaque",
		"data":       map[string]interface{}{key: value},
	}}
}
