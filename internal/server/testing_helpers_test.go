package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/giantswarm/kube-context-monitor/internal/catalog"
	"github.com/giantswarm/kube-context-monitor/internal/kubeconfig"
	"github.com/giantswarm/kube-context-monitor/internal/monitor"
)

// newTestLogger creates a logger for tests that only outputs errors.
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(catalog.Descriptor{
		Name:               "pods",
		Namespaced:         true,
		PermissionRequests: []catalog.PermissionRequest{{Resource: "pods", Verb: "list"}, {Resource: "pods", Verb: "watch"}},
		Watch:              &catalog.WatchSpec{GVR: schema.GroupVersionResource{Version: "v1", Resource: "pods"}},
	})
	require.NoError(t, err)
	return cat
}

func testPod(namespace, name string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "Pod",
		"metadata":   map[string]interface{}{"name": name, "namespace": namespace},
	}}
}

// fakeMonitor is a Monitor whose state is set by the test.
type fakeMonitor struct {
	mu          sync.Mutex
	contexts    []kubeconfig.Context
	current     string
	health      map[string]monitor.HealthState
	currentOK   bool
	permissions []monitor.PermissionRecord
	counts      []monitor.ResourceCount
	active      []monitor.ResourceCount
	resources   map[string]map[string][]*unstructured.Unstructured
	closed      bool
	checks      []string

	resourceUpdated      monitor.Emitter[monitor.CacheUpdate]
	resourceCountUpdated monitor.Emitter[monitor.CacheUpdate]
	healthChanged        monitor.Emitter[monitor.HealthState]
}

func newFakeMonitor() *fakeMonitor {
	return &fakeMonitor{
		health:    make(map[string]monitor.HealthState),
		resources: make(map[string]map[string][]*unstructured.Unstructured),
	}
}

func (f *fakeMonitor) addContext(name string, reachable bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kctx := kubeconfig.Context{Name: name, Cluster: "cluster-" + name, User: "user"}
	f.contexts = append(f.contexts, kctx)
	f.health[name] = monitor.HealthState{ContextName: name, Reachable: reachable, Context: kctx}
}

func (f *fakeMonitor) HealthStates() map[string]monitor.HealthState {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]monitor.HealthState, len(f.health))
	for k, v := range f.health {
		out[k] = v
	}
	return out
}

func (f *fakeMonitor) Permissions() []monitor.PermissionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]monitor.PermissionRecord(nil), f.permissions...)
}

func (f *fakeMonitor) ResourcesCount() []monitor.ResourceCount {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts
}

func (f *fakeMonitor) ActiveResourcesCount() []monitor.ResourceCount {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeMonitor) Resources(contextNames []string, kind string) []monitor.ContextResources {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]monitor.ContextResources, 0, len(contextNames))
	for _, name := range contextNames {
		items, ok := f.resources[name][kind]
		if !ok {
			continue
		}
		out = append(out, monitor.ContextResources{ContextName: name, Items: items})
	}
	return out
}

func (f *fakeMonitor) Contexts() []kubeconfig.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kubeconfig.Context(nil), f.contexts...)
}

func (f *fakeMonitor) CurrentContext() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeMonitor) CurrentContextHealth() (monitor.HealthState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.currentOK {
		return monitor.HealthState{}, false
	}
	return f.health[f.current], true
}

func (f *fakeMonitor) CheckNow(_ context.Context, contextName string) (monitor.HealthState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return monitor.HealthState{}, monitor.ErrManagerClosed
	}
	state, ok := f.health[contextName]
	if !ok {
		return monitor.HealthState{}, fmt.Errorf("%w: %q", monitor.ErrUnknownContext, contextName)
	}
	f.checks = append(f.checks, contextName)
	return state, nil
}

func (f *fakeMonitor) OnResourceUpdated(fn func(monitor.CacheUpdate)) func() {
	return f.resourceUpdated.Subscribe(fn)
}

func (f *fakeMonitor) OnResourceCountUpdated(fn func(monitor.CacheUpdate)) func() {
	return f.resourceCountUpdated.Subscribe(fn)
}

func (f *fakeMonitor) OnHealthChanged(fn func(monitor.HealthState)) func() {
	return f.healthChanged.Subscribe(fn)
}

func newTestServerContext(t *testing.T, m Monitor, opts ...Option) *ServerContext {
	t.Helper()
	base := []Option{
		WithMonitor(m),
		WithCatalog(testCatalog(t)),
		WithLogger(newTestLogger()),
	}
	sc, err := NewServerContext(context.Background(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}
