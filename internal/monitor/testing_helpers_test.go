package monitor

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
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/giantswarm/kube-context-monitor/internal/catalog"
	"github.com/giantswarm/kube-context-monitor/internal/kubeconfig"
)

// newTestLogger creates a logger for tests that only outputs errors.
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testCatalog has one watched namespaced kind, one namespaced kind without a
// watch and one watched cluster-scoped kind.
func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(
		catalog.Descriptor{
			Name:               "resource1",
			Namespaced:         true,
			PermissionRequests: []catalog.PermissionRequest{{Resource: "resource1", Verb: "list"}, {Resource: "resource1", Verb: "watch"}},
			Watch:              &catalog.WatchSpec{GVR: schema.GroupVersionResource{Group: "example.com", Version: "v1", Resource: "resource1"}},
			IsActive: func(obj *unstructured.Unstructured) bool {
				phase, _, _ := unstructured.NestedString(obj.Object, "status", "phase")
				return phase == "Running"
			},
		},
		catalog.Descriptor{
			Name:               "resource2",
			Namespaced:         true,
			PermissionRequests: []catalog.PermissionRequest{{Resource: "resource2", Verb: "list"}},
		},
		catalog.Descriptor{
			Name:               "resource3",
			PermissionRequests: []catalog.PermissionRequest{{Resource: "resource3", Verb: "list"}},
			Watch:              &catalog.WatchSpec{GVR: schema.GroupVersionResource{Group: "example.com", Version: "v1", Resource: "resource3"}},
		},
	)
	require.NoError(t, err)
	return cat
}

func testContext(name, user string) kubeconfig.Context {
	return kubeconfig.Context{Name: name, Cluster: "cluster-" + name, User: user, Namespace: "default"}
}

func testObject(namespace, name, phase string) *unstructured.Unstructured {
	return &unstructured.Unstructured{
		Object: map[string]interface{}{
			"apiVersion": "example.com/v1",
			"kind":       "Resource",
			"metadata": map[string]interface{}{
				"name":      name,
				"namespace": namespace,
			},
			"status": map[string]interface{}{
				"phase": phase,
			},
		},
	}
}

// fakeHealth is a HealthChecker driven by the test.
type fakeHealth struct {
	kctx kubeconfig.Context

	stateChanged Emitter[HealthState]
	reachable    Emitter[HealthState]

	mu       sync.Mutex
	state    HealthState
	started  int
	disposed int
}

func (f *fakeHealth) Start(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
}

func (f *fakeHealth) State() HealthState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeHealth) CheckNow(context.Context) HealthState {
	return f.State()
}

func (f *fakeHealth) OnStateChange(fn func(HealthState)) func() {
	return f.stateChanged.Subscribe(fn)
}

func (f *fakeHealth) OnReachable(fn func(HealthState)) func() {
	return f.reachable.Subscribe(fn)
}

func (f *fakeHealth) Dispose() {
	f.mu.Lock()
	f.disposed++
	f.mu.Unlock()
	f.stateChanged.Clear()
	f.reachable.Clear()
}

func (f *fakeHealth) disposeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disposed
}

// becomeReachable emits the state change and the reachable transition.
func (f *fakeHealth) becomeReachable() {
	f.mu.Lock()
	f.state = HealthState{ContextName: f.kctx.Name, Context: f.kctx, Reachable: true}
	state := f.state
	f.mu.Unlock()
	f.stateChanged.Emit(state)
	f.reachable.Emit(state)
}

// fakeChecker is a PermissionChecker whose results are emitted by the test.
type fakeChecker struct {
	contextName string
	namespace   string
	kinds       []catalog.Descriptor

	results Emitter[PermissionResult]

	mu       sync.Mutex
	records  []PermissionRecord
	disposed int
}

func (f *fakeChecker) Start(context.Context) error { return nil }

func (f *fakeChecker) Permissions() []PermissionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PermissionRecord(nil), f.records...)
}

func (f *fakeChecker) OnPermissionResult(fn func(PermissionResult)) func() {
	return f.results.Subscribe(fn)
}

func (f *fakeChecker) Dispose() {
	f.mu.Lock()
	f.disposed++
	f.mu.Unlock()
	f.results.Clear()
}

// grant emits a result covering every kind of the checker.
func (f *fakeChecker) grant(permitted bool) {
	result := PermissionResult{ContextName: f.contextName, Permitted: permitted}
	f.mu.Lock()
	f.records = nil
	for _, k := range f.kinds {
		result.Resources = append(result.Resources, k.Name)
		f.records = append(f.records, PermissionRecord{ContextName: f.contextName, ResourceName: k.Name, Permitted: permitted})
	}
	f.mu.Unlock()
	f.results.Emit(result)
}

// fakeInformer is an Informer whose cache is filled by the test.
type fakeInformer struct {
	contextName string
	kind        catalog.Descriptor
	startErr    error
	listErr     error
	blockStart  bool // Start waits for its context, like a watch that never syncs

	cacheUpdated Emitter[CacheUpdate]
	offline      Emitter[OfflineEvent]

	mu       sync.Mutex
	objects  []*unstructured.Unstructured
	started  int
	disposed int
}

func (f *fakeInformer) Start(ctx context.Context) error {
	f.mu.Lock()
	f.started++
	block, err := f.blockStart, f.startErr
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return &WatchError{ContextName: f.contextName, ResourceName: f.kind.Name, Reason: "timed out waiting for initial sync", Err: ctx.Err()}
	}
	return err
}

func (f *fakeInformer) List() ([]*unstructured.Unstructured, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disposed > 0 {
		return nil, ErrInformerDisposed
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]*unstructured.Unstructured(nil), f.objects...), nil
}

func (f *fakeInformer) Get(namespace, name string) (*unstructured.Unstructured, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, obj := range f.objects {
		if obj.GetNamespace() == namespace && obj.GetName() == name {
			return obj, true
		}
	}
	return nil, false
}

func (f *fakeInformer) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

func (f *fakeInformer) OnCacheUpdated(fn func(CacheUpdate)) func() {
	return f.cacheUpdated.Subscribe(fn)
}

func (f *fakeInformer) OnOffline(fn func(OfflineEvent)) func() {
	return f.offline.Subscribe(fn)
}

func (f *fakeInformer) Dispose() {
	f.mu.Lock()
	f.disposed++
	f.mu.Unlock()
	f.cacheUpdated.Clear()
	f.offline.Clear()
}

func (f *fakeInformer) disposeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disposed
}

func (f *fakeInformer) add(obj *unstructured.Unstructured) {
	f.mu.Lock()
	f.objects = append(f.objects, obj)
	f.mu.Unlock()
	f.cacheUpdated.Emit(CacheUpdate{ContextName: f.contextName, ResourceName: f.kind.Name, CountChanged: true})
}

func (f *fakeInformer) goOffline() {
	f.offline.Emit(OfflineEvent{ContextName: f.contextName, ResourceName: f.kind.Name, Offline: true, Reason: "connection refused"})
}

// fakeCurrent records the calls made to a CurrentContextMonitor.
type fakeCurrent struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeCurrent) StartMonitoring(kctx kubeconfig.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "start:"+kctx.Name)
}

func (f *fakeCurrent) StopMonitoring(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "stop:"+name)
}

func (f *fakeCurrent) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeWorld wires counting fake factories into a Manager.
type fakeWorld struct {
	mu        sync.Mutex
	healths   map[string][]*fakeHealth
	checkers  map[string][]*fakeChecker
	informers map[string][]*fakeInformer
	clientErr map[string]error
	current   *fakeCurrent
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		healths:   make(map[string][]*fakeHealth),
		checkers:  make(map[string][]*fakeChecker),
		informers: make(map[string][]*fakeInformer),
		clientErr: make(map[string]error),
		current:   &fakeCurrent{},
	}
}

func informerKey(contextName, kind string) string {
	return fmt.Sprintf("%s/%s", contextName, kind)
}

func (w *fakeWorld) options() []ManagerOption {
	return []ManagerOption{
		WithManagerLogger(newTestLogger()),
		WithCurrentContextMonitor(w.current),
		WithClientFactory(func(kctx kubeconfig.Context) (*kubeconfig.Clients, error) {
			w.mu.Lock()
			err := w.clientErr[kctx.Name]
			w.mu.Unlock()
			if err != nil {
				return nil, err
			}
			return &kubeconfig.Clients{ContextName: kctx.Name, Kubernetes: fake.NewClientset()}, nil
		}),
		WithHealthCheckerFactory(func(kctx kubeconfig.Context, _ CheckFunc) HealthChecker {
			h := &fakeHealth{kctx: kctx, state: HealthState{ContextName: kctx.Name, Context: kctx}}
			w.mu.Lock()
			w.healths[kctx.Name] = append(w.healths[kctx.Name], h)
			w.mu.Unlock()
			return h
		}),
		WithPermissionCheckerFactory(func(contextName string, _ kubernetes.Interface, namespace string, kinds []catalog.Descriptor) PermissionChecker {
			p := &fakeChecker{contextName: contextName, namespace: namespace, kinds: kinds}
			w.mu.Lock()
			w.checkers[contextName] = append(w.checkers[contextName], p)
			w.mu.Unlock()
			return p
		}),
		WithInformerFactory(func(contextName string, _ dynamic.Interface, kind catalog.Descriptor, _ string) Informer {
			i := &fakeInformer{contextName: contextName, kind: kind}
			w.mu.Lock()
			key := informerKey(contextName, kind.Name)
			w.informers[key] = append(w.informers[key], i)
			w.mu.Unlock()
			return i
		}),
	}
}

func (w *fakeWorld) healthFor(t *testing.T, contextName string) []*fakeHealth {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*fakeHealth(nil), w.healths[contextName]...)
}

func (w *fakeWorld) checkersFor(contextName string) []*fakeChecker {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*fakeChecker(nil), w.checkers[contextName]...)
}

func (w *fakeWorld) informersFor(contextName, kind string) []*fakeInformer {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*fakeInformer(nil), w.informers[informerKey(contextName, kind)]...)
}

// newTestManager builds a manager on fakes and disposes it on cleanup.
func newTestManager(t *testing.T, w *fakeWorld, extra ...ManagerOption) *Manager {
	t.Helper()
	mgr, err := NewManager(testCatalog(t), append(w.options(), extra...)...)
	require.NoError(t, err)
	t.Cleanup(mgr.Dispose)
	return mgr
}

// authorize drives a context through reachable and a full grant on every checker.
func authorize(t *testing.T, w *fakeWorld, contextName string) {
	t.Helper()
	healths := w.healthFor(t, contextName)
	require.NotEmpty(t, healths)
	healths[len(healths)-1].becomeReachable()

	checkers := w.checkersFor(contextName)
	require.GreaterOrEqual(t, len(checkers), 2)
	for _, p := range checkers[len(checkers)-2:] {
		p.grant(true)
	}
}
