package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"

	"github.com/giantswarm/kube-context-monitor/internal/catalog"
	"github.com/giantswarm/kube-context-monitor/internal/kubeconfig"
	"github.com/giantswarm/kube-context-monitor/internal/logging"
)

// HealthCheckerFactory builds the health checker of a context.
type HealthCheckerFactory func(kctx kubeconfig.Context, check CheckFunc) HealthChecker

// PermissionCheckerFactory builds a permission checker for a group of kinds.
type PermissionCheckerFactory func(contextName string, client kubernetes.Interface, namespace string, kinds []catalog.Descriptor) PermissionChecker

// InformerFactory builds the informer of one (context, kind) pair.
type InformerFactory func(contextName string, client dynamic.Interface, kind catalog.Descriptor, namespace string) Informer

// ManagerOption is a functional option for configuring the Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger for the manager and its children.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithManagerMetrics sets the metrics recorder for the manager and its children.
func WithManagerMetrics(metrics MetricsRecorder) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithClientFactory sets how clients are built for each context.
func WithClientFactory(factory kubeconfig.ClientFactory) ManagerOption {
	return func(m *Manager) {
		m.clientFactory = factory
	}
}

// WithHealthCheckerFactory replaces the health checker constructor.
func WithHealthCheckerFactory(factory HealthCheckerFactory) ManagerOption {
	return func(m *Manager) {
		m.healthFactory = factory
	}
}

// WithPermissionCheckerFactory replaces the permission checker constructor.
func WithPermissionCheckerFactory(factory PermissionCheckerFactory) ManagerOption {
	return func(m *Manager) {
		m.permissionFactory = factory
	}
}

// WithInformerFactory replaces the informer constructor.
func WithInformerFactory(factory InformerFactory) ManagerOption {
	return func(m *Manager) {
		m.informerFactory = factory
	}
}

// WithHealthConfig sets the health check timings.
func WithHealthConfig(config HealthConfig) ManagerOption {
	return func(m *Manager) {
		m.healthConfig = config
	}
}

// WithConnectivityConfig sets how health checks reach the API server.
func WithConnectivityConfig(config ConnectivityConfig) ManagerOption {
	return func(m *Manager) {
		m.connectivity = config
	}
}

// WithAllContextsMonitoring enables or disables health, permission and
// informer tracking for every context. When disabled only the current
// context is followed. Enabled by default.
func WithAllContextsMonitoring(enabled bool) ManagerOption {
	return func(m *Manager) {
		m.monitorAll = enabled
	}
}

// WithCurrentContextMonitor replaces the default StatusMonitor.
func WithCurrentContextMonitor(monitor CurrentContextMonitor) ManagerOption {
	return func(m *Manager) {
		m.current = monitor
	}
}

// contextEntry holds everything the manager created for one context.
// Removing a context disposes every handle in the entry, then drops it.
type contextEntry struct {
	kctx   kubeconfig.Context
	ctx    context.Context
	cancel context.CancelFunc

	clients       *kubeconfig.Clients
	health        HealthChecker
	healthUnsubs  []func()
	checkers      []PermissionChecker
	checkerUnsubs []func()
	informers     map[string]*informerEntry
}

type informerEntry struct {
	informer Informer
	unsubs   []func()
}

func (ie *informerEntry) dispose() {
	for _, unsub := range ie.unsubs {
		unsub()
	}
	ie.informer.Dispose()
}

// Manager reconciles a list of kubeconfig contexts into per-context health
// monitors, permission checkers and resource informers, and answers queries
// from their cached state.
type Manager struct {
	catalog           *catalog.Catalog
	logger            *slog.Logger
	metrics           MetricsRecorder
	clientFactory     kubeconfig.ClientFactory
	healthFactory     HealthCheckerFactory
	permissionFactory PermissionCheckerFactory
	informerFactory   InformerFactory
	healthConfig      HealthConfig
	connectivity      ConnectivityConfig
	monitorAll        bool
	current           CurrentContextMonitor

	ctx    context.Context
	cancel context.CancelFunc

	resourceUpdated      Emitter[CacheUpdate]
	resourceCountUpdated Emitter[CacheUpdate]
	healthChanged        Emitter[HealthState]

	mu          sync.RWMutex
	contexts    map[string]*contextEntry
	known       map[string]kubeconfig.Context
	currentName string
	closed      bool
}

// NewManager creates a manager for the kinds in cat.
func NewManager(cat *catalog.Catalog, opts ...ManagerOption) (*Manager, error) {
	if cat == nil {
		return nil, fmt.Errorf("resource kind catalog is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		catalog:      cat,
		logger:       slog.Default(),
		metrics:      noopMetricsRecorder{},
		healthConfig: DefaultHealthConfig(),
		connectivity: DefaultConnectivityConfig(),
		monitorAll:   true,
		ctx:          ctx,
		cancel:       cancel,
		contexts:     make(map[string]*contextEntry),
		known:        make(map[string]kubeconfig.Context),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.clientFactory == nil {
		m.clientFactory = func(c kubeconfig.Context) (*kubeconfig.Clients, error) {
			return nil, fmt.Errorf("no client factory configured for context %q", c.Name)
		}
	}
	if m.healthFactory == nil {
		m.healthFactory = func(kctx kubeconfig.Context, check CheckFunc) HealthChecker {
			return NewHealthMonitor(kctx, check,
				WithHealthLogger(m.logger),
				WithHealthMetrics(m.metrics),
				WithHealthTimings(m.healthConfig))
		}
	}
	if m.permissionFactory == nil {
		m.permissionFactory = func(contextName string, client kubernetes.Interface, namespace string, kinds []catalog.Descriptor) PermissionChecker {
			return NewAccessReviewer(contextName, client, namespace, kinds,
				WithPermissionLogger(m.logger),
				WithPermissionMetrics(m.metrics))
		}
	}
	if m.informerFactory == nil {
		m.informerFactory = func(contextName string, client dynamic.Interface, kind catalog.Descriptor, namespace string) Informer {
			return NewResourceInformer(contextName, client, kind, namespace,
				WithInformerLogger(m.logger),
				WithInformerMetrics(m.metrics))
		}
	}
	if m.current == nil {
		m.current = NewStatusMonitor(ctx, m.checkFor,
			WithStatusLogger(m.logger),
			WithStatusMetrics(m.metrics),
			WithStatusHealthConfig(m.healthConfig))
	}

	return m, nil
}

// checkFor builds the health check of a context, falling back to a check
// that always fails when its clients cannot be built.
func (m *Manager) checkFor(kctx kubeconfig.Context) CheckFunc {
	check, _ := m.buildCheck(kctx)
	return check
}

func (m *Manager) buildCheck(kctx kubeconfig.Context) (CheckFunc, *kubeconfig.Clients) {
	clients, err := m.clientFactory(kctx)
	if err != nil || clients == nil {
		if err == nil {
			err = errors.New("client factory returned no clients")
		}
		m.logger.Warn("Failed to build clients for context", logging.Context(kctx.Name), logging.SanitizedErr(err))
		return FailingCheck(kctx.Name, err), nil
	}
	if clients.ContextName == "" {
		clients.ContextName = kctx.Name
	}
	if clients.RESTConfig == nil {
		return ServerVersionCheck(kctx.Name, clients.Kubernetes), clients
	}
	return DefaultCheck(clients, m.connectivity), clients
}

// Update reconciles the monitored contexts with contexts. Contexts that are
// new get a health monitor; contexts that disappeared or whose cluster, user
// or namespace changed are torn down (and recreated if still present).
// Calling Update again with the same list does nothing.
func (m *Manager) Update(contexts []kubeconfig.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}

	// The first definition of a name wins, so repeated input stays idempotent.
	desired := make(map[string]kubeconfig.Context, len(contexts))
	unique := make([]kubeconfig.Context, 0, len(contexts))
	for _, c := range contexts {
		if _, dup := desired[c.Name]; dup {
			m.logger.Warn("Ignoring duplicate context", logging.Context(c.Name))
			continue
		}
		desired[c.Name] = c
		unique = append(unique, c)
	}

	var (
		removed []*contextEntry
		added   []*contextEntry
	)
	if m.monitorAll {
		for name, e := range m.contexts {
			if d, ok := desired[name]; !ok || !d.Equal(e.kctx) {
				removed = append(removed, e)
				delete(m.contexts, name)
			}
		}
		for _, c := range unique {
			if _, ok := m.contexts[c.Name]; ok {
				continue
			}
			e := m.newEntry(c)
			m.contexts[c.Name] = e
			added = append(added, e)
		}
	}

	var (
		restartCurrent bool
		stopCurrent    string
		currentCtx     kubeconfig.Context
	)
	if m.currentName != "" {
		old := m.known[m.currentName]
		if now, ok := desired[m.currentName]; !ok {
			stopCurrent = m.currentName
			m.currentName = ""
		} else if !now.Equal(old) {
			restartCurrent = true
			currentCtx = now
		}
	}

	m.known = desired
	count := len(m.contexts)
	m.mu.Unlock()

	for _, e := range removed {
		m.logger.Info("Context removed", logging.Context(e.kctx.Name))
		m.disposeEntry(e)
	}
	for _, e := range added {
		m.logger.Info("Context added", logging.Context(e.kctx.Name), logging.Cluster(e.kctx.Cluster))
		m.startEntry(e)
	}

	if stopCurrent != "" {
		m.current.StopMonitoring(stopCurrent)
	}
	if restartCurrent {
		m.current.StopMonitoring(currentCtx.Name)
		m.current.StartMonitoring(currentCtx)
	}

	m.metrics.SetContextCount(m.ctx, count)
	return nil
}

func (m *Manager) newEntry(kctx kubeconfig.Context) *contextEntry {
	ctx, cancel := context.WithCancel(m.ctx)
	return &contextEntry{
		kctx:      kctx,
		ctx:       ctx,
		cancel:    cancel,
		informers: make(map[string]*informerEntry),
	}
}

// live reports whether e is still the registered entry for its context.
// Callers must hold m.mu.
func (m *Manager) live(e *contextEntry) bool {
	return !m.closed && m.contexts[e.kctx.Name] == e
}

func (m *Manager) isLive(e *contextEntry) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.live(e)
}

func (m *Manager) startEntry(e *contextEntry) {
	check, clients := m.buildCheck(e.kctx)
	health := m.healthFactory(e.kctx, check)
	unsubs := []func(){
		health.OnStateChange(func(s HealthState) { m.handleHealthState(e, s) }),
		health.OnReachable(func(s HealthState) { m.handleReachable(e) }),
	}

	m.mu.Lock()
	if !m.live(e) {
		m.mu.Unlock()
		for _, unsub := range unsubs {
			unsub()
		}
		health.Dispose()
		return
	}
	e.clients = clients
	e.health = health
	e.healthUnsubs = unsubs
	m.mu.Unlock()

	health.Start(e.ctx)
}

func (m *Manager) handleHealthState(e *contextEntry, s HealthState) {
	if !m.isLive(e) {
		return
	}
	m.healthChanged.Emit(s)
}

// handleReachable replaces the context's permission checkers with fresh ones,
// one for namespaced kinds and one for cluster-scoped kinds.
func (m *Manager) handleReachable(e *contextEntry) {
	namespaced := m.catalog.Namespaced()
	clusterScoped := m.catalog.ClusterScoped()

	m.mu.Lock()
	if !m.live(e) || e.clients == nil {
		m.mu.Unlock()
		return
	}
	oldCheckers, oldUnsubs := e.checkers, e.checkerUnsubs
	e.checkers, e.checkerUnsubs = nil, nil

	groups := []struct {
		namespace string
		kinds     []catalog.Descriptor
	}{
		{namespace: e.kctx.Namespace, kinds: namespaced},
		{namespace: "", kinds: clusterScoped},
	}
	var started []PermissionChecker
	for _, g := range groups {
		if len(g.kinds) == 0 {
			continue
		}
		checker := m.permissionFactory(e.kctx.Name, e.clients.Kubernetes, g.namespace, g.kinds)
		e.checkerUnsubs = append(e.checkerUnsubs, checker.OnPermissionResult(func(r PermissionResult) {
			m.handlePermissionResult(e, r)
		}))
		e.checkers = append(e.checkers, checker)
		started = append(started, checker)
	}
	ctx := e.ctx
	m.mu.Unlock()

	for _, unsub := range oldUnsubs {
		unsub()
	}
	for _, p := range oldCheckers {
		p.Dispose()
	}

	m.logger.Debug("Checking permissions", logging.Context(e.kctx.Name), slog.Int("checkers", len(started)))
	for _, p := range started {
		go func() {
			if err := p.Start(ctx); err != nil && !errors.Is(err, ErrReviewerDisposed) {
				m.logger.Warn("Permission review failed", logging.Context(e.kctx.Name), logging.Err(err))
			}
		}()
	}
}

// handlePermissionResult starts informers for permitted kinds that declare a
// watch and drops informers of kinds that are no longer permitted.
func (m *Manager) handlePermissionResult(e *contextEntry, r PermissionResult) {
	var (
		toStart   = map[string]*informerEntry{}
		toDispose []*informerEntry
	)

	m.mu.Lock()
	if !m.live(e) || e.clients == nil {
		m.mu.Unlock()
		return
	}
	for _, name := range r.Resources {
		kind, ok := m.catalog.Get(name)
		if !ok {
			continue
		}
		existing := e.informers[name]
		if !r.Permitted || !kind.Watchable() {
			if existing != nil {
				delete(e.informers, name)
				toDispose = append(toDispose, existing)
			}
			continue
		}
		if existing != nil {
			continue
		}

		ie := &informerEntry{informer: m.informerFactory(e.kctx.Name, e.clients.Dynamic, kind, e.kctx.Namespace)}
		ie.unsubs = []func(){
			ie.informer.OnCacheUpdated(func(u CacheUpdate) { m.handleCacheUpdate(e, ie, u) }),
			ie.informer.OnOffline(func(ev OfflineEvent) { m.handleOffline(e, ie, ev) }),
		}
		e.informers[name] = ie
		toStart[name] = ie
	}
	ctx := e.ctx
	m.mu.Unlock()

	for _, ie := range toDispose {
		ie.dispose()
	}
	for name, ie := range toStart {
		go m.startInformer(ctx, e, name, ie)
	}
}

func (m *Manager) startInformer(ctx context.Context, e *contextEntry, name string, ie *informerEntry) {
	err := ie.informer.Start(ctx)
	if err == nil || errors.Is(err, ErrInformerDisposed) {
		return
	}

	m.logger.Warn("Informer failed to start", logging.Context(e.kctx.Name), logging.Resource(name), logging.SanitizedErr(err))

	m.mu.Lock()
	owned := m.live(e) && e.informers[name] == ie
	if owned {
		delete(e.informers, name)
	}
	m.mu.Unlock()

	if owned {
		ie.dispose()
	}
}

func (m *Manager) handleCacheUpdate(e *contextEntry, ie *informerEntry, u CacheUpdate) {
	m.mu.RLock()
	owned := m.live(e) && e.informers[u.ResourceName] == ie
	m.mu.RUnlock()
	if !owned {
		return
	}

	m.resourceUpdated.Emit(u)
	if u.CountChanged {
		m.resourceCountUpdated.Emit(u)
	}
}

// handleOffline drops only the offline (context, kind) cache. The health
// monitor and checkers of the context keep running; the next reachable
// transition rechecks and restarts the informer.
func (m *Manager) handleOffline(e *contextEntry, ie *informerEntry, ev OfflineEvent) {
	m.mu.Lock()
	owned := m.live(e) && e.informers[ev.ResourceName] == ie
	if owned {
		delete(e.informers, ev.ResourceName)
	}
	m.mu.Unlock()
	if !owned {
		return
	}

	m.logger.Info("Resource cache dropped after watch failure",
		logging.Context(ev.ContextName),
		logging.Resource(ev.ResourceName),
		logging.Reason(ev.Reason))
	ie.dispose()
}

// disposeEntry tears down a context that has already been removed from the
// registry: health monitor first, then checkers, then informers.
func (m *Manager) disposeEntry(e *contextEntry) {
	m.mu.Lock()
	health, healthUnsubs := e.health, e.healthUnsubs
	checkers, checkerUnsubs := e.checkers, e.checkerUnsubs
	informers := e.informers
	e.health, e.healthUnsubs = nil, nil
	e.checkers, e.checkerUnsubs = nil, nil
	e.informers = make(map[string]*informerEntry)
	m.mu.Unlock()

	for _, unsub := range healthUnsubs {
		unsub()
	}
	if health != nil {
		health.Dispose()
	}

	for _, unsub := range checkerUnsubs {
		unsub()
	}
	for _, p := range checkers {
		p.Dispose()
	}

	names := make([]string, 0, len(informers))
	for name := range informers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		informers[name].dispose()
	}

	e.cancel()
}

// SetCurrentContext moves the current-context pointer. Nothing happens when
// the name is unchanged. Otherwise monitoring of the previous context is
// stopped, and monitoring of the new one is started when it is known.
func (m *Manager) SetCurrentContext(name string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if name == m.currentName {
		m.mu.Unlock()
		return nil
	}

	previous := m.currentName
	next, known := m.known[name]
	if name != "" && known {
		m.currentName = name
	} else {
		m.currentName = ""
	}
	m.mu.Unlock()

	if previous != "" {
		m.current.StopMonitoring(previous)
	}
	if name == "" {
		return nil
	}
	if !known {
		return fmt.Errorf("%w: %q", ErrUnknownContext, name)
	}
	m.current.StartMonitoring(next)
	return nil
}

// Sync applies a kubeconfig snapshot: the context list, then the current context.
func (m *Manager) Sync(snapshot kubeconfig.Snapshot) error {
	if err := m.Update(snapshot.Contexts); err != nil {
		return err
	}
	if err := m.SetCurrentContext(snapshot.CurrentContext); err != nil {
		if errors.Is(err, ErrUnknownContext) {
			m.logger.Warn("Current context is not defined in kubeconfig", logging.Context(snapshot.CurrentContext))
			return nil
		}
		return err
	}
	return nil
}

// Dispose tears down every context and stops current-context monitoring.
// It is safe to call more than once.
func (m *Manager) Dispose() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	entries := make([]*contextEntry, 0, len(m.contexts))
	for _, e := range m.contexts {
		entries = append(entries, e)
	}
	m.contexts = make(map[string]*contextEntry)
	current := m.currentName
	m.currentName = ""
	m.closed = true
	m.mu.Unlock()

	for _, e := range entries {
		m.disposeEntry(e)
	}
	if current != "" {
		m.current.StopMonitoring(current)
	}
	if s, ok := m.current.(*StatusMonitor); ok {
		s.Dispose()
	}

	m.cancel()
	m.resourceUpdated.Clear()
	m.resourceCountUpdated.Clear()
	m.healthChanged.Clear()
	m.metrics.SetContextCount(context.Background(), 0)
	m.logger.Info("Contexts manager disposed", slog.Int("contexts", len(entries)))
}
