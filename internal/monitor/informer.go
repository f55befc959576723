package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/dynamic/dynamicinformer"
	"k8s.io/client-go/tools/cache"

	"github.com/giantswarm/kube-context-monitor/internal/catalog"
	"github.com/giantswarm/kube-context-monitor/internal/instrumentation"
	"github.com/giantswarm/kube-context-monitor/internal/logging"
)

// DefaultInformerStartTimeout bounds the initial list and watch.
const DefaultInformerStartTimeout = 30 * time.Second

// CacheUpdate is emitted for every add, update or delete applied to an
// informer cache.
type CacheUpdate struct {
	ContextName  string `json:"contextName"`
	ResourceName string `json:"resourceName"`
	CountChanged bool   `json:"countChanged"`
}

// OfflineEvent is emitted once when a synced informer loses its watch.
type OfflineEvent struct {
	ContextName  string `json:"contextName"`
	ResourceName string `json:"resourceName"`
	Offline      bool   `json:"offline"`
	Reason       string `json:"reason"`
}

// Informer is the contract the manager needs from a resource informer.
type Informer interface {
	Start(ctx context.Context) error
	List() ([]*unstructured.Unstructured, error)
	Get(namespace, name string) (*unstructured.Unstructured, bool)
	Count() int
	OnCacheUpdated(fn func(CacheUpdate)) func()
	OnOffline(fn func(OfflineEvent)) func()
	Dispose()
}

type informerState int

const (
	informerStopped informerState = iota
	informerWatching
	informerOffline
	informerDisposed
)

func (s informerState) String() string {
	switch s {
	case informerStopped:
		return "stopped"
	case informerWatching:
		return "watching"
	case informerOffline:
		return "offline"
	case informerDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// InformerOption configures a ResourceInformer.
type InformerOption func(*ResourceInformer)

// WithInformerLogger sets the logger.
func WithInformerLogger(logger *slog.Logger) InformerOption {
	return func(i *ResourceInformer) {
		i.logger = logger
	}
}

// WithInformerMetrics sets the metrics recorder.
func WithInformerMetrics(metrics MetricsRecorder) InformerOption {
	return func(i *ResourceInformer) {
		i.metrics = metrics
	}
}

// WithStartTimeout bounds how long Start waits for the initial sync.
func WithStartTimeout(d time.Duration) InformerOption {
	return func(i *ResourceInformer) {
		i.startTimeout = d
	}
}

// ResourceInformer keeps a local cache of one resource kind in one context,
// fed by a client-go dynamic informer. It never restarts itself: once its
// watch fails after the initial sync it goes offline for good.
type ResourceInformer struct {
	contextName  string
	client       dynamic.Interface
	kind         catalog.Descriptor
	namespace    string
	logger       *slog.Logger
	metrics      MetricsRecorder
	startTimeout time.Duration

	cacheUpdated Emitter[CacheUpdate]
	offline      Emitter[OfflineEvent]

	mu         sync.RWMutex
	state      informerState
	synced     bool
	objects    map[string]*unstructured.Unstructured
	cancel     context.CancelFunc
	startErrCh chan error
}

var _ Informer = (*ResourceInformer)(nil)

// NewResourceInformer creates an informer for kind. namespace is ignored for
// cluster-scoped kinds; "" watches all namespaces.
func NewResourceInformer(contextName string, client dynamic.Interface, kind catalog.Descriptor, namespace string, opts ...InformerOption) *ResourceInformer {
	if !kind.Namespaced {
		namespace = metav1.NamespaceAll
	}
	i := &ResourceInformer{
		contextName:  contextName,
		client:       client,
		kind:         kind,
		namespace:    namespace,
		logger:       slog.Default(),
		metrics:      noopMetricsRecorder{},
		startTimeout: DefaultInformerStartTimeout,
		objects:      make(map[string]*unstructured.Unstructured),
		startErrCh:   make(chan error, 1),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = logging.WithResource(i.logger, contextName, kind.Name)
	return i
}

// Start runs the informer and blocks until the initial list has been applied
// to the cache, so reads see it as soon as Start returns nil. It returns a
// *WatchError when the start timeout expires, ctx is cancelled, or the watch
// fails before the first sync. The informer keeps running after Start
// returns nil, until Dispose or an offline event.
func (i *ResourceInformer) Start(ctx context.Context) error {
	if i.kind.Watch == nil {
		return &WatchError{ContextName: i.contextName, ResourceName: i.kind.Name, Reason: "kind has no watch"}
	}

	i.mu.Lock()
	switch i.state {
	case informerDisposed, informerOffline:
		i.mu.Unlock()
		return ErrInformerDisposed
	case informerWatching:
		i.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	i.cancel = cancel
	i.state = informerWatching
	select {
	case <-i.startErrCh:
	default:
	}
	i.mu.Unlock()

	ctx, span := instrumentation.StartMonitorSpan(ctx, "informer_start", i.contextName,
		attribute.String(instrumentation.SpanAttrResourceType, i.kind.Name))
	defer span.End()

	spec := i.kind.Watch
	factory := dynamicinformer.NewFilteredDynamicSharedInformerFactory(i.client, 0, i.namespace, func(opts *metav1.ListOptions) {
		opts.LabelSelector = spec.LabelSelector
		opts.FieldSelector = spec.FieldSelector
	})
	informer := factory.ForResource(spec.GVR).Informer()

	if err := informer.SetWatchErrorHandler(func(_ *cache.Reflector, err error) {
		i.handleWatchError(err)
	}); err != nil {
		return i.failStart(span, "failed to set watch error handler", err)
	}

	reg, err := informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc: func(obj interface{}) {
			i.apply(obj, InformerEventAdd)
		},
		UpdateFunc: func(_, obj interface{}) {
			i.apply(obj, InformerEventUpdate)
		},
		DeleteFunc: func(obj interface{}) {
			i.apply(obj, InformerEventDelete)
		},
	})
	if err != nil {
		return i.failStart(span, "failed to register event handler", err)
	}

	go informer.Run(runCtx.Done())

	syncCtx, syncCancel := context.WithTimeout(ctx, i.startTimeout)
	defer syncCancel()

	synced := make(chan bool, 1)
	go func() {
		// reg syncs only once the initial list reached our handlers.
		synced <- cache.WaitForCacheSync(syncCtx.Done(), informer.HasSynced, reg.HasSynced)
	}()

	select {
	case ok := <-synced:
		if !ok {
			reason := "timed out waiting for initial sync"
			if ctx.Err() != nil {
				reason = "start cancelled"
			}
			return i.failStart(span, reason, syncCtx.Err())
		}
	case err := <-i.startErrCh:
		return i.failStart(span, "watch failed before initial sync", err)
	case <-runCtx.Done():
		return ErrInformerDisposed
	}

	i.mu.Lock()
	if i.state != informerWatching {
		i.mu.Unlock()
		return ErrInformerDisposed
	}
	i.synced = true
	count := len(i.objects)
	i.mu.Unlock()

	i.logger.Debug("Informer synced", logging.Namespace(i.namespace), slog.Int("objects", count))
	instrumentation.SetSpanSuccess(span)
	return nil
}

func (i *ResourceInformer) failStart(span trace.Span, reason string, cause error) error {
	i.mu.Lock()
	if i.state == informerWatching {
		i.state = informerStopped
	}
	i.objects = make(map[string]*unstructured.Unstructured)
	cancel := i.cancel
	i.cancel = nil
	i.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	err := &WatchError{ContextName: i.contextName, ResourceName: i.kind.Name, Reason: reason, Err: cause}
	instrumentation.SetSpanError(span, err)
	i.logger.Warn("Informer failed to start", logging.Reason(reason), logging.SanitizedErr(cause))
	return err
}

// handleWatchError reacts to list and watch failures reported by the reflector.
// Before the first sync a failure aborts Start. Afterwards it takes the
// informer offline, except for resource version expiry and clean closes,
// which the reflector recovers from by relisting.
func (i *ResourceInformer) handleWatchError(err error) {
	if err == nil {
		return
	}

	i.mu.Lock()
	if i.state != informerWatching {
		i.mu.Unlock()
		return
	}
	if !i.synced {
		i.mu.Unlock()
		select {
		case i.startErrCh <- err:
		default:
		}
		return
	}
	if isRecoverableWatchError(err) {
		i.mu.Unlock()
		return
	}
	i.state = informerOffline
	i.objects = make(map[string]*unstructured.Unstructured)
	cancel := i.cancel
	i.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	reason := logging.SanitizeHost(err.Error())
	i.logger.Warn("Informer went offline", logging.Reason(reason))
	i.metrics.RecordInformerOffline(context.Background(), i.contextName, i.kind.Name)

	i.offline.Emit(OfflineEvent{
		ContextName:  i.contextName,
		ResourceName: i.kind.Name,
		Offline:      true,
		Reason:       reason,
	})
}

func isRecoverableWatchError(err error) bool {
	return apierrors.IsResourceExpired(err) || apierrors.IsGone(err) || errors.Is(err, io.EOF)
}

func (i *ResourceInformer) apply(obj interface{}, event string) {
	key, err := cache.DeletionHandlingMetaNamespaceKeyFunc(obj)
	if err != nil {
		i.logger.Debug("Skipping object without key", logging.Err(err))
		return
	}

	var u *unstructured.Unstructured
	if event != InformerEventDelete {
		var ok bool
		u, ok = obj.(*unstructured.Unstructured)
		if !ok {
			return
		}
	}

	i.mu.Lock()
	if i.state != informerWatching {
		i.mu.Unlock()
		return
	}
	before := len(i.objects)
	if u == nil {
		delete(i.objects, key)
	} else {
		i.objects[key] = u
	}
	after := len(i.objects)
	i.mu.Unlock()

	i.metrics.RecordInformerEvent(context.Background(), i.contextName, i.kind.Name, event)
	i.cacheUpdated.Emit(CacheUpdate{
		ContextName:  i.contextName,
		ResourceName: i.kind.Name,
		CountChanged: before != after,
	})
}

// List returns deep copies of the cached objects sorted by namespace/name.
func (i *ResourceInformer) List() ([]*unstructured.Unstructured, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.state == informerDisposed || i.state == informerOffline {
		return nil, ErrInformerDisposed
	}

	keys := make([]string, 0, len(i.objects))
	for k := range i.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*unstructured.Unstructured, 0, len(keys))
	for _, k := range keys {
		out = append(out, i.objects[k].DeepCopy())
	}
	return out, nil
}

// Get returns a deep copy of one cached object.
func (i *ResourceInformer) Get(namespace, name string) (*unstructured.Unstructured, bool) {
	key := name
	if namespace != "" {
		key = namespace + "/" + name
	}

	i.mu.RLock()
	defer i.mu.RUnlock()
	obj, ok := i.objects[key]
	if !ok {
		return nil, false
	}
	return obj.DeepCopy(), true
}

// Count returns the number of cached objects.
func (i *ResourceInformer) Count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.objects)
}

// OnCacheUpdated subscribes to cache changes.
func (i *ResourceInformer) OnCacheUpdated(fn func(CacheUpdate)) func() {
	return i.cacheUpdated.Subscribe(fn)
}

// OnOffline subscribes to the offline event.
func (i *ResourceInformer) OnOffline(fn func(OfflineEvent)) func() {
	return i.offline.Subscribe(fn)
}

// Dispose stops the informer and clears its cache without emitting an
// offline event. It is safe to call more than once.
func (i *ResourceInformer) Dispose() {
	i.mu.Lock()
	if i.state == informerDisposed {
		i.mu.Unlock()
		return
	}
	i.state = informerDisposed
	i.objects = make(map[string]*unstructured.Unstructured)
	cancel := i.cancel
	i.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	i.cacheUpdated.Clear()
	i.offline.Clear()
}

// Stop is an alias for Dispose.
func (i *ResourceInformer) Stop() {
	i.Dispose()
}
