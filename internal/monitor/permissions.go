package monitor

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	authorizationv1 "k8s.io/api/authorization/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/giantswarm/kube-context-monitor/internal/catalog"
	"github.com/giantswarm/kube-context-monitor/internal/instrumentation"
	"github.com/giantswarm/kube-context-monitor/internal/logging"
)

// DefaultMaxConcurrentReviews bounds the access reviews in flight per reviewer.
const DefaultMaxConcurrentReviews = 10

// PermissionResult groups the kinds of one review run that share the same outcome.
type PermissionResult struct {
	ContextName string                               `json:"contextName"`
	Client      kubernetes.Interface                 `json:"-"`
	Resources   []string                             `json:"resources"`
	Permitted   bool                                 `json:"permitted"`
	Attributes  []authorizationv1.ResourceAttributes `json:"attributes"`
}

// PermissionRecord is the outcome for one (context, kind) pair.
type PermissionRecord struct {
	ContextName  string                               `json:"contextName"`
	ResourceName string                               `json:"resourceName"`
	Permitted    bool                                 `json:"permitted"`
	Attributes   []authorizationv1.ResourceAttributes `json:"attributes"`
}

// PermissionChecker is the contract the manager needs to check permissions.
type PermissionChecker interface {
	Start(ctx context.Context) error
	Permissions() []PermissionRecord
	OnPermissionResult(fn func(PermissionResult)) func()
	Dispose()
}

// PermissionOption configures a AccessReviewer.
type PermissionOption func(*AccessReviewer)

// WithPermissionLogger sets the logger.
func WithPermissionLogger(logger *slog.Logger) PermissionOption {
	return func(p *AccessReviewer) {
		p.logger = logger
	}
}

// WithPermissionMetrics sets the metrics recorder.
func WithPermissionMetrics(metrics MetricsRecorder) PermissionOption {
	return func(p *AccessReviewer) {
		p.metrics = metrics
	}
}

// WithMaxConcurrentReviews bounds the number of reviews in flight.
func WithMaxConcurrentReviews(n int) PermissionOption {
	return func(p *AccessReviewer) {
		p.maxConcurrent = n
	}
}

// AccessReviewer asks the API server, through SelfSubjectAccessReviews,
// which catalog kinds the context's credentials may list and watch.
type AccessReviewer struct {
	contextName   string
	client        kubernetes.Interface
	namespace     string
	kinds         []catalog.Descriptor
	logger        *slog.Logger
	metrics       MetricsRecorder
	maxConcurrent int

	results Emitter[PermissionResult]

	mu       sync.RWMutex
	records  []PermissionRecord
	disposed bool
	cancel   context.CancelFunc
}

var _ PermissionChecker = (*AccessReviewer)(nil)

// NewAccessReviewer creates a reviewer for kinds. namespace is used for every
// review; pass "" for cluster-scoped kinds or to review across all namespaces.
func NewAccessReviewer(contextName string, client kubernetes.Interface, namespace string, kinds []catalog.Descriptor, opts ...PermissionOption) *AccessReviewer {
	p := &AccessReviewer{
		contextName:   contextName,
		client:        client,
		namespace:     namespace,
		kinds:         kinds,
		logger:        slog.Default(),
		metrics:       noopMetricsRecorder{},
		maxConcurrent: DefaultMaxConcurrentReviews,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxConcurrent <= 0 {
		p.maxConcurrent = DefaultMaxConcurrentReviews
	}
	p.logger = logging.WithContext(p.logger, contextName)
	return p
}

// Start runs one review per (kind, request) and emits at most two results:
// one for permitted kinds and one for denied kinds. A failed review counts as
// denied for that request. Start returns ErrReviewerDisposed only when the reviewer
// was disposed before or during the run.
func (p *AccessReviewer) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return ErrReviewerDisposed
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()
	defer cancel()

	ctx, span := instrumentation.StartMonitorSpan(ctx, "permission_review", p.contextName,
		attribute.Int("kinds", len(p.kinds)))
	defer span.End()

	attrs := make([][]authorizationv1.ResourceAttributes, len(p.kinds))
	allowed := make([][]bool, len(p.kinds))

	var g errgroup.Group
	g.SetLimit(p.maxConcurrent)
	for i, kind := range p.kinds {
		attrs[i] = make([]authorizationv1.ResourceAttributes, len(kind.PermissionRequests))
		allowed[i] = make([]bool, len(kind.PermissionRequests))
		for j, req := range kind.PermissionRequests {
			attrs[i][j] = authorizationv1.ResourceAttributes{
				Namespace: p.namespace,
				Verb:      req.Verb,
				Group:     req.Group,
				Resource:  req.Resource,
			}
			g.Go(func() error {
				allowed[i][j] = p.review(ctx, attrs[i][j])
				return nil
			})
		}
	}
	_ = g.Wait()

	if p.isDisposed() {
		return ErrReviewerDisposed
	}

	var (
		records = make([]PermissionRecord, 0, len(p.kinds))
		granted = PermissionResult{ContextName: p.contextName, Client: p.client, Permitted: true}
		denied  = PermissionResult{ContextName: p.contextName, Client: p.client, Permitted: false}
	)
	for i, kind := range p.kinds {
		permitted := true
		for _, ok := range allowed[i] {
			permitted = permitted && ok
		}
		records = append(records, PermissionRecord{
			ContextName:  p.contextName,
			ResourceName: kind.Name,
			Permitted:    permitted,
			Attributes:   attrs[i],
		})
		target := &denied
		if permitted {
			target = &granted
		}
		target.Resources = append(target.Resources, kind.Name)
		target.Attributes = append(target.Attributes, attrs[i]...)
	}

	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return ErrReviewerDisposed
	}
	p.records = records
	p.mu.Unlock()

	p.logger.Debug("Permission review completed",
		logging.Namespace(p.namespace),
		slog.Int("permitted", len(granted.Resources)),
		slog.Int("denied", len(denied.Resources)))
	instrumentation.SetSpanSuccess(span)

	for _, result := range []PermissionResult{granted, denied} {
		if len(result.Resources) == 0 || p.isDisposed() {
			continue
		}
		p.results.Emit(result)
	}
	return nil
}

func (p *AccessReviewer) review(ctx context.Context, attrs authorizationv1.ResourceAttributes) bool {
	review := &authorizationv1.SelfSubjectAccessReview{
		Spec: authorizationv1.SelfSubjectAccessReviewSpec{
			ResourceAttributes: &attrs,
		},
	}

	result, err := p.client.AuthorizationV1().SelfSubjectAccessReviews().Create(ctx, review, metav1.CreateOptions{})
	if err != nil {
		p.metrics.RecordAccessReview(ctx, p.contextName, ReviewError)
		p.logger.Debug("Access review failed",
			logging.Resource(attrs.Resource),
			slog.String("verb", attrs.Verb),
			logging.SanitizedErr(err))
		return false
	}

	if result.Status.Allowed {
		p.metrics.RecordAccessReview(ctx, p.contextName, ReviewAllowed)
		return true
	}
	p.metrics.RecordAccessReview(ctx, p.contextName, ReviewDenied)
	return false
}

// Permissions returns the records of the last completed run.
func (p *AccessReviewer) Permissions() []PermissionRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PermissionRecord, len(p.records))
	copy(out, p.records)
	return out
}

// OnPermissionResult subscribes to aggregated results.
func (p *AccessReviewer) OnPermissionResult(fn func(PermissionResult)) func() {
	return p.results.Subscribe(fn)
}

func (p *AccessReviewer) isDisposed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.disposed
}

// Dispose cancels in-flight reviews and drops all subscribers. It is safe to
// call more than once.
func (p *AccessReviewer) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.results.Clear()
}
