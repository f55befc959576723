package monitor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/giantswarm/kube-context-monitor/internal/kubeconfig"
	"github.com/giantswarm/kube-context-monitor/internal/logging"
)

// CurrentContextMonitor follows the kubeconfig's current context. The manager
// calls StopMonitoring for the previous context before StartMonitoring for the
// next one.
type CurrentContextMonitor interface {
	StartMonitoring(kctx kubeconfig.Context)
	StopMonitoring(contextName string)
}

// StatusMonitor is the default CurrentContextMonitor. It runs a dedicated
// HealthMonitor for whichever context is current.
type StatusMonitor struct {
	ctx          context.Context
	checkFor     func(kubeconfig.Context) CheckFunc
	healthConfig HealthConfig
	logger       *slog.Logger
	metrics      MetricsRecorder

	changed Emitter[HealthState]

	mu       sync.RWMutex
	name     string
	health   *HealthMonitor
	unsub    func()
	disposed bool
}

var _ CurrentContextMonitor = (*StatusMonitor)(nil)

// StatusOption configures a StatusMonitor.
type StatusOption func(*StatusMonitor)

// WithStatusLogger sets the logger.
func WithStatusLogger(logger *slog.Logger) StatusOption {
	return func(s *StatusMonitor) {
		s.logger = logger
	}
}

// WithStatusHealthConfig sets the health check timings.
func WithStatusHealthConfig(config HealthConfig) StatusOption {
	return func(s *StatusMonitor) {
		s.healthConfig = config
	}
}

// WithStatusMetrics sets the metrics recorder.
func WithStatusMetrics(metrics MetricsRecorder) StatusOption {
	return func(s *StatusMonitor) {
		s.metrics = metrics
	}
}

// NewStatusMonitor creates a StatusMonitor. checkFor builds the health check
// for a context; health loops run under ctx.
func NewStatusMonitor(ctx context.Context, checkFor func(kubeconfig.Context) CheckFunc, opts ...StatusOption) *StatusMonitor {
	s := &StatusMonitor{
		ctx:          ctx,
		checkFor:     checkFor,
		healthConfig: DefaultHealthConfig(),
		logger:       slog.Default(),
		metrics:      noopMetricsRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartMonitoring replaces any running monitor with one for kctx.
func (s *StatusMonitor) StartMonitoring(kctx kubeconfig.Context) {
	health := NewHealthMonitor(kctx, s.checkFor(kctx),
		WithHealthLogger(s.logger),
		WithHealthMetrics(s.metrics),
		WithHealthTimings(s.healthConfig))
	unsub := health.OnStateChange(s.changed.Emit)

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		unsub()
		health.Dispose()
		return
	}
	prev, prevUnsub := s.health, s.unsub
	s.name, s.health, s.unsub = kctx.Name, health, unsub
	s.mu.Unlock()

	if prev != nil {
		prevUnsub()
		prev.Dispose()
	}

	s.logger.Debug("Monitoring current context", logging.Context(kctx.Name))
	health.Start(s.ctx)
}

// StopMonitoring stops the monitor if contextName is the one being followed.
func (s *StatusMonitor) StopMonitoring(contextName string) {
	s.mu.Lock()
	if s.name != contextName || s.health == nil {
		s.mu.Unlock()
		return
	}
	health, unsub := s.health, s.unsub
	s.name, s.health, s.unsub = "", nil, nil
	s.mu.Unlock()

	unsub()
	health.Dispose()
	s.logger.Debug("Stopped monitoring current context", logging.Context(contextName))
}

// State returns the health of the current context, if one is followed.
func (s *StatusMonitor) State() (HealthState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.health == nil {
		return HealthState{}, false
	}
	return s.health.State(), true
}

// OnChange subscribes to health changes of the current context.
func (s *StatusMonitor) OnChange(fn func(HealthState)) func() {
	return s.changed.Subscribe(fn)
}

// Dispose stops the running monitor. It is safe to call more than once.
func (s *StatusMonitor) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	health, unsub := s.health, s.unsub
	s.name, s.health, s.unsub = "", nil, nil
	s.mu.Unlock()

	if health != nil {
		unsub()
		health.Dispose()
	}
	s.changed.Clear()
}
