package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/giantswarm/kube-context-monitor/internal/instrumentation"
	"github.com/giantswarm/kube-context-monitor/internal/kubeconfig"
	"github.com/giantswarm/kube-context-monitor/internal/logging"
)

// Default health check timings.
const (
	DefaultHealthInterval     = 15 * time.Second
	DefaultHealthRetryBackoff = 1 * time.Second
	DefaultHealthCheckTimeout = 10 * time.Second
)

// HealthConfig controls how often a context is checked.
type HealthConfig struct {
	// Interval is the delay between checks while the context is reachable.
	// It also caps the retry backoff.
	Interval time.Duration

	// RetryBackoff is the first delay after a failed check. Consecutive
	// failures double it: RetryBackoff * 2^(n-1).
	RetryBackoff time.Duration

	// CheckTimeout bounds a single check.
	CheckTimeout time.Duration
}

// DefaultHealthConfig returns the default health check timings.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		Interval:     DefaultHealthInterval,
		RetryBackoff: DefaultHealthRetryBackoff,
		CheckTimeout: DefaultHealthCheckTimeout,
	}
}

func (c HealthConfig) withDefaults() HealthConfig {
	d := DefaultHealthConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = d.CheckTimeout
	}
	return c
}

// retryDelay returns the delay after the given number of consecutive failures.
func (c HealthConfig) retryDelay(failures int) time.Duration {
	if failures <= 0 {
		return c.Interval
	}
	if failures > 30 {
		return c.Interval
	}
	d := c.RetryBackoff * time.Duration(1<<(failures-1))
	if d <= 0 || d > c.Interval {
		return c.Interval
	}
	return d
}

// HealthState is the last known health of one context.
type HealthState struct {
	ContextName   string             `json:"contextName"`
	Checking      bool               `json:"checking"`
	Reachable     bool               `json:"reachable"`
	Context       kubeconfig.Context `json:"context"`
	LastChecked   time.Time          `json:"lastChecked,omitempty"`
	LastError     string             `json:"lastError,omitempty"`
	ServerVersion string             `json:"serverVersion,omitempty"`
}

// HealthChecker is the contract the manager needs from a health monitor.
type HealthChecker interface {
	Start(ctx context.Context)
	State() HealthState
	CheckNow(ctx context.Context) HealthState
	OnStateChange(fn func(HealthState)) func()
	OnReachable(fn func(HealthState)) func()
	Dispose()
}

// HealthOption configures a HealthMonitor.
type HealthOption func(*HealthMonitor)

// WithHealthLogger sets the logger.
func WithHealthLogger(logger *slog.Logger) HealthOption {
	return func(h *HealthMonitor) {
		h.logger = logger
	}
}

// WithHealthMetrics sets the metrics recorder.
func WithHealthMetrics(metrics MetricsRecorder) HealthOption {
	return func(h *HealthMonitor) {
		h.metrics = metrics
	}
}

// WithHealthTimings sets the check timings.
func WithHealthTimings(config HealthConfig) HealthOption {
	return func(h *HealthMonitor) {
		h.config = config
	}
}

// HealthMonitor periodically checks whether one context is reachable.
// It moves between checking, reachable and unreachable, and emits
// OnReachable on every transition into reachable.
type HealthMonitor struct {
	contextName string
	check       CheckFunc
	config      HealthConfig
	logger      *slog.Logger
	metrics     MetricsRecorder

	stateChanged Emitter[HealthState]
	reachable    Emitter[HealthState]
	group        singleflight.Group

	// life ends on Dispose and bounds every shared check.
	life    context.Context
	endLife context.CancelFunc

	mu       sync.RWMutex
	state    HealthState
	failures int
	started  bool
	disposed bool
	cancel   context.CancelFunc
}

var _ HealthChecker = (*HealthMonitor)(nil)

// NewHealthMonitor creates a health monitor for kctx. It does nothing until Start.
func NewHealthMonitor(kctx kubeconfig.Context, check CheckFunc, opts ...HealthOption) *HealthMonitor {
	h := &HealthMonitor{
		contextName: kctx.Name,
		check:       check,
		config:      DefaultHealthConfig(),
		logger:      slog.Default(),
		metrics:     noopMetricsRecorder{},
		state: HealthState{
			ContextName: kctx.Name,
			Context:     kctx,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.config = h.config.withDefaults()
	h.logger = logging.WithContext(h.logger, kctx.Name)
	h.life, h.endLife = context.WithCancel(context.Background())
	return h
}

// Start launches the check loop and returns immediately. Calling Start on a
// started or disposed monitor does nothing.
func (h *HealthMonitor) Start(ctx context.Context) {
	h.mu.Lock()
	if h.started || h.disposed {
		h.mu.Unlock()
		return
	}
	h.started = true
	ctx, h.cancel = context.WithCancel(ctx)
	h.mu.Unlock()

	go h.loop(ctx)
}

func (h *HealthMonitor) loop(ctx context.Context) {
	for {
		state := h.runShared(ctx)
		if ctx.Err() != nil {
			return
		}

		h.mu.RLock()
		delay := h.config.Interval
		if !state.Reachable {
			delay = h.config.retryDelay(h.failures)
		}
		h.mu.RUnlock()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// State returns the current health snapshot.
func (h *HealthMonitor) State() HealthState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// CheckNow runs a check immediately. Concurrent callers, including the
// background loop, share a single check. If ctx ends first, CheckNow returns
// the current state and the check still completes and is recorded.
func (h *HealthMonitor) CheckNow(ctx context.Context) HealthState {
	return h.runShared(ctx)
}

func (h *HealthMonitor) runShared(ctx context.Context) HealthState {
	ch := h.group.DoChan("check", func() (interface{}, error) {
		// Detached from the caller: only Dispose or CheckTimeout cut it short.
		checkCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		stop := context.AfterFunc(h.life, cancel)
		defer stop()

		h.runCheck(checkCtx)
		return h.State(), nil
	})

	select {
	case res := <-ch:
		return res.Val.(HealthState)
	case <-ctx.Done():
		return h.State()
	}
}

func (h *HealthMonitor) runCheck(ctx context.Context) {
	if h.isDisposed() {
		return
	}

	h.mu.Lock()
	h.state.Checking = true
	checking := h.state
	h.mu.Unlock()
	h.emitStateChange(checking)

	ctx, span := instrumentation.StartMonitorSpan(ctx, "health_check", h.contextName)
	defer span.End()

	checkCtx, cancel := context.WithTimeout(ctx, h.config.CheckTimeout)
	start := time.Now()
	result, err := h.check(checkCtx)
	duration := time.Since(start)
	cancel()

	if h.isDisposed() {
		return
	}

	h.mu.Lock()
	wasReachable := h.state.Reachable
	h.state.Checking = false
	h.state.LastChecked = time.Now()
	h.state.Reachable = err == nil
	if err != nil {
		h.state.LastError = logging.SanitizeHost(err.Error())
		h.failures++
	} else {
		h.state.LastError = ""
		h.failures = 0
		if result.ServerVersion != "" {
			h.state.ServerVersion = result.ServerVersion
		}
	}
	state := h.state
	h.mu.Unlock()

	h.metrics.RecordHealthCheck(ctx, state.ContextName, state.Reachable, duration)

	if err != nil {
		instrumentation.SetSpanError(span, err)
		if wasReachable {
			h.logger.Warn("Context became unreachable", logging.SanitizedErr(err), logging.Duration(duration))
		} else {
			h.logger.Debug("Context health check failed", logging.SanitizedErr(err), logging.Duration(duration))
		}
	} else {
		instrumentation.SetSpanSuccess(span)
		if !wasReachable {
			h.logger.Info("Context is reachable", slog.String("server_version", state.ServerVersion), logging.Duration(duration))
		}
	}

	h.emitStateChange(state)
	if state.Reachable && !wasReachable && !h.isDisposed() {
		h.reachable.Emit(state)
	}
}

func (h *HealthMonitor) emitStateChange(state HealthState) {
	if h.isDisposed() {
		return
	}
	h.stateChanged.Emit(state)
}

func (h *HealthMonitor) isDisposed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.disposed
}

// OnStateChange subscribes to every state change, including the start of a check.
func (h *HealthMonitor) OnStateChange(fn func(HealthState)) func() {
	return h.stateChanged.Subscribe(fn)
}

// OnReachable subscribes to transitions into the reachable state.
func (h *HealthMonitor) OnReachable(fn func(HealthState)) func() {
	return h.reachable.Subscribe(fn)
}

// Dispose stops the loop and drops all subscribers. It is safe to call more
// than once.
func (h *HealthMonitor) Dispose() {
	h.mu.Lock()
	if h.disposed {
		h.mu.Unlock()
		return
	}
	h.disposed = true
	cancel := h.cancel
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	h.endLife()
	h.stateChanged.Clear()
	h.reachable.Clear()
}
