package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedCheck returns the queued errors in order, then succeeds.
type scriptedCheck struct {
	mu     sync.Mutex
	errs   []error
	calls  atomic.Int32
	result CheckResult
}

func (s *scriptedCheck) check(context.Context) (CheckResult, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return CheckResult{}, err
		}
	}
	return s.result, nil
}

func fastHealthConfig() HealthConfig {
	return HealthConfig{
		Interval:     20 * time.Millisecond,
		RetryBackoff: 5 * time.Millisecond,
		CheckTimeout: time.Second,
	}
}

func TestHealthConfig_RetryDelay(t *testing.T) {
	cfg := HealthConfig{Interval: 15 * time.Second, RetryBackoff: time.Second}

	tests := []struct {
		failures int
		want     time.Duration
	}{
		{failures: 0, want: 15 * time.Second},
		{failures: 1, want: time.Second},
		{failures: 2, want: 2 * time.Second},
		{failures: 3, want: 4 * time.Second},
		{failures: 4, want: 8 * time.Second},
		{failures: 5, want: 15 * time.Second},
		{failures: 64, want: 15 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.retryDelay(tt.failures), "failures=%d", tt.failures)
	}
}

func TestHealthConfig_WithDefaults(t *testing.T) {
	cfg := HealthConfig{}.withDefaults()
	assert.Equal(t, DefaultHealthConfig(), cfg)

	custom := HealthConfig{Interval: time.Minute}.withDefaults()
	assert.Equal(t, time.Minute, custom.Interval)
	assert.Equal(t, DefaultHealthRetryBackoff, custom.RetryBackoff)
}

func TestHealthMonitor_ReachableTransitions(t *testing.T) {
	boom := errors.New("connection refused")
	check := &scriptedCheck{
		errs:   []error{nil, nil, boom, boom},
		result: CheckResult{ServerVersion: "v1.31.0"},
	}

	h := NewHealthMonitor(testContext("context1", "user1"), check.check,
		WithHealthLogger(newTestLogger()),
		WithHealthTimings(fastHealthConfig()))
	t.Cleanup(h.Dispose)

	var reachable atomic.Int32
	var sawUnreachable atomic.Bool
	h.OnReachable(func(s HealthState) {
		assert.True(t, s.Reachable)
		reachable.Add(1)
	})
	h.OnStateChange(func(s HealthState) {
		if !s.Checking && !s.Reachable {
			sawUnreachable.Store(true)
		}
	})

	h.Start(context.Background())

	require.Eventually(t, func() bool {
		return reachable.Load() == 2
	}, 2*time.Second, 5*time.Millisecond, "reachable fires once per transition")

	assert.True(t, sawUnreachable.Load())
	state := h.State()
	assert.True(t, state.Reachable)
	assert.Equal(t, "v1.31.0", state.ServerVersion)
	assert.Equal(t, "context1", state.ContextName)
	assert.Empty(t, state.LastError)

	// Later checks keep succeeding without new transitions.
	calls := check.calls.Load()
	require.Eventually(t, func() bool {
		return check.calls.Load() > calls+2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), reachable.Load())
}

func TestHealthMonitor_UnreachableRecordsError(t *testing.T) {
	check := func(context.Context) (CheckResult, error) {
		return CheckResult{}, &ConnectionError{ContextName: "context1", Host: "https://10.0.0.1:6443", Reason: "health check failed", Err: errors.New("dial tcp 10.0.0.1:6443: connection refused")}
	}

	h := NewHealthMonitor(testContext("context1", "user1"), check, WithHealthLogger(newTestLogger()))
	t.Cleanup(h.Dispose)

	state := h.CheckNow(context.Background())
	assert.False(t, state.Reachable)
	assert.False(t, state.Checking)
	assert.NotEmpty(t, state.LastError)
	assert.NotContains(t, state.LastError, "10.0.0.1", "hosts are sanitized")
	assert.False(t, state.LastChecked.IsZero())
}

func TestHealthMonitor_CheckNowEmitsChecking(t *testing.T) {
	check := &scriptedCheck{}
	h := NewHealthMonitor(testContext("context1", "user1"), check.check, WithHealthLogger(newTestLogger()))
	t.Cleanup(h.Dispose)

	var states []HealthState
	h.OnStateChange(func(s HealthState) { states = append(states, s) })

	state := h.CheckNow(context.Background())
	assert.True(t, state.Reachable)

	require.Len(t, states, 2)
	assert.True(t, states[0].Checking)
	assert.False(t, states[1].Checking)
	assert.True(t, states[1].Reachable)
}

func TestHealthMonitor_Dispose(t *testing.T) {
	check := &scriptedCheck{}
	h := NewHealthMonitor(testContext("context1", "user1"), check.check,
		WithHealthLogger(newTestLogger()),
		WithHealthTimings(fastHealthConfig()))

	var reachable atomic.Int32
	h.OnReachable(func(HealthState) { reachable.Add(1) })

	h.Start(context.Background())
	require.Eventually(t, func() bool { return reachable.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	h.Dispose()
	h.Dispose()

	// The loop stops: the call count settles.
	var last int32
	require.Eventually(t, func() bool {
		now := check.calls.Load()
		stable := now == last
		last = now
		return stable
	}, 2*time.Second, 100*time.Millisecond)

	// Start after Dispose does nothing.
	h.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, last, check.calls.Load())
}

// gatedCheck succeeds once, then blocks every later check until released or
// until its context ends.
type gatedCheck struct {
	calls   atomic.Int32
	release chan struct{}
}

func (g *gatedCheck) check(ctx context.Context) (CheckResult, error) {
	if g.calls.Add(1) == 1 {
		return CheckResult{}, nil
	}
	select {
	case <-g.release:
		return CheckResult{}, nil
	case <-ctx.Done():
		return CheckResult{}, ctx.Err()
	}
}

func TestHealthMonitor_CallerCancellationKeepsState(t *testing.T) {
	gate := &gatedCheck{release: make(chan struct{})}
	h := NewHealthMonitor(testContext("context1", "user1"), gate.check,
		WithHealthLogger(newTestLogger()),
		WithHealthTimings(HealthConfig{CheckTimeout: 5 * time.Second}))
	t.Cleanup(h.Dispose)

	var reachable atomic.Int32
	h.OnReachable(func(HealthState) { reachable.Add(1) })

	require.True(t, h.CheckNow(context.Background()).Reachable)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan HealthState, 1)
	go func() { done <- h.CheckNow(ctx) }()
	require.Eventually(t, func() bool { return gate.calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case state := <-done:
		assert.True(t, state.Reachable, "the caller gets the last known state")
	case <-time.After(2 * time.Second):
		t.Fatal("CheckNow did not return after its context was cancelled")
	}

	close(gate.release)
	require.Eventually(t, func() bool { return !h.State().Checking }, 2*time.Second, 5*time.Millisecond)

	state := h.State()
	assert.True(t, state.Reachable)
	assert.Empty(t, state.LastError)
	assert.Equal(t, int32(1), reachable.Load(), "no second reachable transition")
}

func TestHealthMonitor_DisposeCancelsSharedCheck(t *testing.T) {
	gate := &gatedCheck{release: make(chan struct{})}
	gate.calls.Store(1)
	h := NewHealthMonitor(testContext("context1", "user1"), gate.check,
		WithHealthLogger(newTestLogger()),
		WithHealthTimings(HealthConfig{CheckTimeout: time.Minute}))

	done := make(chan struct{})
	go func() {
		h.CheckNow(context.Background())
		close(done)
	}()
	require.Eventually(t, func() bool { return gate.calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)

	h.Dispose()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("the shared check outlived Dispose")
	}
}
