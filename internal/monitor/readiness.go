package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/giantswarm/kube-context-monitor/internal/catalog"
	"github.com/giantswarm/kube-context-monitor/internal/instrumentation"
	"github.com/giantswarm/kube-context-monitor/internal/kubeconfig"
)

// Default readiness wait timings.
const (
	DefaultReadinessTimeout      = 30 * time.Second
	DefaultReadinessPollInterval = 1 * time.Second
)

// ReadinessTarget selects the objects one readiness informer watches.
type ReadinessTarget struct {
	Name          string
	GVR           schema.GroupVersionResource
	Namespace     string
	LabelSelector string
	FieldSelector string
}

// SystemPodsTarget watches the pods in kube-system.
func SystemPodsTarget() ReadinessTarget {
	return ReadinessTarget{
		Name:      "pods",
		GVR:       schema.GroupVersionResource{Version: "v1", Resource: "pods"},
		Namespace: "kube-system",
	}
}

// ReadyFunc decides readiness from the current cache contents, keyed by target name.
type ReadyFunc func(objects map[string][]*unstructured.Unstructured) bool

// AllConditionsTrue is ready once every target has at least one object and
// every object carries condType=True.
func AllConditionsTrue(condType string) ReadyFunc {
	return func(objects map[string][]*unstructured.Unstructured) bool {
		if len(objects) == 0 {
			return false
		}
		for _, items := range objects {
			if len(items) == 0 {
				return false
			}
			for _, obj := range items {
				if !catalog.HasCondition(obj, condType, "True") {
					return false
				}
			}
		}
		return true
	}
}

// Sink receives progress messages from a readiness wait.
type Sink interface {
	Log(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type discardSink struct{}

func (discardSink) Log(string, ...any)   {}
func (discardSink) Warn(string, ...any)  {}
func (discardSink) Error(string, ...any) {}

// ReadinessInformerFactory builds the informer for one target.
type ReadinessInformerFactory func(clients *kubeconfig.Clients, target ReadinessTarget, startTimeout time.Duration) Informer

// ReadinessOptions configures WaitForReady.
type ReadinessOptions struct {
	Targets      []ReadinessTarget
	Timeout      time.Duration
	PollInterval time.Duration
	Ready        ReadyFunc

	// Sink receives progress messages. Nil discards them.
	Sink Sink

	// Logger is handed to the informers. Nil uses slog.Default().
	Logger *slog.Logger

	InformerFactory ReadinessInformerFactory
}

func (o ReadinessOptions) withDefaults() ReadinessOptions {
	if len(o.Targets) == 0 {
		o.Targets = []ReadinessTarget{SystemPodsTarget()}
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultReadinessTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultReadinessPollInterval
	}
	if o.Ready == nil {
		o.Ready = AllConditionsTrue("Ready")
	}
	if o.Sink == nil {
		o.Sink = discardSink{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.InformerFactory == nil {
		logger := o.Logger
		o.InformerFactory = func(clients *kubeconfig.Clients, t ReadinessTarget, startTimeout time.Duration) Informer {
			kind := catalog.Descriptor{
				Name:       t.Name,
				Namespaced: true,
				Watch: &catalog.WatchSpec{
					GVR:           t.GVR,
					LabelSelector: t.LabelSelector,
					FieldSelector: t.FieldSelector,
				},
			}
			return NewResourceInformer(clients.ContextName, clients.Dynamic, kind, t.Namespace,
				WithStartTimeout(startTimeout),
				WithInformerLogger(logger))
		}
	}
	return o
}

// WaitForReady blocks until the Ready predicate holds for the targets' cache
// contents, or the timeout expires. It returns a *ReadinessTimeoutError on
// timeout and the start error when an informer fails to start. List errors
// are reported to the Sink and make that poll not ready. Every informer built
// by the wait is disposed exactly once before it returns.
func WaitForReady(ctx context.Context, clients *kubeconfig.Clients, opts ReadinessOptions) error {
	if clients == nil {
		return fmt.Errorf("clients are required")
	}
	opts = opts.withDefaults()

	names := make([]string, len(opts.Targets))
	for i, t := range opts.Targets {
		names[i] = t.Name
	}

	ctx, span := instrumentation.StartMonitorSpan(ctx, "readiness_wait", clients.ContextName,
		attribute.StringSlice("targets", names))
	defer span.End()

	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	informers := make([]Informer, len(opts.Targets))
	for i, t := range opts.Targets {
		informers[i] = opts.InformerFactory(clients, t, opts.Timeout)
	}
	defer func() {
		for _, inf := range informers {
			inf.Dispose()
		}
	}()

	startErrs := make(chan error, len(informers))
	for _, inf := range informers {
		go func() {
			if err := inf.Start(waitCtx); err != nil {
				startErrs <- err
			}
		}()
	}

	opts.Sink.Log("Waiting for cluster readiness", "context", clients.ContextName, "targets", names, "timeout", opts.Timeout)

	// A poll where any target cannot be listed is not ready.
	ready := func() bool {
		objects := make(map[string][]*unstructured.Unstructured, len(informers))
		listed := true
		for i, inf := range informers {
			items, err := inf.List()
			if err != nil {
				opts.Sink.Warn("Failed to list objects while waiting for readiness", "target", names[i], "error", err)
				listed = false
				continue
			}
			objects[names[i]] = items
		}
		return listed && opts.Ready(objects)
	}

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	timeoutErr := func() error {
		err := &ReadinessTimeoutError{ContextName: clients.ContextName, Targets: names, Timeout: opts.Timeout}
		opts.Sink.Error("Cluster not ready", "context", clients.ContextName, "timeout", opts.Timeout)
		instrumentation.SetSpanError(span, err)
		return err
	}

	for {
		if ready() {
			opts.Sink.Log("Cluster is ready", "context", clients.ContextName)
			instrumentation.SetSpanSuccess(span)
			return nil
		}

		select {
		case err := <-startErrs:
			if waitCtx.Err() != nil && ctx.Err() == nil {
				return timeoutErr()
			}
			opts.Sink.Error("Readiness informer failed to start", "context", clients.ContextName, "error", err)
			instrumentation.SetSpanError(span, err)
			return fmt.Errorf("readiness wait for context %q: %w", clients.ContextName, err)
		case <-waitCtx.Done():
			if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ctx.Err()
			}
			return timeoutErr()
		case <-ticker.C:
		}
	}
}
