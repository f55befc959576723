package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/kube-context-monitor/internal/catalog"
	"github.com/giantswarm/kube-context-monitor/internal/kubeconfig"
	"github.com/giantswarm/kube-context-monitor/internal/logging"
	"github.com/giantswarm/kube-context-monitor/internal/monitor"
)

// exitNotReady is the exit status of a readiness wait that timed out.
const exitNotReady = 2

type waitReadyOptions struct {
	kubeconfig    string
	catalogFile   string
	context       string
	resource      string
	namespace     string
	labelSelector string
	fieldSelector string
	condition     string
	timeout       time.Duration
	pollInterval  time.Duration
	logLevel      string
}

func newWaitReadyCmd() *cobra.Command {
	opts := &waitReadyOptions{}
	cmd := &cobra.Command{
		Use:   "wait-ready",
		Short: "Wait until a cluster's objects report a condition",
		Long: `Watch the selected objects of one context until every one of them carries
the given condition with status True. By default that is the Ready condition
of the kube-system pods of the current context.

Exits with status 2 when the cluster is not ready before the timeout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWaitReady(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.kubeconfig, keyKubeconfig, "", "Path to the kubeconfig file (default: $KUBECONFIG or ~/.kube/config)")
	f.StringVar(&opts.catalogFile, keyCatalogFile, "", "YAML file with additional resource kinds")
	f.StringVar(&opts.context, "context", "", "Context to wait for (default: the current context)")
	f.StringVar(&opts.resource, "resource", "pods", "Catalog resource kind to watch")
	f.StringVarP(&opts.namespace, "namespace", "n", "kube-system", "Namespace of the watched objects; empty for all namespaces")
	f.StringVarP(&opts.labelSelector, "selector", "l", "", "Label selector of the watched objects")
	f.StringVar(&opts.fieldSelector, "field-selector", "", "Field selector of the watched objects")
	f.StringVar(&opts.condition, "condition", "Ready", "Condition type every object must report as True")
	f.DurationVar(&opts.timeout, "timeout", monitor.DefaultReadinessTimeout, "How long to wait before giving up")
	f.DurationVar(&opts.pollInterval, "poll-interval", monitor.DefaultReadinessPollInterval, "How often the condition is evaluated")
	f.StringVar(&opts.logLevel, keyLogLevel, "info", "Log level of the progress written to stderr")
	return cmd
}

func runWaitReady(cmd *cobra.Command, opts *waitReadyOptions) error {
	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(opts.logLevel)
	lc.Output = cmd.ErrOrStderr()
	logger := logging.New(lc)
	logging.RouteKlog(logger)

	cat, err := catalog.LoadWithDefaults(opts.catalogFile)
	if err != nil {
		return fmt.Errorf("failed to load resource catalog: %w", err)
	}
	target, err := readinessTarget(cat, opts)
	if err != nil {
		return err
	}

	snap, err := kubeconfig.Load(opts.kubeconfig)
	if err != nil {
		return err
	}
	name := opts.context
	if name == "" {
		name = snap.CurrentContext
	}
	kctx, ok := snap.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", monitor.ErrUnknownContext, name)
	}

	clients, err := kubeconfig.NewClientFactory(snap.Raw, kubeconfig.ClientOptions{})(kctx)
	if err != nil {
		return fmt.Errorf("failed to create clients for context %q: %w", name, err)
	}
	clients.ContextName = name

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	err = monitor.WaitForReady(ctx, clients, monitor.ReadinessOptions{
		Targets:      []monitor.ReadinessTarget{target},
		Timeout:      opts.timeout,
		PollInterval: opts.pollInterval,
		Ready:        monitor.AllConditionsTrue(opts.condition),
		Sink:         logging.NewSink(logger),
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Context %q is ready\n", name)
	return nil
}

// readinessTarget maps the selected catalog kind onto a readiness target.
func readinessTarget(cat *catalog.Catalog, opts *waitReadyOptions) (monitor.ReadinessTarget, error) {
	kind, ok := cat.Get(opts.resource)
	if !ok {
		return monitor.ReadinessTarget{}, fmt.Errorf("unknown resource kind %q", opts.resource)
	}
	if !kind.Watchable() {
		return monitor.ReadinessTarget{}, fmt.Errorf("resource kind %q cannot be watched", opts.resource)
	}

	namespace := opts.namespace
	if !kind.Namespaced {
		namespace = ""
	}
	return monitor.ReadinessTarget{
		Name:          kind.Name,
		GVR:           kind.Watch.GVR,
		Namespace:     namespace,
		LabelSelector: opts.labelSelector,
		FieldSelector: opts.fieldSelector,
	}, nil
}

// exitCode maps a command error onto the process exit status.
func exitCode(err error) int {
	if errors.Is(err, monitor.ErrClusterNotReady) {
		return exitNotReady
	}
	return 1
}
