package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/kube-context-monitor/internal/logging"
	"github.com/giantswarm/kube-context-monitor/internal/monitor"
	"github.com/giantswarm/kube-context-monitor/internal/server"
)

const (
	defaultSettle      = 10 * time.Second
	settlePollInterval = 250 * time.Millisecond
)

type statusOptions struct {
	kubeconfig  string
	catalogFile string
	settle      time.Duration
	active      bool
	output      string
	logLevel    string
}

// statusReport is the one-shot view printed by the status command.
type statusReport struct {
	Contexts []monitor.HealthState   `json:"contexts"`
	Counts   []monitor.ResourceCount `json:"counts"`
	Active   bool                    `json:"active"`
}

func newStatusCmd() *cobra.Command {
	opts := &statusOptions{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the health and resource counts of every context once",
		Long: `Start monitoring every kubeconfig context, wait for the settle period so
health checks, permission checkers and informers can report, then print the
health of each context and the cached resource counts, and exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(opts.output); err != nil {
				return err
			}
			return runStatus(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.kubeconfig, keyKubeconfig, "", "Path to the kubeconfig file (default: $KUBECONFIG or ~/.kube/config)")
	cmd.Flags().StringVar(&opts.catalogFile, keyCatalogFile, "", "YAML file with additional resource kinds to monitor")
	cmd.Flags().DurationVar(&opts.settle, "settle", defaultSettle, "How long to let the monitors report before printing")
	cmd.Flags().BoolVar(&opts.active, "active", false, "Count only active objects (running pods, available deployments, ...)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", outputTable, "Output format: table, json, or yaml")
	cmd.Flags().StringVar(&opts.logLevel, keyLogLevel, "error", "Log level of the progress written to stderr")
	return cmd
}

func runStatus(ctx context.Context, out, errOut io.Writer, opts *statusOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(opts.logLevel)
	lc.Output = errOut
	logger := logging.New(lc)
	logging.RouteKlog(logger)

	eng, err := startEngine(ctx, logger, engineConfig{
		Kubeconfig:   opts.kubeconfig,
		CatalogFile:  opts.catalogFile,
		MonitorAll:   true,
		Health:       monitor.DefaultHealthConfig(),
		Connectivity: monitor.DefaultConnectivityConfig(),
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	waitSettled(ctx, eng.manager, opts.settle, logger)

	return printStatus(out, opts.output, buildStatusReport(eng.manager, opts.active))
}

// waitSettled waits for the settle period. It returns early when there is
// nothing left to wait for: no contexts, or every context checked and
// unreachable.
func waitSettled(ctx context.Context, m server.Monitor, settle time.Duration, logger *slog.Logger) {
	deadline := time.NewTimer(settle)
	defer deadline.Stop()
	ticker := time.NewTicker(settlePollInterval)
	defer ticker.Stop()

	for {
		if nothingToWaitFor(m.HealthStates()) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			logger.Debug("Settle period elapsed", logging.Duration(settle))
			return
		case <-ticker.C:
		}
	}
}

func nothingToWaitFor(states map[string]monitor.HealthState) bool {
	for _, s := range states {
		if s.Checking || s.Reachable || s.LastChecked.IsZero() {
			return false
		}
	}
	return true
}

func buildStatusReport(m server.Monitor, active bool) statusReport {
	states := m.HealthStates()
	report := statusReport{
		Contexts: make([]monitor.HealthState, 0, len(states)),
		Active:   active,
	}
	for _, s := range states {
		report.Contexts = append(report.Contexts, s)
	}
	sort.Slice(report.Contexts, func(i, j int) bool {
		return report.Contexts[i].ContextName < report.Contexts[j].ContextName
	})

	if active {
		report.Counts = m.ActiveResourcesCount()
	} else {
		report.Counts = m.ResourcesCount()
	}
	if report.Counts == nil {
		report.Counts = []monitor.ResourceCount{}
	}
	sort.Slice(report.Counts, func(i, j int) bool {
		a, b := report.Counts[i], report.Counts[j]
		if a.ContextName != b.ContextName {
			return a.ContextName < b.ContextName
		}
		return a.ResourceName < b.ResourceName
	})
	return report
}

func printStatus(w io.Writer, format string, report statusReport) error {
	if format != outputTable {
		return printStructured(w, format, report)
	}

	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "CONTEXT\tSTATUS\tVERSION\tERROR")
	for _, s := range report.Contexts {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ContextName, healthLabel(s), s.ServerVersion, s.LastError)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(report.Counts) == 0 {
		return nil
	}
	_, _ = fmt.Fprintln(w)
	tw = newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "CONTEXT\tRESOURCE\tCOUNT")
	for _, c := range report.Counts {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\n", c.ContextName, c.ResourceName, c.Count)
	}
	return tw.Flush()
}

func healthLabel(s monitor.HealthState) string {
	switch {
	case s.Checking:
		return "Checking"
	case s.Reachable:
		return "Reachable"
	default:
		return "Unreachable"
	}
}
