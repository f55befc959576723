package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/giantswarm/kube-context-monitor/internal/kubeconfig"
)

type contextsOptions struct {
	kubeconfig string
	output     string
}

func newContextsCmd() *cobra.Command {
	opts := &contextsOptions{}
	cmd := &cobra.Command{
		Use:   "contexts",
		Short: "List the contexts of the kubeconfig file",
		Long: `List the contexts declared in the kubeconfig file, marking the current one.
The kubeconfig is only read; no cluster is contacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(opts.output); err != nil {
				return err
			}
			snap, err := kubeconfig.Load(opts.kubeconfig)
			if err != nil && !errors.Is(err, kubeconfig.ErrNoContexts) {
				return err
			}
			return printContexts(cmd.OutOrStdout(), opts.output, snap)
		},
	}

	cmd.Flags().StringVar(&opts.kubeconfig, keyKubeconfig, "", "Path to the kubeconfig file (default: $KUBECONFIG or ~/.kube/config)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", outputTable, "Output format: table, json, or yaml")
	return cmd
}

func printContexts(w io.Writer, format string, snap kubeconfig.Snapshot) error {
	if format != outputTable {
		contexts := snap.Contexts
		if contexts == nil {
			contexts = []kubeconfig.Context{}
		}
		return printStructured(w, format, kubeconfig.Snapshot{
			Contexts:       contexts,
			CurrentContext: snap.CurrentContext,
		})
	}

	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "CURRENT\tNAME\tCLUSTER\tUSER\tNAMESPACE\tSERVER")
	for _, c := range snap.Contexts {
		current := ""
		if c.Name == snap.CurrentContext {
			current = "*"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", current, c.Name, c.Cluster, c.User, c.Namespace, c.Server)
	}
	return tw.Flush()
}
