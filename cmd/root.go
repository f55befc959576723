package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// appName is the binary name used in help and version output.
const appName = "kube-context-monitor"

// rootCmd represents the base command for the kube-context-monitor application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Monitor the health, permissions and resources of every kubeconfig context",
	Long: `kube-context-monitor watches every context in a kubeconfig file. For each
context it tracks API server reachability, checks which resource kinds the
user may list and watch, and keeps live caches of those resources.

The cached state is served over an HTTP query API, a WebSocket event stream
and the Model Context Protocol (MCP).

When run without subcommands, it starts the monitor (equivalent to 'kube-context-monitor serve').`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "kube-context-monitor version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		// Cobra itself prints the error.
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newContextsCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newWaitReadyCmd())
}
