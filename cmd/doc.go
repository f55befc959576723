// Package cmd provides the command-line interface for kube-context-monitor.
//
// This package implements a Cobra-based CLI with the following subcommands:
//   - serve: Starts the monitor and its HTTP and MCP surfaces (default when no subcommand is given)
//   - contexts: Lists the kubeconfig contexts
//   - status: Monitors every context for a settle period, prints health and counts, then exits
//   - wait-ready: Waits until a context's objects report a condition
//   - version: Displays the application version
//   - self-update: Updates the binary to the latest version from GitHub releases
//
// Command Structure:
//
//	kube-context-monitor [flags]                  # Starts the monitor (default)
//	kube-context-monitor serve [flags]            # Explicitly starts the monitor
//	kube-context-monitor contexts -o yaml         # Lists kubeconfig contexts
//	kube-context-monitor status --settle 15s      # One-shot health and counts
//	kube-context-monitor wait-ready --timeout 2m  # Blocks until kube-system pods are Ready
//	kube-context-monitor version                  # Shows version information
//	kube-context-monitor self-update              # Updates to latest release
//
// The serve command reads its settings from flags, KCM_* environment
// variables and an optional YAML file given with --config, in that order of
// precedence. MCP is served over streamable-http (default), stdio, or not at all:
//
//	kube-context-monitor serve --transport streamable-http --http-addr :8080 --http-endpoint /mcp
//	kube-context-monitor serve --transport stdio --http-addr ""
package cmd
