// Package kubeconfig turns kubeconfig files into context snapshots and
// per-context Kubernetes clients.
//
// Load and FromConfig produce a Snapshot with contexts sorted by name.
// NewClientFactory and Store.ClientFactory build the clients the monitor uses
// for each context, and Watcher reloads the file when it changes on disk.
package kubeconfig
