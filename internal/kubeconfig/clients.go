package kubeconfig

import (
	"fmt"
	"sync"
	"time"

	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

// Default client performance settings.
const (
	DefaultQPS     = 20.0
	DefaultBurst   = 30
	DefaultTimeout = 30 * time.Second
)

// Clients bundles the clients bound to a single context.
type Clients struct {
	ContextName string
	Kubernetes  kubernetes.Interface
	Dynamic     dynamic.Interface
	RESTConfig  *rest.Config
}

// ClientFactory builds the clients for one context.
type ClientFactory func(Context) (*Clients, error)

// ClientOptions tunes the rest.Config of every client built by a factory.
type ClientOptions struct {
	QPS     float32
	Burst   int
	Timeout time.Duration
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.QPS == 0 {
		o.QPS = DefaultQPS
	}
	if o.Burst == 0 {
		o.Burst = DefaultBurst
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// NewClientFactory returns a ClientFactory reading context definitions from raw.
func NewClientFactory(raw *clientcmdapi.Config, opts ClientOptions) ClientFactory {
	return func(c Context) (*Clients, error) {
		return buildClients(raw, c.Name, opts)
	}
}

// RESTConfigFor returns the rest.Config for the named context.
func RESTConfigFor(raw *clientcmdapi.Config, contextName string, opts ClientOptions) (*rest.Config, error) {
	if raw == nil {
		return nil, fmt.Errorf("no kubeconfig loaded")
	}
	if _, ok := raw.Contexts[contextName]; !ok {
		return nil, fmt.Errorf("context %q not found in kubeconfig", contextName)
	}

	restConfig, err := clientcmd.NewNonInteractiveClientConfig(*raw, contextName, &clientcmd.ConfigOverrides{}, nil).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create rest config for context %q: %w", contextName, err)
	}

	opts = opts.withDefaults()
	restConfig.QPS = opts.QPS
	restConfig.Burst = opts.Burst
	restConfig.Timeout = opts.Timeout

	return restConfig, nil
}

func buildClients(raw *clientcmdapi.Config, contextName string, opts ClientOptions) (*Clients, error) {
	restConfig, err := RESTConfigFor(raw, contextName, opts)
	if err != nil {
		return nil, err
	}
	clients, err := NewClients(restConfig)
	if err != nil {
		return nil, fmt.Errorf("context %q: %w", contextName, err)
	}
	clients.ContextName = contextName
	return clients, nil
}

// NewClients creates the typed and dynamic clients for restConfig.
func NewClients(restConfig *rest.Config) (*Clients, error) {
	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	dynamicClient, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}
	return &Clients{
		Kubernetes: clientset,
		Dynamic:    dynamicClient,
		RESTConfig: restConfig,
	}, nil
}

// Store holds the latest kubeconfig snapshot. Its ClientFactory always reads
// the most recent raw config. Contexts whose definition changed on reload no
// longer compare Equal, so the manager rebuilds them with fresh clients.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// NewStore returns a store seeded with snap.
func NewStore(snap Snapshot) *Store {
	return &Store{snapshot: snap}
}

// Set replaces the stored snapshot.
func (s *Store) Set(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snap
}

// Snapshot returns the stored snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// ClientFactory returns a factory backed by the stored raw config.
func (s *Store) ClientFactory(opts ClientOptions) ClientFactory {
	return func(c Context) (*Clients, error) {
		return buildClients(s.Snapshot().Raw, c.Name, opts)
	}
}
