package kubeconfig

import (
	"errors"
	"fmt"
	"sort"

	apiequality "k8s.io/apimachinery/pkg/api/equality"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

// ErrNoContexts is returned when a kubeconfig declares no contexts.
var ErrNoContexts = errors.New("kubeconfig declares no contexts")

// Context is an immutable snapshot of one kubeconfig context.
type Context struct {
	Name      string `json:"name"`
	Cluster   string `json:"cluster"`
	User      string `json:"user"`
	Namespace string `json:"namespace,omitempty"`
	Server    string `json:"server,omitempty"`

	// clusterDef and userDef are the resolved kubeconfig entries the names
	// point at, without their file origin.
	clusterDef *clientcmdapi.Cluster
	userDef    *clientcmdapi.AuthInfo
}

// Equal reports whether two contexts point at the same cluster, user and
// namespace, comparing the cluster and user definitions as well as their
// names. A rotated token or a moved server under the same names is a
// different context, treated as removed and re-added.
func (c Context) Equal(other Context) bool {
	return c.Cluster == other.Cluster &&
		c.User == other.User &&
		c.Namespace == other.Namespace &&
		c.Server == other.Server &&
		apiequality.Semantic.DeepEqual(c.clusterDef, other.clusterDef) &&
		apiequality.Semantic.DeepEqual(c.userDef, other.userDef)
}

// Snapshot is the set of contexts read from one kubeconfig load.
type Snapshot struct {
	Contexts       []Context `json:"contexts"`
	CurrentContext string    `json:"currentContext,omitempty"`

	// Raw is the parsed kubeconfig the snapshot was built from.
	Raw *clientcmdapi.Config `json:"-"`
}

// Lookup returns the named context.
func (s Snapshot) Lookup(name string) (Context, bool) {
	for _, c := range s.Contexts {
		if c.Name == name {
			return c, true
		}
	}
	return Context{}, false
}

// Names returns the context names in order.
func (s Snapshot) Names() []string {
	names := make([]string, len(s.Contexts))
	for i, c := range s.Contexts {
		names[i] = c.Name
	}
	return names
}

// FromConfig builds a Snapshot from a parsed kubeconfig. Contexts are sorted
// by name.
func FromConfig(cfg *clientcmdapi.Config) Snapshot {
	if cfg == nil {
		return Snapshot{}
	}

	contexts := make([]Context, 0, len(cfg.Contexts))
	for name, kc := range cfg.Contexts {
		if kc == nil {
			continue
		}
		c := Context{
			Name:      name,
			Cluster:   kc.Cluster,
			User:      kc.AuthInfo,
			Namespace: kc.Namespace,
		}
		if cluster, ok := cfg.Clusters[kc.Cluster]; ok && cluster != nil {
			c.Server = cluster.Server
			c.clusterDef = cluster.DeepCopy()
			c.clusterDef.LocationOfOrigin = ""
		}
		if user, ok := cfg.AuthInfos[kc.AuthInfo]; ok && user != nil {
			c.userDef = user.DeepCopy()
			c.userDef.LocationOfOrigin = ""
		}
		contexts = append(contexts, c)
	}

	sort.Slice(contexts, func(i, j int) bool { return contexts[i].Name < contexts[j].Name })

	return Snapshot{
		Contexts:       contexts,
		CurrentContext: cfg.CurrentContext,
		Raw:            cfg,
	}
}

// Load reads the kubeconfig at path. An empty path uses the default loading
// rules, which honour $KUBECONFIG and ~/.kube/config.
func Load(path string) (Snapshot, error) {
	var (
		cfg *clientcmdapi.Config
		err error
	)
	if path != "" {
		cfg, err = clientcmd.LoadFromFile(path)
	} else {
		cfg, err = clientcmd.NewDefaultClientConfigLoadingRules().Load()
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load kubeconfig: %w", err)
	}

	snap := FromConfig(cfg)
	if len(snap.Contexts) == 0 {
		return snap, ErrNoContexts
	}
	return snap, nil
}

// Parse builds a Snapshot from kubeconfig bytes.
func Parse(data []byte) (Snapshot, error) {
	cfg, err := clientcmd.Load(data)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to parse kubeconfig: %w", err)
	}
	return FromConfig(cfg), nil
}

// ResolvePath returns path, or the first file of the default loading rules
// ($KUBECONFIG, then ~/.kube/config) when path is empty.
func ResolvePath(path string) string {
	if path != "" {
		return path
	}
	if precedence := clientcmd.NewDefaultClientConfigLoadingRules().GetLoadingPrecedence(); len(precedence) > 0 {
		return precedence[0]
	}
	return clientcmd.RecommendedHomeFile
}
