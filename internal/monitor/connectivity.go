package monitor

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/version"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"

	"github.com/giantswarm/kube-context-monitor/internal/kubeconfig"
	"github.com/giantswarm/kube-context-monitor/internal/logging"
)

// defaultHealthCheckPath is the standard Kubernetes health endpoint.
const defaultHealthCheckPath = "/healthz"

// CheckResult is what a successful health check learned about the cluster.
type CheckResult struct {
	ServerVersion string
}

// CheckFunc performs a single reachability check. A nil error means reachable.
type CheckFunc func(ctx context.Context) (CheckResult, error)

// ConnectivityConfig controls how a health check talks to the API server.
type ConnectivityConfig struct {
	// ConnectionTimeout bounds a single check, TLS handshake included.
	//
	// Default: 5 seconds.
	ConnectionTimeout time.Duration

	// HealthCheckPath is the API path used for health checks.
	// Default: "/healthz".
	HealthCheckPath string
}

// DefaultConnectivityConfig returns a ConnectivityConfig with sensible defaults.
func DefaultConnectivityConfig() ConnectivityConfig {
	return ConnectivityConfig{
		ConnectionTimeout: 5 * time.Second,
		HealthCheckPath:   defaultHealthCheckPath,
	}
}

// HealthzCheck returns a CheckFunc that GETs the health endpoint through a
// minimal REST client. The endpoint does not need list permissions, so it
// separates reachability from authorization.
func HealthzCheck(contextName string, config *rest.Config, cc ConnectivityConfig) CheckFunc {
	return func(ctx context.Context) (CheckResult, error) {
		return CheckResult{}, checkHealthz(ctx, contextName, config, cc)
	}
}

func checkHealthz(ctx context.Context, contextName string, config *rest.Config, cc ConnectivityConfig) error {
	if config == nil {
		return &ConnectionError{
			ContextName: contextName,
			Host:        "<nil config>",
			Reason:      "config is nil",
		}
	}

	timeout := cc.ConnectionTimeout
	if timeout <= 0 {
		timeout = DefaultConnectivityConfig().ConnectionTimeout
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	configCopy := rest.CopyConfig(config)
	configCopy.APIPath = "/api"
	configCopy.GroupVersion = &schema.GroupVersion{Version: "v1"}
	configCopy.NegotiatedSerializer = scheme.Codecs.WithoutConversion()
	configCopy.Timeout = timeout

	restClient, err := rest.RESTClientFor(configCopy)
	if err != nil {
		return wrapConnectivityError(contextName, config.Host, "failed to create REST client", err)
	}

	healthPath := cc.HealthCheckPath
	if healthPath == "" {
		healthPath = defaultHealthCheckPath
	}

	if err := restClient.Get().AbsPath(healthPath).Do(checkCtx).Error(); err != nil {
		return wrapConnectivityError(contextName, config.Host, "health check failed", err)
	}
	return nil
}

// ServerVersionCheck returns a CheckFunc that asks the API server for its
// version. The request honours ctx.
func ServerVersionCheck(contextName string, client kubernetes.Interface) CheckFunc {
	return func(ctx context.Context) (CheckResult, error) {
		info, err := serverVersion(ctx, client.Discovery())
		if err != nil {
			return CheckResult{}, wrapConnectivityError(contextName, "", "server version request failed", err)
		}
		return CheckResult{ServerVersion: info.GitVersion}, nil
	}
}

// serverVersion GETs /version through the discovery REST client, since
// DiscoveryInterface.ServerVersion takes no context. Clients without a REST
// client, such as the fakes, fall back to ServerVersion.
func serverVersion(ctx context.Context, d discovery.DiscoveryInterface) (*version.Info, error) {
	rc := d.RESTClient()
	if rc == nil {
		return d.ServerVersion()
	}

	body, err := rc.Get().AbsPath("/version").Do(ctx).Raw()
	if err != nil {
		return nil, err
	}
	var info version.Info
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("unable to parse the server version: %w", err)
	}
	return &info, nil
}

// NamespaceListCheck returns a CheckFunc that lists at most one namespace.
// It fails for credentials that cannot list namespaces.
func NamespaceListCheck(contextName string, client kubernetes.Interface) CheckFunc {
	return func(ctx context.Context) (CheckResult, error) {
		if _, err := client.CoreV1().Namespaces().List(ctx, metav1.ListOptions{Limit: 1}); err != nil {
			return CheckResult{}, wrapConnectivityError(contextName, "", "namespace list failed", err)
		}
		return CheckResult{}, nil
	}
}

// DefaultCheck calls the health endpoint and, once it answers, records the
// server version. A failing version lookup does not make the context unreachable.
func DefaultCheck(clients *kubeconfig.Clients, cc ConnectivityConfig) CheckFunc {
	healthz := HealthzCheck(clients.ContextName, clients.RESTConfig, cc)
	serverVersionOf := ServerVersionCheck(clients.ContextName, clients.Kubernetes)
	return func(ctx context.Context) (CheckResult, error) {
		if _, err := healthz(ctx); err != nil {
			return CheckResult{}, err
		}
		timeout := cc.ConnectionTimeout
		if timeout <= 0 {
			timeout = DefaultConnectivityConfig().ConnectionTimeout
		}
		versionCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		result, err := serverVersionOf(versionCtx)
		if err != nil {
			return CheckResult{}, nil
		}
		return result, nil
	}
}

// FailingCheck returns a CheckFunc that always reports err. It stands in for
// contexts whose clients could not be built.
func FailingCheck(contextName string, err error) CheckFunc {
	wrapped := &ConnectionError{ContextName: contextName, Host: "<no client>", Reason: "client unavailable", Err: err}
	return func(context.Context) (CheckResult, error) {
		return CheckResult{}, wrapped
	}
}

// wrapConnectivityError picks a typed error from the underlying cause.
func wrapConnectivityError(contextName, host, reason string, err error) error {
	host = logging.SanitizeHost(host)

	if err == nil {
		return &ConnectionError{ContextName: contextName, Host: host, Reason: reason}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &ConnectivityTimeoutError{ContextName: contextName, Host: host, Err: err}
	}

	if errors.Is(err, context.Canceled) {
		return &ConnectionError{ContextName: contextName, Host: host, Reason: "request cancelled", Err: err}
	}

	if isTLSError(err) {
		return &TLSError{ContextName: contextName, Host: host, Reason: extractTLSReason(err), Err: err}
	}

	if isTimeoutError(err) {
		return &ConnectivityTimeoutError{ContextName: contextName, Host: host, Err: err}
	}

	return &ConnectionError{ContextName: contextName, Host: host, Reason: reason, Err: err}
}

func isTLSError(err error) bool {
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}

	errStr := err.Error()
	for _, pattern := range []string{
		"tls:",
		"x509:",
		"certificate signed by",
		"certificate has expired",
		"certificate is not valid",
		"certificate is valid for",
		"handshake failure",
		"unknown authority",
		"bad certificate",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "timed out", "deadline exceeded"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

func extractTLSReason(err error) string {
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "unknown authority"):
		return "certificate signed by unknown authority"
	case strings.Contains(errStr, "has expired"):
		return "certificate has expired"
	case strings.Contains(errStr, "not valid yet"):
		return "certificate is not yet valid"
	case strings.Contains(errStr, "doesn't match"):
		return "certificate hostname mismatch"
	case strings.Contains(errStr, "handshake failure"):
		return "TLS handshake failed"
	default:
		return "TLS error"
	}
}
