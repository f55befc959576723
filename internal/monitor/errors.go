package monitor

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions.
// Use errors.Is() to check for these error types.
var (
	// ErrManagerClosed indicates that the contexts manager has been disposed.
	ErrManagerClosed = errors.New("contexts manager is closed")

	// ErrReviewerDisposed indicates that an access reviewer was disposed before it completed.
	ErrReviewerDisposed = errors.New("access reviewer disposed")

	// ErrInformerDisposed indicates that a read was attempted on a disposed informer.
	ErrInformerDisposed = errors.New("informer disposed")

	// ErrWatchNotEstablished indicates that an informer failed to complete its
	// initial list and watch.
	ErrWatchNotEstablished = errors.New("watch not established")

	// ErrClusterNotReady indicates that a readiness wait gave up.
	ErrClusterNotReady = errors.New("cluster not ready")

	// ErrClusterUnreachable indicates that the API server could not be reached.
	ErrClusterUnreachable = errors.New("cluster unreachable")

	// ErrConnectionTimeout indicates that the connection attempt timed out.
	ErrConnectionTimeout = errors.New("connection timeout")

	// ErrTLSHandshakeFailed indicates a certificate or TLS negotiation failure.
	ErrTLSHandshakeFailed = errors.New("TLS handshake failed")

	// ErrUnknownContext indicates that the named context is not monitored.
	ErrUnknownContext = errors.New("unknown context")
)

// ConnectionError provides detailed context about a failed health check.
type ConnectionError struct {
	ContextName string
	Host        string
	Reason      string
	Err         error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("context %q (%s): %s: %v", e.ContextName, e.Host, e.Reason, e.Err)
	}
	return fmt.Sprintf("context %q (%s): %s", e.ContextName, e.Host, e.Reason)
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Is matches ErrClusterUnreachable.
func (e *ConnectionError) Is(target error) bool {
	return target == ErrClusterUnreachable
}

// ConnectivityTimeoutError indicates that the API server did not answer in time.
type ConnectivityTimeoutError struct {
	ContextName string
	Host        string
	Timeout     time.Duration
	Err         error
}

// Error implements the error interface.
func (e *ConnectivityTimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("context %q (%s) timed out after %s", e.ContextName, e.Host, e.Timeout)
	}
	if e.Err != nil {
		return fmt.Sprintf("context %q (%s) timed out: %v", e.ContextName, e.Host, e.Err)
	}
	return fmt.Sprintf("context %q (%s) timed out", e.ContextName, e.Host)
}

// Unwrap returns the underlying error.
func (e *ConnectivityTimeoutError) Unwrap() error {
	return e.Err
}

// Is matches ErrConnectionTimeout and ErrClusterUnreachable.
func (e *ConnectivityTimeoutError) Is(target error) bool {
	return target == ErrConnectionTimeout || target == ErrClusterUnreachable
}

// TLSError indicates a certificate or TLS failure. Retrying will not fix it.
type TLSError struct {
	ContextName string
	Host        string
	Reason      string
	Err         error
}

// Error implements the error interface.
func (e *TLSError) Error() string {
	return fmt.Sprintf("context %q (%s): TLS error: %s", e.ContextName, e.Host, e.Reason)
}

// Unwrap returns the underlying error.
func (e *TLSError) Unwrap() error {
	return e.Err
}

// Is matches ErrTLSHandshakeFailed and ErrClusterUnreachable.
func (e *TLSError) Is(target error) bool {
	return target == ErrTLSHandshakeFailed || target == ErrClusterUnreachable
}

// WatchError describes an informer whose watch failed, either before the
// initial sync or afterwards.
type WatchError struct {
	ContextName  string
	ResourceName string
	Reason       string
	Err          error
}

// Error implements the error interface.
func (e *WatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("watch %s in context %q: %s: %v", e.ResourceName, e.ContextName, e.Reason, e.Err)
	}
	return fmt.Sprintf("watch %s in context %q: %s", e.ResourceName, e.ContextName, e.Reason)
}

// Unwrap returns the underlying error.
func (e *WatchError) Unwrap() error {
	return e.Err
}

// Is matches ErrWatchNotEstablished.
func (e *WatchError) Is(target error) bool {
	return target == ErrWatchNotEstablished
}

// ReadinessTimeoutError is returned by WaitForReady when the readiness
// predicate does not hold before the deadline.
type ReadinessTimeoutError struct {
	ContextName string
	Targets     []string
	Timeout     time.Duration
}

// Error implements the error interface.
func (e *ReadinessTimeoutError) Error() string {
	return fmt.Sprintf("cluster not ready: context %q, %v not ready after %s", e.ContextName, e.Targets, e.Timeout)
}

// Is matches ErrClusterNotReady.
func (e *ReadinessTimeoutError) Is(target error) bool {
	return target == ErrClusterNotReady
}
