// Package monitor tracks every kubeconfig context the process knows about.
//
// For each context the Manager runs a small pipeline:
//
//   - A HealthMonitor checks reachability on an interval and retries with
//     exponential backoff while the context is unreachable.
//   - Every transition into reachable starts fresh AccessReviewers, which use
//     SelfSubjectAccessReviews to decide which catalog kinds may be listed and
//     watched.
//   - Every permitted kind that declares a watch gets a ResourceInformer, a
//     dynamic informer whose cache backs the query API.
//
// # Usage
//
//	mgr, err := monitor.NewManager(catalog.Default(),
//		monitor.WithManagerLogger(logger),
//		monitor.WithClientFactory(store.ClientFactory(kubeconfig.ClientOptions{})),
//	)
//	if err != nil {
//		return err
//	}
//	defer mgr.Dispose()
//
//	if err := mgr.Sync(snapshot); err != nil {
//		return err
//	}
//
//	counts := mgr.ActiveResourcesCount()
//
// # Failure handling
//
// Errors in the background machinery surface as state, never as panics or
// returned errors: an unreachable context reports Reachable=false, a failed
// access review counts as denied, and an informer whose watch breaks after
// its initial sync drops its cache and disappears from query results. The
// next reachable transition rechecks the context and restarts it.
//
// # Readiness
//
// WaitForReady is a standalone one-shot wait that starts informers for a set
// of targets and polls a predicate until it holds or the timeout expires, in
// which case it returns a ReadinessTimeoutError.
//
// # Current context
//
// Independently of the per-context pipeline, the Manager hands the kubeconfig's
// current context to a CurrentContextMonitor. The default StatusMonitor runs a
// dedicated HealthMonitor for it.
package monitor
