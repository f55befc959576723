package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/giantswarm/kube-context-monitor/internal/catalog"
	"github.com/giantswarm/kube-context-monitor/internal/kubeconfig"
	"github.com/giantswarm/kube-context-monitor/internal/logging"
	"github.com/giantswarm/kube-context-monitor/internal/monitor"
)

// engineConfig selects what the contexts manager monitors and how.
type engineConfig struct {
	Kubeconfig   string
	Watch        bool
	CatalogFile  string
	MonitorAll   bool
	Health       monitor.HealthConfig
	Connectivity monitor.ConnectivityConfig
	Client       kubeconfig.ClientOptions
	Metrics      monitor.MetricsRecorder
}

// engine is a running contexts manager fed from a kubeconfig file.
type engine struct {
	logger  *slog.Logger
	catalog *catalog.Catalog
	store   *kubeconfig.Store
	manager *monitor.Manager
	watcher *kubeconfig.Watcher
}

// startEngine loads the catalog and kubeconfig, builds the manager and
// applies the first snapshot. With Watch set, later kubeconfig changes are
// applied until ctx is cancelled. Close must be called to release the manager.
func startEngine(ctx context.Context, logger *slog.Logger, config engineConfig) (*engine, error) {
	cat, err := catalog.LoadWithDefaults(config.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load resource catalog: %w", err)
	}

	e := &engine{
		logger:  logger,
		catalog: cat,
		store:   kubeconfig.NewStore(kubeconfig.Snapshot{}),
	}

	opts := []monitor.ManagerOption{
		monitor.WithManagerLogger(logger),
		monitor.WithClientFactory(e.store.ClientFactory(config.Client)),
		monitor.WithHealthConfig(config.Health),
		monitor.WithConnectivityConfig(config.Connectivity),
		monitor.WithAllContextsMonitoring(config.MonitorAll),
	}
	if config.Metrics != nil {
		opts = append(opts, monitor.WithManagerMetrics(config.Metrics))
	}
	e.manager, err = monitor.NewManager(cat, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create contexts manager: %w", err)
	}

	var snap kubeconfig.Snapshot
	if config.Watch {
		path := kubeconfig.ResolvePath(config.Kubeconfig)
		e.watcher, err = kubeconfig.NewWatcher(path, e.apply,
			kubeconfig.WithWatcherLogger(logger))
		if err != nil {
			e.manager.Dispose()
			return nil, fmt.Errorf("failed to watch kubeconfig: %w", err)
		}
		snap = e.watcher.Current()
		go func() {
			if err := e.watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Kubeconfig watcher stopped", logging.Err(err))
			}
		}()
	} else {
		snap, err = kubeconfig.Load(config.Kubeconfig)
		if err != nil && !errors.Is(err, kubeconfig.ErrNoContexts) {
			e.manager.Dispose()
			return nil, err
		}
	}

	if len(snap.Contexts) == 0 {
		logger.Warn("Kubeconfig declares no contexts")
	}
	e.apply(snap)

	logger.Info("Contexts manager started",
		slog.Int("contexts", len(snap.Contexts)),
		slog.Int("kinds", cat.Len()),
		logging.Context(snap.CurrentContext))
	return e, nil
}

// apply hands a snapshot to the client store and the manager.
func (e *engine) apply(snap kubeconfig.Snapshot) {
	e.store.Set(snap)
	if err := e.manager.Sync(snap); err != nil && !errors.Is(err, monitor.ErrManagerClosed) {
		e.logger.Error("Failed to apply kubeconfig", logging.Err(err))
	}
}

// Close disposes the manager and every per-context monitor it owns.
func (e *engine) Close() {
	e.manager.Dispose()
}
