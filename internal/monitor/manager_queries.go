package monitor

import (
	"context"
	"fmt"
	"sort"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/giantswarm/kube-context-monitor/internal/kubeconfig"
)

// ResourceCount is the number of cached objects of one kind in one context.
type ResourceCount struct {
	ContextName  string `json:"contextName"`
	ResourceName string `json:"resourceName"`
	Count        int    `json:"count"`
}

// ContextResources holds the cached objects of one kind in one context.
type ContextResources struct {
	ContextName string                       `json:"contextName"`
	Items       []*unstructured.Unstructured `json:"items"`
}

// HealthStates returns the last known health of every monitored context.
func (m *Manager) HealthStates() map[string]HealthState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]HealthState, len(m.contexts))
	for name, e := range m.contexts {
		if e.health == nil {
			out[name] = HealthState{ContextName: name, Context: e.kctx}
			continue
		}
		out[name] = e.health.State()
	}
	return out
}

// Permissions flattens the last results of every checker, sorted by context
// and kind.
func (m *Manager) Permissions() []PermissionRecord {
	m.mu.RLock()
	var out []PermissionRecord
	for _, e := range m.contexts {
		for _, p := range e.checkers {
			out = append(out, p.Permissions()...)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ContextName != out[j].ContextName {
			return out[i].ContextName < out[j].ContextName
		}
		return out[i].ResourceName < out[j].ResourceName
	})
	return out
}

// ResourcesCount returns the object count of every live cache.
func (m *Manager) ResourcesCount() []ResourceCount {
	return m.counts(false)
}

// ActiveResourcesCount counts only objects that satisfy their kind's IsActive
// predicate. Kinds without a predicate count every object.
func (m *Manager) ActiveResourcesCount() []ResourceCount {
	return m.counts(true)
}

func (m *Manager) counts(activeOnly bool) []ResourceCount {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ResourceCount
	for ctxName, e := range m.contexts {
		for kindName, ie := range e.informers {
			count := ie.informer.Count()
			if activeOnly {
				if kind, ok := m.catalog.Get(kindName); ok && kind.IsActive != nil {
					count = 0
					items, err := ie.informer.List()
					if err != nil {
						continue
					}
					for _, obj := range items {
						if kind.IsActive(obj) {
							count++
						}
					}
				}
			}
			out = append(out, ResourceCount{ContextName: ctxName, ResourceName: kindName, Count: count})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ContextName != out[j].ContextName {
			return out[i].ContextName < out[j].ContextName
		}
		return out[i].ResourceName < out[j].ResourceName
	})
	return out
}

// Resources returns the cached objects of kind for each named context.
// Contexts without a cache for kind are left out of the result.
func (m *Manager) Resources(contextNames []string, kind string) []ContextResources {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ContextResources, 0, len(contextNames))
	for _, name := range contextNames {
		e, ok := m.contexts[name]
		if !ok {
			continue
		}
		ie, ok := e.informers[kind]
		if !ok {
			continue
		}
		items, err := ie.informer.List()
		if err != nil {
			continue
		}
		out = append(out, ContextResources{ContextName: name, Items: items})
	}
	return out
}

// Contexts returns the context definitions from the last Update, sorted by name.
func (m *Manager) Contexts() []kubeconfig.Context {
	m.mu.RLock()
	out := make([]kubeconfig.Context, 0, len(m.known))
	for _, c := range m.known {
		out = append(out, c)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CurrentContext returns the name of the current context, or "".
func (m *Manager) CurrentContext() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentName
}

// CurrentContextHealth returns the health of the current context when the
// current-context monitor is a StatusMonitor that follows one.
func (m *Manager) CurrentContextHealth() (HealthState, bool) {
	s, ok := m.current.(*StatusMonitor)
	if !ok {
		return HealthState{}, false
	}
	return s.State()
}

// CheckNow runs an immediate health check for contextName.
func (m *Manager) CheckNow(ctx context.Context, contextName string) (HealthState, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return HealthState{}, ErrManagerClosed
	}
	var health HealthChecker
	if e, ok := m.contexts[contextName]; ok {
		health = e.health
	}
	m.mu.RUnlock()

	if health == nil {
		return HealthState{}, fmt.Errorf("%w: %q", ErrUnknownContext, contextName)
	}
	return health.CheckNow(ctx), nil
}

// OnResourceUpdated subscribes to every cache change of every informer.
func (m *Manager) OnResourceUpdated(fn func(CacheUpdate)) func() {
	return m.resourceUpdated.Subscribe(fn)
}

// OnResourceCountUpdated subscribes to cache changes that altered an object count.
func (m *Manager) OnResourceCountUpdated(fn func(CacheUpdate)) func() {
	return m.resourceCountUpdated.Subscribe(fn)
}

// OnHealthChanged subscribes to health state changes of every monitored context.
func (m *Manager) OnHealthChanged(fn func(HealthState)) func() {
	return m.healthChanged.Subscribe(fn)
}
