package catalog

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// listWatch builds the list+watch requests and watch spec shared by most kinds.
func listWatch(name string, namespaced bool, gvr schema.GroupVersionResource, active ActivePredicate) Descriptor {
	return Descriptor{
		Name:       name,
		Namespaced: namespaced,
		PermissionRequests: []PermissionRequest{
			{Group: gvr.Group, Resource: gvr.Resource, Verb: "list"},
			{Group: gvr.Group, Resource: gvr.Resource, Verb: "watch"},
		},
		Watch:    &WatchSpec{GVR: gvr},
		IsActive: active,
	}
}

func core(resource string) schema.GroupVersionResource {
	return schema.GroupVersionResource{Version: "v1", Resource: resource}
}

func apps(resource string) schema.GroupVersionResource {
	return schema.GroupVersionResource{Group: "apps", Version: "v1", Resource: resource}
}

func batch(resource string) schema.GroupVersionResource {
	return schema.GroupVersionResource{Group: "batch", Version: "v1", Resource: resource}
}

// DefaultDescriptors returns the built-in resource kinds.
func DefaultDescriptors() []Descriptor {
	return []Descriptor{
		listWatch("pods", true, core("pods"), PhaseIs("Running")),
		listWatch("deployments", true, apps("deployments"), StatusInt64Positive("availableReplicas")),
		listWatch("statefulsets", true, apps("statefulsets"), nil),
		listWatch("daemonsets", true, apps("daemonsets"), nil),
		listWatch("replicasets", true, apps("replicasets"), nil),
		listWatch("jobs", true, batch("jobs"), StatusInt64Positive("active")),
		listWatch("cronjobs", true, batch("cronjobs"), nil),
		listWatch("services", true, core("services"), nil),
		listWatch("ingresses", true, schema.GroupVersionResource{Group: "networking.k8s.io", Version: "v1", Resource: "ingresses"}, nil),
		listWatch("configmaps", true, core("configmaps"), nil),
		listWatch("persistentvolumeclaims", true, core("persistentvolumeclaims"), PhaseIs("Bound")),
		listWatch("events", true, core("events"), nil),
		listWatch("nodes", false, core("nodes"), ConditionTrue("Ready")),
		listWatch("namespaces", false, core("namespaces"), PhaseIs("Active")),
		listWatch("persistentvolumes", false, core("persistentvolumes"), nil),
		{
			// Counted for permissions only.
			Name:               "resourcequotas",
			Namespaced:         true,
			PermissionRequests: []PermissionRequest{{Resource: "resourcequotas", Verb: "list"}},
		},
	}
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return MustNew(DefaultDescriptors()...)
}

// PhaseIs matches objects whose status.phase equals phase.
func PhaseIs(phase string) ActivePredicate {
	return func(obj *unstructured.Unstructured) bool {
		got, found, err := unstructured.NestedString(obj.Object, "status", "phase")
		return err == nil && found && got == phase
	}
}

// StatusInt64Positive matches objects whose status.<field> is greater than zero.
func StatusInt64Positive(field string) ActivePredicate {
	return func(obj *unstructured.Unstructured) bool {
		got, found, err := unstructured.NestedInt64(obj.Object, "status", field)
		return err == nil && found && got > 0
	}
}

// ConditionTrue matches objects carrying status condition condType=True.
func ConditionTrue(condType string) ActivePredicate {
	return func(obj *unstructured.Unstructured) bool {
		return HasCondition(obj, condType, "True")
	}
}

// HasCondition reports whether obj has a status condition of the given type and status.
func HasCondition(obj *unstructured.Unstructured, condType, status string) bool {
	conditions, found, err := unstructured.NestedSlice(obj.Object, "status", "conditions")
	if err != nil || !found {
		return false
	}
	for _, c := range conditions {
		cond, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		if cond["type"] == condType {
			return cond["status"] == status
		}
	}
	return false
}
