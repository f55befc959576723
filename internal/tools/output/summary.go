package output

import (
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// DefaultSampleSize is the number of object names included in a summary.
const DefaultSampleSize = 10

// ResourceSummary aggregates a list of objects instead of returning them.
type ResourceSummary struct {
	Total       int            `json:"total"`
	ByStatus    map[string]int `json:"byStatus,omitempty"`
	ByNamespace map[string]int `json:"byNamespace,omitempty"`
	Sample      []string       `json:"sample,omitempty"`
	HasMore     bool           `json:"hasMore,omitempty"`
}

// Summarize counts objects by status and namespace and samples the first
// sampleSize names in namespace/name order.
func Summarize(objects []*unstructured.Unstructured, sampleSize int) *ResourceSummary {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}

	sorted := sortedObjects(objects)
	summary := &ResourceSummary{
		Total:       len(sorted),
		ByStatus:    make(map[string]int),
		ByNamespace: make(map[string]int),
	}

	for i, obj := range sorted {
		if i < sampleSize {
			summary.Sample = append(summary.Sample, qualifiedName(obj))
		}
		if status := Status(obj); status != "" {
			summary.ByStatus[status]++
		}
		if ns := obj.GetNamespace(); ns != "" {
			summary.ByNamespace[ns]++
		}
	}
	summary.HasMore = len(sorted) > sampleSize

	if len(summary.ByStatus) == 0 {
		summary.ByStatus = nil
	}
	if len(summary.ByNamespace) == 0 {
		summary.ByNamespace = nil
	}
	return summary
}

// Status returns a short human status for obj, or "" when the kind has none.
func Status(obj *unstructured.Unstructured) string {
	switch strings.ToLower(obj.GetKind()) {
	case "pod", "persistentvolumeclaim", "persistentvolume", "namespace":
		return phase(obj)
	case "deployment", "replicaset", "statefulset":
		return workloadStatus(obj, "replicas", "readyReplicas")
	case "daemonset":
		desired, _, _ := unstructured.NestedInt64(obj.Object, "status", "desiredNumberScheduled")
		ready, _, _ := unstructured.NestedInt64(obj.Object, "status", "numberReady")
		return readiness(desired, ready)
	case "node":
		return conditionStatus(obj, "Ready", "Ready", "NotReady")
	case "job":
		return jobStatus(obj)
	default:
		return phase(obj)
	}
}

func phase(obj *unstructured.Unstructured) string {
	p, _, _ := unstructured.NestedString(obj.Object, "status", "phase")
	return p
}

func workloadStatus(obj *unstructured.Unstructured, desiredField, readyField string) string {
	desired, found, _ := unstructured.NestedInt64(obj.Object, "spec", desiredField)
	if !found {
		// replicas defaults to 1 when unset
		desired = 1
	}
	ready, _, _ := unstructured.NestedInt64(obj.Object, "status", readyField)
	return readiness(desired, ready)
}

func readiness(desired, ready int64) string {
	switch {
	case desired == 0:
		return "Scaled to Zero"
	case ready >= desired:
		return "Ready"
	case ready > 0:
		return "Partially Ready"
	default:
		return "Not Ready"
	}
}

func conditionStatus(obj *unstructured.Unstructured, condType, whenTrue, otherwise string) string {
	conditions, found, _ := unstructured.NestedSlice(obj.Object, "status", "conditions")
	if !found {
		return "Unknown"
	}
	for _, c := range conditions {
		cond, ok := c.(map[string]interface{})
		if !ok || cond["type"] != condType {
			continue
		}
		if cond["status"] == "True" {
			return whenTrue
		}
		return otherwise
	}
	return "Unknown"
}

func jobStatus(obj *unstructured.Unstructured) string {
	if conditionStatus(obj, "Complete", "True", "") == "True" {
		return "Succeeded"
	}
	if conditionStatus(obj, "Failed", "True", "") == "True" {
		return "Failed"
	}
	if n, _, _ := unstructured.NestedInt64(obj.Object, "status", "succeeded"); n > 0 {
		return "Succeeded"
	}
	if n, _, _ := unstructured.NestedInt64(obj.Object, "status", "failed"); n > 0 {
		return "Failed"
	}
	return "Running"
}

func qualifiedName(obj *unstructured.Unstructured) string {
	if ns := obj.GetNamespace(); ns != "" {
		return ns + "/" + obj.GetName()
	}
	return obj.GetName()
}
