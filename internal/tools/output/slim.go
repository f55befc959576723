package output

import (
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Slim returns a copy of obj without the given fields and annotations.
func Slim(obj *unstructured.Unstructured, fields, annotations []string) *unstructured.Unstructured {
	if obj == nil {
		return nil
	}
	out := obj.DeepCopy()
	slimInPlace(out.Object, fields, annotations)
	return out
}

func slimInPlace(obj map[string]interface{}, fields, annotations []string) {
	for _, field := range fields {
		removeField(obj, field)
	}
	if len(annotations) == 0 {
		return
	}

	existing, found, err := unstructured.NestedStringMap(obj, "metadata", "annotations")
	if !found || err != nil {
		return
	}
	for _, key := range annotations {
		delete(existing, key)
	}
	if len(existing) == 0 {
		unstructured.RemoveNestedField(obj, "metadata", "annotations")
		return
	}
	_ = unstructured.SetNestedStringMap(obj, existing, "metadata", "annotations")
}

// removeField removes the value at a dot path. A segment ending in [*]
// applies the remainder of the path to every map element of that list:
//
//	"metadata.managedFields"
//	"status.conditions[*].lastTransitionTime"
func removeField(obj map[string]interface{}, path string) {
	if obj == nil || path == "" {
		return
	}
	removeFieldParts(obj, strings.Split(path, "."))
}

func removeFieldParts(obj map[string]interface{}, parts []string) {
	if len(parts) == 0 || obj == nil {
		return
	}

	current, remaining := parts[0], parts[1:]

	if field, ok := strings.CutSuffix(current, "[*]"); ok {
		list, ok := obj[field].([]interface{})
		if !ok || len(remaining) == 0 {
			return
		}
		for _, elem := range list {
			if m, ok := elem.(map[string]interface{}); ok {
				removeFieldParts(m, remaining)
			}
		}
		return
	}

	if len(remaining) == 0 {
		delete(obj, current)
		return
	}

	next, ok := obj[current].(map[string]interface{})
	if !ok {
		return
	}
	removeFieldParts(next, remaining)
}
