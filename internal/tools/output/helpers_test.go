package output

import "k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

func newObject(kind, namespace, name string, fields map[string]interface{}) *unstructured.Unstructured {
	obj := map[string]interface{}{
		"apiVersion": "v1",
		"kind":       kind,
		"metadata": map[string]interface{}{
			"name": name,
		},
	}
	if namespace != "" {
		obj["metadata"].(map[string]interface{})["namespace"] = namespace
	}
	for k, v := range fields {
		obj[k] = v
	}
	return &unstructured.Unstructured{Object: obj}
}

func pod(namespace, name, phase string) *unstructured.Unstructured {
	return newObject("Pod", namespace, name, map[string]interface{}{
		"status": map[string]interface{}{"phase": phase},
	})
}
