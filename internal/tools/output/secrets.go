package output

import (
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// RedactedValue replaces masked values.
const RedactedValue = "***REDACTED***"

var sensitiveAnnotations = map[string]bool{
	"kubernetes.io/service-account.uid":   true,
	"kubernetes.io/service-account.name":  true,
	"kubernetes.io/service-account-token": true,
}

// ConfigMaps whose name contains one of these are masked like Secrets.
var sensitiveConfigMapPatterns = []string{
	"credentials",
	"password",
	"secret",
	"token",
	"kubeconfig",
}

// MaskSecrets returns a copy of obj with sensitive values redacted. Objects
// that are not sensitive are returned as an unmodified copy.
func MaskSecrets(obj *unstructured.Unstructured) *unstructured.Unstructured {
	if obj == nil {
		return nil
	}
	out := obj.DeepCopy()
	maskInPlace(out)
	return out
}

// IsSensitive reports whether obj is a Secret or a ConfigMap whose name
// suggests it holds credentials.
func IsSensitive(obj *unstructured.Unstructured) bool {
	if obj == nil {
		return false
	}
	switch strings.ToLower(obj.GetKind()) {
	case "secret":
		return true
	case "configmap":
		name := strings.ToLower(obj.GetName())
		for _, pattern := range sensitiveConfigMapPatterns {
			if strings.Contains(name, pattern) {
				return true
			}
		}
	}
	return false
}

// maskInPlace reports whether anything was redacted.
func maskInPlace(obj *unstructured.Unstructured) bool {
	if !IsSensitive(obj) {
		return false
	}

	fields := []string{"data", "stringData"}
	if strings.EqualFold(obj.GetKind(), "ConfigMap") {
		fields = []string{"data", "binaryData"}
	}
	for _, field := range fields {
		values, ok := obj.Object[field].(map[string]interface{})
		if !ok {
			continue
		}
		masked := make(map[string]interface{}, len(values))
		for key := range values {
			masked[key] = RedactedValue
		}
		obj.Object[field] = masked
	}

	if annotations := obj.GetAnnotations(); len(annotations) > 0 {
		for key := range annotations {
			if sensitiveAnnotations[key] {
				annotations[key] = RedactedValue
			}
		}
		obj.SetAnnotations(annotations)
	}
	return true
}
