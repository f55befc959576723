package instrumentation

import "strings"

// Cardinality management helpers for metrics.
// Context names are user-controlled, so metrics label them by a small set of
// classified types instead of the raw name unless detailed labels are enabled.

// ContextType represents a classification of kubeconfig context names for metrics.
type ContextType string

// Context type classifications for metrics cardinality control.
const (
	// ContextTypeProduction represents production clusters.
	ContextTypeProduction ContextType = "production"

	// ContextTypeStaging represents staging/pre-production clusters.
	ContextTypeStaging ContextType = "staging"

	// ContextTypeDevelopment represents development clusters.
	ContextTypeDevelopment ContextType = "development"

	// ContextTypeLocal represents clusters running on the workstation
	// (kind, minikube, k3d, Docker Desktop, Rancher Desktop).
	ContextTypeLocal ContextType = "local"

	// ContextTypeCICD represents CI/CD clusters (e.g., cicdprod, cicddev).
	ContextTypeCICD ContextType = "cicd"

	// ContextTypeOperations represents operations/infrastructure clusters.
	ContextTypeOperations ContextType = "operations"

	// ContextTypeUnknown is used for an empty context name.
	ContextTypeUnknown ContextType = "unknown"

	// ContextTypeOther represents contexts that don't match any known pattern.
	ContextTypeOther ContextType = "other"
)

// ClassifyContextName classifies a context name into a type for metrics.
//
// # Classification Rules
//
// Matching is case-insensitive and the first matching row wins:
//
//	| Pattern                                           | Classification |
//	|---------------------------------------------------|----------------|
//	| Empty string                                      | unknown        |
//	| Prefix: kind-, k3d-, minikube, docker-desktop,    | local          |
//	|         rancher-desktop, orbstack                 |                |
//	| Contains: cicd                                    | cicd           |
//	| Contains: operations; prefix ops-; suffix -ops    | operations     |
//	| Prefix: prod-; contains production, -prod-;       | production     |
//	|         suffix -prod                              |                |
//	| Prefix: staging-, stg-; contains staging, -stg-;  | staging        |
//	|         suffix -stg                               |                |
//	| Prefix: dev-, demo, test-; contains development,  | development    |
//	|         -dev-, -test-; suffix -dev, -test         |                |
//	| Everything else                                   | other          |
//
// # Examples
//
//	ClassifyContextName("")                   // "unknown"
//	ClassifyContextName("kind-kind")          // "local"
//	ClassifyContextName("minikube")           // "local"
//	ClassifyContextName("prod-eu-west")       // "production"
//	ClassifyContextName("stg-wc-01")          // "staging"
//	ClassifyContextName("dev-cluster")        // "development"
//	ClassifyContextName("cicdprod")           // "cicd"
//	ClassifyContextName("infra-ops")          // "operations"
//	ClassifyContextName("arn:aws:eks:...")    // "other"
func ClassifyContextName(name string) string {
	if name == "" {
		return string(ContextTypeUnknown)
	}

	nameLower := strings.ToLower(name)

	if isLocalContext(nameLower) {
		return string(ContextTypeLocal)
	}

	// CI/CD patterns (check first as they often contain "prod" or "dev" in the name)
	if strings.Contains(nameLower, "cicd") {
		return string(ContextTypeCICD)
	}

	if strings.Contains(nameLower, "operations") ||
		strings.HasPrefix(nameLower, "ops-") ||
		strings.HasPrefix(nameLower, "ops_") ||
		strings.Contains(nameLower, "-ops-") ||
		strings.HasSuffix(nameLower, "-ops") {
		return string(ContextTypeOperations)
	}

	if strings.HasPrefix(nameLower, "prod-") ||
		strings.HasPrefix(nameLower, "prod_") ||
		strings.Contains(nameLower, "production") ||
		strings.Contains(nameLower, "-prod-") ||
		strings.HasSuffix(nameLower, "-prod") {
		return string(ContextTypeProduction)
	}

	if strings.HasPrefix(nameLower, "staging-") ||
		strings.HasPrefix(nameLower, "staging_") ||
		strings.HasPrefix(nameLower, "stg-") ||
		strings.Contains(nameLower, "staging") ||
		strings.Contains(nameLower, "-stg-") ||
		strings.HasSuffix(nameLower, "-stg") {
		return string(ContextTypeStaging)
	}

	if strings.HasPrefix(nameLower, "dev-") ||
		strings.HasPrefix(nameLower, "dev_") ||
		strings.Contains(nameLower, "development") ||
		strings.Contains(nameLower, "-dev-") ||
		strings.HasSuffix(nameLower, "-dev") ||
		strings.HasPrefix(nameLower, "demo") ||
		strings.Contains(nameLower, "-demo-") ||
		strings.HasPrefix(nameLower, "test-") ||
		strings.HasPrefix(nameLower, "test_") ||
		strings.Contains(nameLower, "-test-") ||
		strings.HasSuffix(nameLower, "-test") {
		return string(ContextTypeDevelopment)
	}

	return string(ContextTypeOther)
}

var localContextPrefixes = []string{
	"kind-",
	"k3d-",
	"minikube",
	"docker-desktop",
	"docker-for-desktop",
	"rancher-desktop",
	"orbstack",
}

func isLocalContext(nameLower string) bool {
	for _, p := range localContextPrefixes {
		if strings.HasPrefix(nameLower, p) {
			return true
		}
	}
	return false
}
