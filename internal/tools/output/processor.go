package output

import (
	"sort"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/labels"
)

// ContextItems is one context's cached objects of a kind.
type ContextItems struct {
	ContextName string
	Items       []*unstructured.Unstructured
}

// ContextOutput is the processed form of ContextItems.
type ContextOutput struct {
	ContextName string                   `json:"contextName"`
	Total       int                      `json:"total"`
	Items       []map[string]interface{} `json:"items,omitempty"`
	Summary     *ResourceSummary         `json:"summary,omitempty"`
	Warning     *TruncationWarning       `json:"warning,omitempty"`
}

// Request carries per-call overrides. Zero values use the configuration.
type Request struct {
	Limit        int
	ContextLimit int
	Namespace    string
	Selector     labels.Selector
	Summary      bool
}

// Result is the processed answer for a set of contexts.
type Result struct {
	Contexts      []ContextOutput    `json:"contexts"`
	Warning       *TruncationWarning `json:"warning,omitempty"`
	SecretsMasked int                `json:"secretsMasked,omitempty"`
	SlimApplied   bool               `json:"slimApplied,omitempty"`
}

// Processor applies the configured transformations.
type Processor struct {
	config *Config
}

// NewProcessor creates a Processor. A nil config uses DefaultConfig.
func NewProcessor(config *Config) *Processor {
	if config == nil {
		config = DefaultConfig()
	}
	return &Processor{config: config.Validate()}
}

// Config returns the validated configuration.
func (p *Processor) Config() *Config {
	return p.config
}

// Process filters, masks, slims and truncates each context's objects.
// Contexts beyond the context limit are dropped with a warning on Result.
func (p *Processor) Process(sets []ContextItems, req Request) *Result {
	sets, warning := TruncateContexts(sets, EffectiveContextLimit(req.ContextLimit, p.config.MaxContexts))
	result := &Result{
		Contexts:    make([]ContextOutput, 0, len(sets)),
		Warning:     warning,
		SlimApplied: p.config.SlimOutput && !req.Summary,
	}

	limit := EffectiveLimit(req.Limit, p.config.MaxItems)
	for _, set := range sets {
		objects := filterObjects(set.Items, req.Namespace, req.Selector)
		out := ContextOutput{ContextName: set.ContextName, Total: len(objects)}

		if req.Summary {
			out.Summary = Summarize(objects, DefaultSampleSize)
			result.Contexts = append(result.Contexts, out)
			continue
		}

		kept, w := Truncate(sortedObjects(objects), limit)
		if w != nil && w.Total > p.config.SummaryThreshold {
			w.SuggestSummary = true
		}
		out.Warning = w
		out.Items = make([]map[string]interface{}, 0, len(kept))
		for _, obj := range kept {
			processed, masked := p.processObject(obj)
			if masked {
				result.SecretsMasked++
			}
			out.Items = append(out.Items, processed)
		}
		result.Contexts = append(result.Contexts, out)
	}

	return result
}

func (p *Processor) processObject(obj *unstructured.Unstructured) (map[string]interface{}, bool) {
	out := obj.DeepCopy()
	masked := false
	if p.config.MaskSecrets {
		masked = maskInPlace(out)
	}
	if p.config.SlimOutput {
		slimInPlace(out.Object, p.config.ExcludedFields, p.config.ExcludedAnnotations)
	}
	return out.Object, masked
}

// filterObjects keeps objects in namespace that match selector. Empty
// namespace and nil selector match everything.
func filterObjects(objects []*unstructured.Unstructured, namespace string, selector labels.Selector) []*unstructured.Unstructured {
	if namespace == "" && (selector == nil || selector.Empty()) {
		return objects
	}
	filtered := make([]*unstructured.Unstructured, 0, len(objects))
	for _, obj := range objects {
		if obj == nil || (namespace != "" && obj.GetNamespace() != namespace) {
			continue
		}
		if selector != nil && !selector.Matches(labels.Set(obj.GetLabels())) {
			continue
		}
		filtered = append(filtered, obj)
	}
	return filtered
}

// sortedObjects returns a namespace/name ordered copy of the slice.
func sortedObjects(objects []*unstructured.Unstructured) []*unstructured.Unstructured {
	sorted := make([]*unstructured.Unstructured, 0, len(objects))
	for _, obj := range objects {
		if obj != nil {
			sorted = append(sorted, obj)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if a, b := sorted[i].GetNamespace(), sorted[j].GetNamespace(); a != b {
			return a < b
		}
		return sorted[i].GetName() < sorted[j].GetName()
	})
	return sorted
}
