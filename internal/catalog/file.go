package catalog

import (
	"fmt"
	"os"

	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/yaml"
)

// File is the on-disk format for additional resource kinds.
//
//	kinds:
//	  - name: certificates
//	    namespaced: true
//	    group: cert-manager.io
//	    version: v1
//	    resource: certificates
//	    activeCondition: Ready
type File struct {
	Kinds []FileKind `json:"kinds"`
}

// FileKind describes one resource kind in a catalog file.
type FileKind struct {
	Name       string `json:"name"`
	Namespaced bool   `json:"namespaced"`
	Group      string `json:"group,omitempty"`
	Version    string `json:"version"`
	Resource   string `json:"resource"`

	// Verbs defaults to list and watch.
	Verbs []string `json:"verbs,omitempty"`

	// Watch defaults to true. Set to false for a permission-only kind.
	Watch *bool `json:"watch,omitempty"`

	LabelSelector string `json:"labelSelector,omitempty"`
	FieldSelector string `json:"fieldSelector,omitempty"`

	ActivePhase     string `json:"activePhase,omitempty"`
	ActiveCondition string `json:"activeCondition,omitempty"`
}

// Descriptor converts the file entry into a Descriptor.
func (k FileKind) Descriptor() Descriptor {
	resource := k.Resource
	if resource == "" {
		resource = k.Name
	}

	verbs := k.Verbs
	if len(verbs) == 0 {
		verbs = []string{"list", "watch"}
	}

	d := Descriptor{
		Name:       k.Name,
		Namespaced: k.Namespaced,
	}
	for _, verb := range verbs {
		d.PermissionRequests = append(d.PermissionRequests, PermissionRequest{Group: k.Group, Resource: resource, Verb: verb})
	}

	if k.Watch == nil || *k.Watch {
		d.Watch = &WatchSpec{
			GVR:           schema.GroupVersionResource{Group: k.Group, Version: k.Version, Resource: resource},
			LabelSelector: k.LabelSelector,
			FieldSelector: k.FieldSelector,
		}
	}

	switch {
	case k.ActiveCondition != "":
		d.IsActive = ConditionTrue(k.ActiveCondition)
	case k.ActivePhase != "":
		d.IsActive = PhaseIs(k.ActivePhase)
	}

	return d
}

// Parse decodes a catalog file. The result is validated by New or Merge.
func Parse(data []byte) ([]Descriptor, error) {
	var f File
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}

	out := make([]Descriptor, 0, len(f.Kinds))
	for _, k := range f.Kinds {
		if k.Watch == nil || *k.Watch {
			if k.Version == "" {
				return nil, &ValidationError{Name: k.Name, Reason: "version is required for watched kinds", Err: ErrInvalidDescriptor}
			}
		}
		out = append(out, k.Descriptor())
	}
	return out, nil
}

// LoadFile reads additional descriptors from a YAML file.
func LoadFile(path string) ([]Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}

// LoadWithDefaults returns the default catalog merged with the kinds in path.
// An empty path returns the default catalog.
func LoadWithDefaults(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	extra, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return Merge(Default(), extra...)
}
