package catalog

import (
	"errors"
	"fmt"
	"sort"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Validation errors.
var (
	// ErrInvalidDescriptor indicates that a resource kind descriptor failed validation.
	ErrInvalidDescriptor = errors.New("invalid resource kind descriptor")

	// ErrDuplicateName indicates that two descriptors share the same name.
	ErrDuplicateName = errors.New("duplicate resource kind name")
)

// knownVerbs lists the verbs accepted in a permission request.
var knownVerbs = map[string]struct{}{
	"get":              {},
	"list":             {},
	"watch":            {},
	"create":           {},
	"update":           {},
	"patch":            {},
	"delete":           {},
	"deletecollection": {},
	"impersonate":      {},
	"bind":             {},
	"escalate":         {},
	"*":                {},
}

// PermissionRequest is a single access review the kind needs to pass.
type PermissionRequest struct {
	Group    string `json:"group,omitempty"`
	Resource string `json:"resource"`
	Verb     string `json:"verb"`
}

// WatchSpec describes how a kind is watched. A descriptor without one is
// never watched, even when its permissions are granted.
type WatchSpec struct {
	GVR           schema.GroupVersionResource `json:"-"`
	LabelSelector string                      `json:"labelSelector,omitempty"`
	FieldSelector string                      `json:"fieldSelector,omitempty"`
}

// ActivePredicate reports whether a cached object counts as active.
type ActivePredicate func(obj *unstructured.Unstructured) bool

// Descriptor is the static definition of one monitored resource kind.
type Descriptor struct {
	Name               string              `json:"name"`
	Namespaced         bool                `json:"namespaced"`
	PermissionRequests []PermissionRequest `json:"permissionRequests"`
	Watch              *WatchSpec          `json:"watch,omitempty"`
	IsActive           ActivePredicate     `json:"-"`
}

// Watchable reports whether the kind declares a watch.
func (d Descriptor) Watchable() bool {
	return d.Watch != nil
}

// ValidationError provides detail about a descriptor that failed validation.
type ValidationError struct {
	Name   string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("resource kind %q: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("resource kind: %s", e.Reason)
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Catalog is an immutable set of resource kind descriptors indexed by name.
type Catalog struct {
	byName map[string]Descriptor
	order  []string
}

// New validates the descriptors and builds a catalog. Descriptor order is kept
// for All, Namespaced and ClusterScoped.
func New(descriptors ...Descriptor) (*Catalog, error) {
	c := &Catalog{
		byName: make(map[string]Descriptor, len(descriptors)),
		order:  make([]string, 0, len(descriptors)),
	}

	for _, d := range descriptors {
		if err := validate(d); err != nil {
			return nil, err
		}
		if _, exists := c.byName[d.Name]; exists {
			return nil, &ValidationError{Name: d.Name, Reason: "declared more than once", Err: ErrDuplicateName}
		}
		c.byName[d.Name] = d
		c.order = append(c.order, d.Name)
	}

	return c, nil
}

// MustNew is like New but panics on invalid input. Used for built-in catalogs.
func MustNew(descriptors ...Descriptor) *Catalog {
	c, err := New(descriptors...)
	if err != nil {
		panic(err)
	}
	return c
}

func validate(d Descriptor) error {
	if d.Name == "" {
		return &ValidationError{Reason: "name is required", Err: ErrInvalidDescriptor}
	}
	if len(d.PermissionRequests) == 0 {
		return &ValidationError{Name: d.Name, Reason: "at least one permission request is required", Err: ErrInvalidDescriptor}
	}
	for i, req := range d.PermissionRequests {
		if req.Resource == "" {
			return &ValidationError{Name: d.Name, Reason: fmt.Sprintf("permission request %d has no resource", i), Err: ErrInvalidDescriptor}
		}
		if req.Verb == "" {
			return &ValidationError{Name: d.Name, Reason: fmt.Sprintf("permission request %d has no verb", i), Err: ErrInvalidDescriptor}
		}
		if _, ok := knownVerbs[req.Verb]; !ok {
			return &ValidationError{Name: d.Name, Reason: fmt.Sprintf("unknown verb %q", req.Verb), Err: ErrInvalidDescriptor}
		}
	}
	if d.Watch != nil && d.Watch.GVR.Resource == "" {
		return &ValidationError{Name: d.Name, Reason: "watch has no resource", Err: ErrInvalidDescriptor}
	}
	return nil
}

// Get returns the descriptor with the given name.
func (c *Catalog) Get(name string) (Descriptor, bool) {
	d, ok := c.byName[name]
	return d, ok
}

// Len returns the number of kinds in the catalog.
func (c *Catalog) Len() int {
	return len(c.order)
}

// All returns every descriptor.
func (c *Catalog) All() []Descriptor {
	return c.filter(func(Descriptor) bool { return true })
}

// Namespaced returns the namespace-scoped descriptors.
func (c *Catalog) Namespaced() []Descriptor {
	return c.filter(func(d Descriptor) bool { return d.Namespaced })
}

// ClusterScoped returns the cluster-scoped descriptors.
func (c *Catalog) ClusterScoped() []Descriptor {
	return c.filter(func(d Descriptor) bool { return !d.Namespaced })
}

// Names returns the sorted descriptor names.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.order))
	copy(names, c.order)
	sort.Strings(names)
	return names
}

func (c *Catalog) filter(keep func(Descriptor) bool) []Descriptor {
	out := make([]Descriptor, 0, len(c.order))
	for _, name := range c.order {
		d := c.byName[name]
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

// Merge returns a new catalog containing the base descriptors plus extra.
// An extra descriptor replaces a base descriptor of the same name.
func Merge(base *Catalog, extra ...Descriptor) (*Catalog, error) {
	replaced := make(map[string]Descriptor, len(extra))
	for _, d := range extra {
		if _, dup := replaced[d.Name]; dup {
			return nil, &ValidationError{Name: d.Name, Reason: "declared more than once", Err: ErrDuplicateName}
		}
		replaced[d.Name] = d
	}

	var merged []Descriptor
	if base != nil {
		for _, d := range base.All() {
			if r, ok := replaced[d.Name]; ok {
				merged = append(merged, r)
				delete(replaced, d.Name)
				continue
			}
			merged = append(merged, d)
		}
	}
	for _, d := range extra {
		if _, pending := replaced[d.Name]; pending {
			merged = append(merged, d)
		}
	}

	return New(merged...)
}
