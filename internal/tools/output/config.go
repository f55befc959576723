package output

// Default and absolute limits for output processing.
const (
	// DefaultMaxItems is the default number of objects returned per context.
	DefaultMaxItems = 100

	// DefaultMaxContexts is the default number of contexts in one response.
	DefaultMaxContexts = 20

	// DefaultSummaryThreshold is the per-context object count above which
	// summary mode is suggested.
	DefaultSummaryThreshold = 500

	// AbsoluteMaxItems caps MaxItems and per-request limits.
	AbsoluteMaxItems = 1000

	// AbsoluteMaxContexts caps MaxContexts and per-request limits.
	AbsoluteMaxContexts = 100
)

// Config holds configuration for output processing.
type Config struct {
	// MaxItems limits the objects returned per context.
	MaxItems int `json:"maxItems" yaml:"maxItems" mapstructure:"maxItems"`

	// MaxContexts limits the contexts included in one response.
	MaxContexts int `json:"maxContexts" yaml:"maxContexts" mapstructure:"maxContexts"`

	// SlimOutput removes ExcludedFields and ExcludedAnnotations.
	SlimOutput bool `json:"slimOutput" yaml:"slimOutput" mapstructure:"slimOutput"`

	// MaskSecrets replaces Secret values with RedactedValue.
	MaskSecrets bool `json:"maskSecrets" yaml:"maskSecrets" mapstructure:"maskSecrets"`

	// SummaryThreshold is the object count above which summary mode is suggested.
	SummaryThreshold int `json:"summaryThreshold" yaml:"summaryThreshold" mapstructure:"summaryThreshold"`

	// ExcludedFields are dot paths removed in slim mode. A segment ending in
	// [*] applies the rest of the path to every element of that list.
	ExcludedFields []string `json:"excludedFields,omitempty" yaml:"excludedFields,omitempty" mapstructure:"excludedFields"`

	// ExcludedAnnotations are annotation keys removed in slim mode. They are
	// separate from ExcludedFields because annotation keys contain dots.
	ExcludedAnnotations []string `json:"excludedAnnotations,omitempty" yaml:"excludedAnnotations,omitempty" mapstructure:"excludedAnnotations"`
}

// DefaultConfig returns a Config with default limits and slim output and
// secret masking enabled.
func DefaultConfig() *Config {
	return &Config{
		MaxItems:            DefaultMaxItems,
		MaxContexts:         DefaultMaxContexts,
		SlimOutput:          true,
		MaskSecrets:         true,
		SummaryThreshold:    DefaultSummaryThreshold,
		ExcludedFields:      DefaultExcludedFields(),
		ExcludedAnnotations: DefaultExcludedAnnotations(),
	}
}

// DefaultExcludedFields returns the fields removed in slim mode by default.
func DefaultExcludedFields() []string {
	return []string{
		"metadata.managedFields",
		"metadata.ownerReferences",
		"metadata.finalizers",
		"metadata.generation",
		"metadata.resourceVersion",
		"metadata.uid",
		"metadata.selfLink",
		"status.conditions[*].lastTransitionTime",
		"status.conditions[*].lastProbeTime",
		"status.conditions[*].lastHeartbeatTime",
	}
}

// DefaultExcludedAnnotations returns the annotations removed in slim mode by default.
func DefaultExcludedAnnotations() []string {
	return []string{
		"kubectl.kubernetes.io/last-applied-configuration",
		"deployment.kubernetes.io/revision",
	}
}

// Validate returns a copy with defaults applied to unset values and
// absolute limits applied to oversized ones.
func (c *Config) Validate() *Config {
	validated := c.Clone()

	if validated.MaxItems <= 0 {
		validated.MaxItems = DefaultMaxItems
	}
	if validated.MaxContexts <= 0 {
		validated.MaxContexts = DefaultMaxContexts
	}
	if validated.SummaryThreshold <= 0 {
		validated.SummaryThreshold = DefaultSummaryThreshold
	}
	validated.MaxItems = min(validated.MaxItems, AbsoluteMaxItems)
	validated.MaxContexts = min(validated.MaxContexts, AbsoluteMaxContexts)

	if validated.SlimOutput && len(validated.ExcludedFields) == 0 && len(validated.ExcludedAnnotations) == 0 {
		validated.ExcludedFields = DefaultExcludedFields()
		validated.ExcludedAnnotations = DefaultExcludedAnnotations()
	}

	return validated
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	clone := *c
	if c.ExcludedFields != nil {
		clone.ExcludedFields = append([]string(nil), c.ExcludedFields...)
	}
	if c.ExcludedAnnotations != nil {
		clone.ExcludedAnnotations = append([]string(nil), c.ExcludedAnnotations...)
	}
	return &clone
}
