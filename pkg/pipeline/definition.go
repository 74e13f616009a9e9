// Package pipeline provides matrix pipeline execution primitives.
//
// Pipeline definitions follow a concise YAML format: a matrix of axes with
// include/exclude overrides is expanded into job instances, each of which
// runs the same ordered step list. Steps are gated by condition expressions
// over the job's matrix values and prior step results, and a fail-fast toggle
// controls whether a job failure cancels jobs that have not started yet.
package pipeline

import (
	"fmt"
	"regexp"

	"github.com/gridrun/gridrun/pkg/errors"
	"github.com/gridrun/gridrun/pkg/pipeline/expression"
	"gopkg.in/yaml.v3"
)

// Definition represents a YAML-based pipeline definition.
// It defines the matrix, overrides, steps and scheduling policy of a
// pipeline that can be loaded from a YAML file and executed by the scheduler.
type Definition struct {
	// Name is the pipeline identifier
	Name string `yaml:"name" json:"name"`

	// Description provides human-readable context about the pipeline
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Matrix defines the axes and overrides expanded into job instances.
	// A pipeline without a matrix expands to a single job.
	Matrix *MatrixDefinition `yaml:"matrix,omitempty" json:"matrix,omitempty"`

	// FailFast cancels not-yet-started jobs once any job fails
	FailFast bool `yaml:"fail_fast" json:"fail_fast"`

	// MaxParallel bounds the number of concurrently running jobs
	// (0 means the scheduler default)
	MaxParallel int `yaml:"max_parallel,omitempty" json:"max_parallel,omitempty"`

	// Env is applied to every process spawned by every job, uniformly.
	// Part of each job's immutable configuration, never engine-global state.
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// Steps are the executable units shared by every job instance
	Steps []StepDefinition `yaml:"steps" json:"steps"`

	// Artifacts are glob patterns collected after each job finishes
	Artifacts []string `yaml:"artifacts,omitempty" json:"artifacts,omitempty"`
}

// MatrixDefinition holds the axes and override lists of a pipeline matrix.
type MatrixDefinition struct {
	// Axes in declaration order. Expansion order follows axis order, so job
	// identifiers are stable across runs.
	Axes []MatrixAxis `yaml:"axes" json:"axes"`

	// Include overrides: merged into matching jobs or appended as new ones.
	// Applied after all excludes, in declaration order.
	Include []Override `yaml:"include,omitempty" json:"include,omitempty"`

	// Exclude overrides: remove every job matching all given key/value pairs.
	// Applied before includes, in declaration order.
	Exclude []Override `yaml:"exclude,omitempty" json:"exclude,omitempty"`
}

// MatrixAxis is a named dimension of variation with an ordered value list.
type MatrixAxis struct {
	Name   string
	Values []interface{}
}

// Override is a partial key/value assignment used by include and exclude
// lists. Immutable once parsed.
type Override map[string]interface{}

// StepDefinition represents a single step shared by every job instance.
type StepDefinition struct {
	// Name is the unique step identifier within the pipeline
	Name string `yaml:"name" json:"name"`

	// Condition gates execution; empty means "run unless the job already
	// failed". Evaluated against matrix values, prior step results and env.
	Condition string `yaml:"if,omitempty" json:"if,omitempty"`

	// Run is the command template, rendered against the job context
	Run string `yaml:"run" json:"run"`

	// AlwaysRun makes the step execute even after the job has failed
	// (cleanup/upload steps opt in to this)
	AlwaysRun bool `yaml:"always_run,omitempty" json:"always_run,omitempty"`

	// Env is overlaid on the pipeline env for this step's process only
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// Timeout is the maximum execution time in seconds (0 = default)
	Timeout int `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// Shell overrides the interpreter for this step (default "sh")
	Shell string `yaml:"shell,omitempty" json:"shell,omitempty"`
}

// DefaultStepTimeout is applied when a step does not specify an explicit
// timeout. Generous enough for dependency installs and test suites.
const DefaultStepTimeout = 1800

// stepNamePattern constrains step names so they stay addressable from
// condition expressions (steps.<name>.exit_code).
var stepNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// UnmarshalYAML implements custom YAML unmarshaling for MatrixDefinition so
// axis declaration order is preserved. Mapping keys in yaml.v3 are unordered
// once decoded into a map, so axes decode from the node directly.
func (m *MatrixDefinition) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Axes    yaml.Node  `yaml:"axes"`
		Include []Override `yaml:"include"`
		Exclude []Override `yaml:"exclude"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	m.Include = raw.Include
	m.Exclude = raw.Exclude

	if raw.Axes.Kind == 0 {
		return nil
	}
	if raw.Axes.Kind != yaml.MappingNode {
		return fmt.Errorf("matrix axes must be a mapping of name to value list")
	}

	// Mapping nodes store keys and values as alternating content entries.
	for i := 0; i+1 < len(raw.Axes.Content); i += 2 {
		keyNode := raw.Axes.Content[i]
		valNode := raw.Axes.Content[i+1]

		var values []interface{}
		if err := valNode.Decode(&values); err != nil {
			return fmt.Errorf("axis %s: %w", keyNode.Value, err)
		}

		m.Axes = append(m.Axes, MatrixAxis{
			Name:   keyNode.Value,
			Values: values,
		})
	}

	return nil
}

// MarshalYAML implements yaml.Marshaler so definitions round-trip with axes
// in declaration order.
func (m MatrixDefinition) MarshalYAML() (interface{}, error) {
	axes := &yaml.Node{Kind: yaml.MappingNode}
	for _, axis := range m.Axes {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: axis.Name}
		valNode := &yaml.Node{}
		if err := valNode.Encode(axis.Values); err != nil {
			return nil, err
		}
		axes.Content = append(axes.Content, keyNode, valNode)
	}

	out := map[string]interface{}{"axes": axes}
	if len(m.Include) > 0 {
		out["include"] = m.Include
	}
	if len(m.Exclude) > 0 {
		out["exclude"] = m.Exclude
	}
	return out, nil
}

// ParseDefinition parses a pipeline definition from YAML bytes.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline definition: %w", err)
	}

	def.ApplyDefaults()

	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline definition: %w", err)
	}

	return &def, nil
}

// ApplyDefaults applies default values to pipeline and step fields.
func (d *Definition) ApplyDefaults() {
	for i := range d.Steps {
		step := &d.Steps[i]
		if step.Timeout == 0 {
			step.Timeout = DefaultStepTimeout
		}
		if step.Shell == "" {
			step.Shell = "sh"
		}
	}
}

// Validate checks if the pipeline definition is valid.
// A validation failure here is fatal before any job starts.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return &errors.ValidationError{
			Field:      "name",
			Message:    "pipeline name is required",
			Suggestion: "add a descriptive name for the pipeline",
		}
	}

	if len(d.Steps) == 0 {
		return &errors.ValidationError{
			Field:      "steps",
			Message:    "pipeline must have at least one step",
			Suggestion: "add at least one step to the pipeline definition",
		}
	}

	stepNames := make(map[string]bool)
	for _, step := range d.Steps {
		if step.Name == "" {
			return &errors.ValidationError{
				Field:      "steps.name",
				Message:    "step name is required",
				Suggestion: "add a 'name' field to each step",
			}
		}
		if !stepNamePattern.MatchString(step.Name) {
			return &errors.ValidationError{
				Field:      "steps.name",
				Message:    fmt.Sprintf("invalid step name: %s", step.Name),
				Suggestion: "use lowercase letters, digits and underscores so the step stays addressable from conditions",
			}
		}
		if stepNames[step.Name] {
			return &errors.ValidationError{
				Field:      "steps.name",
				Message:    fmt.Sprintf("duplicate step name: %s", step.Name),
				Suggestion: "ensure each step has a unique name",
			}
		}
		stepNames[step.Name] = true

		if step.Run == "" {
			return &errors.ValidationError{
				Field:      "steps.run",
				Message:    fmt.Sprintf("step %s has no command", step.Name),
				Suggestion: "add a 'run' field with the command template",
			}
		}
		if step.Timeout < 0 {
			return &errors.ValidationError{
				Field:      "steps.timeout",
				Message:    fmt.Sprintf("step %s has negative timeout", step.Name),
				Suggestion: "use a positive timeout in seconds, or omit it for the default",
			}
		}
	}

	if d.MaxParallel < 0 {
		return &errors.ValidationError{
			Field:      "max_parallel",
			Message:    "max_parallel must not be negative",
			Suggestion: "use a positive bound, or omit it for the scheduler default",
		}
	}

	if d.Matrix != nil {
		if err := d.Matrix.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks the matrix axes and overrides.
func (m *MatrixDefinition) Validate() error {
	seen := make(map[string]bool)
	for _, axis := range m.Axes {
		if axis.Name == "" {
			return &errors.ValidationError{
				Field:      "matrix.axes",
				Message:    "axis name is required",
				Suggestion: "name every matrix axis",
			}
		}
		if expression.IsReservedName(axis.Name) {
			return &errors.ValidationError{
				Field:      "matrix.axes",
				Message:    fmt.Sprintf("axis name %q collides with a reserved condition variable", axis.Name),
				Suggestion: "rename the axis; matrix, steps, env and the builtin functions are reserved",
			}
		}
		if seen[axis.Name] {
			return &errors.ValidationError{
				Field:      "matrix.axes",
				Message:    fmt.Sprintf("duplicate axis: %s", axis.Name),
				Suggestion: "ensure each axis is declared once",
			}
		}
		seen[axis.Name] = true

		if len(axis.Values) == 0 {
			return &errors.ValidationError{
				Field:      "matrix.axes",
				Message:    fmt.Sprintf("axis %s has no values", axis.Name),
				Suggestion: "every axis needs a non-empty value list",
			}
		}
	}

	for i, ov := range m.Exclude {
		if len(ov) == 0 {
			return &errors.ValidationError{
				Field:      "matrix.exclude",
				Message:    fmt.Sprintf("exclude %d is empty", i),
				Suggestion: "an exclude must name at least one key/value pair",
			}
		}
		for key := range ov {
			if !seen[key] {
				return &errors.ValidationError{
					Field:      "matrix.exclude",
					Message:    fmt.Sprintf("exclude %d references unknown axis %q", i, key),
					Suggestion: "excludes can only match on declared axes",
				}
			}
		}
	}

	for i, ov := range m.Include {
		if len(ov) == 0 {
			return &errors.ValidationError{
				Field:      "matrix.include",
				Message:    fmt.Sprintf("include %d is empty", i),
				Suggestion: "an include must name at least one key/value pair",
			}
		}
		for key := range ov {
			if expression.IsReservedName(key) {
				return &errors.ValidationError{
					Field:      "matrix.include",
					Message:    fmt.Sprintf("include %d key %q collides with a reserved condition variable", i, key),
					Suggestion: "rename the key; matrix, steps, env and the builtin functions are reserved",
				}
			}
		}
	}

	return nil
}

// Serialize marshals the definition back to YAML. Definitions round-trip:
// parsing the output yields an equivalent definition.
func (d *Definition) Serialize() ([]byte, error) {
	return yaml.Marshal(d)
}
