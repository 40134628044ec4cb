package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/nestc/internal/ir"
)

// Scenario is one pipeline conformance test: which generator to build, the
// data to invoke it with and what the outputs must hold.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// Pipeline is the .cue file (or CUE package directory) defining the
	// generator. Relative paths are resolved against the scenario file.
	Pipeline string `yaml:"pipeline"`

	// Generator is the name under `pipeline:` to build.
	Generator string `yaml:"generator"`

	// Set overrides generator params.
	Set map[string]bool `yaml:"set,omitempty"`

	// VectorBits overrides the target vector width when > 0.
	VectorBits int `yaml:"vector_bits,omitempty"`

	// Workers bounds the worker pool; 0 means GOMAXPROCS.
	Workers int `yaml:"workers,omitempty"`

	// Params gives scalar argument values as text. Scalars left out take
	// their declared default.
	Params map[string]string `yaml:"params,omitempty"`

	// Inputs describes the data bound to each input image.
	Inputs map[string]Input `yaml:"inputs,omitempty"`

	// Expect is what the invocation must produce.
	Expect Expect `yaml:"expect"`

	// Golden compares the printed loop nest against
	// testdata/golden/<name>.golden in RunWithGolden.
	Golden bool `yaml:"golden,omitempty"`
}

// Input fills one input image. Exactly one of Fill and Ramp is set.
//
// Extent and Min default to the region the pipeline reads, which is the
// smallest buffer the artifact accepts.
type Input struct {
	Extent []int64  `yaml:"extent,omitempty"`
	Min    []int64  `yaml:"min,omitempty"`
	Fill   *float64 `yaml:"fill,omitempty"`
	Ramp   *Ramp    `yaml:"ramp,omitempty"`
}

// Ramp sets the element at c to Base + sum(Step[d] * c[d]).
type Ramp struct {
	Base float64   `yaml:"base"`
	Step []float64 `yaml:"step"`
}

// Expect is either an error kind or a set of output checks.
type Expect struct {
	// Error is the ir.ErrorKind the pipeline must fail with, such as
	// CYCLIC_DEPENDENCY.
	Error string `yaml:"error,omitempty"`

	// Outputs checks output buffers by name.
	Outputs map[string]OutputExpect `yaml:"outputs,omitempty"`
}

// OutputExpect checks one output buffer. All compares every element;
// Points compares single coordinates. Tolerance is an absolute bound and
// defaults to exact comparison.
type OutputExpect struct {
	All       *float64 `yaml:"all,omitempty"`
	Points    []Point  `yaml:"points,omitempty"`
	Tolerance float64  `yaml:"tolerance,omitempty"`
}

// Point is one expected element.
type Point struct {
	At    []int64 `yaml:"at"`
	Value float64 `yaml:"value"`
}

// LoadScenario reads a scenario file. Relative pipeline paths are resolved
// against the file's directory.
//
// Unknown fields are rejected so typos such as "expects:" fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads a scenario file, resolving a relative
// pipeline path against basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Pipeline != "" && !filepath.IsAbs(scenario.Pipeline) && basePath != "" {
		scenario.Pipeline = filepath.Join(basePath, scenario.Pipeline)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

// LoadScenarios reads every *.yaml and *.yml file in dir, sorted by file
// name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	scenarios := make([]*Scenario, 0, len(names))
	for _, name := range names {
		s, err := LoadScenario(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks required fields and the shape of inputs and
// expectations.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if strings.ContainsAny(s.Name, `/\`) {
		return fmt.Errorf("name %q must not contain path separators", s.Name)
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Pipeline == "" {
		return fmt.Errorf("pipeline is required")
	}
	if s.Generator == "" {
		return fmt.Errorf("generator is required")
	}
	if _, err := os.Stat(s.Pipeline); err != nil {
		return fmt.Errorf("pipeline file not found: %s", s.Pipeline)
	}

	for name, in := range s.Inputs {
		if err := validateInput(name, in); err != nil {
			return err
		}
	}
	return validateExpect(&s.Expect)
}

func validateInput(name string, in Input) error {
	if (in.Fill == nil) == (in.Ramp == nil) {
		return fmt.Errorf("inputs.%s: exactly one of fill and ramp is required", name)
	}
	if in.Min != nil && in.Extent == nil {
		return fmt.Errorf("inputs.%s: min requires extent", name)
	}
	if in.Min != nil && len(in.Min) != len(in.Extent) {
		return fmt.Errorf("inputs.%s: min has %d entries, extent has %d", name, len(in.Min), len(in.Extent))
	}
	for d, e := range in.Extent {
		if e < 1 {
			return fmt.Errorf("inputs.%s: extent[%d] must be positive, got %d", name, d, e)
		}
	}
	return nil
}

func validateExpect(e *Expect) error {
	switch {
	case e.Error != "" && len(e.Outputs) > 0:
		return fmt.Errorf("expect: error and outputs are mutually exclusive")
	case e.Error != "":
		if ir.ErrorKind(e.Error).Category() == "" {
			return fmt.Errorf("expect.error: unknown error kind %q", e.Error)
		}
		return nil
	case len(e.Outputs) == 0:
		return fmt.Errorf("expect: error or outputs is required")
	}

	for name, out := range e.Outputs {
		if out.All == nil && len(out.Points) == 0 {
			return fmt.Errorf("expect.outputs.%s: all or points is required", name)
		}
		if out.Tolerance < 0 {
			return fmt.Errorf("expect.outputs.%s: tolerance must be non-negative", name)
		}
		for i, p := range out.Points {
			if len(p.At) == 0 {
				return fmt.Errorf("expect.outputs.%s.points[%d]: at is required", name, i)
			}
		}
	}
	return nil
}
