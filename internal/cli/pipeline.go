package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/nestc/internal/compiler"
	"github.com/roach88/nestc/internal/ir"
)

// FlagError is a malformed flag value.
type FlagError struct {
	Flag    string
	Message string
}

func (e *FlagError) Error() string {
	return fmt.Sprintf("--%s: %s", e.Flag, e.Message)
}

// NotFoundError is a generator or registry record that does not exist.
type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string { return e.What + " not found" }

// pipelineFlags are shared by commands that build a generator.
type pipelineFlags struct {
	Generator  string
	Set        []string
	VectorBits int
}

func (f *pipelineFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.Generator, "generator", "g", "", "generator name (optional when the file defines one)")
	cmd.Flags().StringArrayVar(&f.Set, "set", nil, "override a generator param, name=true|false (repeatable)")
	cmd.Flags().IntVar(&f.VectorBits, "vector-bits", 0, "target vector width in bits (overrides config and pipeline file)")
}

// build loads the pipeline file and builds the selected generator.
func (f *pipelineFlags) build(opts *RootOptions, path string) (*compiler.Generator, *ir.Graph, error) {
	gen, err := loadGenerator(path, f.Generator)
	if err != nil {
		return nil, nil, err
	}
	set, err := parseSet(f.Set)
	if err != nil {
		return nil, nil, err
	}
	bits := f.VectorBits
	if bits == 0 {
		bits = opts.Config.Target.VectorBits
	}
	g, err := gen.Build(compiler.BuildOptions{Set: set, VectorBits: bits})
	if err != nil {
		return gen, nil, err
	}
	return gen, g, nil
}

// loadGenerator reads a .cue file or CUE package directory and selects a
// generator by name. An empty name selects the only generator.
func loadGenerator(path, name string) (*compiler.Generator, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", path, err)
	}
	gens, err := compiler.LoadGenerators(path)
	if err != nil {
		return nil, err
	}
	if name == "" {
		if len(gens) == 1 {
			return gens[0], nil
		}
		return nil, &FlagError{Flag: "generator", Message: fmt.Sprintf(
			"%s defines %d generators (%s), choose one", filepath.Base(path), len(gens), generatorNames(gens))}
	}
	gen, err := compiler.FindGenerator(gens, name)
	if err != nil {
		return nil, &NotFoundError{What: fmt.Sprintf("generator %q in %s (have %s)", name, filepath.Base(path), generatorNames(gens))}
	}
	return gen, nil
}

func generatorNames(gens []*compiler.Generator) string {
	names := make([]string, len(gens))
	for i, g := range gens {
		names[i] = g.Name
	}
	slices.Sort(names)
	return strings.Join(names, ", ")
}

// parseAssignments splits name=value flag values.
func parseAssignments(flag string, pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, &FlagError{Flag: flag, Message: fmt.Sprintf("expected name=value, got %q", p)}
		}
		if _, dup := out[name]; dup {
			return nil, &FlagError{Flag: flag, Message: fmt.Sprintf("%q given twice", name)}
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}

func parseSet(pairs []string) (map[string]bool, error) {
	raw, err := parseAssignments("set", pairs)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(raw))
	for name, v := range raw {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, &FlagError{Flag: "set", Message: fmt.Sprintf("%s: %q is not a boolean", name, v)}
		}
		set[name] = b
	}
	return set, nil
}

func parseFills(pairs []string) (map[string]float64, error) {
	raw, err := parseAssignments("fill", pairs)
	if err != nil {
		return nil, err
	}
	fills := make(map[string]float64, len(raw))
	for name, v := range raw {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, &FlagError{Flag: "fill", Message: fmt.Sprintf("%s: %q is not a number", name, v)}
		}
		fills[name] = f
	}
	return fills, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
