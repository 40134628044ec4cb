package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/nestc/internal/compiler"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Set []string
}

// GeneratorCheck is the validation outcome of one generator.
type GeneratorCheck struct {
	Generator string `json:"generator"`
	Valid     bool   `json:"valid"`
	Code      string `json:"code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ValidationResult holds validation results for every generator in a file.
type ValidationResult struct {
	Valid      bool             `json:"valid"`
	Generators []GeneratorCheck `json:"generators"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <pipeline.cue|dir>",
		Short: "Check every generator without lowering",
		Long: `Build every generator in a pipeline file and validate its graph: definitions,
types, dependency cycles and output requests. Schedules are attached but not
lowered, so this is faster than compile for development feedback.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "override a generator param, name=true|false (repeatable)")
	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	gens, err := compiler.LoadGenerators(path)
	if err != nil {
		return formatter.Fail("loading pipeline file", err)
	}
	set, err := parseSet(opts.Set)
	if err != nil {
		return formatter.Fail("invalid flag", err)
	}

	known := make(map[string]bool)
	for _, gen := range gens {
		for _, p := range gen.Params {
			known[p.Name] = true
		}
	}
	for name := range set {
		if !known[name] {
			return formatter.Fail("invalid flag", &FlagError{Flag: "set", Message: fmt.Sprintf("no generator has a param %q", name)})
		}
	}

	result := ValidationResult{Valid: true, Generators: make([]GeneratorCheck, 0, len(gens))}
	for _, gen := range gens {
		check := GeneratorCheck{Generator: gen.Name, Valid: true}
		// --set names params of some generators only
		own := make(map[string]bool)
		for _, p := range gen.Params {
			if v, ok := set[p.Name]; ok {
				own[p.Name] = v
			}
		}
		g, err := gen.Build(compiler.BuildOptions{Set: own, VectorBits: opts.Config.Target.VectorBits})
		if err == nil {
			err = compiler.Validate(g)
		}
		if err != nil {
			check.Valid = false
			check.Code, _ = Classify(err)
			check.Error = err.Error()
			result.Valid = false
		}
		formatter.VerboseLog("Validated generator %s: %t", gen.Name, check.Valid)
		result.Generators = append(result.Generators, check)
	}

	if formatter.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		for _, c := range result.Generators {
			if c.Valid {
				fmt.Fprintf(w, "%s %s\n", okMark, c.Generator)
				continue
			}
			fmt.Fprintf(w, "%s %s\n  %s: %s\n", failMark, c.Generator, c.Code, c.Error)
		}
	}

	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}
