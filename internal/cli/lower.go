package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/nestc/internal/compiler"
)

// LowerOptions holds flags for the lower command.
type LowerOptions struct {
	*RootOptions
	pipelineFlags
}

// LowerResult is the printed loop nest of one generator.
type LowerResult struct {
	Pipeline string `json:"pipeline"`
	LoopNest string `json:"loop_nest"`
}

// NewLowerCommand creates the lower command.
func NewLowerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LowerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "lower <pipeline.cue|dir>",
		Short: "Print the loop nest a schedule produces",
		Long: `Lower a generator and print its loop nest: the signature, the buffers
allocated for compute_root and shared functions, and one loop nest per
materialized function.

Examples:
  nestc lower pipelines/scale.cue
  nestc lower pipelines/scale.cue --set vectorize=false --set parallel=false`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLower(opts, args[0], cmd)
		},
	}

	opts.pipelineFlags.register(cmd)
	return cmd
}

func runLower(opts *LowerOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	_, g, err := opts.build(opts.RootOptions, path)
	if err != nil {
		return formatter.Fail("build failed", err)
	}
	program, err := compiler.Lower(g, compiler.WithLogger(opts.logger(cmd)))
	if err != nil {
		return formatter.Fail("lowering failed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(LowerResult{Pipeline: program.Name, LoopNest: program.String()})
	}
	fmt.Fprint(formatter.Writer, program.String())
	return nil
}
