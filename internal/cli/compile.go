package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/nestc/internal/compiler"
	"github.com/roach88/nestc/internal/ir"
	"github.com/roach88/nestc/internal/loopnest"
	"github.com/roach88/nestc/internal/store"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	pipelineFlags
	Output   string // artifact file path
	Database string
}

// CompileResult describes a compiled (or cached) artifact.
type CompileResult struct {
	Pipeline   string               `json:"pipeline"`
	PipelineID string               `json:"pipeline_id"`
	ArtifactID string               `json:"artifact_id"`
	Stages     int                  `json:"stages"`
	Signature  []store.SignatureArg `json:"signature"`
	Cached     bool                 `json:"cached"`
	Recorded   bool                 `json:"recorded"`
	Output     string               `json:"output,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <pipeline.cue|dir>",
		Short: "Compile a pipeline generator into an artifact",
		Long: `Compile a generator from a CUE pipeline file: validate the graph, lower the
algorithm and schedule to a loop nest and emit the artifact.

With --output the artifact is written as a msgpack file that "nestc run"
accepts. With --db the artifact is recorded in the registry under its
content hash; compiling an unchanged pipeline again is a cache hit.

Examples:
  nestc compile pipelines/scale.cue
  nestc compile pipelines/blur.cue -g blur --set unroll=true -o blur.nest
  nestc compile pipelines/scale.cue --db nestc.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd.Context(), opts, args[0], cmd)
		},
	}

	opts.pipelineFlags.register(cmd)
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the artifact to this file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the artifact in this registry")

	return cmd
}

func runCompile(ctx context.Context, opts *CompileOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)
	logger := opts.logger(cmd)

	_, g, err := opts.build(opts.RootOptions, path)
	if err != nil {
		return formatter.Fail("build failed", err)
	}
	pipelineID, err := ir.PipelineID(g)
	if err != nil {
		return formatter.Fail("hashing pipeline", err)
	}
	formatter.VerboseLog("Pipeline %s: %s", g.Name, pipelineID)

	var st *store.Store
	if db := opts.dbPath(opts.Database); db != "" {
		if st, err = store.Open(db); err != nil {
			return formatter.FailCode(ErrCodeStore, ExitCommandError, fmt.Sprintf("opening registry: %v", err))
		}
		defer st.Close()
	}

	result := CompileResult{Pipeline: g.Name, PipelineID: pipelineID}
	var record store.Artifact
	var program *loopnest.Program

	if st != nil {
		cached, ok, err := st.FindArtifact(ctx, pipelineID)
		if err != nil {
			return formatter.FailCode(ErrCodeStore, ExitCommandError, fmt.Sprintf("reading registry: %v", err))
		}
		if ok {
			if program, err = cached.Decode(); err != nil {
				return formatter.Fail("decoding cached artifact", err)
			}
			record, result.Cached = cached, true
			formatter.VerboseLog("Cache hit: artifact %s", shortID(cached.ID))
		}
	}

	if program == nil {
		art, err := compiler.Compile(g,
			compiler.WithLogger(logger),
			compiler.WithWorkers(opts.workers(0)),
		)
		if err != nil {
			return formatter.Fail("compilation failed", err)
		}
		program = art.Program()

		var seq int64 = 1
		if st != nil {
			if seq, err = st.NextSeq(ctx); err != nil {
				return formatter.FailCode(ErrCodeStore, ExitCommandError, fmt.Sprintf("reading registry: %v", err))
			}
		}
		if record, err = store.NewArtifact(program, pipelineID, seq); err != nil {
			return formatter.Fail("encoding artifact", err)
		}
		if st != nil {
			if result.Recorded, err = st.WriteArtifact(ctx, record); err != nil {
				return formatter.FailCode(ErrCodeStore, ExitCommandError, fmt.Sprintf("recording artifact: %v", err))
			}
		}
	}

	result.ArtifactID = record.ID
	result.Stages = len(program.Stages)
	result.Signature = record.Signature

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, record.Program, 0o644); err != nil {
			return formatter.FailCode(ErrCodeWriteFailed, ExitCommandError, fmt.Sprintf("writing artifact: %v", err))
		}
		result.Output = opts.Output
	}

	return outputCompileSuccess(formatter, result)
}

func outputCompileSuccess(formatter *OutputFormatter, result CompileResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	status := "Compiled"
	if result.Cached {
		status = "Cached"
	}
	fmt.Fprintf(w, "%s %s %s (%d stage(s)) artifact %s\n",
		okMark, status, result.Pipeline, result.Stages, shortID(result.ArtifactID))
	for _, arg := range result.Signature {
		fmt.Fprintf(w, "  %s\n", formatSignatureArg(arg))
	}
	if result.Recorded {
		fmt.Fprintln(w, "Recorded in registry")
	}
	if result.Output != "" {
		fmt.Fprintf(w, "Wrote artifact to %s\n", result.Output)
	}
	return nil
}

func formatSignatureArg(a store.SignatureArg) string {
	if a.Kind == loopnest.ArgScalar.String() {
		if a.Default != "" {
			return fmt.Sprintf("%s %s: %s = %s", a.Kind, a.Name, a.Type, a.Default)
		}
		return fmt.Sprintf("%s %s: %s", a.Kind, a.Name, a.Type)
	}
	region := ""
	for i, r := range a.Region {
		if i > 0 {
			region += " x "
		}
		region += fmt.Sprintf("[%d, %d)", r[0], r[0]+r[1])
	}
	return fmt.Sprintf("%s %s: %s rank %d region %s", a.Kind, a.Name, a.Type, a.Rank, region)
}
