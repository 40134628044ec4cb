package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/nestc/internal/compiler"
	"github.com/roach88/nestc/internal/engine"
	"github.com/roach88/nestc/internal/ir"
	"github.com/roach88/nestc/internal/loopnest"
	"github.com/roach88/nestc/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	pipelineFlags
	Params   []string
	Fills    []string
	Database string
	Workers  int

	// RunIDs allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// OutputSummary describes one output buffer after a run.
type OutputSummary struct {
	Name   string     `json:"name"`
	Type   string     `json:"type"`
	Region []ir.Range `json:"region"`
	Min    float64    `json:"min"`
	Max    float64    `json:"max"`
	Sum    float64    `json:"sum"`
}

// RunResult describes one invocation.
type RunResult struct {
	Pipeline   string          `json:"pipeline"`
	ArtifactID string          `json:"artifact_id"`
	RunID      string          `json:"run_id"`
	Seq        int64           `json:"seq"`
	ElapsedMS  float64         `json:"elapsed_ms"`
	Outputs    []OutputSummary `json:"outputs"`
	Recorded   bool            `json:"recorded"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <pipeline.cue|dir|artifact>",
		Short: "Invoke a pipeline with constant inputs",
		Long: `Compile a generator, or load an artifact written by "nestc compile -o", and
invoke it once. Every input buffer is allocated over the region the pipeline
reads and filled with a constant (0 unless --fill says otherwise); every
output buffer covers its declared region. Prints a summary of each output.

With --db the artifact and the run are recorded in the registry, failed runs
included.

Examples:
  nestc run pipelines/scale.cue --fill in=3
  nestc run pipelines/scale.cue --param scale=0.5 --fill in=2 --db nestc.db
  nestc run blur.nest --fill src=1 --workers 4`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), opts, args[0], cmd)
		},
	}

	opts.pipelineFlags.register(cmd)
	cmd.Flags().StringArrayVar(&opts.Params, "param", nil, "scalar argument, name=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Fills, "fill", nil, "constant for an input buffer, name=value (repeatable)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the artifact and run in this registry")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "worker pool size for parallel loops (default GOMAXPROCS)")

	return cmd
}

// isPipelinePath reports whether path names CUE source rather than an
// artifact file.
func isPipelinePath(path string) bool {
	if filepath.Ext(path) == ".cue" {
		return true
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func runRun(ctx context.Context, opts *RunOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)
	logger := opts.logger(cmd)

	fills, err := parseFills(opts.Fills)
	if err != nil {
		return formatter.Fail("invalid flag", err)
	}
	params, err := parseAssignments("param", opts.Params)
	if err != nil {
		return formatter.Fail("invalid flag", err)
	}

	program, pipelineID, err := opts.loadProgram(path)
	if err != nil {
		return formatter.Fail("loading pipeline", err)
	}

	var st *store.Store
	if db := opts.dbPath(opts.Database); db != "" {
		if st, err = store.Open(db); err != nil {
			return formatter.FailCode(ErrCodeStore, ExitCommandError, fmt.Sprintf("opening registry: %v", err))
		}
		defer st.Close()
	}

	record, err := store.NewArtifact(program, pipelineID, 0)
	if err != nil {
		return formatter.Fail("encoding artifact", err)
	}
	result := RunResult{Pipeline: program.Name, ArtifactID: record.ID}

	// Runs continue the registry's sequence after the artifact.
	var seqStart int64
	if st != nil {
		if seqStart, err = registerArtifact(ctx, st, &record); err != nil {
			return formatter.FailCode(ErrCodeStore, ExitCommandError, fmt.Sprintf("recording artifact: %v", err))
		}
	}

	ids := opts.RunIDs
	if ids == nil {
		ids = engine.UUIDv7Generator{}
	}
	art, err := engine.Emit(program,
		engine.WithWorkers(opts.workers(opts.Workers)),
		engine.WithLogger(logger),
		engine.WithRunIDs(ids),
		engine.WithSequenceStart(seqStart),
	)
	if err != nil {
		return formatter.Fail("emission failed", err)
	}

	scalars, err := bindParams(art, params)
	if err != nil {
		return formatter.Fail("invalid flag", err)
	}
	buffers, err := allocateBuffers(art, fills)
	if err != nil {
		return formatter.Fail("invalid flag", err)
	}

	report, runErr := art.Run(ctx, scalars, buffers)
	result.RunID, result.Seq = report.ID, report.Seq
	if st != nil {
		run := store.Run{ID: report.ID, ArtifactID: record.ID, Status: store.RunOK, Seq: report.Seq}
		if runErr != nil {
			run.Status, run.Error = store.RunFailed, runErr.Error()
			var pe *ir.Error
			if errors.As(runErr, &pe) {
				run.ErrorKind = string(pe.Kind)
			}
		}
		if err := st.WriteRun(ctx, run); err != nil {
			return formatter.FailCode(ErrCodeStore, ExitCommandError, fmt.Sprintf("recording run: %v", err))
		}
		result.Recorded = true
	}
	if runErr != nil {
		return formatter.Fail("invocation failed", runErr)
	}

	result.ElapsedMS = float64(report.Elapsed.Microseconds()) / 1000
	for i, arg := range art.Buffers() {
		if arg.Kind == loopnest.ArgOutput {
			result.Outputs = append(result.Outputs, summarize(arg.Name, buffers[i]))
		}
	}
	return outputRunSuccess(formatter, result)
}

// loadProgram lowers a generator from CUE source, or decodes an artifact
// file. An artifact file carries no graph, so its artifact ID stands in for
// the pipeline ID.
func (o *RunOptions) loadProgram(path string) (*loopnest.Program, string, error) {
	if isPipelinePath(path) {
		_, g, err := o.build(o.RootOptions, path)
		if err != nil {
			return nil, "", err
		}
		pipelineID, err := ir.PipelineID(g)
		if err != nil {
			return nil, "", err
		}
		p, err := compiler.Lower(g)
		if err != nil {
			return nil, "", err
		}
		return p, pipelineID, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	p, err := loopnest.Decode(data)
	if err != nil {
		return nil, "", fmt.Errorf("artifact %s: %w", path, err)
	}
	return p, ir.ArtifactID(data), nil
}

// registerArtifact records the artifact unless the registry already holds
// it, and returns the sequence number the first run should follow.
func registerArtifact(ctx context.Context, st *store.Store, record *store.Artifact) (int64, error) {
	next, err := st.NextSeq(ctx)
	if err != nil {
		return 0, err
	}
	existing, err := st.ReadArtifact(ctx, record.ID)
	if err == nil {
		*record = existing
		return next - 1, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	record.Seq = next
	if _, err := st.WriteArtifact(ctx, *record); err != nil {
		return 0, err
	}
	return next, nil
}

func bindParams(art *engine.Artifact, params map[string]string) ([]engine.Scalar, error) {
	values := make(map[string]engine.Scalar, len(params))
	scalars := art.Scalars()
	for name, text := range params {
		i := slices.IndexFunc(scalars, func(a loopnest.Arg) bool { return a.Name == name })
		if i < 0 {
			return nil, &FlagError{Flag: "param", Message: fmt.Sprintf("%s has no scalar %q (have %s)", art.Name(), name, argList(scalars))}
		}
		v, err := engine.ParseScalar(scalars[i].Type, text)
		if err != nil {
			return nil, &FlagError{Flag: "param", Message: fmt.Sprintf("%s: %v", name, err)}
		}
		values[name] = v
	}
	return art.BindScalars(values)
}

func allocateBuffers(art *engine.Artifact, fills map[string]float64) ([]*engine.Buffer, error) {
	args := art.Buffers()
	for name := range fills {
		if !slices.ContainsFunc(args, func(a loopnest.Arg) bool { return a.Name == name && a.Kind == loopnest.ArgInput }) {
			return nil, &FlagError{Flag: "fill", Message: fmt.Sprintf("%s has no input %q", art.Name(), name)}
		}
	}
	buffers := make([]*engine.Buffer, len(args))
	for i, arg := range args {
		buffers[i] = engine.NewBufferRegion(arg.Type, arg.Region)
		if arg.Kind == loopnest.ArgInput {
			buffers[i].Fill(engine.Float64(fills[arg.Name]))
		}
	}
	return buffers, nil
}

func argList(args []loopnest.Arg) string {
	if len(args) == 0 {
		return "none"
	}
	names := make([]string, len(args))
	for i, a := range args {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}

func summarize(name string, b *engine.Buffer) OutputSummary {
	s := OutputSummary{
		Name:   name,
		Type:   b.Type().String(),
		Region: b.Region(),
		Min:    math.Inf(1),
		Max:    math.Inf(-1),
	}
	b.Each(func(_ []int64, v engine.Scalar) {
		f := v.Float()
		s.Min = math.Min(s.Min, f)
		s.Max = math.Max(s.Max, f)
		s.Sum += f
	})
	return s
}

func formatRegion(region []ir.Range) string {
	parts := make([]string, len(region))
	for i, r := range region {
		parts[i] = fmt.Sprintf("[%d, %d)", r.Min, r.Min+r.Extent)
	}
	return strings.Join(parts, " x ")
}

func outputRunSuccess(formatter *OutputFormatter, result RunResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "%s Ran %s (run %s, seq %d) in %.3fms\n",
		okMark, result.Pipeline, result.RunID, result.Seq, result.ElapsedMS)
	for _, o := range result.Outputs {
		fmt.Fprintf(w, "  %s %s %s: min %g max %g sum %g\n",
			o.Name, o.Type, formatRegion(o.Region), o.Min, o.Max, o.Sum)
	}
	if result.Recorded {
		fmt.Fprintf(w, "Recorded in registry (artifact %s)\n", shortID(result.ArtifactID))
	}
	return nil
}
