package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/nestc/internal/compiler"
	"github.com/roach88/nestc/internal/engine"
	"github.com/roach88/nestc/internal/ir"
	"github.com/roach88/nestc/internal/loopnest"
	"github.com/roach88/nestc/internal/store"
	"github.com/roach88/nestc/internal/testutil"
)

// Harness executes one scenario against a fresh in-memory registry.
type Harness struct {
	store  *store.Store
	clock  *testutil.DeterministicClock
	ids    *testutil.SequentialRunIDs
	logger *slog.Logger
}

// Run builds the scenario's generator, compiles it, invokes it with the
// scenario's data and checks the expectations.
//
// Pipeline failures (any ir.Error) are part of the result: they pass when
// the scenario expects that kind and fail otherwise. Problems with the
// scenario itself, such as an unreadable pipeline file or an unknown
// generator, are returned as errors.
//
// Each run records its artifact and invocation in a fresh in-memory store
// with deterministic sequence numbers and run IDs "<name>-run-N".
func Run(scenario *Scenario) (*Result, error) {
	return run(scenario, scenario.Set)
}

func run(scenario *Scenario, set map[string]bool) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		clock:  testutil.NewDeterministicClock(),
		ids:    testutil.NewSequentialRunIDs(scenario.Name),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return h.execute(context.Background(), scenario, set)
}

func (h *Harness) execute(ctx context.Context, s *Scenario, set map[string]bool) (*Result, error) {
	result := NewResult(s.Name)

	gens, err := compiler.LoadGenerators(s.Pipeline)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	gen, err := compiler.FindGenerator(gens, s.Generator)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	g, err := gen.Build(compiler.BuildOptions{Set: set, VectorBits: s.VectorBits})
	if err != nil {
		return failed(result, s, err)
	}
	pipelineID, err := ir.PipelineID(g)
	if err != nil {
		return nil, err
	}

	art, err := compiler.Compile(g,
		compiler.WithLogger(h.logger),
		compiler.WithWorkers(s.Workers),
		compiler.WithEmitOptions(engine.WithRunIDs(h.ids)),
	)
	if err != nil {
		return failed(result, s, err)
	}
	result.LoopNest = art.Program().String()

	record, err := store.NewArtifact(art.Program(), pipelineID, h.clock.Next())
	if err != nil {
		return nil, err
	}
	if _, err := h.store.WriteArtifact(ctx, record); err != nil {
		return nil, fmt.Errorf("scenario %s: record artifact: %w", s.Name, err)
	}
	result.ArtifactID = record.ID

	buffers, ok := bindBuffers(art, s, result)
	if !ok {
		return result, nil
	}

	scalars, err := bindScalars(art, s.Params)
	if err != nil {
		return h.failedRun(ctx, result, s, "", err)
	}

	report, err := art.Run(ctx, scalars, buffers)
	if err != nil {
		return h.failedRun(ctx, result, s, report.ID, err)
	}
	result.RunID = report.ID
	if err := h.store.WriteRun(ctx, store.Run{
		ID:         report.ID,
		ArtifactID: record.ID,
		Status:     store.RunOK,
		Seq:        h.clock.Next(),
	}); err != nil {
		return nil, fmt.Errorf("scenario %s: record run: %w", s.Name, err)
	}
	h.logger.Debug("scenario invoked", "scenario", s.Name, "run", report.ID, "elapsed", report.Elapsed)

	if s.Expect.Error != "" {
		result.AddError(fmt.Sprintf("expected %s error, pipeline ran successfully", s.Expect.Error))
		return result, nil
	}
	for _, msg := range checkOutputs(result.Outputs, s.Expect.Outputs) {
		result.AddError(msg)
	}
	return result, nil
}

// failed records a pipeline error in result. Errors outside the taxonomy
// are problems with the scenario and are returned instead.
func failed(result *Result, s *Scenario, err error) (*Result, error) {
	kind := ir.KindOf(err)
	if kind == "" {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	result.ErrorKind = string(kind)
	switch {
	case s.Expect.Error == "":
		result.AddError(fmt.Sprintf("unexpected %s: %v", kind, err))
	case ir.ErrorKind(s.Expect.Error) != kind:
		result.AddError(fmt.Sprintf("expected %s error, got %s: %v", s.Expect.Error, kind, err))
	}
	return result, nil
}

// failedRun records a failed invocation before classifying the error. An
// invocation rejected before it was named gets a fresh run ID.
func (h *Harness) failedRun(ctx context.Context, result *Result, s *Scenario, runID string, err error) (*Result, error) {
	if runID == "" {
		runID = h.ids.Generate()
	}
	result.RunID = runID
	if werr := h.store.WriteRun(ctx, store.Run{
		ID:         runID,
		ArtifactID: result.ArtifactID,
		Status:     store.RunFailed,
		ErrorKind:  string(ir.KindOf(err)),
		Error:      err.Error(),
		Seq:        h.clock.Next(),
	}); werr != nil {
		return nil, fmt.Errorf("scenario %s: record run: %w", s.Name, werr)
	}
	return failed(result, s, err)
}

// bindBuffers allocates inputs from the scenario data and outputs over
// their declared regions, in the order Invoke expects. Missing or unknown
// inputs are recorded in result.
func bindBuffers(art *engine.Artifact, s *Scenario, result *Result) ([]*engine.Buffer, bool) {
	args := art.Buffers()
	known := make(map[string]bool, len(args))
	buffers := make([]*engine.Buffer, 0, len(args))
	ok := true

	for _, arg := range args {
		known[arg.Name] = true
		if arg.Kind == loopnest.ArgOutput {
			b := engine.NewBufferRegion(arg.Type, arg.Region).TrackWrites()
			result.Outputs[arg.Name] = b
			buffers = append(buffers, b)
			continue
		}
		in, found := s.Inputs[arg.Name]
		if !found {
			result.AddError(fmt.Sprintf("no data for input %q", arg.Name))
			ok = false
			continue
		}
		region, err := inputRegion(arg, in)
		if err != nil {
			result.AddError(err.Error())
			ok = false
			continue
		}
		if in.Fill != nil {
			buffers = append(buffers, testutil.FilledBuffer(arg.Type, region, *in.Fill))
		} else {
			buffers = append(buffers, testutil.RampBuffer(arg.Type, region, in.Ramp.Base, in.Ramp.Step))
		}
	}

	for _, name := range slices.Sorted(maps.Keys(s.Inputs)) {
		if !known[name] {
			result.AddError(fmt.Sprintf("pipeline has no input %q", name))
			ok = false
		}
	}
	return buffers, ok
}

// inputRegion is the region required by the pipeline unless the scenario
// overrides it.
func inputRegion(arg loopnest.Arg, in Input) ([]ir.Range, error) {
	if in.Extent == nil {
		return arg.Region, nil
	}
	if len(in.Extent) != arg.Rank {
		return nil, fmt.Errorf("input %q has rank %d, scenario gives %d extents", arg.Name, arg.Rank, len(in.Extent))
	}
	region := make([]ir.Range, arg.Rank)
	for d := range region {
		region[d].Extent = in.Extent[d]
		if in.Min != nil {
			region[d].Min = in.Min[d]
		}
	}
	return region, nil
}

// bindScalars parses scenario params with the declared scalar types and
// fills defaults for the rest.
func bindScalars(art *engine.Artifact, params map[string]string) ([]engine.Scalar, error) {
	types := make(map[string]ir.ScalarType)
	for _, arg := range art.Scalars() {
		types[arg.Name] = arg.Type
	}
	values := make(map[string]engine.Scalar, len(params))
	for name, text := range params {
		t, ok := types[name]
		if !ok {
			return nil, ir.Errorf(ir.KindSignatureMismatch, "pipeline %s has no scalar %q", art.Name(), name)
		}
		v, err := engine.ParseScalar(t, text)
		if err != nil {
			return nil, ir.Errorf(ir.KindSignatureMismatch, "scalar %q: %v", name, err)
		}
		values[name] = v
	}
	return art.BindScalars(values)
}
