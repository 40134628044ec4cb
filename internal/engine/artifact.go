package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/roach88/nestc/internal/ir"
	"github.com/roach88/nestc/internal/loopnest"
)

// Option configures Emit.
type Option func(*config)

type config struct {
	workers int
	logger  *slog.Logger
	ids     RunIDGenerator
	clock   *Clock
}

// WithWorkers bounds the worker pool used by parallel loops.
// Default: GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(c *config) {
		c.workers = n
	}
}

// WithLogger sets the logger for emission and invocation diagnostics.
// Default: logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithRunIDs sets the generator that names invocations.
// Default: UUIDv7Generator.
func WithRunIDs(g RunIDGenerator) Option {
	return func(c *config) {
		c.ids = g
	}
}

// WithSequenceStart makes the first invocation's sequence number start+1.
func WithSequenceStart(start int64) Option {
	return func(c *config) {
		c.clock = NewClockAt(start)
	}
}

// Artifact is a compiled pipeline: an in-process callable bound to an
// ordered signature of scalar and buffer arguments.
//
// Thread-safety: an Artifact is immutable after Emit and safe for concurrent
// Invoke calls. Each invocation allocates its own intermediates and staging
// buffers.
type Artifact struct {
	program *loopnest.Program
	scalars []loopnest.Arg
	buffers []loopnest.Arg // inputs then outputs, the caller's buffer order
	temps   []loopnest.Realization
	stages  []compiledStage

	pool  *pool
	log   *slog.Logger
	ids   RunIDGenerator
	clock *Clock
}

type compiledStage struct {
	name  string
	slots int
	run   step
}

// invocation is the state shared by all frames of one Invoke call.
type invocation struct {
	ctx     context.Context
	scalars []Scalar
	buffers []*Buffer // caller inputs, staged outputs, then intermediates
}

// Emit compiles a loop-nest program into an Artifact.
//
// Fails with UnsupportedConstruct for programs outside what this backend
// executes: vectorized loops that are not innermost, vector widths above
// MaxVectorWidth, unroll factors above MaxUnrollFactor, stores into input
// buffers and names that resolve to nothing.
func Emit(p *loopnest.Program, opts ...Option) (*Artifact, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.ids == nil {
		cfg.ids = UUIDv7Generator{}
	}
	if cfg.clock == nil {
		cfg.clock = NewClock()
	}

	a := &Artifact{
		program: p,
		scalars: p.Scalars(),
		buffers: p.Buffers(),
		pool:    newPool(cfg.workers),
		log:     cfg.logger,
		ids:     cfg.ids,
		clock:   cfg.clock,
	}

	sc := &scope{
		scalars: make(map[string]int),
		buffers: make(map[string]int),
	}
	for i, arg := range a.scalars {
		sc.scalars[arg.Name] = i
		sc.scalarT = append(sc.scalarT, arg.Type)
	}
	addBuffer := func(name string, t ir.ScalarType, rank int, input bool) error {
		if _, dup := sc.buffers[name]; dup {
			return ir.Errorf(ir.KindUnsupportedConstruct, "buffer %q is declared twice", name)
		}
		sc.buffers[name] = len(sc.bufT)
		sc.bufT = append(sc.bufT, t)
		sc.bufRank = append(sc.bufRank, rank)
		sc.bufInput = append(sc.bufInput, input)
		return nil
	}
	for _, arg := range a.buffers {
		if err := addBuffer(arg.Name, arg.Type, arg.Rank, arg.Kind == loopnest.ArgInput); err != nil {
			return nil, err
		}
	}
	for _, arg := range p.Args {
		if err := checkRegion(arg.Name, arg.Region); err != nil {
			return nil, err
		}
	}
	for _, r := range p.Realizations {
		if err := checkRegion(r.Func, r.Region); err != nil {
			return nil, err.InFunc(r.Func)
		}
		if r.Output {
			k, ok := sc.buffers[r.Func]
			if !ok || sc.bufInput[k] || sc.bufT[k] != r.Type {
				return nil, ir.Errorf(ir.KindUnsupportedConstruct,
					"output realization %s: %s has no matching output argument", r.Func, r.Type).InFunc(r.Func)
			}
			continue
		}
		if err := addBuffer(r.Func, r.Type, len(r.Region), false); err != nil {
			return nil, err
		}
		a.temps = append(a.temps, r)
	}

	for _, st := range p.Stages {
		sc.stage = st.Func
		sc.vars = make(map[string]int)
		c := &stageCompiler{scope: sc, pool: a.pool, log: a.log}
		run, err := c.stmts(st.Body)
		if err != nil {
			return nil, err
		}
		a.stages = append(a.stages, compiledStage{name: st.Func, slots: c.nslots, run: run})
	}

	a.log.Debug("emitted artifact",
		"pipeline", p.Name,
		"stages", len(a.stages),
		"intermediates", len(a.temps),
		"workers", a.pool.workers)
	return a, nil
}

// Name returns the pipeline name.
func (a *Artifact) Name() string { return a.program.Name }

// Program returns the loop nest the artifact was emitted from.
func (a *Artifact) Program() *loopnest.Program { return a.program }

// Signature returns every argument in declaration order: scalars and input
// images interleaved as declared, then outputs.
func (a *Artifact) Signature() []loopnest.Arg { return slices.Clone(a.program.Args) }

// Scalars returns the scalar arguments in the order Invoke expects them.
func (a *Artifact) Scalars() []loopnest.Arg { return slices.Clone(a.scalars) }

// Buffers returns the buffer arguments in the order Invoke expects them:
// inputs, then outputs.
func (a *Artifact) Buffers() []loopnest.Arg { return slices.Clone(a.buffers) }

// BindScalars orders named scalar values into the slice Invoke expects.
// Missing scalars take their default; a scalar with no default must be given.
func (a *Artifact) BindScalars(values map[string]Scalar) ([]Scalar, error) {
	out := make([]Scalar, len(a.scalars))
	for i, arg := range a.scalars {
		v, ok := values[arg.Name]
		switch {
		case ok:
			out[i] = v
		case arg.Default != nil:
			out[i] = ScalarOf(*arg.Default)
		default:
			return nil, ir.Errorf(ir.KindSignatureMismatch, "no value for scalar %q and it has no default", arg.Name)
		}
	}
	for name := range values {
		if !slices.ContainsFunc(a.scalars, func(arg loopnest.Arg) bool { return arg.Name == name }) {
			return nil, ir.Errorf(ir.KindSignatureMismatch, "pipeline %s has no scalar %q", a.program.Name, name)
		}
	}
	return out, nil
}

// RunReport describes one invocation.
type RunReport struct {
	ID      string
	Seq     int64
	Elapsed time.Duration
}

// Invoke runs the pipeline. scalars follow Scalars() and buffers follow
// Buffers().
//
// Argument count, types, ranks and regions are checked before any work
// starts; a mismatch is a SignatureMismatch error. Input buffers must cover
// the region the pipeline reads, output buffers must cover exactly the
// declared output region. Outputs are written only after every stage has
// finished, so on error no output buffer is modified.
func (a *Artifact) Invoke(scalars []Scalar, buffers []*Buffer) error {
	_, err := a.Run(context.Background(), scalars, buffers)
	return err
}

// Run is Invoke with a context and a report. Cancelling ctx stops parallel
// chunks that have not started yet.
func (a *Artifact) Run(ctx context.Context, scalars []Scalar, buffers []*Buffer) (*RunReport, error) {
	report := &RunReport{ID: a.ids.Generate(), Seq: a.clock.Next()}
	if err := a.checkSignature(scalars, buffers); err != nil {
		a.log.Debug("rejected invocation", "pipeline", a.program.Name, "run", report.ID, "error", err)
		return report, err
	}

	start := time.Now()
	inv := &invocation{
		ctx:     ctx,
		scalars: make([]Scalar, len(scalars)),
		buffers: make([]*Buffer, 0, len(a.buffers)+len(a.temps)),
	}
	for i, arg := range a.scalars {
		inv.scalars[i] = scalars[i].Convert(arg.Type)
	}
	for i, arg := range a.buffers {
		if arg.Kind == loopnest.ArgInput {
			inv.buffers = append(inv.buffers, buffers[i])
			continue
		}
		inv.buffers = append(inv.buffers, buffers[i].stagingCopy())
	}
	for _, r := range a.temps {
		inv.buffers = append(inv.buffers, NewBufferRegion(r.Type, r.Region))
	}

	for _, st := range a.stages {
		if err := a.runStage(inv, st); err != nil {
			a.log.Error("invocation failed", "pipeline", a.program.Name, "run", report.ID, "stage", st.name, "error", err)
			return report, err
		}
	}

	for i, arg := range a.buffers {
		if arg.Kind == loopnest.ArgOutput {
			buffers[i].commit(inv.buffers[i])
		}
	}
	report.Elapsed = time.Since(start)
	a.log.Debug("invoked pipeline",
		"pipeline", a.program.Name,
		"run", report.ID,
		"seq", report.Seq,
		"elapsed", report.Elapsed)
	return report, nil
}

func (a *Artifact) runStage(inv *invocation, st compiledStage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ExecutionError{Pipeline: a.program.Name, Stage: st.name, Err: fmt.Errorf("%v", r)}
		}
	}()
	fr := &frame{vars: make([]int64, st.slots), inv: inv}
	if err := st.run(fr); err != nil {
		return &ExecutionError{Pipeline: a.program.Name, Stage: st.name, Err: err}
	}
	return nil
}

// checkRegion rejects regions no buffer could be allocated for.
func checkRegion(name string, region []ir.Range) *ir.Error {
	for i, r := range region {
		if r.Extent <= 0 {
			return ir.Errorf(ir.KindUnsupportedConstruct, "%s has non-positive extent %d in dimension %d", name, r.Extent, i)
		}
	}
	return nil
}

func (a *Artifact) checkSignature(scalars []Scalar, buffers []*Buffer) error {
	if len(scalars) != len(a.scalars) {
		return ir.Errorf(ir.KindSignatureMismatch, "pipeline %s takes %d scalars (%s), got %d",
			a.program.Name, len(a.scalars), argNames(a.scalars), len(scalars))
	}
	for i, arg := range a.scalars {
		if scalars[i].Type != arg.Type {
			return ir.Errorf(ir.KindSignatureMismatch, "scalar %q is %s, got %s", arg.Name, arg.Type, scalars[i].Type)
		}
	}

	if len(buffers) != len(a.buffers) {
		return ir.Errorf(ir.KindSignatureMismatch, "pipeline %s takes %d buffers (%s), got %d",
			a.program.Name, len(a.buffers), argNames(a.buffers), len(buffers))
	}
	for i, arg := range a.buffers {
		b := buffers[i]
		switch {
		case b == nil:
			return ir.Errorf(ir.KindSignatureMismatch, "%s buffer %q is nil", arg.Kind, arg.Name)
		case b.Type() != arg.Type:
			return ir.Errorf(ir.KindSignatureMismatch, "%s buffer %q holds %s, got %s", arg.Kind, arg.Name, arg.Type, b.Type())
		case b.Rank() != arg.Rank:
			return ir.Errorf(ir.KindSignatureMismatch, "%s buffer %q has rank %d, got rank %d", arg.Kind, arg.Name, arg.Rank, b.Rank())
		}
		switch arg.Kind {
		case loopnest.ArgInput:
			if arg.Region != nil && !covers(b.Region(), arg.Region) {
				return ir.Errorf(ir.KindSignatureMismatch, "input buffer %q covers %s, pipeline reads %s",
					arg.Name, formatRegion(b.Region()), formatRegion(arg.Region))
			}
		case loopnest.ArgOutput:
			if !slices.Equal(b.Region(), arg.Region) {
				return ir.Errorf(ir.KindSignatureMismatch, "output buffer %q covers %s, want exactly %s",
					arg.Name, formatRegion(b.Region()), formatRegion(arg.Region))
			}
			for j := range i {
				if buffers[j] == b && a.buffers[j].Kind == loopnest.ArgOutput {
					return ir.Errorf(ir.KindSignatureMismatch, "outputs %q and %q share a buffer", a.buffers[j].Name, arg.Name)
				}
			}
		}
	}
	return nil
}

func covers(outer, inner []ir.Range) bool {
	if len(outer) != len(inner) {
		return false
	}
	for d := range outer {
		if inner[d].Min < outer[d].Min || inner[d].Max() > outer[d].Max() {
			return false
		}
	}
	return true
}

func formatRegion(region []ir.Range) string {
	if len(region) == 0 {
		return "scalar"
	}
	parts := make([]string, len(region))
	for i, r := range region {
		parts[i] = r.String()
	}
	return strings.Join(parts, " x ")
}

func argNames(args []loopnest.Arg) string {
	names := make([]string, len(args))
	for i, a := range args {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}
