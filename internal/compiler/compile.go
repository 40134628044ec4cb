package compiler

import (
	"io"
	"log/slog"

	"github.com/roach88/nestc/internal/engine"
	"github.com/roach88/nestc/internal/ir"
)

// Option configures Lower and Compile.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	workers int
	emit    []engine.Option
}

// WithLogger sets the logger for lowering and emission diagnostics.
// Default: logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithWorkers sets the size of the compiled artifact's worker pool.
// Zero or a negative value means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithEmitOptions passes extra options to engine.Emit, such as run ID
// generators or a sequence start.
func WithEmitOptions(opts ...engine.Option) Option {
	return func(o *options) {
		o.emit = append(o.emit, opts...)
	}
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// Compile validates, lowers and emits g. It is a pure function of the graph
// and its schedules: the returned artifact keeps no reference to g.
//
// Errors are *ir.Error values of the taxonomy kinds.
func Compile(g *ir.Graph, opts ...Option) (*engine.Artifact, error) {
	o := newOptions(opts)
	p, err := Lower(g, opts...)
	if err != nil {
		return nil, err
	}
	emit := append([]engine.Option{engine.WithWorkers(o.workers), engine.WithLogger(o.logger)}, o.emit...)
	art, err := engine.Emit(p, emit...)
	if err != nil {
		return nil, err
	}
	o.logger.Info("compiled pipeline", "pipeline", g.Name, "stages", len(p.Stages))
	return art, nil
}
