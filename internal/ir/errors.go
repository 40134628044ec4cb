package ir

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind identifies one terminal compilation or invocation failure.
type ErrorKind string

const (
	// Graph construction.
	KindRedefinition     ErrorKind = "REDEFINITION"
	KindUndeclaredDomain ErrorKind = "UNDECLARED_DOMAIN"
	KindCyclicDependency ErrorKind = "CYCLIC_DEPENDENCY"
	KindType             ErrorKind = "TYPE_ERROR"

	// Schedule.
	KindUnknownScheduleVariable ErrorKind = "UNKNOWN_SCHEDULE_VARIABLE"
	KindReorderMismatch         ErrorKind = "REORDER_MISMATCH"
	KindConflictingStrategy     ErrorKind = "CONFLICTING_STRATEGY"
	KindInvalidParallelInner    ErrorKind = "INVALID_PARALLEL_INNER_LOOP"

	// Lowering.
	KindUnboundedDomain ErrorKind = "UNBOUNDED_DOMAIN"

	// Emission.
	KindUnsupportedConstruct ErrorKind = "UNSUPPORTED_CONSTRUCT"

	// Invocation.
	KindSignatureMismatch ErrorKind = "SIGNATURE_MISMATCH"
)

// Category groups error kinds by the phase that detects them.
type Category string

const (
	CategoryGraphConstruction Category = "GraphConstructionError"
	CategorySchedule          Category = "ScheduleError"
	CategoryLowering          Category = "LoweringError"
	CategoryEmission          Category = "EmissionError"
	CategoryInvocation        Category = "InvocationError"
)

// Category returns the phase category of k.
func (k ErrorKind) Category() Category {
	switch k {
	case KindRedefinition, KindUndeclaredDomain, KindCyclicDependency, KindType:
		return CategoryGraphConstruction
	case KindUnknownScheduleVariable, KindReorderMismatch, KindConflictingStrategy, KindInvalidParallelInner:
		return CategorySchedule
	case KindUnboundedDomain:
		return CategoryLowering
	case KindUnsupportedConstruct:
		return CategoryEmission
	case KindSignatureMismatch:
		return CategoryInvocation
	default:
		return ""
	}
}

// Error is the single structured error type for every kind in the taxonomy.
//
// Func, Var and Directive carry the context needed to pinpoint the cause;
// Cycle lists the function names of a dependency cycle, first name repeated
// at the end.
type Error struct {
	Kind      ErrorKind
	Func      string
	Var       string
	Directive string
	Cycle     []string
	Message   string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var ctx []string
	if e.Func != "" {
		ctx = append(ctx, "func="+e.Func)
	}
	if e.Var != "" {
		ctx = append(ctx, "var="+e.Var)
	}
	if e.Directive != "" {
		ctx = append(ctx, "directive="+e.Directive)
	}
	if len(e.Cycle) > 0 {
		ctx = append(ctx, "cycle="+strings.Join(e.Cycle, " → "))
	}
	if len(ctx) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, strings.Join(ctx, ", "))
}

// Is matches another *Error with the same Kind, so callers can write
// errors.Is(err, &ir.Error{Kind: ir.KindCyclicDependency}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Errorf builds an *Error of the given kind.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// InFunc sets the function context and returns e.
func (e *Error) InFunc(name string) *Error {
	e.Func = name
	return e
}

// OnVar sets the variable context and returns e.
func (e *Error) OnVar(name string) *Error {
	e.Var = name
	return e
}

// WithDirective sets the directive context and returns e.
func (e *Error) WithDirective(d Directive) *Error {
	if d != nil {
		e.Directive = d.String()
	}
	return e
}

// KindOf returns the ErrorKind of err, or "" if err is not an *Error.
// Uses errors.As to handle wrapped errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
