package cli

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/roach88/nestc/internal/compiler"
	"github.com/roach88/nestc/internal/ir"
)

// Exit codes for CLI commands. Pipeline errors exit with a code per error
// category so scripts can tell a bad schedule from a bad invocation.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Scenario failures
	ExitCommandError = 2 // Command error (invalid paths, bad flags, unreadable files)

	ExitGraphError      = 3
	ExitScheduleError   = 4
	ExitLoweringError   = 5
	ExitEmissionError   = 6
	ExitInvocationError = 7
)

// Error codes for CLI responses. E0xx are command errors, E2xx pipeline
// errors by kind.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeBadFlag     = "E002" // Malformed flag value
	ErrCodeLoadFailed  = "E004" // Pipeline or artifact file could not be loaded
	ErrCodeNotFound    = "E005" // Path, generator or record not found
	ErrCodeBuildFailed = "E006" // Pipeline file content is invalid
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeStore       = "E008" // Registry error

	ErrCodeRedefinition         = "E201"
	ErrCodeUndeclaredDomain     = "E202"
	ErrCodeCyclicDependency     = "E203"
	ErrCodeType                 = "E204"
	ErrCodeUnknownScheduleVar   = "E211"
	ErrCodeReorderMismatch      = "E212"
	ErrCodeConflictingStrategy  = "E213"
	ErrCodeInvalidParallelInner = "E214"
	ErrCodeUnboundedDomain      = "E221"
	ErrCodeUnsupported          = "E231"
	ErrCodeSignatureMismatch    = "E241"
)

var kindCodes = map[ir.ErrorKind]string{
	ir.KindRedefinition:            ErrCodeRedefinition,
	ir.KindUndeclaredDomain:        ErrCodeUndeclaredDomain,
	ir.KindCyclicDependency:        ErrCodeCyclicDependency,
	ir.KindType:                    ErrCodeType,
	ir.KindUnknownScheduleVariable: ErrCodeUnknownScheduleVar,
	ir.KindReorderMismatch:         ErrCodeReorderMismatch,
	ir.KindConflictingStrategy:     ErrCodeConflictingStrategy,
	ir.KindInvalidParallelInner:    ErrCodeInvalidParallelInner,
	ir.KindUnboundedDomain:         ErrCodeUnboundedDomain,
	ir.KindUnsupportedConstruct:    ErrCodeUnsupported,
	ir.KindSignatureMismatch:       ErrCodeSignatureMismatch,
}

var categoryExits = map[ir.Category]int{
	ir.CategoryGraphConstruction: ExitGraphError,
	ir.CategorySchedule:          ExitScheduleError,
	ir.CategoryLowering:          ExitLoweringError,
	ir.CategoryEmission:          ExitEmissionError,
	ir.CategoryInvocation:        ExitInvocationError,
}

// Text markers. fatih/color disables them when stdout is not a terminal.
var (
	okMark   = color.New(color.FgGreen).Sprint("✓")
	failMark = color.New(color.FgRed).Sprint("✗")
	warnMark = color.New(color.FgYellow).Sprint("!")
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Classify maps an error to its response code and exit code. Pipeline
// errors map by kind and category, pipeline file errors to E006.
func Classify(err error) (code string, exit int) {
	var pe *ir.Error
	if errors.As(err, &pe) {
		if c, ok := kindCodes[pe.Kind]; ok {
			return c, categoryExits[pe.Kind.Category()]
		}
	}
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		return ErrCodeBuildFailed, ExitCommandError
	}
	var fe *FlagError
	if errors.As(err, &fe) {
		return ErrCodeBadFlag, ExitCommandError
	}
	var nf *NotFoundError
	if errors.As(err, &nf) || errors.Is(err, os.ErrNotExist) || errors.Is(err, sql.ErrNoRows) {
		return ErrCodeNotFound, ExitCommandError
	}
	var pse *compiler.ParseError
	if errors.As(err, &pse) {
		return ErrCodeBuildFailed, ExitCommandError
	}
	return ErrCodeGeneric, ExitCommandError
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E203", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "%s Error [%s]: %s\n", failMark, code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and returns the ExitError the command should return.
// Pipeline errors carry their structured context as details.
func (f *OutputFormatter) Fail(message string, err error) error {
	code, exit := Classify(err)
	var details any
	var pe *ir.Error
	if errors.As(err, &pe) {
		details = errorDetails(pe)
	}
	_ = f.Error(code, fmt.Sprintf("%s: %v", message, err), details)
	return WrapExitError(exit, fmt.Sprintf("%s: %s", code, message), err)
}

// FailCode reports a command error with an explicit code.
func (f *OutputFormatter) FailCode(code string, exit int, message string) error {
	_ = f.Error(code, message, nil)
	return NewExitError(exit, fmt.Sprintf("%s: %s", code, message))
}

func errorDetails(e *ir.Error) map[string]any {
	d := map[string]any{
		"kind":     string(e.Kind),
		"category": string(e.Kind.Category()),
	}
	if e.Func != "" {
		d["func"] = e.Func
	}
	if e.Var != "" {
		d["var"] = e.Var
	}
	if e.Directive != "" {
		d["directive"] = e.Directive
	}
	if len(e.Cycle) > 0 {
		d["cycle"] = e.Cycle
	}
	return d
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
