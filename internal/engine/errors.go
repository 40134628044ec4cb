package engine

import (
	"errors"
	"fmt"
)

// ExecutionError reports a failure while a stage was running: a panic inside
// the stage or in one of its parallel chunks. Caller output buffers are left
// untouched when it is returned.
type ExecutionError struct {
	Pipeline string
	Stage    string
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("pipeline %s: stage %s: %v", e.Pipeline, e.Stage, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// IsExecutionError reports whether err is an ExecutionError.
// Uses errors.As to handle wrapped errors.
func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}
