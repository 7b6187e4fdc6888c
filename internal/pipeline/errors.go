package pipeline

import "fmt"

// VerificationError reports that a requested transformation did not
// complete. It is always fatal: the pipeline refuses to substitute an
// unprocessed image for a failed step, so the caller gets an explicit
// failure instead of silently degraded input.
type VerificationError struct {
	Step string
}

// Error implements the error interface.
func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification gate: step %q did not complete, cannot proceed without it", e.Step)
}

// StageError wraps a failure with the name of the pipeline stage it
// occurred in.
type StageError struct {
	Stage string
	Err   error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StageError) Unwrap() error {
	return e.Err
}
