package workflow

import (
	"fmt"
)

// CollaboratorError wraps a failure raised by a stage's external
// collaborator. It is recorded into run state at the stage executor
// boundary and never propagates past the orchestrator.
type CollaboratorError struct {
	Stage Stage // the stage whose collaborator failed
	Err   error // the underlying failure
}

// Error implements the error interface.
func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s collaborator failed: %v", e.Stage, e.Err)
}

// Unwrap allows errors.Is and errors.As to reach the underlying error.
func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// NewCollaboratorError wraps err as a collaborator failure for stage.
func NewCollaboratorError(stage Stage, err error) *CollaboratorError {
	return &CollaboratorError{Stage: stage, Err: err}
}
