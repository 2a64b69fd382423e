package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for precondition and state-machine violations.
var (
	// ErrEvalNotFound indicates the referenced eval does not exist.
	ErrEvalNotFound = errors.New("eval not found")

	// ErrRunNotFound indicates the referenced run does not exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrModelNotFound indicates one or more requested model ids do not
	// resolve to stored model records.
	ErrModelNotFound = errors.New("model not found")

	// ErrNoQuestions indicates the eval exists but holds no questions.
	ErrNoQuestions = errors.New("eval has no questions")

	// ErrInvalidTransition indicates an illegal run status move.
	ErrInvalidTransition = errors.New("invalid run status transition")

	// ErrTokenCountFailed indicates the fallback token counter failed
	// for a pair; its token counts and cost stay unset.
	ErrTokenCountFailed = errors.New("token counting failed")

	// ErrPricingUnavailable indicates no price snapshot resolved for a
	// model. Recorded on the response, not treated as a backend failure.
	ErrPricingUnavailable = errors.New("pricing data not found")
)

// PreconditionError wraps a run-aborting failure detected before any
// pair was dispatched. The run flips straight to FAILED with zero
// responses when one of these occurs.
type PreconditionError struct {
	// RunID identifies the run that was aborted.
	RunID string

	// Err is the underlying sentinel (ErrEvalNotFound, ErrNoQuestions,
	// ErrModelNotFound) or a store failure.
	Err error
}

// Error implements the error interface.
func (e *PreconditionError) Error() string {
	return fmt.Sprintf("run %s precondition failed: %v", e.RunID, e.Err)
}

// Unwrap returns the underlying error.
func (e *PreconditionError) Unwrap() error { return e.Err }
