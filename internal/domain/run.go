// Package domain contains the core entities of the evaluation engine:
// evals, questions, models, runs, responses, scores, judgments, and the
// pure rules that govern them (run status transitions and cost math).
// The package has no dependencies on storage or LLM providers.
package domain

import (
	"fmt"
	"time"
)

// RunStatus represents the lifecycle state of an evaluation run.
// Statuses advance monotonically; a run never moves backward and
// never leaves a terminal state.
type RunStatus string

const (
	// RunStatusPending indicates the run has been created but execution
	// has not started.
	RunStatusPending RunStatus = "PENDING"

	// RunStatusRunning indicates the executor has picked up the run.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusCompleted indicates every question was processed and no
	// errors were recorded.
	RunStatusCompleted RunStatus = "COMPLETED"

	// RunStatusFailed indicates the run finished with at least one error,
	// or aborted before any work started.
	RunStatusFailed RunStatus = "FAILED"
)

// IsTerminal reports whether the status is one of the two final states.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// IsValid reports whether the status is one of the four persisted values.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a run may move from s to next.
// Valid paths are PENDING -> RUNNING -> {COMPLETED, FAILED} plus
// PENDING -> FAILED for runs aborted by precondition checks.
func (s RunStatus) CanTransition(next RunStatus) bool {
	switch s {
	case RunStatusPending:
		return next == RunStatusRunning || next == RunStatusFailed
	case RunStatusRunning:
		return next == RunStatusCompleted || next == RunStatusFailed
	default:
		// Terminal states never regress.
		return false
	}
}

// EvalRun represents one execution attempt of an Eval against a set of
// models. The executor owns all status transitions after creation.
type EvalRun struct {
	// ID uniquely identifies this run.
	ID string `json:"id"`

	// EvalID references the eval whose questions are executed.
	EvalID string `json:"eval_id"`

	// Status is the current lifecycle state.
	Status RunStatus `json:"status"`

	// CreatedAt records when the run row was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt records the last status transition.
	UpdatedAt time.Time `json:"updated_at"`
}

// Transition advances the run to the next status, enforcing the
// monotonic state machine. It returns ErrInvalidTransition wrapped with
// both states when the move is illegal.
func (r *EvalRun) Transition(next RunStatus, now time.Time) error {
	if !r.Status.CanTransition(next) {
		return fmt.Errorf("run %s: %s -> %s: %w", r.ID, r.Status, next, ErrInvalidTransition)
	}
	r.Status = next
	r.UpdatedAt = now
	return nil
}

// RunProgress summarizes how far a run has advanced, derived from the
// persisted responses rather than executor-internal counters so that
// external pollers observe monotonic values.
type RunProgress struct {
	// RunID identifies the run this snapshot belongs to.
	RunID string `json:"run_id"`

	// Status is the run status at snapshot time.
	Status RunStatus `json:"status"`

	// TotalQuestions is the number of questions in the owning eval.
	TotalQuestions int `json:"total_questions"`

	// TotalResponses is the number of responses persisted so far,
	// across all models.
	TotalResponses int `json:"total_responses"`

	// Succeeded counts responses with no error recorded.
	Succeeded int `json:"succeeded"`

	// Failed counts responses whose error field is set, regardless of
	// whether text or cost was produced.
	Failed int `json:"failed"`

	// Percent is questions-with-responses over total questions, 0-100.
	Percent float64 `json:"percent"`
}

// RunResults is the question/response/score join returned to status
// pollers once responses exist.
type RunResults struct {
	Run       EvalRun     `json:"run"`
	Questions []Question  `json:"questions"`
	Responses []Response  `json:"responses"`
	Scores    []Score     `json:"scores"`
	Progress  RunProgress `json:"progress"`
}
