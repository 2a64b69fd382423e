package domain

import "time"

// Response records the outcome of executing a single (question, model)
// pair within a run. At most one response exists per triple; responses
// are immutable once written except by regeneration flows that delete
// and recreate the owning run's set.
type Response struct {
	// ID uniquely identifies this response.
	ID string `json:"id"`

	// RunID, QuestionID and ModelID form the unique triple.
	RunID      string `json:"run_id"`
	QuestionID string `json:"question_id"`
	ModelID    string `json:"model_id"`

	// Text is the completion text. Nil when the backend call failed.
	Text *string `json:"text,omitempty"`

	// Error records why the pair failed, or a pricing gap on an otherwise
	// successful call. Nil on full success.
	Error *string `json:"error,omitempty"`

	// DurationMS is the backend call's execution time in milliseconds.
	DurationMS int64 `json:"duration_ms"`

	// InputTokens and OutputTokens come from the backend's usage figures
	// when reported, otherwise from the fallback token estimator. Nil
	// when the call failed before any text existed.
	InputTokens  *int `json:"input_tokens,omitempty"`
	OutputTokens *int `json:"output_tokens,omitempty"`

	// CostUSD is set only when the call succeeded and a price resolved.
	CostUSD *float64 `json:"cost_usd,omitempty"`

	// CreatedAt records when the response was persisted.
	CreatedAt time.Time `json:"created_at"`
}

// Succeeded reports whether the pair executed without any recorded
// error. A response carrying a pricing-gap marker is not a success for
// progress accounting even though text exists.
func (r Response) Succeeded() bool { return r.Error == nil }

// HasText reports whether the backend produced completion text,
// regardless of any pricing error recorded alongside it.
func (r Response) HasText() bool { return r.Text != nil && *r.Text != "" }
