package domain

import "time"

// ScorerTag identifies what produced a score.
type ScorerTag string

const (
	// ScorerManual marks scores assigned by a human or a deterministic
	// (non-LLM) scorer.
	ScorerManual ScorerTag = "manual"

	// ScorerLLM marks scores produced by an LLM scorer model.
	ScorerLLM ScorerTag = "llm"
)

// Score is a single quality judgment attached to one response. Unique
// by response id; re-scoring overwrites in place (upsert semantics).
type Score struct {
	// ResponseID is the unique key; one score per response.
	ResponseID string `json:"response_id"`

	// Value is the numeric score. Nil when the scorer's structured
	// output could not be parsed; Error then carries the reason.
	Value *float64 `json:"value,omitempty"`

	// Justification is the scorer's free-text reasoning.
	Justification string `json:"justification"`

	// Error records a parse or scoring failure instead of a value.
	Error *string `json:"error,omitempty"`

	// Scorer tags the origin; ScorerModelID is set for ScorerLLM.
	Scorer        ScorerTag `json:"scorer"`
	ScorerModelID string    `json:"scorer_model_id,omitempty"`

	// UpdatedAt records the last upsert.
	UpdatedAt time.Time `json:"updated_at"`
}

// Judgment is a numeric quality judgment attached to one question by one
// judge model. Judgments are additive: each judging pass creates new
// records, unlike the upserted Score.
type Judgment struct {
	// ID uniquely identifies this judgment.
	ID string `json:"id"`

	// QuestionID references the judged question.
	QuestionID string `json:"question_id"`

	// JudgeModelID references the judge model record.
	JudgeModelID string `json:"judge_model_id"`

	// Value is the overall numeric score; nil on parse failure.
	Value *float64 `json:"value,omitempty"`

	// Justification is the judge's reasoning.
	Justification string `json:"justification"`

	// Error records a parse failure instead of a value.
	Error *string `json:"error,omitempty"`

	// CreatedAt records when the judgment was persisted.
	CreatedAt time.Time `json:"created_at"`
}
