package domain

import "time"

// Question is one immutable prompt inside an eval. The engine only reads
// question text; edits and versioning happen in the management layer.
type Question struct {
	// ID uniquely identifies this question.
	ID string `json:"id"`

	// EvalID references the owning eval.
	EvalID string `json:"eval_id"`

	// Text is the prompt sent to target models.
	Text string `json:"text"`

	// ReferenceAnswer optionally holds a known-good answer used by the
	// deterministic similarity scorer. Empty when no ground truth exists.
	ReferenceAnswer string `json:"reference_answer,omitempty"`

	// Version counts edits made through the management layer.
	Version int `json:"version"`
}

// Eval is a named, ordered collection of questions. Question order is
// insertion order and determines the executor's processing order.
type Eval struct {
	// ID uniquely identifies this eval.
	ID string `json:"id"`

	// Name is the human-readable label.
	Name string `json:"name"`

	// Prompt holds the generation prompt used to author the questions.
	Prompt string `json:"prompt,omitempty"`

	// TemplateID references the template the eval was generated from.
	TemplateID string `json:"template_id,omitempty"`

	// Questions are stored in insertion order.
	Questions []Question `json:"questions"`

	// CreatedAt records when the eval was created.
	CreatedAt time.Time `json:"created_at"`
}

// Model describes a completion target or judge/scorer: where to send
// prompts and how to price the usage afterwards.
type Model struct {
	// ID uniquely identifies this model record.
	ID string `json:"id"`

	// Identifier is the provider-facing model name, also the raw key for
	// pricing lookups (e.g. "gpt-4o", "claude-3-5-sonnet-20241022").
	Identifier string `json:"identifier"`

	// Provider tags which backend handles this model
	// (e.g. "openai", "anthropic", "google").
	Provider string `json:"provider"`

	// BaseURL overrides the provider's default endpoint when set.
	BaseURL string `json:"base_url,omitempty"`

	// CredentialEnv names the environment variable holding the API key.
	// The engine never reads it; the composition root resolves it when
	// constructing backends.
	CredentialEnv string `json:"credential_env,omitempty"`

	// InputUSDPer1M and OutputUSDPer1M optionally carry static per-token
	// costs that take precedence over the price book when both are set.
	InputUSDPer1M  *float64 `json:"input_usd_per_1m,omitempty"`
	OutputUSDPer1M *float64 `json:"output_usd_per_1m,omitempty"`
}
