package ports

import (
	"context"
	"time"

	"github.com/ahrav/go-evalrun/internal/domain"
)

// CompletionOptions carries the per-call knobs the pipelines set.
// A nil Temperature means the provider default.
type CompletionOptions struct {
	// Temperature controls output randomness when set (0.0-2.0).
	Temperature *float64

	// MaxTokens caps the completion length. Zero means the backend
	// default.
	MaxTokens int

	// ForceJSON asks the provider for structured JSON output when it
	// supports a JSON response mode. Providers without one ignore it;
	// callers must still parse defensively.
	ForceJSON bool
}

// Completion is the successful result of one backend call. Text and a
// call error are mutually exclusive: content-policy blocks surface as
// an error with no completion returned.
type Completion struct {
	// Text is the generated completion.
	Text string

	// InputTokens and OutputTokens are the provider's own usage figures.
	// Zero means the provider omitted usage and the caller should fall
	// back to a TokenEstimator.
	InputTokens  int
	OutputTokens int

	// Duration is the wall-clock time of the call.
	Duration time.Duration
}

// ModelBackend dispatches a prompt to the provider identified by the
// model descriptor and returns the completion or a structured failure.
// Implementations handle authentication, rate limiting, retries and
// timeouts; the engine sees only the contract.
type ModelBackend interface {
	Complete(ctx context.Context, model domain.Model, prompt string, opts CompletionOptions) (Completion, error)
}

// TokenEstimator is the deterministic fallback counter used when a
// backend does not report usage. Estimates feed cost computation only;
// they never gate a request.
type TokenEstimator interface {
	// EstimateTokens returns an approximate token count for the text.
	EstimateTokens(text string) int
}
