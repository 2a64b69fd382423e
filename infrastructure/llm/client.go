// Package llm implements the model backend consumed by the evaluation
// engine. It abstracts multiple completion providers (OpenAI, Anthropic,
// Google) behind a common interface and layers cross-cutting concerns
// through a middleware chain: timeouts, retries, rate limiting, circuit
// breaking, metrics, and tracing.
//
// Architecture:
//   - CoreLLM is the minimal provider contract
//   - Middleware wraps CoreLLM values for composition
//   - Client adds duration measurement and token-count fallback
//   - Dispatcher routes domain.Model descriptors to per-model clients
//     and implements ports.ModelBackend
//
// Basic usage:
//
//	client, err := llm.NewClient("openai", llm.ClientConfig{
//	    APIKey: key,
//	    Model:  "gpt-4o",
//	    Middleware: []llm.Middleware{
//	        llm.TimeoutMiddleware(60 * time.Second),
//	        llm.RetryMiddleware(2, time.Second, 30*time.Second),
//	    },
//	})
//	result, err := client.Complete(ctx, "Hello", llm.RequestOptions{})
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/ahrav/go-evalrun/internal/ports"
)

// CoreLLM defines the minimal interface a provider must implement.
// The middleware system wraps any conforming implementation.
type CoreLLM interface {
	// DoRequest sends a prompt to the provider and returns the response
	// text plus input/output token counts. A zero token count means the
	// provider omitted usage figures.
	DoRequest(ctx context.Context, prompt string, opts RequestOptions) (response string, tokensIn, tokensOut int, err error)

	// GetModel returns the currently configured model name.
	GetModel() string

	// SetModel updates the model for subsequent requests.
	SetModel(model string)
}

// Middleware wraps a CoreLLM to add cross-cutting functionality without
// modifying provider logic.
type Middleware func(CoreLLM) CoreLLM

// ClientConfig holds all configuration for creating a client.
type ClientConfig struct {
	// APIKey authenticates requests to the provider. For the Google
	// provider this may instead be a path to a credentials file.
	APIKey string

	// Model specifies which model to use for requests.
	Model string

	// BaseURL overrides the provider's default endpoint when set.
	BaseURL string

	// Timeout caps individual request duration. Zero means no timeout.
	Timeout time.Duration

	// Estimator provides the fallback token counter used when the
	// provider omits usage. Defaults to a character-based estimator.
	Estimator ports.TokenEstimator

	// Middleware is applied in order; the first entry is outermost.
	Middleware []Middleware
}

// Client wraps a provider with middleware, duration measurement, and
// token-count fallback. It is safe for concurrent use.
type Client struct {
	core      CoreLLM
	estimator ports.TokenEstimator
}

// NewClient assembles the middleware chain around the named provider
// and returns a ready-to-use client.
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	factory, ok := providerFactories[providerType]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", providerType)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	// Apply middleware in reverse order so the first is outermost.
	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}

	estimator := config.Estimator
	if estimator == nil {
		estimator = NewCharacterBasedTokenEstimator(0)
	}

	return &Client{core: core, estimator: estimator}, nil
}

// Complete sends a prompt and returns the completion with usage figures
// and wall-clock duration. Token counts the provider omitted are filled
// from the fallback estimator.
func (c *Client) Complete(ctx context.Context, prompt string, opts RequestOptions) (ports.Completion, error) {
	start := time.Now()
	text, tokensIn, tokensOut, err := c.core.DoRequest(ctx, prompt, opts)
	elapsed := time.Since(start)
	if err != nil {
		return ports.Completion{Duration: elapsed}, err
	}

	if tokensIn == 0 {
		tokensIn = c.estimator.EstimateTokens(prompt)
	}
	if tokensOut == 0 {
		tokensOut = c.estimator.EstimateTokens(text)
	}

	return ports.Completion{
		Text:         text,
		InputTokens:  tokensIn,
		OutputTokens: tokensOut,
		Duration:     elapsed,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.core.GetModel() }

// ProviderFactory creates a CoreLLM implementation from configuration.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

// providerFactories is the provider registry. Providers register
// themselves in init so new ones can be added without touching the
// client code.
var providerFactories = map[string]ProviderFactory{}

// RegisterProviderFactory registers a custom provider factory under the
// given type name.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	providerFactories[providerType] = factory
}
