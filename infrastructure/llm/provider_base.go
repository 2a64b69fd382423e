package llm

import (
	"fmt"
	"net/url"
	"sync"
	"time"
)

// Parameter bounds shared across providers.
const (
	// MinTemperature and MaxTemperature bound the sampling temperature.
	// The upper bound is 2.0 to accommodate providers like Gemini.
	MinTemperature = 0.0
	MaxTemperature = 2.0

	// DefaultMaxTokens is used when a request does not cap completion
	// length.
	DefaultMaxTokens = 1024

	// MinTimeout and MaxTimeout bound per-request timeouts.
	MinTimeout = 1 * time.Second
	MaxTimeout = 10 * time.Minute
)

// BaseProvider provides common, thread-safe model-name management for
// all providers.
type BaseProvider struct {
	mu    sync.RWMutex
	model string
}

// GetModel returns the configured model name. Safe for concurrent use.
func (b *BaseProvider) GetModel() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

// SetModel updates the model name. Safe for concurrent use.
func (b *BaseProvider) SetModel(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = model
}

// RequestOptions is the standardized per-request parameter set passed
// through the middleware chain to providers.
type RequestOptions struct {
	// Model overrides the client's configured model when non-empty.
	Model string

	// MaxTokens caps completion length. Zero means DefaultMaxTokens.
	MaxTokens int

	// Temperature controls output randomness. Nil means the provider
	// default.
	Temperature *float64

	// System provides optional system-prompt context.
	System string

	// ForceJSON requests structured JSON output where the provider
	// supports a JSON response mode. Providers without one ignore it.
	ForceJSON bool
}

// withDefaults fills unset fields from the provider's configuration.
func (o RequestOptions) withDefaults(defaultModel string) RequestOptions {
	if o.Model == "" {
		o.Model = defaultModel
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	return o
}

// ClampFloat64 constrains val to the inclusive [min, max] range.
func ClampFloat64(val, min, max float64) float64 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// ValidateBaseURL validates and normalizes a base URL. An empty string
// is valid and signifies the provider default.
func ValidateBaseURL(baseURL string) (string, error) {
	if baseURL == "" {
		return "", nil
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("URL scheme must be http or https, got: %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("URL must include a host")
	}
	return parsed.String(), nil
}

// ValidateTimeout clamps a timeout to the [MinTimeout, MaxTimeout]
// range. Zero or negative returns zero, meaning the system default.
func ValidateTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 0
	}
	if timeout < MinTimeout {
		return MinTimeout
	}
	if timeout > MaxTimeout {
		return MaxTimeout
	}
	return timeout
}
