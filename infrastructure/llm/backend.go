package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ahrav/go-evalrun/internal/domain"
	"github.com/ahrav/go-evalrun/internal/ports"
)

var _ ports.ModelBackend = (*Dispatcher)(nil)

// Credentials maps credential reference names (the env-var names stored
// on model records) to resolved secrets. The composition root reads the
// process environment once and passes the result here; nothing inside
// the engine touches ambient state.
type Credentials map[string]string

// DispatcherConfig configures the model-descriptor router.
type DispatcherConfig struct {
	// Credentials resolves model credential references to API keys.
	Credentials Credentials

	// DefaultTimeout caps each backend call. Zero disables the
	// per-call timeout, which leaves hung calls unbounded.
	DefaultTimeout time.Duration

	// Middleware is applied to every client the dispatcher builds, in
	// order, outermost first.
	Middleware []Middleware

	// Metrics, when set, adds per-request metrics collection labeled by
	// each client's provider, outside the configured middleware.
	Metrics ports.MetricsCollector

	// Estimator overrides the fallback token counter on built clients.
	Estimator ports.TokenEstimator
}

// Dispatcher implements ports.ModelBackend by routing model descriptors
// to lazily constructed, cached per-model clients. It is safe for
// concurrent use; a run's per-question batch dispatches through one
// dispatcher from multiple goroutines.
type Dispatcher struct {
	config DispatcherConfig

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewDispatcher creates a dispatcher with the given configuration.
func NewDispatcher(config DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		config:  config,
		clients: make(map[string]*Client),
	}
}

// Complete routes the prompt to the provider named by the model
// descriptor and returns the completion with usage and duration.
func (d *Dispatcher) Complete(
	ctx context.Context,
	model domain.Model,
	prompt string,
	opts ports.CompletionOptions,
) (ports.Completion, error) {
	client, err := d.clientFor(model)
	if err != nil {
		return ports.Completion{}, ports.NewBackendError(model.Identifier, "complete", err)
	}

	completion, err := client.Complete(ctx, prompt, RequestOptions{
		Model:       model.Identifier,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		ForceJSON:   opts.ForceJSON,
	})
	if err != nil {
		return ports.Completion{Duration: completion.Duration},
			ports.NewBackendError(model.Identifier, "complete", err)
	}

	return completion, nil
}

// clientFor returns the cached client for a model descriptor, building
// one on first use. The cache key includes the base URL so the same
// identifier pointed at two endpoints yields two clients.
func (d *Dispatcher) clientFor(model domain.Model) (*Client, error) {
	key := fmt.Sprintf("%s/%s/%s", model.Provider, model.Identifier, model.BaseURL)

	d.mu.RLock()
	client, ok := d.clients[key]
	d.mu.RUnlock()
	if ok {
		return client, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Re-check under the write lock; another goroutine in the same
	// batch may have built it.
	if client, ok := d.clients[key]; ok {
		return client, nil
	}

	apiKey, ok := d.config.Credentials[model.CredentialEnv]
	if !ok || apiKey == "" {
		return nil, fmt.Errorf("no credential resolved for reference %q: %w",
			model.CredentialEnv, ports.ErrAuthenticationFailed)
	}

	middleware := d.config.Middleware
	if d.config.Metrics != nil {
		middleware = append([]Middleware{MetricsMiddleware(model.Provider, d.config.Metrics)}, middleware...)
	}

	client, err := NewClient(model.Provider, ClientConfig{
		APIKey:     apiKey,
		Model:      model.Identifier,
		BaseURL:    model.BaseURL,
		Timeout:    d.config.DefaultTimeout,
		Estimator:  d.config.Estimator,
		Middleware: middleware,
	})
	if err != nil {
		return nil, err
	}

	d.clients[key] = client
	return client, nil
}
