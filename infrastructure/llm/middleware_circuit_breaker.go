package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen indicates that the circuit breaker rejected a request
// before it reached the provider.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState represents the current state of a circuit breaker.
type CircuitBreakerState int

const (
	// StateClosed allows all requests through; the default when the
	// provider is healthy.
	StateClosed CircuitBreakerState = iota

	// StateOpen rejects requests immediately after too many consecutive
	// failures.
	StateOpen

	// StateHalfOpen allows one probe request after the cooldown to test
	// recovery.
	StateHalfOpen
)

// circuitBreakerLLM trips open after consecutive provider failures and
// probes for recovery after a cooldown, protecting the rest of a run
// from a provider that is hard down.
type circuitBreakerLLM struct {
	next CoreLLM

	mu           sync.Mutex
	state        CircuitBreakerState
	failureCount int
	maxFailures  int
	cooldown     time.Duration
	lastFailure  time.Time
}

// CircuitBreakerMiddleware creates middleware that opens after
// maxFailures consecutive errors and stays open for cooldown before
// testing recovery.
func CircuitBreakerMiddleware(maxFailures int, cooldown time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &circuitBreakerLLM{
			next:        next,
			state:       StateClosed,
			maxFailures: maxFailures,
			cooldown:    cooldown,
		}
	}
}

// DoRequest executes the request through the breaker. When the circuit
// is open it returns ErrCircuitOpen immediately.
func (cb *circuitBreakerLLM) DoRequest(ctx context.Context, prompt string, opts RequestOptions) (string, int, int, error) {
	if err := cb.allow(); err != nil {
		return "", 0, 0, err
	}

	response, tokensIn, tokensOut, err := cb.next.DoRequest(ctx, prompt, opts)
	cb.record(err)
	return response, tokensIn, tokensOut, err
}

func (cb *circuitBreakerLLM) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if time.Since(cb.lastFailure) < cb.cooldown {
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
	}
	return nil
}

func (cb *circuitBreakerLLM) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.state = StateClosed
		cb.failureCount = 0
		return
	}

	cb.failureCount++
	cb.lastFailure = time.Now()
	if cb.state == StateHalfOpen || cb.failureCount >= cb.maxFailures {
		cb.state = StateOpen
	}
}

// GetModel returns the model name from the wrapped implementation.
func (cb *circuitBreakerLLM) GetModel() string { return cb.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (cb *circuitBreakerLLM) SetModel(m string) { cb.next.SetModel(m) }
