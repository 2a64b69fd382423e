package llm

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWordBasedTokenEstimator(t *testing.T) {
	tests := []struct {
		name          string
		tokensPerWord float64
		text          string
		want          int
	}{
		{"empty text", 0.75, "", 0},
		{"single word", 1.0, "hello", 1},
		{"default ratio", 0, "one two three four", 3},
		{"collapses whitespace", 1.0, "  a \t b \n c  ", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewWordBasedTokenEstimator(tt.tokensPerWord)
			assert.Equal(t, tt.want, e.EstimateTokens(tt.text))
		})
	}
}

func TestCharacterBasedTokenEstimator(t *testing.T) {
	e := NewCharacterBasedTokenEstimator(4.0)
	assert.Equal(t, 0, e.EstimateTokens(""))
	assert.Equal(t, 1, e.EstimateTokens("abcd"))
	assert.Equal(t, 3, e.EstimateTokens("hello, world!"))

	// Zero selects the default ratio.
	assert.Equal(t, 1, NewCharacterBasedTokenEstimator(0).EstimateTokens("abcd"))
}

// countingEstimator tracks how often the inner estimator actually runs.
type countingEstimator struct{ calls atomic.Int32 }

func (c *countingEstimator) EstimateTokens(text string) int {
	c.calls.Add(1)
	return len(text)
}

func TestCachingTokenEstimatorMemoizes(t *testing.T) {
	inner := &countingEstimator{}
	e := NewCachingTokenEstimator(inner, 16)

	assert.Equal(t, 5, e.EstimateTokens("hello"))
	assert.Equal(t, 5, e.EstimateTokens("hello"))
	assert.Equal(t, 5, e.EstimateTokens("hello"))
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestCachingTokenEstimatorDropsWhenFull(t *testing.T) {
	inner := &countingEstimator{}
	e := NewCachingTokenEstimator(inner, 2)

	e.EstimateTokens("a")
	e.EstimateTokens("bb")
	e.EstimateTokens("ccc") // cache full, dropped wholesale
	assert.Equal(t, 1, e.EstimateTokens("a"))
	assert.Equal(t, int32(4), inner.calls.Load())
}

func TestCachingTokenEstimatorConcurrent(t *testing.T) {
	e := NewCachingTokenEstimator(&countingEstimator{}, 64)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				assert.Equal(t, 6, e.EstimateTokens("shared"))
			}
		}()
	}
	wg.Wait()
}
