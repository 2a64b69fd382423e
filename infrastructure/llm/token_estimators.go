package llm

import (
	"strings"
	"sync"
)

// WordBasedTokenEstimator estimates tokens from word count. Fast and
// simple; best when speed matters more than precision.
type WordBasedTokenEstimator struct{ TokensPerWord float64 }

// NewWordBasedTokenEstimator creates a word-based estimator. Typical
// tokensPerWord values: 0.75 for English prose.
func NewWordBasedTokenEstimator(tokensPerWord float64) *WordBasedTokenEstimator {
	if tokensPerWord <= 0 {
		tokensPerWord = 0.75
	}
	return &WordBasedTokenEstimator{TokensPerWord: tokensPerWord}
}

// EstimateTokens splits on whitespace and applies the configured ratio.
func (e *WordBasedTokenEstimator) EstimateTokens(text string) int {
	words := strings.Fields(text)
	return int(float64(len(words)) * e.TokensPerWord)
}

// CharacterBasedTokenEstimator estimates tokens from character count.
// Reasonable for prose; less accurate for code or heavy punctuation.
type CharacterBasedTokenEstimator struct{ charsPerToken float64 }

// NewCharacterBasedTokenEstimator creates a character-based estimator.
// Typical charactersPerToken values: 4.0 for GPT-family models. Zero or
// negative selects the 4.0 default.
func NewCharacterBasedTokenEstimator(charactersPerToken float64) *CharacterBasedTokenEstimator {
	if charactersPerToken <= 0 {
		charactersPerToken = 4.0
	}
	return &CharacterBasedTokenEstimator{charsPerToken: charactersPerToken}
}

// EstimateTokens divides character count by the configured ratio.
func (e *CharacterBasedTokenEstimator) EstimateTokens(text string) int {
	return int(float64(len(text)) / e.charsPerToken)
}

// CachingTokenEstimator memoizes another estimator's results. The run
// executor re-counts the same question text once per model, so caching
// pays for itself inside a single batch.
type CachingTokenEstimator struct {
	mu       sync.RWMutex
	inner    interface{ EstimateTokens(string) int }
	cache    map[string]int
	maxItems int
}

// NewCachingTokenEstimator wraps an estimator with an LRU-less bounded
// cache. When the cache fills it is dropped wholesale rather than
// evicted piecemeal; estimation stays correct either way.
func NewCachingTokenEstimator(inner interface{ EstimateTokens(string) int }, maxItems int) *CachingTokenEstimator {
	if maxItems <= 0 {
		maxItems = 1024
	}
	return &CachingTokenEstimator{
		inner:    inner,
		cache:    make(map[string]int, maxItems),
		maxItems: maxItems,
	}
}

// EstimateTokens returns the cached count when present, otherwise
// delegates and stores the result.
func (e *CachingTokenEstimator) EstimateTokens(text string) int {
	e.mu.RLock()
	if count, ok := e.cache[text]; ok {
		e.mu.RUnlock()
		return count
	}
	e.mu.RUnlock()

	count := e.inner.EstimateTokens(text)

	e.mu.Lock()
	if len(e.cache) >= e.maxItems {
		e.cache = make(map[string]int, e.maxItems)
	}
	e.cache[text] = count
	e.mu.Unlock()

	return count
}
