package application

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// outcome captures one settled task: a value or a failure reason,
// never both.
type outcome[T any] struct {
	value T
	err   error
}

// settleAll runs one task per index concurrently and returns a
// fixed-size slice of outcomes. Unlike errgroup's usual error
// propagation, a failing task never cancels or affects its siblings;
// every task runs to completion and reports independently.
func settleAll[T any](ctx context.Context, n int, task func(ctx context.Context, i int) (T, error)) []outcome[T] {
	outcomes := make([]outcome[T], n)

	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			value, err := task(ctx, i)
			// Each goroutine writes only its own slot; no lock needed.
			outcomes[i] = outcome[T]{value: value, err: err}
			return nil
		})
	}
	// Tasks always return nil, so Wait only joins.
	_ = g.Wait()

	return outcomes
}
