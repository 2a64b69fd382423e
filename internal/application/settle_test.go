package application

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettleAllCollectsEveryOutcome(t *testing.T) {
	outcomes := settleAll(context.Background(), 5, func(_ context.Context, i int) (int, error) {
		if i%2 == 1 {
			return 0, fmt.Errorf("task %d failed", i)
		}
		return i * 10, nil
	})

	require.Len(t, outcomes, 5)
	for i, o := range outcomes {
		if i%2 == 1 {
			assert.Error(t, o.err)
			assert.ErrorContains(t, o.err, fmt.Sprintf("task %d", i))
		} else {
			require.NoError(t, o.err)
			assert.Equal(t, i*10, o.value)
		}
	}
}

// One task failing must not cancel or otherwise affect its siblings,
// even slower ones.
func TestSettleAllFailureDoesNotCancelSiblings(t *testing.T) {
	var completed atomic.Int32

	outcomes := settleAll(context.Background(), 3, func(ctx context.Context, i int) (string, error) {
		if i == 0 {
			return "", errors.New("immediate failure")
		}
		select {
		case <-time.After(50 * time.Millisecond):
			completed.Add(1)
			return "done", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})

	assert.Error(t, outcomes[0].err)
	require.NoError(t, outcomes[1].err)
	require.NoError(t, outcomes[2].err)
	assert.Equal(t, int32(2), completed.Load())
}

func TestSettleAllZeroTasks(t *testing.T) {
	outcomes := settleAll(context.Background(), 0, func(_ context.Context, _ int) (int, error) {
		t.Fatal("task should never run")
		return 0, nil
	})
	assert.Empty(t, outcomes)
}
