package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-evalrun/infrastructure/storage"
	"github.com/ahrav/go-evalrun/internal/domain"
	"github.com/ahrav/go-evalrun/internal/testutils"
)

// stubEstimator returns a fixed token count for any text.
type stubEstimator struct{ count int }

func (s stubEstimator) EstimateTokens(string) int { return s.count }

// panicEstimator exercises the degraded path for a throwing counter.
type panicEstimator struct{}

func (panicEstimator) EstimateTokens(string) int { panic("boom") }

func newTestExecutor(t *testing.T, f *testutils.Fixture, backend *testutils.MockBackend) *Executor {
	t.Helper()
	executor, err := NewExecutor(f.Store, backend, stubEstimator{count: 7}, nil, nil, ExecutorConfig{})
	require.NoError(t, err)
	return executor
}

func TestNewExecutorValidation(t *testing.T) {
	f := testutils.NewFixture(1, 1)
	backend := testutils.NewMockBackend()

	_, err := NewExecutor(nil, backend, stubEstimator{}, nil, nil, ExecutorConfig{})
	assert.Error(t, err)

	_, err = NewExecutor(f.Store, nil, stubEstimator{}, nil, nil, ExecutorConfig{})
	assert.Error(t, err)

	bad := 3.5
	_, err = NewExecutor(f.Store, backend, stubEstimator{}, nil, nil, ExecutorConfig{Temperature: &bad})
	assert.Error(t, err)
}

func TestStartRunRejectsBadInput(t *testing.T) {
	f := testutils.NewFixture(1, 1)
	executor := newTestExecutor(t, f, testutils.NewMockBackend())

	assert.Error(t, executor.StartRun("", "eval-1", []string{"m-1"}))
	assert.Error(t, executor.StartRun("run-1", "", []string{"m-1"}))
	assert.Error(t, executor.StartRun("run-1", "eval-1", nil))
}

// Three questions, two models, everything succeeds and is priced: the
// run completes with six fully costed responses.
func TestExecuteRunAllSucceed(t *testing.T) {
	ctx := context.Background()
	f := testutils.NewFixture(3, 2)
	backend := testutils.NewMockBackend()
	executor := newTestExecutor(t, f, backend)

	executor.ExecuteRun(ctx, f.Run.ID, f.Eval.ID, f.ModelIDs())

	run, err := f.Store.GetRun(ctx, f.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, run.Status)

	responses, err := f.Store.ListResponses(ctx, f.Run.ID)
	require.NoError(t, err)
	require.Len(t, responses, 6)
	for _, resp := range responses {
		assert.True(t, resp.Succeeded())
		assert.True(t, resp.HasText())
		require.NotNil(t, resp.CostUSD)
		assert.Greater(t, *resp.CostUSD, 0.0)
		require.NotNil(t, resp.InputTokens)
		require.NotNil(t, resp.OutputTokens)
	}

	progress, err := f.Store.GetRunProgress(ctx, f.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, progress.Succeeded)
	assert.Equal(t, 0, progress.Failed)
	assert.InDelta(t, 100.0, progress.Percent, 1e-9)
}

// One model fails every call: the run is FAILED, the failing pairs
// carry errors and no cost, and the sibling model's pairs are intact.
func TestExecuteRunOneModelFails(t *testing.T) {
	ctx := context.Background()
	f := testutils.NewFixture(3, 2)
	backend := testutils.NewMockBackend()
	backend.FailModel("m-2", errors.New("provider exploded"))
	executor := newTestExecutor(t, f, backend)

	executor.ExecuteRun(ctx, f.Run.ID, f.Eval.ID, f.ModelIDs())

	run, err := f.Store.GetRun(ctx, f.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, run.Status)

	responses, err := f.Store.ListResponses(ctx, f.Run.ID)
	require.NoError(t, err)
	require.Len(t, responses, 6)

	for _, resp := range responses {
		switch resp.ModelID {
		case "m-2":
			require.NotNil(t, resp.Error)
			assert.Contains(t, *resp.Error, "provider exploded")
			assert.Nil(t, resp.CostUSD)
			assert.Nil(t, resp.Text)
			assert.Nil(t, resp.InputTokens)
		default:
			assert.True(t, resp.Succeeded())
			assert.NotNil(t, resp.CostUSD)
		}
	}
}

// A missing eval aborts the run before any dispatch: straight to
// FAILED, zero responses, zero backend calls.
func TestExecuteRunEvalNotFound(t *testing.T) {
	ctx := context.Background()
	f := testutils.NewFixture(1, 1)
	backend := testutils.NewMockBackend()
	executor := newTestExecutor(t, f, backend)

	executor.ExecuteRun(ctx, f.Run.ID, "no-such-eval", f.ModelIDs())

	run, err := f.Store.GetRun(ctx, f.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, run.Status)

	responses, err := f.Store.ListResponses(ctx, f.Run.ID)
	require.NoError(t, err)
	assert.Empty(t, responses)
	assert.Zero(t, backend.CallCount())
}

// A model id that does not resolve is a hard precondition failure, not
// a skip.
func TestExecuteRunModelNotFound(t *testing.T) {
	ctx := context.Background()
	f := testutils.NewFixture(2, 1)
	backend := testutils.NewMockBackend()
	executor := newTestExecutor(t, f, backend)

	executor.ExecuteRun(ctx, f.Run.ID, f.Eval.ID, []string{"m-1", "m-missing"})

	run, err := f.Store.GetRun(ctx, f.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, run.Status)

	responses, err := f.Store.ListResponses(ctx, f.Run.ID)
	require.NoError(t, err)
	assert.Empty(t, responses)
	assert.Zero(t, backend.CallCount())
}

// A successful call against an unpriced model keeps its text and token
// counts but records the pricing gap, and the run fails.
func TestExecuteRunPricingGap(t *testing.T) {
	ctx := context.Background()
	f := testutils.NewFixture(1, 1)
	f.UnpricedModel("m-free", "unlisted-model")
	backend := testutils.NewMockBackend()
	executor := newTestExecutor(t, f, backend)

	executor.ExecuteRun(ctx, f.Run.ID, f.Eval.ID, []string{"m-1", "m-free"})

	run, err := f.Store.GetRun(ctx, f.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, run.Status)

	responses, err := f.Store.ListResponses(ctx, f.Run.ID)
	require.NoError(t, err)
	require.Len(t, responses, 2)

	for _, resp := range responses {
		switch resp.ModelID {
		case "m-free":
			assert.True(t, resp.HasText())
			require.NotNil(t, resp.Error)
			assert.Equal(t, domain.ErrPricingUnavailable.Error(), *resp.Error)
			assert.Nil(t, resp.CostUSD)
			require.NotNil(t, resp.InputTokens)
			require.NotNil(t, resp.OutputTokens)
		default:
			assert.True(t, resp.Succeeded())
			assert.NotNil(t, resp.CostUSD)
		}
	}
}

// Static per-token costs on the model record take precedence over the
// price book.
func TestExecuteRunStaticModelPrice(t *testing.T) {
	ctx := context.Background()
	f := testutils.NewFixture(1, 0)
	in, out := 100.0, 200.0
	f.Store.PutModel(domain.Model{
		ID: "m-static", Identifier: "static-model", Provider: "openai",
		InputUSDPer1M: &in, OutputUSDPer1M: &out,
	})

	backend := testutils.NewMockBackend()
	backend.AddResponse(testutils.MockResponse{
		Pattern: "capital", Response: "Paris", InputTokens: 1000, OutputTokens: 1000,
	})
	executor := newTestExecutor(t, f, backend)

	executor.ExecuteRun(ctx, f.Run.ID, f.Eval.ID, []string{"m-static"})

	responses, err := f.Store.ListResponses(ctx, f.Run.ID)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].CostUSD)
	// 1000 in at $100/1M plus 1000 out at $200/1M.
	assert.InDelta(t, 0.1+0.2, *responses[0].CostUSD, 1e-9)
}

// When the backend omits usage figures, the fallback counter fills
// them in.
func TestExecuteRunEstimatorFallback(t *testing.T) {
	ctx := context.Background()
	f := testutils.NewFixture(1, 1)
	backend := testutils.NewMockBackend()
	backend.AddResponse(testutils.MockResponse{
		Pattern: "capital", Response: "Paris is the capital.",
	})
	executor := newTestExecutor(t, f, backend)

	executor.ExecuteRun(ctx, f.Run.ID, f.Eval.ID, f.ModelIDs())

	responses, err := f.Store.ListResponses(ctx, f.Run.ID)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].InputTokens)
	assert.Equal(t, 7, *responses[0].InputTokens)
	assert.Equal(t, 7, *responses[0].OutputTokens)
}

// Backend latency persists in milliseconds, matching the wire unit.
func TestExecuteRunDurationMillis(t *testing.T) {
	ctx := context.Background()
	f := testutils.NewFixture(1, 1)
	backend := testutils.NewMockBackend()
	executor := newTestExecutor(t, f, backend)

	executor.ExecuteRun(ctx, f.Run.ID, f.Eval.ID, f.ModelIDs())

	responses, err := f.Store.ListResponses(ctx, f.Run.ID)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Equal(t, time.Millisecond.Milliseconds(), responses[0].DurationMS)
}

// A panicking token counter degrades to a recorded error on the pair
// rather than killing the run goroutine. The response carries the
// counting error and no token or cost figures, even though the model
// has a price.
func TestExecuteRunCounterPanic(t *testing.T) {
	ctx := context.Background()
	f := testutils.NewFixture(1, 1)
	backend := testutils.NewMockBackend()
	backend.AddResponse(testutils.MockResponse{Pattern: "capital", Response: "Paris"})

	executor, err := NewExecutor(f.Store, backend, panicEstimator{}, nil, nil, ExecutorConfig{})
	require.NoError(t, err)

	executor.ExecuteRun(ctx, f.Run.ID, f.Eval.ID, f.ModelIDs())

	run, err := f.Store.GetRun(ctx, f.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, run.Status)

	responses, err := f.Store.ListResponses(ctx, f.Run.ID)
	require.NoError(t, err)
	require.Len(t, responses, 1)

	resp := responses[0]
	require.NotNil(t, resp.Error)
	assert.Equal(t, domain.ErrTokenCountFailed.Error(), *resp.Error)
	assert.Nil(t, resp.InputTokens)
	assert.Nil(t, resp.OutputTokens)
	assert.Nil(t, resp.CostUSD)
}

// failingBatchStore drops one question's batch write to verify the run
// fails but keeps processing later questions.
type failingBatchStore struct {
	*storage.MemoryStore
	failQuestionID string
}

func (s *failingBatchStore) CreateResponses(ctx context.Context, batch []domain.Response) error {
	if len(batch) > 0 && batch[0].QuestionID == s.failQuestionID {
		return fmt.Errorf("disk full")
	}
	return s.MemoryStore.CreateResponses(ctx, batch)
}

func TestExecuteRunBatchWriteFailureContinues(t *testing.T) {
	ctx := context.Background()
	f := testutils.NewFixture(3, 2)
	store := &failingBatchStore{MemoryStore: f.Store, failQuestionID: "q-2"}
	backend := testutils.NewMockBackend()

	executor, err := NewExecutor(store, backend, stubEstimator{count: 7}, nil, nil, ExecutorConfig{})
	require.NoError(t, err)

	executor.ExecuteRun(ctx, f.Run.ID, f.Eval.ID, f.ModelIDs())

	run, err := f.Store.GetRun(ctx, f.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, run.Status)

	// Questions 1 and 3 persisted; question 2's batch is gone but was
	// still dispatched.
	responses, err := f.Store.ListResponses(ctx, f.Run.ID)
	require.NoError(t, err)
	assert.Len(t, responses, 4)
	assert.Equal(t, 6, backend.CallCount())
}

func TestStartRunDetaches(t *testing.T) {
	f := testutils.NewFixture(2, 2)
	backend := testutils.NewMockBackend()
	executor := newTestExecutor(t, f, backend)

	require.NoError(t, executor.StartRun(f.Run.ID, f.Eval.ID, f.ModelIDs()))
	executor.Wait()

	run, err := f.Store.GetRun(context.Background(), f.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, run.Status)
}

// Within a question the models run as one concurrent batch, and no
// question starts before the previous one fully settled.
func TestExecuteRunQuestionOrdering(t *testing.T) {
	ctx := context.Background()
	f := testutils.NewFixture(3, 2)
	backend := testutils.NewMockBackend()
	executor := newTestExecutor(t, f, backend)

	executor.ExecuteRun(ctx, f.Run.ID, f.Eval.ID, f.ModelIDs())

	calls := backend.Calls()
	require.Len(t, calls, 6)
	// Calls arrive grouped by question: both model calls for question N
	// precede any call for question N+1.
	for i, want := range []string{"country 1", "country 1", "country 2", "country 2", "country 3", "country 3"} {
		assert.Contains(t, calls[i].Prompt, want)
	}
}

func TestReconcileStale(t *testing.T) {
	ctx := context.Background()
	f := testutils.NewFixture(1, 1)
	executor := newTestExecutor(t, f, testutils.NewMockBackend())

	stale := time.Now().Add(-time.Hour)
	f.Store.PutRun(domain.EvalRun{
		ID: "stuck", EvalID: f.Eval.ID,
		Status: domain.RunStatusRunning, CreatedAt: stale, UpdatedAt: stale,
	})

	require.NoError(t, executor.ReconcileStale(ctx, "stuck", 10*time.Minute))
	run, err := f.Store.GetRun(ctx, "stuck")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, run.Status)

	// A fresh RUNNING run is left alone.
	now := time.Now()
	f.Store.PutRun(domain.EvalRun{
		ID: "fresh", EvalID: f.Eval.ID,
		Status: domain.RunStatusRunning, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, executor.ReconcileStale(ctx, "fresh", 10*time.Minute))
	run, err = f.Store.GetRun(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRunning, run.Status)

	// Terminal runs are never touched.
	require.NoError(t, executor.ReconcileStale(ctx, f.Run.ID, 0))
}
