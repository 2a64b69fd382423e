package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-evalrun/internal/domain"
)

func seedStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	now := time.Now()

	s.PutEval(domain.Eval{
		ID:   "eval-1",
		Name: "geography",
		Questions: []domain.Question{
			{ID: "q-1", EvalID: "eval-1", Text: "Capital of France?"},
			{ID: "q-2", EvalID: "eval-1", Text: "Capital of Japan?"},
		},
		CreatedAt: now,
	})
	s.PutModel(domain.Model{ID: "m-1", Identifier: "gpt-4o", Provider: "openai"})
	s.PutModel(domain.Model{ID: "m-2", Identifier: "claude-3-5-sonnet", Provider: "anthropic"})
	s.PutRun(domain.EvalRun{
		ID: "run-1", EvalID: "eval-1",
		Status: domain.RunStatusPending, CreatedAt: now, UpdatedAt: now,
	})
	return s
}

func TestGetEvalWithQuestions(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	eval, err := s.GetEvalWithQuestions(ctx, "eval-1")
	require.NoError(t, err)
	require.Len(t, eval.Questions, 2)
	assert.Equal(t, "q-1", eval.Questions[0].ID, "insertion order preserved")

	_, err = s.GetEvalWithQuestions(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrEvalNotFound)
}

func TestCountExistingModels(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		ids  []string
		want int
	}{
		{"all exist", []string{"m-1", "m-2"}, 2},
		{"one missing", []string{"m-1", "m-3"}, 1},
		{"none exist", []string{"x", "y"}, 0},
		{"empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count, err := s.CountExistingModels(ctx, tt.ids)
			require.NoError(t, err)
			assert.Equal(t, tt.want, count)
		})
	}
}

func TestUpdateRunStatusEnforcesStateMachine(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	// PENDING cannot jump straight to COMPLETED.
	err := s.UpdateRunStatus(ctx, "run-1", domain.RunStatusCompleted)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	require.NoError(t, s.UpdateRunStatus(ctx, "run-1", domain.RunStatusRunning))
	require.NoError(t, s.UpdateRunStatus(ctx, "run-1", domain.RunStatusCompleted))

	// Terminal states never regress.
	err = s.UpdateRunStatus(ctx, "run-1", domain.RunStatusRunning)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	assert.ErrorIs(t, s.UpdateRunStatus(ctx, "missing", domain.RunStatusRunning), domain.ErrRunNotFound)
}

func TestGetLatestPriceResolvesAliasChain(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	s.PutPrice(domain.ModelPrice{
		RawID: "gpt-4o-2024-08-06", CanonicalID: "gpt-4o",
		InputUSDPer1M: 5.0, OutputUSDPer1M: 20.0, EffectiveDate: old,
	})
	s.PutPrice(domain.ModelPrice{
		RawID: "gpt-4o", CanonicalID: "gpt-4o",
		InputUSDPer1M: 2.5, OutputUSDPer1M: 10.0, EffectiveDate: newer,
	})

	// The dated raw alias resolves to the canonical id's latest
	// snapshot, not the snapshot that matched the raw id.
	price, err := s.GetLatestPrice(ctx, "gpt-4o-2024-08-06")
	require.NoError(t, err)
	require.NotNil(t, price)
	assert.Equal(t, 2.5, price.InputUSDPer1M)
	assert.Equal(t, newer, price.EffectiveDate)

	// Absence is data, not an error.
	price, err = s.GetLatestPrice(ctx, "unknown-model")
	require.NoError(t, err)
	assert.Nil(t, price)
}

func TestPutAliasExtendsChain(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	s.PutPrice(domain.ModelPrice{
		RawID: "gpt-4o", CanonicalID: "gpt-4o",
		InputUSDPer1M: 2.5, OutputUSDPer1M: 10.0, EffectiveDate: time.Now(),
	})
	s.PutAlias("gpt-4o-latest", "gpt-4o")

	price, err := s.GetLatestPrice(ctx, "gpt-4o-latest")
	require.NoError(t, err)
	require.NotNil(t, price)
	assert.Equal(t, "gpt-4o", price.CanonicalID)
}

func strPtr(v string) *string { return &v }

func TestGetRunProgress(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	progress, err := s.GetRunProgress(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 2, progress.TotalQuestions)
	assert.Zero(t, progress.TotalResponses)
	assert.Zero(t, progress.Percent)

	require.NoError(t, s.CreateResponses(ctx, []domain.Response{
		{ID: "r-1", RunID: "run-1", QuestionID: "q-1", ModelID: "m-1", Text: strPtr("Paris")},
		{ID: "r-2", RunID: "run-1", QuestionID: "q-1", ModelID: "m-2", Error: strPtr("timeout")},
	}))

	progress, err = s.GetRunProgress(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 2, progress.TotalResponses)
	assert.Equal(t, 1, progress.Succeeded)
	assert.Equal(t, 1, progress.Failed)
	assert.InDelta(t, 50.0, progress.Percent, 1e-9)

	// More responses never decrease the counts.
	require.NoError(t, s.CreateResponses(ctx, []domain.Response{
		{ID: "r-3", RunID: "run-1", QuestionID: "q-2", ModelID: "m-1", Text: strPtr("Tokyo")},
	}))
	next, err := s.GetRunProgress(ctx, "run-1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, next.TotalResponses, progress.TotalResponses)
	assert.InDelta(t, 100.0, next.Percent, 1e-9)
}

func TestUpsertScoreReplaces(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	first, second := 3.0, 9.0
	require.NoError(t, s.UpsertScore(ctx, domain.Score{ResponseID: "r-1", Value: &first}))
	require.NoError(t, s.UpsertScore(ctx, domain.Score{ResponseID: "r-1", Value: &second}))

	require.NoError(t, s.CreateResponses(ctx, []domain.Response{
		{ID: "r-1", RunID: "run-1", QuestionID: "q-1", ModelID: "m-1", Text: strPtr("Paris")},
	}))
	results, err := s.GetRunResults(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, results.Scores, 1)
	assert.Equal(t, second, *results.Scores[0].Value)
}

func TestCreateJudgmentAccumulates(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	v := 5.0
	require.NoError(t, s.CreateJudgment(ctx, domain.Judgment{ID: "j-1", QuestionID: "q-1", JudgeModelID: "m-1", Value: &v}))
	require.NoError(t, s.CreateJudgment(ctx, domain.Judgment{ID: "j-2", QuestionID: "q-1", JudgeModelID: "m-1", Value: &v}))

	judgments, err := s.ListJudgments(ctx, "q-1")
	require.NoError(t, err)
	assert.Len(t, judgments, 2)
}

func TestGetRunResultsJoins(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateResponses(ctx, []domain.Response{
		{ID: "r-1", RunID: "run-1", QuestionID: "q-1", ModelID: "m-1", Text: strPtr("Paris")},
	}))
	v := 8.0
	require.NoError(t, s.UpsertScore(ctx, domain.Score{ResponseID: "r-1", Value: &v}))

	results, err := s.GetRunResults(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", results.Run.ID)
	assert.Len(t, results.Questions, 2)
	assert.Len(t, results.Responses, 1)
	require.Len(t, results.Scores, 1)
	assert.Equal(t, "r-1", results.Scores[0].ResponseID)
	assert.Equal(t, 1, results.Progress.TotalResponses)

	_, err = s.GetRunResults(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}
