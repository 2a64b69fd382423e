// Package ports defines the interfaces the evaluation engine consumes:
// durable storage, the model backend, token estimation, and metrics.
// Implementations live under infrastructure/; the application layer
// depends only on these contracts.
package ports

import (
	"context"

	"github.com/ahrav/go-evalrun/internal/domain"
)

// Store is the persistence collaborator for the engine. Entity CRUD
// beyond these operations belongs to the management layer and is out of
// scope here. Implementations must make each write atomic per record;
// the executor's sequential-batch discipline provides all further
// coordination.
type Store interface {
	// GetEvalWithQuestions returns the eval and its questions in
	// insertion order, or domain.ErrEvalNotFound.
	GetEvalWithQuestions(ctx context.Context, evalID string) (domain.Eval, error)

	// CountExistingModels returns how many of the given ids resolve to
	// stored model records. The executor treats count != len(ids) as a
	// hard precondition failure, not a skip.
	CountExistingModels(ctx context.Context, modelIDs []string) (int, error)

	// GetModels returns the model records for the given ids, in the
	// order requested.
	GetModels(ctx context.Context, modelIDs []string) ([]domain.Model, error)

	// GetRun returns the run row or domain.ErrRunNotFound.
	GetRun(ctx context.Context, runID string) (domain.EvalRun, error)

	// UpdateRunStatus persists a status transition. Implementations
	// must reject transitions the domain state machine forbids.
	UpdateRunStatus(ctx context.Context, runID string, status domain.RunStatus) error

	// CreateResponses persists one question's settled batch as a unit.
	CreateResponses(ctx context.Context, batch []domain.Response) error

	// ListResponses returns all responses persisted for a run.
	ListResponses(ctx context.Context, runID string) ([]domain.Response, error)

	// GetLatestPrice resolves a raw model identifier through the
	// raw -> canonical alias chain and returns the most recent dated
	// snapshot for the canonical id. Returns (nil, nil) when no price
	// exists; absence is data, not an error.
	GetLatestPrice(ctx context.Context, rawModelIdentifier string) (*domain.ModelPrice, error)

	// UpsertScore inserts or replaces the score keyed by response id.
	UpsertScore(ctx context.Context, score domain.Score) error

	// CreateJudgment appends a judgment record; never overwrites.
	CreateJudgment(ctx context.Context, judgment domain.Judgment) error

	// ListJudgments returns all judgments recorded for a question.
	ListJudgments(ctx context.Context, questionID string) ([]domain.Judgment, error)

	// GetRunProgress derives the progress summary from persisted
	// responses so that repeated polls observe monotonic counts.
	GetRunProgress(ctx context.Context, runID string) (domain.RunProgress, error)

	// GetRunResults returns the question/response/score join for a run.
	GetRunResults(ctx context.Context, runID string) (domain.RunResults, error)
}
