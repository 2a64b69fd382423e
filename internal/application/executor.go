// Package application orchestrates evaluation runs: fanning questions
// out to target models, tolerating partial failure per (question,
// model) pair, computing token usage and cost, and converging on a
// terminal run status. It also hosts the scoring and judging pipelines
// that attach verdicts to persisted results.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-evalrun/internal/domain"
	"github.com/ahrav/go-evalrun/internal/ports"
)

// ExecutorConfig holds the tunable parameters of the run executor.
// All fields are validated at construction.
type ExecutorConfig struct {
	// Temperature is forwarded to every target-model call. Nil means
	// the provider default.
	Temperature *float64 `validate:"omitempty,min=0,max=2"`

	// MaxTokens caps each completion. Zero means the backend default.
	MaxTokens int `validate:"min=0,max=32768"`

	// CallTimeout bounds each backend call so a hung provider becomes a
	// recorded pair error instead of stalling the run forever. Zero
	// disables the bound.
	CallTimeout time.Duration `validate:"min=0"`
}

// Executor runs evaluation runs to completion asynchronously. One
// executor serves many concurrent runs; per-run state lives on the
// stack of the goroutine executing it.
//
// Concurrency discipline: models within one question's batch run
// concurrently; questions are strictly sequential, so in-flight backend
// calls never exceed the model count and no two writers ever touch the
// same run's responses.
type Executor struct {
	store    ports.Store
	backend  ports.ModelBackend
	counter  ports.TokenEstimator
	metrics  ports.MetricsCollector
	logger   *slog.Logger
	config   ExecutorConfig
	validate *validator.Validate
	tracer   trace.Tracer

	// wg tracks detached run goroutines so owners can drain them on
	// shutdown.
	wg sync.WaitGroup
}

// NewExecutor creates a run executor. The store, backend, and token
// counter are required; metrics and logger default to no-ops.
func NewExecutor(
	store ports.Store,
	backend ports.ModelBackend,
	counter ports.TokenEstimator,
	metrics ports.MetricsCollector,
	logger *slog.Logger,
	config ExecutorConfig,
) (*Executor, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if backend == nil {
		return nil, fmt.Errorf("model backend cannot be nil")
	}
	if counter == nil {
		return nil, fmt.Errorf("token counter cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	v := validator.New()
	if err := v.Struct(config); err != nil {
		return nil, fmt.Errorf("executor configuration invalid: %w", err)
	}

	return &Executor{
		store:    store,
		backend:  backend,
		counter:  counter,
		metrics:  metrics,
		logger:   logger,
		config:   config,
		validate: v,
		tracer:   otel.Tracer("run-executor"),
	}, nil
}

// StartRun validates its inputs synchronously, then detaches the run
// body onto its own goroutine and returns. The caller has already
// persisted the run in PENDING; everything after acceptance is visible
// only through the store's status and progress reads.
func (e *Executor) StartRun(runID, evalID string, modelIDs []string) error {
	if runID == "" || evalID == "" {
		return fmt.Errorf("run id and eval id are required")
	}
	if len(modelIDs) == 0 {
		return fmt.Errorf("at least one target model is required")
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.ExecuteRun(context.Background(), runID, evalID, modelIDs)
	}()

	return nil
}

// Wait blocks until all detached runs have finished. Intended for
// graceful shutdown and tests; callers in the request path never wait.
func (e *Executor) Wait() { e.wg.Wait() }

// errorTally tracks the run's accumulated failures. Execution and
// pricing errors are counted separately for observability, but both
// feed the terminal-status decision: any error anywhere marks the run
// FAILED, matching the engine's historical behavior.
type errorTally struct {
	execution int
	pricing   int
}

func (t errorTally) total() int { return t.execution + t.pricing }

// ExecuteRun executes one run synchronously. StartRun is the normal
// entry point; this is exported for callers that manage their own
// scheduling. The terminal status write in the deferred cleanup always
// executes, including when a panic escapes the question loop.
func (e *Executor) ExecuteRun(ctx context.Context, runID, evalID string, modelIDs []string) {
	ctx, span := e.tracer.Start(ctx, "executor.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("eval.id", evalID),
			attribute.Int("run.models", len(modelIDs)),
		))
	defer span.End()

	start := time.Now()
	var tally errorTally
	aborted := false

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("run executor panicked",
				"run_id", runID, "panic", fmt.Sprint(r))
			aborted = true
		}

		status := domain.RunStatusCompleted
		if aborted || tally.total() > 0 {
			status = domain.RunStatusFailed
		}
		if err := e.store.UpdateRunStatus(ctx, runID, status); err != nil {
			e.logger.Error("failed to write terminal run status",
				"run_id", runID, "status", string(status), "error", err)
		}

		e.recordRunMetrics(status, tally, time.Since(start))
	}()

	eval, models, err := e.checkPreconditions(ctx, runID, evalID, modelIDs)
	if err != nil {
		e.logger.Error("run aborted by precondition check",
			"run_id", runID, "eval_id", evalID, "error", err)
		aborted = true
		return
	}

	if err := e.store.UpdateRunStatus(ctx, runID, domain.RunStatusRunning); err != nil {
		e.logger.Error("failed to mark run RUNNING", "run_id", runID, "error", err)
		aborted = true
		return
	}

	// Questions are processed strictly in stored order; question N+1's
	// batch does not start until question N's batch has settled and its
	// write has been attempted.
	for _, question := range eval.Questions {
		batch := e.executeQuestion(ctx, runID, question, models, &tally)

		if err := e.store.CreateResponses(ctx, batch); err != nil {
			// A lost batch counts every one of its pairs as an error,
			// but later questions still get their chance.
			e.logger.Error("failed to persist response batch",
				"run_id", runID, "question_id", question.ID, "error", err)
			tally.execution += len(batch)
		}
	}
}

// checkPreconditions verifies the eval exists with at least one
// question and that every requested model id resolves. A missing model
// id is a hard error, not a skip: the resolved count must equal the
// requested count.
func (e *Executor) checkPreconditions(
	ctx context.Context,
	runID, evalID string,
	modelIDs []string,
) (domain.Eval, []domain.Model, error) {
	eval, err := e.store.GetEvalWithQuestions(ctx, evalID)
	if err != nil {
		return domain.Eval{}, nil, &domain.PreconditionError{RunID: runID, Err: err}
	}
	if len(eval.Questions) == 0 {
		return domain.Eval{}, nil, &domain.PreconditionError{RunID: runID, Err: domain.ErrNoQuestions}
	}

	count, err := e.store.CountExistingModels(ctx, modelIDs)
	if err != nil {
		return domain.Eval{}, nil, &domain.PreconditionError{RunID: runID, Err: err}
	}
	if count != len(modelIDs) {
		return domain.Eval{}, nil, &domain.PreconditionError{
			RunID: runID,
			Err: fmt.Errorf("%d of %d model ids resolved: %w",
				count, len(modelIDs), domain.ErrModelNotFound),
		}
	}

	models, err := e.store.GetModels(ctx, modelIDs)
	if err != nil {
		return domain.Eval{}, nil, &domain.PreconditionError{RunID: runID, Err: err}
	}

	return eval, models, nil
}

// executeQuestion dispatches one backend call per model concurrently,
// waits for every call to settle, then assembles the question's
// response batch with pricing and cost applied per pair.
func (e *Executor) executeQuestion(
	ctx context.Context,
	runID string,
	question domain.Question,
	models []domain.Model,
	tally *errorTally,
) []domain.Response {
	outcomes := settleAll(ctx, len(models), func(ctx context.Context, i int) (ports.Completion, error) {
		callCtx := ctx
		if e.config.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, e.config.CallTimeout)
			defer cancel()
		}
		return e.backend.Complete(callCtx, models[i], question.Text, ports.CompletionOptions{
			Temperature: e.config.Temperature,
			MaxTokens:   e.config.MaxTokens,
		})
	})

	// Prices are resolved once per batch, after the batch settles, so a
	// price update mid-run is picked up at the next question boundary
	// but never applied retroactively.
	prices := e.resolvePrices(ctx, models)

	now := time.Now()
	batch := make([]domain.Response, len(models))
	for i, model := range models {
		batch[i] = e.buildResponse(runID, question, model, outcomes[i], prices[model.ID], now, tally)
	}

	return batch
}

// resolvePrices looks up the authoritative price snapshot for each
// model. Static per-token costs on the model record take precedence
// over the price book. A model with no resolvable price maps to nil;
// absence is recorded on the pair, never raised.
func (e *Executor) resolvePrices(ctx context.Context, models []domain.Model) map[string]*domain.ModelPrice {
	prices := make(map[string]*domain.ModelPrice, len(models))
	for _, model := range models {
		if static, ok := domain.StaticPrice(model); ok {
			prices[model.ID] = &static
			continue
		}

		price, err := e.store.GetLatestPrice(ctx, model.Identifier)
		if err != nil {
			e.logger.Warn("price lookup failed",
				"model", model.Identifier, "error", err)
			price = nil
		}
		prices[model.ID] = price
	}
	return prices
}

// buildResponse converts one settled pair outcome into the response
// record to persist, applying the cost computation policy:
//
//   - backend failure: no cost, no tokens; the error field records the
//     failure reason and the pair counts as an execution error.
//   - token counter failure: no cost, no tokens; the error field records
//     the counting failure and the pair counts as one execution error.
//   - success without a price: token counts are still computed (backend
//     usage first, token counter fallback); cost stays unset and the
//     error field records the pricing gap.
//   - success with a price: tokens as above, cost from the snapshot.
func (e *Executor) buildResponse(
	runID string,
	question domain.Question,
	model domain.Model,
	settled outcome[ports.Completion],
	price *domain.ModelPrice,
	now time.Time,
	tally *errorTally,
) domain.Response {
	resp := domain.Response{
		ID:         uuid.NewString(),
		RunID:      runID,
		QuestionID: question.ID,
		ModelID:    model.ID,
		DurationMS: settled.value.Duration.Milliseconds(),
		CreatedAt:  now,
	}

	if settled.err != nil {
		msg := settled.err.Error()
		resp.Error = &msg
		tally.execution++
		return resp
	}

	completion := settled.value
	text := completion.Text
	resp.Text = &text

	inputTokens := completion.InputTokens
	outputTokens := completion.OutputTokens
	var countErr error
	if inputTokens == 0 {
		inputTokens, countErr = e.estimateTokens(question.Text)
	}
	if countErr == nil && outputTokens == 0 {
		outputTokens, countErr = e.estimateTokens(text)
	}
	if countErr != nil {
		msg := countErr.Error()
		resp.Error = &msg
		tally.execution++
		return resp
	}
	resp.InputTokens = &inputTokens
	resp.OutputTokens = &outputTokens

	if price == nil {
		msg := domain.ErrPricingUnavailable.Error()
		resp.Error = &msg
		tally.pricing++
		return resp
	}

	cost := price.Cost(inputTokens, outputTokens)
	resp.CostUSD = &cost
	return resp
}

// estimateTokens runs the fallback counter, converting a panicking
// counter into an error rather than letting it escape the pair's
// handling.
func (e *Executor) estimateTokens(text string) (count int, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("token counter panicked", "panic", fmt.Sprint(r))
			count, err = 0, domain.ErrTokenCountFailed
		}
	}()
	return e.counter.EstimateTokens(text), nil
}

// recordRunMetrics publishes the run's terminal accounting.
func (e *Executor) recordRunMetrics(status domain.RunStatus, tally errorTally, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}

	labels := map[string]string{"status": string(status)}
	e.metrics.RecordCounter("eval_runs_total", 1, labels)
	e.metrics.RecordLatency("run_execution", elapsed, labels)

	// Execution and pricing failures are reported separately even
	// though both currently fail the run; dashboards can tell "could
	// not execute" from "could not bill".
	e.metrics.RecordCounter("eval_run_errors_total", float64(tally.execution),
		map[string]string{"kind": "execution"})
	e.metrics.RecordCounter("eval_run_errors_total", float64(tally.pricing),
		map[string]string{"kind": "pricing"})
}

// ReconcileStale marks runs stuck in RUNNING longer than cutoff as
// FAILED. A process crash mid-run leaves its run RUNNING forever;
// owners call this on startup or on a timer to repair such orphans.
func (e *Executor) ReconcileStale(ctx context.Context, runID string, cutoff time.Duration) error {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != domain.RunStatusRunning {
		return nil
	}
	if time.Since(run.UpdatedAt) < cutoff {
		return nil
	}

	e.logger.Warn("reconciling stale run", "run_id", runID,
		"stale_for", time.Since(run.UpdatedAt).String())
	return e.store.UpdateRunStatus(ctx, runID, domain.RunStatusFailed)
}
