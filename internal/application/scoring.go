package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-evalrun/internal/domain"
	"github.com/ahrav/go-evalrun/internal/ports"
)

// scoringPromptTemplate frames the scorer's task. The verdict format
// instruction is appended separately so both pipelines share it.
const scoringPromptTemplate = `You are an expert evaluator. Score the following answer to the question on a scale from 0 to 10, where 0 is completely wrong or unhelpful and 10 is a perfect answer.

Question:
%s

Answer:
%s`

// Scorer attaches LLM-produced scores to a completed run's responses.
// Unlike the run executor, scoring serializes its backend calls: one
// scorer model handles every response and there is no reason to stack
// load on it.
type Scorer struct {
	store    ports.Store
	backend  ports.ModelBackend
	logger   *slog.Logger
	metrics  ports.MetricsCollector
	validate *validator.Validate

	maxTokens int

	wg sync.WaitGroup
}

// NewScorer creates a scoring pipeline. maxTokens caps each scorer
// completion; zero means the backend default.
func NewScorer(
	store ports.Store,
	backend ports.ModelBackend,
	metrics ports.MetricsCollector,
	logger *slog.Logger,
	maxTokens int,
) (*Scorer, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if backend == nil {
		return nil, fmt.Errorf("model backend cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Scorer{
		store:     store,
		backend:   backend,
		metrics:   metrics,
		logger:    logger,
		validate:  validator.New(),
		maxTokens: maxTokens,
	}, nil
}

// StartScoring validates that the run and scorer model exist, then
// detaches the scoring loop and returns. Per-response failures are
// visible only in the persisted scores, never through this call.
func (s *Scorer) StartScoring(ctx context.Context, runID, scorerModelID string) error {
	if runID == "" || scorerModelID == "" {
		return fmt.Errorf("run id and scorer model id are required")
	}

	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("scoring rejected: %w", err)
	}

	models, err := s.store.GetModels(ctx, []string{scorerModelID})
	if err != nil {
		return fmt.Errorf("scoring rejected: %w", err)
	}
	if len(models) != 1 {
		return fmt.Errorf("scoring rejected: %w", domain.ErrModelNotFound)
	}
	scorer := models[0]

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.scoreRun(context.Background(), run, scorer)
	}()

	return nil
}

// Wait blocks until all detached scoring passes have finished.
func (s *Scorer) Wait() { s.wg.Wait() }

// scoreRun is the detached body of one scoring pass. Every eligible
// response is attempted; a panic ends the pass but earlier upserts
// stand.
func (s *Scorer) scoreRun(ctx context.Context, run domain.EvalRun, scorer domain.Model) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scoring pass panicked",
				"run_id", run.ID, "panic", fmt.Sprint(r))
		}
	}()

	eval, err := s.store.GetEvalWithQuestions(ctx, run.EvalID)
	if err != nil {
		s.logger.Error("scoring pass aborted: eval lookup failed",
			"run_id", run.ID, "eval_id", run.EvalID, "error", err)
		return
	}
	questions := make(map[string]domain.Question, len(eval.Questions))
	for _, q := range eval.Questions {
		questions[q.ID] = q
	}

	responses, err := s.store.ListResponses(ctx, run.ID)
	if err != nil {
		s.logger.Error("scoring pass aborted: response listing failed",
			"run_id", run.ID, "error", err)
		return
	}

	scored := 0
	for _, resp := range responses {
		if !resp.Succeeded() || !resp.HasText() {
			continue
		}

		question, found := questions[resp.QuestionID]
		if !found {
			s.logger.Warn("response references unknown question; skipping",
				"run_id", run.ID, "response_id", resp.ID, "question_id", resp.QuestionID)
			continue
		}

		s.scoreResponse(ctx, question, resp, scorer)
		scored++
	}

	s.logger.Info("scoring pass finished",
		"run_id", run.ID, "scorer_model", scorer.Identifier,
		"responses", len(responses), "scored", scored)

	if s.metrics != nil {
		s.metrics.RecordCounter("scoring_passes_total", 1,
			map[string]string{"scorer_model": scorer.Identifier})
	}
}

// scoreResponse sends one scoring prompt and upserts the verdict. A
// backend failure or unparseable verdict persists a null value with the
// reason; the record is never dropped.
func (s *Scorer) scoreResponse(ctx context.Context, question domain.Question, resp domain.Response, scorer domain.Model) {
	prompt := fmt.Sprintf(scoringPromptTemplate, question.Text, *resp.Text) + jsonFormatInstruction

	score := domain.Score{
		ResponseID:    resp.ID,
		Scorer:        domain.ScorerLLM,
		ScorerModelID: scorer.ID,
		UpdatedAt:     time.Now(),
	}

	completion, err := s.backend.Complete(ctx, scorer, prompt, ports.CompletionOptions{
		MaxTokens: s.maxTokens,
		ForceJSON: true,
	})
	if err != nil {
		msg := err.Error()
		score.Error = &msg
	} else if result := parseVerdict(s.validate, completion.Text); result.ok() {
		score.Value = &result.verdict.Score
		score.Justification = result.verdict.Justification
	} else {
		score.Error = &result.parseErr
	}

	if err := s.store.UpsertScore(ctx, score); err != nil {
		s.logger.Error("failed to persist score",
			"response_id", resp.ID, "error", err)
	}
}
