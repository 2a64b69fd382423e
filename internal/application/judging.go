package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ahrav/go-evalrun/internal/domain"
	"github.com/ahrav/go-evalrun/internal/ports"
)

// DefaultJudgingRubric is used when the trigger supplies no rubric of
// its own.
const DefaultJudgingRubric = `Assess how well-posed this question is for evaluating language models: is it clear, unambiguous, answerable, and discriminating between strong and weak models? Score from 0 (unusable) to 10 (excellent).`

// judgingPromptTemplate frames the judge's task. Rubric first, then the
// question under judgment.
const judgingPromptTemplate = `You are an expert evaluator. Judge the following question according to this rubric:

%s

Question:
%s`

// Judge runs judging passes: every (question, judge model) pair of an
// eval gets a fresh Judgment record. Pairs are processed strictly
// sequentially, a nested loop with no concurrency, and repeated passes
// accumulate records rather than replacing them.
type Judge struct {
	store    ports.Store
	backend  ports.ModelBackend
	logger   *slog.Logger
	metrics  ports.MetricsCollector
	validate *validator.Validate

	maxTokens int

	wg sync.WaitGroup
}

// NewJudge creates a judging pipeline.
func NewJudge(
	store ports.Store,
	backend ports.ModelBackend,
	metrics ports.MetricsCollector,
	logger *slog.Logger,
	maxTokens int,
) (*Judge, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if backend == nil {
		return nil, fmt.Errorf("model backend cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Judge{
		store:     store,
		backend:   backend,
		metrics:   metrics,
		logger:    logger,
		validate:  validator.New(),
		maxTokens: maxTokens,
	}, nil
}

// StartJudging validates the eval and judge models, then detaches the
// judging loop and returns. An empty rubric selects
// DefaultJudgingRubric.
func (j *Judge) StartJudging(ctx context.Context, evalID string, judgeModelIDs []string, rubric string) error {
	if evalID == "" {
		return fmt.Errorf("eval id is required")
	}
	if len(judgeModelIDs) == 0 {
		return fmt.Errorf("at least one judge model is required")
	}
	if rubric == "" {
		rubric = DefaultJudgingRubric
	}

	eval, err := j.store.GetEvalWithQuestions(ctx, evalID)
	if err != nil {
		return fmt.Errorf("judging rejected: %w", err)
	}

	judges, err := j.store.GetModels(ctx, judgeModelIDs)
	if err != nil {
		return fmt.Errorf("judging rejected: %w", err)
	}
	if len(judges) != len(judgeModelIDs) {
		return fmt.Errorf("judging rejected: %d of %d judge models resolved: %w",
			len(judges), len(judgeModelIDs), domain.ErrModelNotFound)
	}

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.judgeEval(context.Background(), eval, judges, rubric)
	}()

	return nil
}

// Wait blocks until all detached judging passes have finished.
func (j *Judge) Wait() { j.wg.Wait() }

// judgeEval is the detached body of one judging pass.
func (j *Judge) judgeEval(ctx context.Context, eval domain.Eval, judges []domain.Model, rubric string) {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("judging pass panicked",
				"eval_id", eval.ID, "panic", fmt.Sprint(r))
		}
	}()

	for _, question := range eval.Questions {
		for _, judge := range judges {
			j.judgeQuestion(ctx, question, judge, rubric)
		}
	}

	j.logger.Info("judging pass finished",
		"eval_id", eval.ID, "questions", len(eval.Questions), "judges", len(judges))

	if j.metrics != nil {
		j.metrics.RecordCounter("judging_passes_total", 1,
			map[string]string{"eval_id": eval.ID})
	}
}

// judgeQuestion sends one judging prompt and records the verdict. As
// with scoring, failure to produce or parse a verdict persists a null
// value with the reason; the pair is never skipped silently.
func (j *Judge) judgeQuestion(ctx context.Context, question domain.Question, judge domain.Model, rubric string) {
	prompt := fmt.Sprintf(judgingPromptTemplate, rubric, question.Text) + jsonFormatInstruction

	judgment := domain.Judgment{
		ID:           uuid.NewString(),
		QuestionID:   question.ID,
		JudgeModelID: judge.ID,
		CreatedAt:    time.Now(),
	}

	completion, err := j.backend.Complete(ctx, judge, prompt, ports.CompletionOptions{
		MaxTokens: j.maxTokens,
		ForceJSON: true,
	})
	if err != nil {
		msg := err.Error()
		judgment.Error = &msg
	} else if result := parseVerdict(j.validate, completion.Text); result.ok() {
		judgment.Value = &result.verdict.Score
		judgment.Justification = result.verdict.Justification
	} else {
		judgment.Error = &result.parseErr
	}

	if err := j.store.CreateJudgment(ctx, judgment); err != nil {
		j.logger.Error("failed to persist judgment",
			"question_id", question.ID, "judge_model_id", judge.ID, "error", err)
	}
}
