package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-evalrun/internal/domain"
	"github.com/ahrav/go-evalrun/internal/ports"
)

// SimilarityScorer scores responses deterministically against their
// question's reference answer, for evals whose questions carry one.
// Scores land on the same 0-10 scale as LLM scoring and carry the
// manual tag, so a later LLM pass replaces them through the same
// upsert key.
type SimilarityScorer struct {
	store  ports.Store
	logger *slog.Logger
}

// NewSimilarityScorer creates a deterministic reference-answer scorer.
func NewSimilarityScorer(store ports.Store, logger *slog.Logger) (*SimilarityScorer, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SimilarityScorer{store: store, logger: logger}, nil
}

// ScoreRun scores every eligible response of the run against its
// question's reference answer. Responses whose question has no
// reference answer are skipped; responses with an execution error or
// empty text are skipped. The pass is synchronous: with no backend
// calls there is nothing worth detaching.
func (s *SimilarityScorer) ScoreRun(ctx context.Context, runID string) error {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	eval, err := s.store.GetEvalWithQuestions(ctx, run.EvalID)
	if err != nil {
		return err
	}
	references := make(map[string]string, len(eval.Questions))
	for _, q := range eval.Questions {
		if q.ReferenceAnswer != "" {
			references[q.ID] = q.ReferenceAnswer
		}
	}
	if len(references) == 0 {
		s.logger.Info("no reference answers; similarity pass is a no-op",
			"run_id", runID, "eval_id", eval.ID)
		return nil
	}

	responses, err := s.store.ListResponses(ctx, runID)
	if err != nil {
		return err
	}

	for _, resp := range responses {
		reference, found := references[resp.QuestionID]
		if !found || !resp.Succeeded() || !resp.HasText() {
			continue
		}

		value := s.Similarity(*resp.Text, reference) * 10
		score := domain.Score{
			ResponseID: resp.ID,
			Value:      &value,
			Justification: fmt.Sprintf(
				"edit-distance similarity to reference answer: %.2f", value/10),
			Scorer:    domain.ScorerManual,
			UpdatedAt: time.Now(),
		}
		if err := s.store.UpsertScore(ctx, score); err != nil {
			s.logger.Error("failed to persist similarity score",
				"response_id", resp.ID, "error", err)
		}
	}

	return nil
}

// Similarity returns the normalized edit-distance similarity of two
// strings in [0, 1]: 1 for an exact match after case folding and
// whitespace trimming, 0 for strings sharing nothing. Deterministic by
// construction and safe for concurrent use; cases.Caser carries
// per-use state, so each call folds with its own.
func (s *SimilarityScorer) Similarity(a, b string) float64 {
	folder := cases.Fold()
	a = folder.String(strings.TrimSpace(a))
	b = folder.String(strings.TrimSpace(b))

	if a == b {
		return 1
	}

	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1
	}

	distance := levenshtein.ComputeDistance(a, b)
	return 1 - float64(distance)/float64(longest)
}
