// Package storage provides Store implementations. MemoryStore backs
// tests and single-process deployments; durable backends implement the
// same contract.
package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ahrav/go-evalrun/internal/domain"
	"github.com/ahrav/go-evalrun/internal/ports"
)

// MemoryStore is a mutex-guarded in-memory implementation of
// ports.Store. Every method takes a full copy in or out, so callers
// never share memory with the store's internal state.
type MemoryStore struct {
	mu sync.RWMutex

	evals     map[string]domain.Eval
	models    map[string]domain.Model
	runs      map[string]domain.EvalRun
	responses map[string][]domain.Response // keyed by run id, append order
	scores    map[string]domain.Score     // keyed by response id
	judgments map[string][]domain.Judgment // keyed by question id

	// aliases maps raw model identifiers to canonical price ids;
	// prices holds every dated snapshot per canonical id.
	aliases map[string]string
	prices  map[string][]domain.ModelPrice
}

var _ ports.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		evals:     make(map[string]domain.Eval),
		models:    make(map[string]domain.Model),
		runs:      make(map[string]domain.EvalRun),
		responses: make(map[string][]domain.Response),
		scores:    make(map[string]domain.Score),
		judgments: make(map[string][]domain.Judgment),
		aliases:   make(map[string]string),
		prices:    make(map[string][]domain.ModelPrice),
	}
}

// PutEval stores an eval with its questions. Question order is
// preserved as given.
func (s *MemoryStore) PutEval(eval domain.Eval) {
	s.mu.Lock()
	defer s.mu.Unlock()
	eval.Questions = append([]domain.Question(nil), eval.Questions...)
	s.evals[eval.ID] = eval
}

// PutModel stores a model record.
func (s *MemoryStore) PutModel(model domain.Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[model.ID] = model
}

// PutRun stores a run row as-is, without state-machine checks. Seeding
// only; transitions go through UpdateRunStatus.
func (s *MemoryStore) PutRun(run domain.EvalRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
}

// PutPrice records a dated price snapshot and registers its raw id as
// an alias of its canonical id.
func (s *MemoryStore) PutPrice(price domain.ModelPrice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliases[price.RawID] = price.CanonicalID
	s.prices[price.CanonicalID] = append(s.prices[price.CanonicalID], price)
}

// PutAlias registers an extra raw identifier for an existing canonical
// price id.
func (s *MemoryStore) PutAlias(rawID, canonicalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliases[rawID] = canonicalID
}

// GetEvalWithQuestions implements ports.Store.
func (s *MemoryStore) GetEvalWithQuestions(_ context.Context, evalID string) (domain.Eval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	eval, ok := s.evals[evalID]
	if !ok {
		return domain.Eval{}, fmt.Errorf("eval %q: %w", evalID, domain.ErrEvalNotFound)
	}
	eval.Questions = append([]domain.Question(nil), eval.Questions...)
	return eval, nil
}

// CountExistingModels implements ports.Store.
func (s *MemoryStore) CountExistingModels(_ context.Context, modelIDs []string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, id := range modelIDs {
		if _, ok := s.models[id]; ok {
			count++
		}
	}
	return count, nil
}

// GetModels implements ports.Store. Unknown ids are silently omitted;
// callers that care compare lengths (as the executor's precondition
// check does via CountExistingModels).
func (s *MemoryStore) GetModels(_ context.Context, modelIDs []string) ([]domain.Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	models := make([]domain.Model, 0, len(modelIDs))
	for _, id := range modelIDs {
		if model, ok := s.models[id]; ok {
			models = append(models, model)
		}
	}
	return models, nil
}

// GetRun implements ports.Store.
func (s *MemoryStore) GetRun(_ context.Context, runID string) (domain.EvalRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return domain.EvalRun{}, fmt.Errorf("run %q: %w", runID, domain.ErrRunNotFound)
	}
	return run, nil
}

// UpdateRunStatus implements ports.Store, rejecting transitions the
// domain state machine forbids.
func (s *MemoryStore) UpdateRunStatus(_ context.Context, runID string, status domain.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("run %q: %w", runID, domain.ErrRunNotFound)
	}
	if err := run.Transition(status, time.Now()); err != nil {
		return err
	}
	s.runs[runID] = run
	return nil
}

// CreateResponses implements ports.Store. The batch is appended
// atomically under the lock.
func (s *MemoryStore) CreateResponses(_ context.Context, batch []domain.Response) error {
	if len(batch) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	runID := batch[0].RunID
	s.responses[runID] = append(s.responses[runID], batch...)
	return nil
}

// ListResponses implements ports.Store.
func (s *MemoryStore) ListResponses(_ context.Context, runID string) ([]domain.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Response(nil), s.responses[runID]...), nil
}

// GetLatestPrice implements ports.Store: resolve the raw identifier
// through the alias chain, then return the snapshot with the most
// recent effective date for the canonical id. (nil, nil) when nothing
// resolves.
func (s *MemoryStore) GetLatestPrice(_ context.Context, rawModelIdentifier string) (*domain.ModelPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	canonical, ok := s.aliases[rawModelIdentifier]
	if !ok {
		return nil, nil
	}
	snapshots := s.prices[canonical]
	if len(snapshots) == 0 {
		return nil, nil
	}

	latest := snapshots[0]
	for _, snapshot := range snapshots[1:] {
		if snapshot.EffectiveDate.After(latest.EffectiveDate) {
			latest = snapshot
		}
	}
	return &latest, nil
}

// UpsertScore implements ports.Store.
func (s *MemoryStore) UpsertScore(_ context.Context, score domain.Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[score.ResponseID] = score
	return nil
}

// CreateJudgment implements ports.Store. Judgments accumulate; nothing
// is ever overwritten.
func (s *MemoryStore) CreateJudgment(_ context.Context, judgment domain.Judgment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.judgments[judgment.QuestionID] = append(s.judgments[judgment.QuestionID], judgment)
	return nil
}

// ListJudgments implements ports.Store.
func (s *MemoryStore) ListJudgments(_ context.Context, questionID string) ([]domain.Judgment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Judgment(nil), s.judgments[questionID]...), nil
}

// GetRunProgress implements ports.Store, deriving all counts from the
// persisted responses so successive polls observe monotonic values.
func (s *MemoryStore) GetRunProgress(_ context.Context, runID string) (domain.RunProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progressLocked(runID)
}

func (s *MemoryStore) progressLocked(runID string) (domain.RunProgress, error) {
	run, ok := s.runs[runID]
	if !ok {
		return domain.RunProgress{}, fmt.Errorf("run %q: %w", runID, domain.ErrRunNotFound)
	}

	progress := domain.RunProgress{RunID: runID, Status: run.Status}
	if eval, ok := s.evals[run.EvalID]; ok {
		progress.TotalQuestions = len(eval.Questions)
	}

	answered := make(map[string]struct{})
	for _, resp := range s.responses[runID] {
		progress.TotalResponses++
		if resp.Succeeded() {
			progress.Succeeded++
		} else {
			progress.Failed++
		}
		answered[resp.QuestionID] = struct{}{}
	}

	if progress.TotalQuestions > 0 {
		progress.Percent = float64(len(answered)) / float64(progress.TotalQuestions) * 100
	}
	return progress, nil
}

// GetRunResults implements ports.Store, joining questions, responses
// and scores for the run.
func (s *MemoryStore) GetRunResults(_ context.Context, runID string) (domain.RunResults, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return domain.RunResults{}, fmt.Errorf("run %q: %w", runID, domain.ErrRunNotFound)
	}

	results := domain.RunResults{Run: run}
	if eval, ok := s.evals[run.EvalID]; ok {
		results.Questions = append([]domain.Question(nil), eval.Questions...)
	}
	results.Responses = append([]domain.Response(nil), s.responses[runID]...)
	for _, resp := range results.Responses {
		if score, ok := s.scores[resp.ID]; ok {
			results.Scores = append(results.Scores, score)
		}
	}

	progress, err := s.progressLocked(runID)
	if err != nil {
		return domain.RunResults{}, err
	}
	results.Progress = progress

	return results, nil
}
