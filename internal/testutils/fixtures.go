package testutils

import (
	"fmt"
	"time"

	"github.com/ahrav/go-evalrun/internal/domain"
	"github.com/ahrav/go-evalrun/infrastructure/storage"
)

// Fixture bundles a seeded store with the identifiers of what it holds,
// so tests can trigger runs without re-deriving ids.
type Fixture struct {
	Store  *storage.MemoryStore
	Eval   domain.Eval
	Models []domain.Model
	Run    domain.EvalRun
}

// NewFixture seeds a memory store with an eval of questionCount
// questions, modelCount models with prices, and one PENDING run. The
// canonical test topology for executor scenarios.
func NewFixture(questionCount, modelCount int) *Fixture {
	store := storage.NewMemoryStore()
	now := time.Now()

	eval := domain.Eval{
		ID:        "eval-1",
		Name:      "capital cities",
		CreatedAt: now,
	}
	for i := range questionCount {
		eval.Questions = append(eval.Questions, domain.Question{
			ID:      fmt.Sprintf("q-%d", i+1),
			EvalID:  eval.ID,
			Text:    fmt.Sprintf("What is the capital of country %d?", i+1),
			Version: 1,
		})
	}
	store.PutEval(eval)

	models := make([]domain.Model, 0, modelCount)
	for i := range modelCount {
		model := domain.Model{
			ID:         fmt.Sprintf("m-%d", i+1),
			Identifier: fmt.Sprintf("test-model-%d", i+1),
			Provider:   "openai",
		}
		store.PutModel(model)
		store.PutPrice(domain.ModelPrice{
			RawID:          model.Identifier,
			CanonicalID:    model.Identifier,
			InputUSDPer1M:  3.0,
			OutputUSDPer1M: 15.0,
			EffectiveDate:  now,
		})
		models = append(models, model)
	}

	run := domain.EvalRun{
		ID:        "run-1",
		EvalID:    eval.ID,
		Status:    domain.RunStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	store.PutRun(run)

	return &Fixture{Store: store, Eval: eval, Models: models, Run: run}
}

// ModelIDs returns the fixture's model ids in creation order.
func (f *Fixture) ModelIDs() []string {
	ids := make([]string, len(f.Models))
	for i, m := range f.Models {
		ids[i] = m.ID
	}
	return ids
}

// UnpricedModel adds a model with no price snapshot and no static
// costs, for exercising the pricing-gap policy.
func (f *Fixture) UnpricedModel(id, identifier string) domain.Model {
	model := domain.Model{ID: id, Identifier: identifier, Provider: "openai"}
	f.Store.PutModel(model)
	f.Models = append(f.Models, model)
	return model
}
