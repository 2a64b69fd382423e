package main

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-evalrun/internal/domain"
)

// Duration wraps time.Duration so YAML values like "45s" parse
// directly.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// ModelConfig describes one model record to seed.
type ModelConfig struct {
	ID            string `yaml:"id" validate:"required"`
	Identifier    string `yaml:"identifier" validate:"required"`
	Provider      string `yaml:"provider" validate:"required,oneof=openai anthropic google"`
	BaseURL       string `yaml:"base_url"`
	CredentialEnv string `yaml:"credential_env" validate:"required"`
}

// QuestionConfig describes one question of the eval under test.
type QuestionConfig struct {
	ID              string `yaml:"id" validate:"required"`
	Text            string `yaml:"text" validate:"required"`
	ReferenceAnswer string `yaml:"reference_answer"`
}

// PriceConfig describes one dated price snapshot to seed.
type PriceConfig struct {
	RawID          string    `yaml:"raw_id" validate:"required"`
	CanonicalID    string    `yaml:"canonical_id" validate:"required"`
	InputUSDPer1M  float64   `yaml:"input_usd_per_1m" validate:"min=0"`
	OutputUSDPer1M float64   `yaml:"output_usd_per_1m" validate:"min=0"`
	EffectiveDate  time.Time `yaml:"effective_date"`
}

// Config is the top-level YAML configuration for an evalrun invocation.
type Config struct {
	EvalName  string           `yaml:"eval_name" validate:"required"`
	Questions []QuestionConfig `yaml:"questions" validate:"required,min=1,dive"`
	Models    []ModelConfig    `yaml:"models" validate:"required,min=1,dive"`
	Prices    []PriceConfig    `yaml:"prices" validate:"dive"`

	// TargetModelIDs selects which seeded models the run executes
	// against. Empty means all of them.
	TargetModelIDs []string `yaml:"target_model_ids"`

	// ScorerModelID and JudgeModelIDs select the verdict models;
	// empty disables the corresponding pass.
	ScorerModelID string   `yaml:"scorer_model_id"`
	JudgeModelIDs []string `yaml:"judge_model_ids"`

	// JudgingRubric overrides the built-in rubric when set.
	JudgingRubric string `yaml:"judging_rubric"`

	Temperature *float64 `yaml:"temperature" validate:"omitempty,min=0,max=2"`
	MaxTokens   int      `yaml:"max_tokens" validate:"min=0"`
	CallTimeout Duration `yaml:"call_timeout"`

	// MetricsAddr, when set, serves Prometheus metrics on this address.
	MetricsAddr string `yaml:"metrics_addr"`
}

// LoadConfig reads and validates the YAML configuration at path.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &config, nil
}

// Eval builds the domain eval from the configured questions.
func (c *Config) Eval(evalID string, now time.Time) domain.Eval {
	eval := domain.Eval{
		ID:        evalID,
		Name:      c.EvalName,
		CreatedAt: now,
	}
	for _, q := range c.Questions {
		eval.Questions = append(eval.Questions, domain.Question{
			ID:              q.ID,
			EvalID:          evalID,
			Text:            q.Text,
			ReferenceAnswer: q.ReferenceAnswer,
			Version:         1,
		})
	}
	return eval
}
