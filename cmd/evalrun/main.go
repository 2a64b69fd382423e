// Command evalrun executes a YAML-defined eval against a set of models
// and prints the per-question results, costs, and scores. It is the
// composition root: the only place that reads the process environment
// and assembles the engine's collaborators.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-evalrun/infrastructure/llm"
	"github.com/ahrav/go-evalrun/infrastructure/middleware"
	"github.com/ahrav/go-evalrun/infrastructure/storage"
	"github.com/ahrav/go-evalrun/internal/application"
	"github.com/ahrav/go-evalrun/internal/domain"
)

func main() {
	var (
		configPath = flag.String("config", "evalrun.yaml", "Path to the run configuration")
		pollEvery  = flag.Duration("poll", 2*time.Second, "Progress polling interval")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := run(*configPath, *pollEvery, logger); err != nil {
		logger.Error("evalrun failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, pollEvery time.Duration, logger *slog.Logger) error {
	config, err := LoadConfig(configPath)
	if err != nil {
		return err
	}

	metrics := middleware.NewPrometheusMetrics(prometheus.DefaultRegisterer)
	if config.MetricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(config.MetricsAddr, nil); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	// Resolve credentials from the environment here, once; nothing
	// downstream reads ambient state.
	credentials := make(llm.Credentials)
	for _, m := range config.Models {
		if secret := os.Getenv(m.CredentialEnv); secret != "" {
			credentials[m.CredentialEnv] = secret
		}
	}

	estimator := llm.NewCachingTokenEstimator(llm.NewWordBasedTokenEstimator(0.75), 4096)
	backend := llm.NewDispatcher(llm.DispatcherConfig{
		Credentials:    credentials,
		DefaultTimeout: time.Duration(config.CallTimeout),
		Middleware: []llm.Middleware{
			llm.TracingMiddleware("evalrun"),
			llm.RetryMiddleware(3, time.Second, 30*time.Second),
			llm.RateLimitMiddleware(rate.Limit(5), 10),
			llm.CircuitBreakerMiddleware(5, 30*time.Second),
		},
		Metrics:   metrics,
		Estimator: estimator,
	})

	store := storage.NewMemoryStore()
	now := time.Now()

	eval := config.Eval(uuid.NewString(), now)
	store.PutEval(eval)

	targetIDs := config.TargetModelIDs
	for _, m := range config.Models {
		store.PutModel(domain.Model{
			ID:            m.ID,
			Identifier:    m.Identifier,
			Provider:      m.Provider,
			BaseURL:       m.BaseURL,
			CredentialEnv: m.CredentialEnv,
		})
		if len(config.TargetModelIDs) == 0 {
			targetIDs = append(targetIDs, m.ID)
		}
	}
	for _, p := range config.Prices {
		store.PutPrice(domain.ModelPrice{
			RawID:          p.RawID,
			CanonicalID:    p.CanonicalID,
			InputUSDPer1M:  p.InputUSDPer1M,
			OutputUSDPer1M: p.OutputUSDPer1M,
			EffectiveDate:  p.EffectiveDate,
		})
	}

	runRow := domain.EvalRun{
		ID:        uuid.NewString(),
		EvalID:    eval.ID,
		Status:    domain.RunStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	store.PutRun(runRow)

	executor, err := application.NewExecutor(store, backend, estimator, metrics, logger,
		application.ExecutorConfig{
			Temperature: config.Temperature,
			MaxTokens:   config.MaxTokens,
			CallTimeout: time.Duration(config.CallTimeout),
		})
	if err != nil {
		return err
	}

	logger.Info("starting run", "run_id", runRow.ID, "eval", eval.Name,
		"questions", len(eval.Questions), "models", len(targetIDs))

	if err := executor.StartRun(runRow.ID, eval.ID, targetIDs); err != nil {
		return err
	}

	ctx := context.Background()
	final, err := pollUntilTerminal(ctx, store, runRow.ID, pollEvery, logger)
	if err != nil {
		return err
	}
	logger.Info("run finished", "run_id", runRow.ID, "status", string(final))

	similarity, err := application.NewSimilarityScorer(store, logger)
	if err != nil {
		return err
	}
	if err := similarity.ScoreRun(ctx, runRow.ID); err != nil {
		logger.Warn("similarity pass failed", "error", err)
	}

	if config.ScorerModelID != "" {
		scorer, err := application.NewScorer(store, backend, metrics, logger, config.MaxTokens)
		if err != nil {
			return err
		}
		if err := scorer.StartScoring(ctx, runRow.ID, config.ScorerModelID); err != nil {
			return err
		}
		scorer.Wait()
	}

	if len(config.JudgeModelIDs) > 0 {
		judge, err := application.NewJudge(store, backend, metrics, logger, config.MaxTokens)
		if err != nil {
			return err
		}
		if err := judge.StartJudging(ctx, eval.ID, config.JudgeModelIDs, config.JudgingRubric); err != nil {
			return err
		}
		judge.Wait()
	}

	return printResults(ctx, store, runRow.ID)
}

// pollUntilTerminal reports progress until the run reaches a terminal
// status.
func pollUntilTerminal(
	ctx context.Context,
	store *storage.MemoryStore,
	runID string,
	every time.Duration,
	logger *slog.Logger,
) (domain.RunStatus, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		progress, err := store.GetRunProgress(ctx, runID)
		if err != nil {
			return "", err
		}
		logger.Info("progress",
			"percent", fmt.Sprintf("%.0f%%", progress.Percent),
			"responses", progress.TotalResponses,
			"succeeded", progress.Succeeded,
			"failed", progress.Failed)

		if progress.Status.IsTerminal() {
			return progress.Status, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// printResults writes the question/response/score join to stdout.
func printResults(ctx context.Context, store *storage.MemoryStore, runID string) error {
	results, err := store.GetRunResults(ctx, runID)
	if err != nil {
		return err
	}

	scores := make(map[string]domain.Score, len(results.Scores))
	for _, s := range results.Scores {
		scores[s.ResponseID] = s
	}
	questions := make(map[string]string, len(results.Questions))
	for _, q := range results.Questions {
		questions[q.ID] = q.Text
	}

	fmt.Printf("run %s: %s (%d/%d succeeded)\n\n",
		results.Run.ID, results.Run.Status,
		results.Progress.Succeeded, results.Progress.TotalResponses)

	for _, resp := range results.Responses {
		fmt.Printf("question: %s\n", questions[resp.QuestionID])
		fmt.Printf("  model=%s duration=%dms", resp.ModelID, resp.DurationMS)
		if resp.CostUSD != nil {
			fmt.Printf(" cost=$%.6f", *resp.CostUSD)
		}
		fmt.Println()

		switch {
		case resp.Error != nil && resp.Text == nil:
			fmt.Printf("  error: %s\n", *resp.Error)
		case resp.Error != nil:
			fmt.Printf("  answer: %s\n  warning: %s\n", *resp.Text, *resp.Error)
		default:
			fmt.Printf("  answer: %s\n", *resp.Text)
		}

		if score, ok := scores[resp.ID]; ok {
			if score.Value != nil {
				fmt.Printf("  score: %.1f (%s) %s\n", *score.Value, score.Scorer, score.Justification)
			} else if score.Error != nil {
				fmt.Printf("  score error: %s\n", *score.Error)
			}
		}
		fmt.Println()
	}

	return nil
}
