// Package middleware provides cross-cutting concerns for the evaluation
// engine, currently the Prometheus metrics collector.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics implements ports.MetricsCollector using Prometheus.
// It covers the engine's three metric surfaces: run outcomes, pipeline
// passes, and per-request LLM traffic.
type PrometheusMetrics struct {
	runsTotal     *prometheus.CounterVec
	runErrors     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	passesTotal   *prometheus.CounterVec
	llmRequests   *prometheus.CounterVec
	llmTokens     *prometheus.CounterVec
	llmLatency    *prometheus.HistogramVec
	genericGauges *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a collector and registers its metric
// families with the given registerer. Pass prometheus.DefaultRegisterer
// for the global registry.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eval_runs_total",
				Help: "Evaluation runs reaching a terminal status.",
			},
			[]string{"status"},
		),
		runErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eval_run_errors_total",
				Help: "Per-pair errors accumulated across runs, split by kind (execution vs pricing).",
			},
			[]string{"kind"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eval_run_duration_seconds",
				Help:    "Wall-clock duration of complete evaluation runs.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"status"},
		),
		passesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eval_pipeline_passes_total",
				Help: "Completed scoring and judging passes.",
			},
			[]string{"pipeline"},
		),
		llmRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "LLM backend requests by provider, model, and outcome.",
			},
			[]string{"provider", "model", "status"},
		),
		llmTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Tokens consumed by LLM requests, split by direction.",
			},
			[]string{"provider", "model", "token_type"},
		),
		llmLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_latency_seconds",
				Help:    "LLM request latency by provider, model, and outcome.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "model", "status"},
		),
		genericGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "eval_engine_state",
				Help: "Current engine state values.",
			},
			[]string{"metric"},
		),
	}
}

// RecordLatency records operation latency. Run execution feeds the run
// duration histogram; anything else lands in the LLM latency family.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	if operation == "run_execution" {
		pm.runDuration.WithLabelValues(labels["status"]).Observe(duration.Seconds())
		return
	}
	pm.llmLatency.WithLabelValues(
		labels["provider"], labels["model"], labels["status"],
	).Observe(duration.Seconds())
}

// RecordCounter routes counter increments to the matching family.
// Unknown metric names are dropped rather than registered on the fly;
// every family this engine emits is declared at construction.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case "eval_runs_total":
		pm.runsTotal.WithLabelValues(labels["status"]).Add(value)
	case "eval_run_errors_total":
		pm.runErrors.WithLabelValues(labels["kind"]).Add(value)
	case "scoring_passes_total":
		pm.passesTotal.WithLabelValues("scoring").Add(value)
	case "judging_passes_total":
		pm.passesTotal.WithLabelValues("judging").Add(value)
	case "llm_requests_total":
		pm.llmRequests.WithLabelValues(
			labels["provider"], labels["model"], labels["status"],
		).Add(value)
	case "llm_tokens_total":
		pm.llmTokens.WithLabelValues(
			labels["provider"], labels["model"], labels["token_type"],
		).Add(value)
	}
}

// RecordGauge sets a named engine state value.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, _ map[string]string) {
	pm.genericGauges.WithLabelValues(metric).Set(value)
}

// RecordHistogram records a distribution sample. LLM latency is the
// only histogram emitted through this path today.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	if metric == "llm_latency_seconds" {
		pm.llmLatency.WithLabelValues(
			labels["provider"], labels["model"], labels["status"],
		).Observe(value)
	}
}
