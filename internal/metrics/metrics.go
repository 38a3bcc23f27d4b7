// Package metrics holds the Prometheus collectors for model attempts.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Attempt outcomes.
const (
	OutcomeParsed      = "parsed"
	OutcomeUnparsable  = "unparsable"
	OutcomeStreamError = "stream_error"
)

// Token kinds reported by the model's usage metadata.
const (
	TokensPrompt     = "prompt"
	TokensCompletion = "completion"
	TokensTotal      = "total"
	TokensThinking   = "thinking"
	TokensCached     = "cached"
)

var (
	// attempts counts model attempts.
	// Labels: analysis_type, prompt (variant name), outcome
	attempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "session_analyzer",
		Subsystem: "analysis",
		Name:      "attempts_total",
		Help:      "Model attempts by analysis type, prompt variant and outcome",
	}, []string{"analysis_type", "prompt", "outcome"})

	// recoveries counts which extraction strategy produced the record.
	recoveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "session_analyzer",
		Subsystem: "analysis",
		Name:      "json_recoveries_total",
		Help:      "Recovered records by extraction strategy",
	}, []string{"strategy"})

	// fallbacks counts retry cycles that only succeeded on the second attempt.
	fallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "session_analyzer",
		Subsystem: "analysis",
		Name:      "fallbacks_total",
		Help:      "Realtime analyses that succeeded on the fallback prompt",
	})

	// exhausted counts retry cycles where both attempts failed.
	exhausted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "session_analyzer",
		Subsystem: "analysis",
		Name:      "exhausted_total",
		Help:      "Realtime analyses where both prompts failed",
	})

	latency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "session_analyzer",
		Subsystem: "analysis",
		Name:      "latency_seconds",
		Help:      "End-to-end model attempt latency",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60, 120},
	}, []string{"analysis_type", "model"})

	ttft = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "session_analyzer",
		Subsystem: "analysis",
		Name:      "time_to_first_token_seconds",
		Help:      "Time until the first non-empty chunk",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15},
	}, []string{"analysis_type", "model"})

	// tokens sums reported token usage.
	// Labels: analysis_type, model, kind (prompt, completion, total, thinking, cached)
	tokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "session_analyzer",
		Subsystem: "analysis",
		Name:      "tokens_total",
		Help:      "Tokens reported by the model, by kind",
	}, []string{"analysis_type", "model", "kind"})
)

func RecordAttempt(analysisType, prompt, outcome string) {
	attempts.WithLabelValues(analysisType, prompt, outcome).Inc()
}

func RecordRecovery(strategy string) {
	recoveries.WithLabelValues(strategy).Inc()
}

func RecordFallback() { fallbacks.Inc() }

func RecordExhausted() { exhausted.Inc() }

// ObserveLatency records total latency and, when present, time to first token.
func ObserveLatency(analysisType, model string, total time.Duration, firstToken *time.Duration) {
	latency.WithLabelValues(analysisType, model).Observe(total.Seconds())
	if firstToken != nil {
		ttft.WithLabelValues(analysisType, model).Observe(firstToken.Seconds())
	}
}

// RecordTokens adds n tokens of kind. Counts the model did not report are
// skipped.
func RecordTokens(analysisType, model, kind string, n *int64) {
	if n == nil || *n <= 0 {
		return
	}
	tokens.WithLabelValues(analysisType, model, kind).Add(float64(*n))
}
