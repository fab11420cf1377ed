package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_sessions_started_total",
		Help: "Quiz attempts started.",
	})
	SessionsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_sessions_completed_total",
		Help: "Quiz attempts that reached the final question.",
	})
	SessionsAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_sessions_abandoned_total",
		Help: "Quiz attempts stopped before completion.",
	})
	QuestionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_questions_expired_total",
		Help: "Questions finalized by countdown expiry.",
	})
	ResultsComputed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quiz_results_computed_total",
		Help: "Results computed, by source (attempt or ledger).",
	}, []string{"source"})
	ExplanationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_explanation_failures_total",
		Help: "Batched explanation requests that failed and were dropped.",
	})
	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quiz_llm_requests_total",
		Help: "Model requests by model and outcome.",
	}, []string{"model", "outcome"})
	LLMLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quiz_llm_request_seconds",
		Help:    "Model request latency.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
	})
	ExplanationCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_explanation_cache_hits_total",
		Help: "Explanations served from cache.",
	})
)
