package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clara_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clara_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clara_requests_total",
		Help: "Total orchestrated assistant requests",
	}, []string{"status"})

	RequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clara_request_duration_seconds",
		Help:    "End-to-end assistant request duration",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clara_stage_duration_seconds",
		Help:    "Per-stage orchestrator duration",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"stage"})

	ToolInvocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clara_tool_invocations_total",
		Help: "Total tool invocations",
	}, []string{"tool", "status"})

	ToolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clara_tool_duration_seconds",
		Help:    "Tool execution duration",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"tool"})

	LLMRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clara_llm_requests_total",
		Help: "Total LLM requests",
	}, []string{"model", "status"})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clara_llm_request_duration_seconds",
		Help:    "LLM request duration",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"model"})

	EmbeddingCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clara_embedding_cache_hits_total",
		Help: "Embedding cache hits",
	})

	EmbeddingCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clara_embedding_cache_misses_total",
		Help: "Embedding cache misses",
	})

	EmbeddingCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clara_embedding_cache_evictions_total",
		Help: "Embedding cache evictions",
	})

	EmbeddingCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clara_embedding_cache_size",
		Help: "Current embedding cache entries",
	})

	VoicePhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clara_voice_phase_duration_seconds",
		Help:    "Voice pipeline phase duration (stt, agent, tts, end_to_end)",
		Buckets: []float64{0.1, 0.2, 0.5, 1, 2, 5, 10},
	}, []string{"phase"})

	MessagesIngestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clara_messages_ingested_total",
		Help: "Webhook messages ingested",
	}, []string{"result"})
)
