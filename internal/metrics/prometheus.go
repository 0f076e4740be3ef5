package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_turns_total",
			Help: "Total turns processed, by final status",
		},
		[]string{"status"},
	)

	TurnDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "concierge_turn_duration_seconds",
			Help:    "End-to-end turn duration in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "concierge_cache_hits_total",
			Help: "Response cache hits",
		},
	)

	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "concierge_cache_misses_total",
			Help: "Response cache misses, including expired entries",
		},
	)

	ReflectionIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "concierge_reflection_iterations",
			Help:    "Regeneration attempts per turn",
			Buckets: []float64{0, 1, 2, 3},
		},
	)

	ConfidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "concierge_confidence_score",
			Help:    "Final confidence score per turn",
			Buckets: []float64{0.3, 0.5, 0.9},
		},
	)

	PIIDetections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "concierge_pii_detections_total",
			Help: "Personal data spans redacted from responses",
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"type"},
	)
)

func Init() {
	prometheus.MustRegister(TurnsTotal)
	prometheus.MustRegister(TurnDuration)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(ReflectionIterations)
	prometheus.MustRegister(ConfidenceScore)
	prometheus.MustRegister(PIIDetections)
	prometheus.MustRegister(LLMTokensUsed)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
