package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kbassist_query_duration_seconds",
			Help:    "Query pipeline duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"source"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbassist_query_total",
			Help: "Total number of queries processed",
		},
		[]string{"source"},
	)

	QueryErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbassist_query_errors_total",
			Help: "Total number of queries that failed in a pipeline stage",
		},
		[]string{"stage"},
	)

	ConfidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kbassist_confidence_score",
			Help:    "Generated answer confidence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	RetrievedPassages = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kbassist_retrieved_passages",
			Help:    "Number of passages retrieved per query",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbassist_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbassist_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	TranslationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbassist_translation_failures_total",
			Help: "Translation calls that fell back to the original text",
		},
		[]string{"target_language"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbassist_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	FeedbackRatings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbassist_feedback_ratings_total",
			Help: "Feedback submissions by rating",
		},
		[]string{"rating"},
	)

	ReviewFlags = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kbassist_review_flags_total",
			Help: "Queries flagged for human review",
		},
	)

	DocumentsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kbassist_documents_processed_total",
			Help: "Total knowledge documents processed",
		},
	)

	UpstreamFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbassist_upstream_failures_total",
			Help: "Failed calls to external backends",
		},
		[]string{"backend"},
	)
)

func Init() {
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(QueryErrors)
	prometheus.MustRegister(ConfidenceScore)
	prometheus.MustRegister(RetrievedPassages)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(TranslationFailures)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(FeedbackRatings)
	prometheus.MustRegister(ReviewFlags)
	prometheus.MustRegister(DocumentsProcessed)
	prometheus.MustRegister(UpstreamFailures)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
