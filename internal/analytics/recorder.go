// Package analytics keeps the process-lifetime query aggregate. A single
// Recorder is created at startup and shared by reference; its counters are
// reset only by a restart.
package analytics

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kbassist/backend/internal/metrics"
	"github.com/kbassist/backend/internal/storage/models"
	"github.com/kbassist/backend/pkg/logger"
)

const topQueryLimit = 10

const UnknownLanguage = "unknown"

// Checked in order; the first matching pattern wins.
var languagePatterns = []struct {
	code    string
	pattern *regexp.Regexp
}{
	{"en", regexp.MustCompile(`^[a-zA-Z\s]+$`)},
	{"es", regexp.MustCompile(`(?i)^[a-záéíóúüñ\s]+$`)},
	{"fr", regexp.MustCompile(`(?i)^[a-zàâçéèêëîïôûùüÿæœ\s]+$`)},
}

type QueryCount struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

type Report struct {
	TotalQueries                int            `json:"totalQueries"`
	AIGeneratedQueries          int            `json:"aiGeneratedQueries"`
	CachedQueries               int            `json:"cachedQueries"`
	QueryDistributionByLanguage map[string]int `json:"queryDistributionByLanguage"`
	TopQueries                  []QueryCount   `json:"topQueries"`
	CacheHitRate                float64        `json:"cacheHitRate"`
	FeedbackByRating            map[string]int `json:"feedbackByRating"`
}

type Recorder struct {
	mu            sync.Mutex
	total         int
	aiGenerated   int
	cached        int
	byLanguage    map[string]int
	commonQueries map[string]int
	feedback      map[int]int
	log           *zap.Logger
}

func NewRecorder() *Recorder {
	return &Recorder{
		byLanguage:    make(map[string]int),
		commonQueries: make(map[string]int),
		feedback:      make(map[int]int),
		log:           logger.GetLogger().With(zap.String("component", "analytics")),
	}
}

// TrackQuery counts one delivered answer.
func (r *Recorder) TrackQuery(query, response string, source models.ResponseSource) {
	language := DetectLanguage(query)
	normalized := NormalizeQuery(query)

	r.mu.Lock()
	r.total++
	switch source {
	case models.SourceAI:
		r.aiGenerated++
	case models.SourceCache:
		r.cached++
	}
	r.byLanguage[language]++
	r.commonQueries[normalized]++
	r.mu.Unlock()

	r.log.Info("Query tracked",
		zap.String("source", string(source)),
		zap.String("language", language),
		zap.Int("response_length", len(response)),
	)
}

func (r *Recorder) TrackFeedback(queryID string, rating int) {
	r.mu.Lock()
	r.feedback[rating]++
	r.mu.Unlock()

	metrics.FeedbackRatings.WithLabelValues(strconv.Itoa(rating)).Inc()
	r.log.Info("Feedback tracked", zap.String("query_id", queryID), zap.Int("rating", rating))
}

// Report snapshots the aggregate. The cache hit rate is a percentage and is
// 0 before any query has been tracked.
func (r *Recorder) Report() Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	report := Report{
		TotalQueries:                r.total,
		AIGeneratedQueries:          r.aiGenerated,
		CachedQueries:               r.cached,
		QueryDistributionByLanguage: make(map[string]int, len(r.byLanguage)),
		TopQueries:                  topQueries(r.commonQueries, topQueryLimit),
		FeedbackByRating:            make(map[string]int, len(r.feedback)),
	}
	for lang, n := range r.byLanguage {
		report.QueryDistributionByLanguage[lang] = n
	}
	for rating, n := range r.feedback {
		report.FeedbackByRating[strconv.Itoa(rating)] = n
	}
	if r.total > 0 {
		report.CacheHitRate = float64(r.cached) / float64(r.total) * 100
	}

	r.log.Info("Analytics report generated",
		zap.Int("total_queries", report.TotalQueries),
		zap.Float64("cache_hit_rate", report.CacheHitRate),
	)

	return report
}

func topQueries(counts map[string]int, limit int) []QueryCount {
	out := make([]QueryCount, 0, len(counts))
	for q, n := range counts {
		out = append(out, QueryCount{Query: q, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Query < out[j].Query
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// DetectLanguage is a best-effort guess from the characters used. Anything
// containing digits or punctuation is unknown.
func DetectLanguage(query string) string {
	for _, lp := range languagePatterns {
		if lp.pattern.MatchString(query) {
			return lp.code
		}
	}
	return UnknownLanguage
}

func NormalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}
