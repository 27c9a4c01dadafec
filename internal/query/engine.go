package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kbassist/backend/internal/llm"
	"github.com/kbassist/backend/internal/metrics"
	"github.com/kbassist/backend/internal/storage/models"
	"github.com/kbassist/backend/pkg/logger"
)

var (
	ErrRetrieval  = errors.New("retrieval failed")
	ErrGeneration = errors.New("generation failed")
)

type Translator interface {
	Translate(ctx context.Context, text, targetLanguage string) string
	ToWorkingLanguage(ctx context.Context, text, sourceLanguage string) string
}

type ResponseCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type Retriever interface {
	Retrieve(ctx context.Context, query string) (string, error)
}

type Generator interface {
	GenerateResponse(ctx context.Context, query, retrievedContext string, caller llm.CallerContext) (string, error)
}

type Scorer interface {
	Score(text string) float64
}

type Recorder interface {
	TrackQuery(query, response string, source models.ResponseSource)
}

type QueryLog interface {
	InsertQueryRecord(ctx context.Context, record *models.QueryRecord) error
}

type Config struct {
	WorkingLanguage     string
	ConfidenceThreshold float64
	CacheTTL            time.Duration
	AdvisoryMessage     string
}

type Engine struct {
	translator Translator
	cache      ResponseCache
	retriever  Retriever
	generator  Generator
	scorer     Scorer
	recorder   Recorder
	queryLog   QueryLog
	cfg        Config
	now        func() time.Time
}

type Request struct {
	Query    string
	Language string
	Context  llm.CallerContext
	UserID   string
}

type Response struct {
	QueryID    string                `json:"queryId"`
	Text       string                `json:"response"`
	Confidence *float64              `json:"confidence,omitempty"`
	Source     models.ResponseSource `json:"source"`
}

func NewEngine(
	translator Translator,
	cache ResponseCache,
	retriever Retriever,
	generator Generator,
	scorer Scorer,
	recorder Recorder,
	queryLog QueryLog,
	cfg Config,
) *Engine {
	if cfg.WorkingLanguage == "" {
		cfg.WorkingLanguage = "en"
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	return &Engine{
		translator: translator,
		cache:      cache,
		retriever:  retriever,
		generator:  generator,
		scorer:     scorer,
		recorder:   recorder,
		queryLog:   queryLog,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Normalize lower-cases and trims working-language query text.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// CacheKey is the normalized query for working-language requests. Answers for
// other languages are stored back-translated, so the declared language is
// appended to keep them apart.
func (e *Engine) CacheKey(normalized, language string) string {
	if e.isWorkingLanguage(language) {
		return normalized
	}
	return normalized + "#" + strings.ToLower(language)
}

func (e *Engine) isWorkingLanguage(language string) bool {
	return strings.EqualFold(language, e.cfg.WorkingLanguage)
}

// Resolve runs one query through the pipeline. It returns ErrRetrieval or
// ErrGeneration (wrapped) when a hard-fail stage fails, in which case neither
// the cache nor analytics have been touched.
func (e *Engine) Resolve(ctx context.Context, req Request) (*Response, error) {
	start := e.now()
	queryID := uuid.New().String()

	logger.Info("Processing query",
		zap.String("query_id", queryID),
		zap.String("language", req.Language),
	)

	working := req.Query
	if !e.isWorkingLanguage(req.Language) {
		working = e.translator.ToWorkingLanguage(ctx, req.Query, req.Language)
	}
	normalized := Normalize(working)
	key := e.CacheKey(normalized, req.Language)

	cached, hit, err := e.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("Cache lookup failed, treating as miss", zap.Error(err))
	}
	if err == nil && hit {
		e.recorder.TrackQuery(req.Query, cached, models.SourceCache)
		resp := &Response{QueryID: queryID, Text: cached, Source: models.SourceCache}
		e.finish(ctx, req, normalized, resp, 0, start)
		return resp, nil
	}

	retrieved, err := e.retriever.Retrieve(ctx, normalized)
	if err != nil {
		metrics.QueryErrors.WithLabelValues("retrieval").Inc()
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}

	completion, err := e.generator.GenerateResponse(ctx, working, retrieved, req.Context)
	if err != nil {
		metrics.QueryErrors.WithLabelValues("generation").Inc()
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	score := e.scorer.Score(completion)
	metrics.ConfidenceScore.Observe(score)

	if score < e.cfg.ConfidenceThreshold {
		logger.Info("Answer below confidence threshold",
			zap.String("query_id", queryID),
			zap.Float64("confidence", score),
			zap.Float64("threshold", e.cfg.ConfidenceThreshold),
		)
		resp := &Response{
			QueryID:    queryID,
			Text:       e.cfg.AdvisoryMessage,
			Confidence: &score,
			Source:     models.SourceLowConfidence,
		}
		e.finish(ctx, req, normalized, resp, score, start)
		return resp, nil
	}

	final := completion
	if !e.isWorkingLanguage(req.Language) {
		final = e.translator.Translate(ctx, completion, req.Language)
	}

	if err := e.cache.Set(ctx, key, final, e.cfg.CacheTTL); err != nil {
		logger.Error("Failed to cache response", zap.String("query_id", queryID), zap.Error(err))
	}

	e.recorder.TrackQuery(req.Query, final, models.SourceAI)

	resp := &Response{QueryID: queryID, Text: final, Confidence: &score, Source: models.SourceAI}
	e.finish(ctx, req, normalized, resp, score, start)
	return resp, nil
}

// finish persists the query log entry and records metrics for a completed
// resolution. Log persistence failures do not affect the response.
func (e *Engine) finish(ctx context.Context, req Request, normalized string, resp *Response, score float64, start time.Time) {
	elapsed := e.now().Sub(start)
	metrics.QueryTotal.WithLabelValues(string(resp.Source)).Inc()
	metrics.QueryDuration.WithLabelValues(string(resp.Source)).Observe(elapsed.Seconds())

	if e.queryLog != nil {
		record := &models.QueryRecord{
			ID:              resp.QueryID,
			UserID:          req.UserID,
			QueryText:       req.Query,
			NormalizedQuery: normalized,
			Language:        req.Language,
			Response:        resp.Text,
			Source:          resp.Source,
			Confidence:      score,
			LatencyMS:       int(elapsed.Milliseconds()),
			CreatedAt:       e.now(),
		}
		if err := e.queryLog.InsertQueryRecord(ctx, record); err != nil {
			logger.Error("Failed to persist query record", zap.String("query_id", resp.QueryID), zap.Error(err))
		}
	}

	logger.Info("Query processed",
		zap.String("query_id", resp.QueryID),
		zap.String("source", string(resp.Source)),
		zap.Float64("confidence", score),
		zap.Duration("latency", elapsed),
	)
}
