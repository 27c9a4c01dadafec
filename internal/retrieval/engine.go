// Package retrieval turns a query into a grounded context block by embedding
// it and collecting the nearest knowledge base chunks.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kbassist/backend/internal/metrics"
	"github.com/kbassist/backend/internal/vector/zilliz"
	"github.com/kbassist/backend/pkg/logger"
	"github.com/kbassist/backend/pkg/utils"
)

const passageSeparator = "\n\n"

type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type VectorSearcher interface {
	Search(ctx context.Context, queryEmbedding []float32, topK int, filters map[string]string) ([]zilliz.SearchResult, error)
}

// EmbeddingCache is optional. Cache errors never fail a retrieval.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
}

type Engine struct {
	embedder Embedder
	searcher VectorSearcher
	cache    EmbeddingCache
	cacheTTL time.Duration
	topK     int
}

func NewEngine(embedder Embedder, searcher VectorSearcher, topK int) *Engine {
	if topK <= 0 {
		topK = 5
	}
	return &Engine{
		embedder: embedder,
		searcher: searcher,
		topK:     topK,
	}
}

func (e *Engine) WithEmbeddingCache(cache EmbeddingCache, ttl time.Duration) *Engine {
	e.cache = cache
	e.cacheTTL = ttl
	return e
}

// Retrieve returns the content of the topK most similar chunks joined by a
// blank line, most similar first. Embedding and search failures are returned.
func (e *Engine) Retrieve(ctx context.Context, query string) (string, error) {
	results, err := e.Search(ctx, query, e.topK, nil)
	if err != nil {
		return "", err
	}

	metrics.RetrievedPassages.Observe(float64(len(results)))
	return CombinePassages(results), nil
}

// Search exposes the raw ranked matches for knowledge base lookups.
func (e *Engine) Search(ctx context.Context, query string, topK int, filters map[string]string) ([]zilliz.SearchResult, error) {
	embedding, err := e.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := e.searcher.Search(ctx, embedding, topK, filters)
	if err != nil {
		metrics.UpstreamFailures.WithLabelValues("vector").Inc()
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}

	logger.Debug("Retrieval completed", zap.Int("results", len(results)))
	return results, nil
}

func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	if e.cache == nil {
		return e.embedder.GenerateEmbedding(ctx, text)
	}

	hash := utils.HashString(text)
	if cached, ok, err := e.cache.GetEmbedding(ctx, hash); err != nil {
		logger.Warn("Embedding cache lookup failed", zap.Error(err))
	} else if ok {
		return cached, nil
	}

	embedding, err := e.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := e.cache.SetEmbedding(ctx, hash, embedding, e.cacheTTL); err != nil {
		logger.Warn("Embedding cache write failed", zap.Error(err))
	}
	return embedding, nil
}

func CombinePassages(results []zilliz.SearchResult) string {
	contents := make([]string, len(results))
	for i, r := range results {
		contents[i] = r.Content
	}
	return strings.Join(contents, passageSeparator)
}
