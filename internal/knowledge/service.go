// Package knowledge manages the document corpus the retrieval engine searches:
// ingestion into the relational store and the vector index, updates, removal
// and similarity lookups.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kbassist/backend/internal/metrics"
	"github.com/kbassist/backend/internal/storage/models"
	"github.com/kbassist/backend/internal/storage/sqlite"
	"github.com/kbassist/backend/internal/vector/zilliz"
	"github.com/kbassist/backend/pkg/logger"
	"github.com/kbassist/backend/pkg/utils"
)

const (
	DefaultChunkSize   = 1000
	DefaultSearchLimit = 10
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrEmptyContent = errors.New("no content extracted from document")
	ErrDuplicate    = errors.New("document with identical content already exists")
)

type Store interface {
	InsertDocument(ctx context.Context, doc *models.KnowledgeDocument) error
	GetDocument(ctx context.Context, id string) (*models.KnowledgeDocument, error)
	GetDocumentByHash(ctx context.Context, contentHash string) (*models.KnowledgeDocument, error)
	ListDocuments(ctx context.Context, language, category string) ([]models.KnowledgeDocument, error)
	UpdateDocumentContent(ctx context.Context, id, content, contentHash string) error
	DeleteDocument(ctx context.Context, id string) error
	ReplaceChunks(ctx context.Context, docID string, chunks []models.DocumentChunk) error
}

type Embedder interface {
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

type VectorIndex interface {
	Insert(ctx context.Context, chunks []zilliz.DocumentChunk) error
	DeleteByDocID(ctx context.Context, docID string) error
}

type Searcher interface {
	Search(ctx context.Context, query string, topK int, filters map[string]string) ([]zilliz.SearchResult, error)
}

// CacheInvalidator drops cached answers that may have been grounded on
// content that just changed.
type CacheInvalidator interface {
	InvalidatePrompts(ctx context.Context) (int, error)
}

type Service struct {
	store     Store
	embedder  Embedder
	index     VectorIndex
	searcher  Searcher
	cache     CacheInvalidator
	chunkSize int
	now       func() time.Time
}

type IngestRequest struct {
	Title    string
	Content  string
	Language string
	Category string
}

type SearchHit struct {
	DocID    string  `json:"docId"`
	ChunkID  string  `json:"chunkId"`
	Content  string  `json:"content"`
	Language string  `json:"language"`
	Category string  `json:"category"`
	Distance float32 `json:"distance"`
}

func NewService(store Store, embedder Embedder, index VectorIndex, searcher Searcher, cache CacheInvalidator) *Service {
	return &Service{
		store:     store,
		embedder:  embedder,
		index:     index,
		searcher:  searcher,
		cache:     cache,
		chunkSize: DefaultChunkSize,
		now:       time.Now,
	}
}

// Ingest cleans, chunks and embeds a document and stores it in both stores.
// Identical content (ignoring whitespace) returns the existing document with
// ErrDuplicate.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*models.KnowledgeDocument, error) {
	text := cleanContent(req.Content)
	if text == "" {
		return nil, ErrEmptyContent
	}

	hash := utils.ContentHash(text)
	existing, err := s.store.GetDocumentByHash(ctx, hash)
	if err == nil {
		return existing, ErrDuplicate
	}
	if !errors.Is(err, sqlite.ErrNotFound) {
		return nil, fmt.Errorf("failed to check for duplicate: %w", err)
	}

	title := req.Title
	if title == "" {
		title = extractTitle(req.Content)
	}
	if title == "" {
		title = "Untitled"
	}

	now := s.now()
	doc := &models.KnowledgeDocument{
		ID:          uuid.New().String(),
		Title:       title,
		Content:     text,
		ContentHash: hash,
		Language:    req.Language,
		Category:    req.Category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	logger.Info("Ingesting document", zap.String("doc_id", doc.ID), zap.String("title", title))

	chunks, vectors, err := s.prepareChunks(ctx, doc)
	if err != nil {
		return nil, err
	}

	if err := s.store.InsertDocument(ctx, doc); err != nil {
		return nil, err
	}
	if err := s.store.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		s.rollbackDocument(ctx, doc.ID)
		return nil, err
	}
	if err := s.index.Insert(ctx, vectors); err != nil {
		s.rollbackDocument(ctx, doc.ID)
		return nil, fmt.Errorf("failed to index document: %w", err)
	}

	metrics.DocumentsProcessed.Inc()
	s.invalidateCache(ctx)

	logger.Info("Document ingested",
		zap.String("doc_id", doc.ID),
		zap.Int("chunks", len(chunks)),
	)

	return doc, nil
}

// Update replaces the content of an existing document and re-indexes it.
func (s *Service) Update(ctx context.Context, id, content string) (*models.KnowledgeDocument, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	text := cleanContent(content)
	if text == "" {
		return nil, ErrEmptyContent
	}

	doc.Content = text
	doc.ContentHash = utils.ContentHash(text)
	doc.UpdatedAt = s.now()

	chunks, vectors, err := s.prepareChunks(ctx, doc)
	if err != nil {
		return nil, err
	}

	if err := s.index.DeleteByDocID(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to remove stale vectors: %w", err)
	}
	if err := s.index.Insert(ctx, vectors); err != nil {
		return nil, fmt.Errorf("failed to index document: %w", err)
	}
	if err := s.store.UpdateDocumentContent(ctx, id, doc.Content, doc.ContentHash); err != nil {
		return nil, mapErr(err)
	}
	if err := s.store.ReplaceChunks(ctx, id, chunks); err != nil {
		return nil, err
	}

	metrics.DocumentsProcessed.Inc()
	s.invalidateCache(ctx)

	logger.Info("Document updated", zap.String("doc_id", id), zap.Int("chunks", len(chunks)))
	return doc, nil
}

func (s *Service) Remove(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	if err := s.index.DeleteByDocID(ctx, id); err != nil {
		return fmt.Errorf("failed to remove vectors: %w", err)
	}
	if err := s.store.DeleteDocument(ctx, id); err != nil {
		return mapErr(err)
	}

	s.invalidateCache(ctx)
	logger.Info("Document removed", zap.String("doc_id", id))
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.KnowledgeDocument, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	return doc, nil
}

func (s *Service) List(ctx context.Context, language, category string) ([]models.KnowledgeDocument, error) {
	return s.store.ListDocuments(ctx, language, category)
}

// Search returns the closest chunks to query, nearest first.
func (s *Service) Search(ctx context.Context, query string, filters map[string]string) ([]SearchHit, error) {
	results, err := s.searcher.Search(ctx, query, DefaultSearchLimit, filters)
	if err != nil {
		return nil, err
	}

	hits := make([]SearchHit, len(results))
	for i, r := range results {
		hits[i] = SearchHit{
			DocID:    r.DocID,
			ChunkID:  r.ChunkID,
			Content:  r.Content,
			Language: r.Language,
			Category: r.Category,
			Distance: r.Score,
		}
	}
	return hits, nil
}

func (s *Service) prepareChunks(ctx context.Context, doc *models.KnowledgeDocument) ([]models.DocumentChunk, []zilliz.DocumentChunk, error) {
	texts := chunkText(doc.Content, s.chunkSize)
	if len(texts) == 0 {
		return nil, nil, ErrEmptyContent
	}

	embeddings, err := s.embedder.GenerateBatchEmbeddings(ctx, texts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(embeddings) != len(texts) {
		return nil, nil, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(embeddings), len(texts))
	}

	now := s.now()
	chunks := make([]models.DocumentChunk, len(texts))
	vectors := make([]zilliz.DocumentChunk, len(texts))
	for i, text := range texts {
		chunkID := utils.HashString(fmt.Sprintf("%s:%d:%s", doc.ID, i, doc.ContentHash))
		chunks[i] = models.DocumentChunk{
			ID:         chunkID,
			DocID:      doc.ID,
			ChunkIndex: i,
			Text:       text,
			CreatedAt:  now,
		}
		vectors[i] = zilliz.DocumentChunk{
			ID:        chunkID,
			Embedding: embeddings[i],
			Content:   text,
			DocID:     doc.ID,
			Language:  doc.Language,
			Category:  doc.Category,
			Timestamp: now,
		}
	}
	return chunks, vectors, nil
}

func (s *Service) rollbackDocument(ctx context.Context, id string) {
	if err := s.store.DeleteDocument(ctx, id); err != nil {
		logger.Error("Failed to roll back document", zap.String("doc_id", id), zap.Error(err))
	}
}

func (s *Service) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.InvalidatePrompts(ctx); err != nil {
		logger.Warn("Failed to invalidate prompt cache", zap.Error(err))
	}
}

func mapErr(err error) error {
	if errors.Is(err, sqlite.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
