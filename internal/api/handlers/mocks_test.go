package handlers_test

import (
	"context"
	"time"

	"github.com/kbassist/backend/internal/knowledge"
	"github.com/kbassist/backend/internal/query"
	"github.com/kbassist/backend/internal/storage/models"
)

type mockResolver struct {
	resolveFn func(ctx context.Context, req query.Request) (*query.Response, error)
}

func (m *mockResolver) Resolve(ctx context.Context, req query.Request) (*query.Response, error) {
	return m.resolveFn(ctx, req)
}

type mockQueryLogs struct {
	logsFn   func(ctx context.Context, from, to time.Time) ([]models.QueryRecord, error)
	reviewFn func(ctx context.Context, limit int) ([]models.QueryRecord, error)
}

func (m *mockQueryLogs) GetQueryLogs(ctx context.Context, from, to time.Time) ([]models.QueryRecord, error) {
	return m.logsFn(ctx, from, to)
}

func (m *mockQueryLogs) GetQueriesNeedingReview(ctx context.Context, limit int) ([]models.QueryRecord, error) {
	return m.reviewFn(ctx, limit)
}

type mockFeedbackService struct {
	submitFn func(ctx context.Context, queryID string, rating int, comment string) (*models.Feedback, error)
	getFn    func(ctx context.Context, id int64) (*models.Feedback, error)
	recentFn func(ctx context.Context, limit int) ([]models.Feedback, error)
	updateFn func(ctx context.Context, id int64, rating int, comment string) error
	deleteFn func(ctx context.Context, id int64) error
	statsFn  func(ctx context.Context) (*models.FeedbackStats, error)
}

func (m *mockFeedbackService) Submit(ctx context.Context, queryID string, rating int, comment string) (*models.Feedback, error) {
	return m.submitFn(ctx, queryID, rating, comment)
}

func (m *mockFeedbackService) Get(ctx context.Context, id int64) (*models.Feedback, error) {
	return m.getFn(ctx, id)
}

func (m *mockFeedbackService) Recent(ctx context.Context, limit int) ([]models.Feedback, error) {
	return m.recentFn(ctx, limit)
}

func (m *mockFeedbackService) Update(ctx context.Context, id int64, rating int, comment string) error {
	return m.updateFn(ctx, id, rating, comment)
}

func (m *mockFeedbackService) Delete(ctx context.Context, id int64) error {
	return m.deleteFn(ctx, id)
}

func (m *mockFeedbackService) Stats(ctx context.Context) (*models.FeedbackStats, error) {
	return m.statsFn(ctx)
}

type mockKnowledgeService struct {
	ingestFn func(ctx context.Context, req knowledge.IngestRequest) (*models.KnowledgeDocument, error)
	updateFn func(ctx context.Context, id, content string) (*models.KnowledgeDocument, error)
	removeFn func(ctx context.Context, id string) error
	getFn    func(ctx context.Context, id string) (*models.KnowledgeDocument, error)
	listFn   func(ctx context.Context, language, category string) ([]models.KnowledgeDocument, error)
	searchFn func(ctx context.Context, query string, filters map[string]string) ([]knowledge.SearchHit, error)
}

func (m *mockKnowledgeService) Ingest(ctx context.Context, req knowledge.IngestRequest) (*models.KnowledgeDocument, error) {
	return m.ingestFn(ctx, req)
}

func (m *mockKnowledgeService) Update(ctx context.Context, id, content string) (*models.KnowledgeDocument, error) {
	return m.updateFn(ctx, id, content)
}

func (m *mockKnowledgeService) Remove(ctx context.Context, id string) error {
	return m.removeFn(ctx, id)
}

func (m *mockKnowledgeService) Get(ctx context.Context, id string) (*models.KnowledgeDocument, error) {
	return m.getFn(ctx, id)
}

func (m *mockKnowledgeService) List(ctx context.Context, language, category string) ([]models.KnowledgeDocument, error) {
	return m.listFn(ctx, language, category)
}

func (m *mockKnowledgeService) Search(ctx context.Context, query string, filters map[string]string) ([]knowledge.SearchHit, error) {
	return m.searchFn(ctx, query, filters)
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error {
	return m.err
}
