package query_test

import (
	"context"
	"sync"
	"time"

	"github.com/kbassist/backend/internal/llm"
	"github.com/kbassist/backend/internal/storage/models"
)

type translateCall struct {
	text     string
	language string
}

type mockTranslator struct {
	toWorkingFn func(text, source string) string
	translateFn func(text, target string) string

	toWorkingCalls []translateCall
	translateCalls []translateCall
}

func (m *mockTranslator) ToWorkingLanguage(_ context.Context, text, source string) string {
	m.toWorkingCalls = append(m.toWorkingCalls, translateCall{text, source})
	if m.toWorkingFn != nil {
		return m.toWorkingFn(text, source)
	}
	return text
}

func (m *mockTranslator) Translate(_ context.Context, text, target string) string {
	m.translateCalls = append(m.translateCalls, translateCall{text, target})
	if m.translateFn != nil {
		return m.translateFn(text, target)
	}
	return text
}

type mockCache struct {
	mu      sync.Mutex
	entries map[string]string
	ttls    map[string]time.Duration
	getErr  error
	setErr  error
	sets    int
}

func newMockCache() *mockCache {
	return &mockCache{entries: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *mockCache) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *mockCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	m.entries[key] = value
	m.ttls[key] = ttl
	return nil
}

type mockRetriever struct {
	retrieveFn func(ctx context.Context, query string) (string, error)
	calls      []string
}

func (m *mockRetriever) Retrieve(ctx context.Context, query string) (string, error) {
	m.calls = append(m.calls, query)
	return m.retrieveFn(ctx, query)
}

type generateCall struct {
	query   string
	context string
	caller  llm.CallerContext
}

type mockGenerator struct {
	generateFn func(ctx context.Context, query, retrieved string) (string, error)
	calls      []generateCall
}

func (m *mockGenerator) GenerateResponse(ctx context.Context, query, retrieved string, caller llm.CallerContext) (string, error) {
	m.calls = append(m.calls, generateCall{query, retrieved, caller})
	return m.generateFn(ctx, query, retrieved)
}

type trackedQuery struct {
	query    string
	response string
	source   models.ResponseSource
}

type mockRecorder struct {
	mu      sync.Mutex
	tracked []trackedQuery
}

func (m *mockRecorder) TrackQuery(query, response string, source models.ResponseSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracked = append(m.tracked, trackedQuery{query, response, source})
}

type mockQueryLog struct {
	insertFn func(ctx context.Context, record *models.QueryRecord) error
	records  []*models.QueryRecord
}

func (m *mockQueryLog) InsertQueryRecord(ctx context.Context, record *models.QueryRecord) error {
	m.records = append(m.records, record)
	if m.insertFn != nil {
		return m.insertFn(ctx, record)
	}
	return nil
}
