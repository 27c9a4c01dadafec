package handlers_test

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kbassist/backend/internal/api/handlers"
	"github.com/kbassist/backend/internal/knowledge"
	"github.com/kbassist/backend/internal/middleware/validation"
	"github.com/kbassist/backend/internal/storage/models"
)

var _ = Describe("KnowledgeHandler", func() {
	var (
		app *fiber.App
		svc *mockKnowledgeService
		doc *models.KnowledgeDocument
	)

	BeforeEach(func() {
		app = newApp(false)
		svc = &mockKnowledgeService{}
		h := handlers.NewKnowledgeHandler(svc)
		app.Post("/knowledge", validation.Document(validation.Config{}, true), h.Create)
		app.Get("/knowledge", h.List)
		app.Post("/knowledge/search", validation.Search(validation.Config{}), h.Search)
		app.Get("/knowledge/:id", h.Get)
		app.Put("/knowledge/:id", validation.Document(validation.Config{}, false), h.Update)
		app.Delete("/knowledge/:id", h.Delete)

		now := time.Now()
		doc = &models.KnowledgeDocument{
			ID:        "doc-1",
			Title:     "Savings rates",
			Content:   "The APR on savings is 4.5%.",
			Language:  "en",
			Category:  "rates",
			CreatedAt: now,
			UpdatedAt: now,
		}
	})

	It("ingests a document", func() {
		var got knowledge.IngestRequest
		svc.ingestFn = func(_ context.Context, req knowledge.IngestRequest) (*models.KnowledgeDocument, error) {
			got = req
			return doc, nil
		}

		status, body := do(app, http.MethodPost, "/knowledge",
			`{"title":"Savings rates","content":"The APR on savings is 4.5%.","language":"EN","category":"rates"}`)

		Expect(status).To(Equal(fiber.StatusCreated))
		Expect(body["id"]).To(Equal("doc-1"))
		Expect(body).NotTo(HaveKey("content"))
		Expect(got.Language).To(Equal("en"))
		Expect(got.Category).To(Equal("rates"))
	})

	It("returns 409 with the existing document on duplicate content", func() {
		svc.ingestFn = func(context.Context, knowledge.IngestRequest) (*models.KnowledgeDocument, error) {
			return doc, knowledge.ErrDuplicate
		}

		status, body := do(app, http.MethodPost, "/knowledge",
			`{"content":"The APR on savings is 4.5%.","language":"en","category":"rates"}`)

		Expect(status).To(Equal(fiber.StatusConflict))
		Expect(body["document"]).To(HaveKeyWithValue("id", "doc-1"))
	})

	It("requires a language when ingesting", func() {
		status, _ := do(app, http.MethodPost, "/knowledge", `{"content":"text"}`)
		Expect(status).To(Equal(fiber.StatusBadRequest))
	})

	It("returns the document content on get", func() {
		svc.getFn = func(context.Context, string) (*models.KnowledgeDocument, error) { return doc, nil }

		status, body := do(app, http.MethodGet, "/knowledge/doc-1", "")

		Expect(status).To(Equal(fiber.StatusOK))
		Expect(body["content"]).To(Equal(doc.Content))
	})

	It("returns 404 for an unknown document", func() {
		svc.removeFn = func(context.Context, string) error { return knowledge.ErrNotFound }

		status, _ := do(app, http.MethodDelete, "/knowledge/missing", "")
		Expect(status).To(Equal(fiber.StatusNotFound))
	})

	It("passes list filters through", func() {
		var gotLanguage, gotCategory string
		svc.listFn = func(_ context.Context, language, category string) ([]models.KnowledgeDocument, error) {
			gotLanguage, gotCategory = language, category
			return []models.KnowledgeDocument{*doc}, nil
		}

		status, body := do(app, http.MethodGet, "/knowledge?language=es&category=cards", "")

		Expect(status).To(Equal(fiber.StatusOK))
		Expect(gotLanguage).To(Equal("es"))
		Expect(gotCategory).To(Equal("cards"))
		Expect(body["documents"]).To(HaveLen(1))
	})

	It("maps empty content on update to 400", func() {
		svc.updateFn = func(context.Context, string, string) (*models.KnowledgeDocument, error) {
			return nil, knowledge.ErrEmptyContent
		}

		status, _ := do(app, http.MethodPut, "/knowledge/doc-1", `{"content":"<script>x</script>"}`)
		Expect(status).To(Equal(fiber.StatusBadRequest))
	})

	It("searches with filters", func() {
		var gotQuery string
		var gotFilters map[string]string
		svc.searchFn = func(_ context.Context, q string, filters map[string]string) ([]knowledge.SearchHit, error) {
			gotQuery, gotFilters = q, filters
			return []knowledge.SearchHit{{DocID: "doc-1", ChunkID: "c-1", Content: "The APR", Distance: 0.2}}, nil
		}

		status, body := do(app, http.MethodPost, "/knowledge/search", `{"query":"savings apr","language":"en"}`)

		Expect(status).To(Equal(fiber.StatusOK))
		Expect(body["results"]).To(HaveLen(1))
		Expect(gotQuery).To(Equal("savings apr"))
		Expect(gotFilters).To(HaveKeyWithValue("language", "en"))
	})
})
