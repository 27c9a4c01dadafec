package handlers_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kbassist/backend/internal/api/handlers"
	"github.com/kbassist/backend/internal/middleware/validation"
	"github.com/kbassist/backend/internal/query"
	"github.com/kbassist/backend/internal/storage/models"
)

var _ = Describe("QueryHandler", func() {
	var (
		app      *fiber.App
		resolver *mockResolver
		logs     *mockQueryLogs
	)

	setup := func(isProduction bool) {
		app = newApp(isProduction)
		h := handlers.NewQueryHandler(resolver, logs, time.Second)
		app.Post("/query", validation.Query(validation.Config{}), h.HandleQuery)
		app.Get("/queries", h.GetQueryLogs)
		app.Get("/queries/review", h.GetReviewQueue)
	}

	BeforeEach(func() {
		resolver = &mockResolver{}
		logs = &mockQueryLogs{}
		setup(false)
	})

	It("returns the pipeline response", func() {
		var got query.Request
		resolver.resolveFn = func(_ context.Context, req query.Request) (*query.Response, error) {
			got = req
			score := 0.9
			return &query.Response{QueryID: "q-1", Text: "answer", Confidence: &score, Source: models.SourceAI}, nil
		}

		status, body := do(app, http.MethodPost, "/query",
			`{"query":"  What is the APR?  ","language":"EN","context":{"customerId":"c-1"}}`)

		Expect(status).To(Equal(fiber.StatusOK))
		Expect(body["queryId"]).To(Equal("q-1"))
		Expect(body["response"]).To(Equal("answer"))
		Expect(body["confidence"]).To(BeNumerically("~", 0.9))
		Expect(body["source"]).To(Equal("ai"))
		Expect(got.Query).To(Equal("What is the APR?"))
		Expect(got.Language).To(Equal("en"))
		Expect(got.Context.CustomerID).To(Equal("c-1"))
	})

	It("omits confidence for cached responses", func() {
		resolver.resolveFn = func(context.Context, query.Request) (*query.Response, error) {
			return &query.Response{QueryID: "q-2", Text: "cached", Source: models.SourceCache}, nil
		}

		status, body := do(app, http.MethodPost, "/query", `{"query":"what is the apr?","language":"en"}`)

		Expect(status).To(Equal(fiber.StatusOK))
		Expect(body).NotTo(HaveKey("confidence"))
		Expect(body["source"]).To(Equal("cache"))
	})

	It("rejects a query that is too short before resolving", func() {
		called := false
		resolver.resolveFn = func(context.Context, query.Request) (*query.Response, error) {
			called = true
			return nil, nil
		}

		status, _ := do(app, http.MethodPost, "/query", `{"query":"hi","language":"en"}`)
		Expect(status).To(Equal(fiber.StatusBadRequest))
		Expect(called).To(BeFalse())
	})

	It("maps upstream failures to 500 with detail outside production", func() {
		resolver.resolveFn = func(context.Context, query.Request) (*query.Response, error) {
			return nil, fmt.Errorf("%w: %w", query.ErrRetrieval, errors.New("milvus down"))
		}

		status, body := do(app, http.MethodPost, "/query", `{"query":"what is the apr?","language":"en"}`)

		Expect(status).To(Equal(fiber.StatusInternalServerError))
		Expect(body["message"]).To(ContainSubstring("milvus down"))
	})

	It("hides upstream failure detail in production", func() {
		setup(true)
		resolver.resolveFn = func(context.Context, query.Request) (*query.Response, error) {
			return nil, fmt.Errorf("%w: %w", query.ErrGeneration, errors.New("api key sk-123 rejected"))
		}

		status, body := do(app, http.MethodPost, "/query", `{"query":"what is the apr?","language":"en"}`)

		Expect(status).To(Equal(fiber.StatusInternalServerError))
		Expect(body["message"]).To(Equal("Internal Server Error"))
	})

	Describe("query logs", func() {
		It("defaults to the last 24 hours", func() {
			var from, to time.Time
			logs.logsFn = func(_ context.Context, f, t time.Time) ([]models.QueryRecord, error) {
				from, to = f, t
				return []models.QueryRecord{{ID: "q-1", QueryText: "what is the apr?", Source: models.SourceAI}}, nil
			}

			status, body := do(app, http.MethodGet, "/queries", "")

			Expect(status).To(Equal(fiber.StatusOK))
			Expect(body["count"]).To(BeNumerically("==", 1))
			Expect(to.Sub(from)).To(Equal(24 * time.Hour))
		})

		It("rejects a malformed range", func() {
			status, _ := do(app, http.MethodGet, "/queries?from=yesterday", "")
			Expect(status).To(Equal(fiber.StatusBadRequest))
		})

		It("rejects an inverted range", func() {
			status, _ := do(app, http.MethodGet,
				"/queries?from=2024-02-01T00:00:00Z&to=2024-01-01T00:00:00Z", "")
			Expect(status).To(Equal(fiber.StatusBadRequest))
		})

		It("lists the review queue with the requested limit", func() {
			var limit int
			logs.reviewFn = func(_ context.Context, l int) ([]models.QueryRecord, error) {
				limit = l
				return nil, nil
			}

			status, body := do(app, http.MethodGet, "/queries/review?limit=5", "")

			Expect(status).To(Equal(fiber.StatusOK))
			Expect(body["count"]).To(BeNumerically("==", 0))
			Expect(limit).To(Equal(5))
		})

		It("rejects an out of range review limit", func() {
			status, _ := do(app, http.MethodGet, "/queries/review?limit=1000", "")
			Expect(status).To(Equal(fiber.StatusBadRequest))
		})
	})
})
