package query_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kbassist/backend/internal/confidence"
	"github.com/kbassist/backend/internal/llm"
	"github.com/kbassist/backend/internal/query"
	"github.com/kbassist/backend/internal/storage/models"
)

const (
	advisory      = "I'm not confident in providing an answer. Please consult a human expert."
	apQuery       = "What is the APR on savings?"
	apFragment    = "APR is 2.5% as of Q1."
	groundedReply = "Specifically, the savings account APR is 2.5% as of the first quarter."
	hedgedReply   = "It may possibly be higher, perhaps."
)

var _ = Describe("Engine", func() {
	var (
		ctx        context.Context
		translator *mockTranslator
		cache      *mockCache
		retriever  *mockRetriever
		generator  *mockGenerator
		recorder   *mockRecorder
		queryLog   *mockQueryLog
		engine     *query.Engine
	)

	BeforeEach(func() {
		ctx = context.Background()
		translator = &mockTranslator{}
		cache = newMockCache()
		retriever = &mockRetriever{
			retrieveFn: func(_ context.Context, _ string) (string, error) {
				return apFragment, nil
			},
		}
		generator = &mockGenerator{
			generateFn: func(_ context.Context, _, _ string) (string, error) {
				return groundedReply, nil
			},
		}
		recorder = &mockRecorder{}
		queryLog = &mockQueryLog{}

		engine = query.NewEngine(
			translator,
			cache,
			retriever,
			generator,
			confidence.NewDefaultScorer(),
			recorder,
			queryLog,
			query.Config{
				WorkingLanguage:     "en",
				ConfidenceThreshold: 0.70,
				CacheTTL:            time.Hour,
				AdvisoryMessage:     advisory,
			},
		)
	})

	Describe("Resolve", func() {
		Context("when a grounded answer is generated", func() {
			It("should return an ai answer and cache it under the normalized query", func() {
				resp, err := engine.Resolve(ctx, query.Request{Query: apQuery, Language: "en"})

				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Source).To(Equal(models.SourceAI))
				Expect(resp.Text).To(Equal(groundedReply))
				Expect(resp.Confidence).NotTo(BeNil())
				Expect(*resp.Confidence).To(BeNumerically(">=", 0.70))
				Expect(resp.QueryID).NotTo(BeEmpty())

				Expect(cache.entries).To(HaveKeyWithValue("what is the apr on savings?", groundedReply))
				Expect(cache.ttls["what is the apr on savings?"]).To(Equal(time.Hour))
				Expect(retriever.calls).To(Equal([]string{"what is the apr on savings?"}))
				Expect(generator.calls).To(HaveLen(1))
				Expect(generator.calls[0].context).To(Equal(apFragment))
				Expect(recorder.tracked).To(Equal([]trackedQuery{{apQuery, groundedReply, models.SourceAI}}))
				Expect(translator.toWorkingCalls).To(BeEmpty())
				Expect(translator.translateCalls).To(BeEmpty())
			})

			It("should forward the caller context to the generator", func() {
				caller := llm.CallerContext{CustomerID: "c-1", AccountType: "gold"}
				_, err := engine.Resolve(ctx, query.Request{Query: apQuery, Language: "en", Context: caller})

				Expect(err).NotTo(HaveOccurred())
				Expect(generator.calls[0].caller).To(Equal(caller))
			})

			It("should serve the second identical query from the cache", func() {
				_, err := engine.Resolve(ctx, query.Request{Query: apQuery, Language: "en"})
				Expect(err).NotTo(HaveOccurred())

				resp, err := engine.Resolve(ctx, query.Request{Query: "  what is the APR on savings?  ", Language: "en"})

				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Source).To(Equal(models.SourceCache))
				Expect(resp.Text).To(Equal(groundedReply))
				Expect(resp.Confidence).To(BeNil())
				Expect(generator.calls).To(HaveLen(1))
				Expect(recorder.tracked).To(HaveLen(2))
				Expect(recorder.tracked[1].source).To(Equal(models.SourceCache))
			})
		})

		Context("when the answer scores below the threshold", func() {
			BeforeEach(func() {
				generator.generateFn = func(_ context.Context, _, _ string) (string, error) {
					return hedgedReply, nil
				}
			})

			It("should return the advisory without caching or recording", func() {
				resp, err := engine.Resolve(ctx, query.Request{Query: apQuery, Language: "en"})

				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Source).To(Equal(models.SourceLowConfidence))
				Expect(resp.Text).To(Equal(advisory))
				Expect(*resp.Confidence).To(BeNumerically("<", 0.70))
				Expect(cache.sets).To(BeZero())
				Expect(cache.entries).To(BeEmpty())
				Expect(recorder.tracked).To(BeEmpty())
			})

			It("should not translate the advisory back", func() {
				translator.toWorkingFn = func(_, _ string) string { return apQuery }

				resp, err := engine.Resolve(ctx, query.Request{Query: "¿Cuál es la TAE?", Language: "es"})

				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Source).To(Equal(models.SourceLowConfidence))
				Expect(translator.toWorkingCalls).To(HaveLen(1))
				Expect(translator.translateCalls).To(BeEmpty())
			})

			It("should still persist the query log entry", func() {
				_, err := engine.Resolve(ctx, query.Request{Query: apQuery, Language: "en"})

				Expect(err).NotTo(HaveOccurred())
				Expect(queryLog.records).To(HaveLen(1))
				Expect(queryLog.records[0].Source).To(Equal(models.SourceLowConfidence))
			})
		})

		Context("when the query is not in the working language", func() {
			BeforeEach(func() {
				translator.toWorkingFn = func(text, source string) string {
					return "What is the APR on savings?"
				}
				translator.translateFn = func(text, target string) string {
					return "La TAE es 2,5%."
				}
			})

			It("should translate in, generate in the working language and translate out", func() {
				resp, err := engine.Resolve(ctx, query.Request{Query: "¿Cuál es la TAE del ahorro?", Language: "es"})

				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Source).To(Equal(models.SourceAI))
				Expect(resp.Text).To(Equal("La TAE es 2,5%."))
				Expect(translator.toWorkingCalls).To(Equal([]translateCall{{"¿Cuál es la TAE del ahorro?", "es"}}))
				Expect(translator.translateCalls).To(Equal([]translateCall{{groundedReply, "es"}}))
				Expect(generator.calls[0].query).To(Equal("What is the APR on savings?"))
				Expect(recorder.tracked[0].query).To(Equal("¿Cuál es la TAE del ahorro?"))
				Expect(recorder.tracked[0].response).To(Equal("La TAE es 2,5%."))
			})

			It("should not serve a working-language cached answer to another language", func() {
				cache.entries["what is the apr on savings?"] = groundedReply

				resp, err := engine.Resolve(ctx, query.Request{Query: "¿Cuál es la TAE del ahorro?", Language: "es"})

				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Source).To(Equal(models.SourceAI))
				Expect(cache.entries).To(HaveLen(2))
			})
		})

		Context("when the same question arrives in two languages with different translations", func() {
			It("should not collide in the cache", func() {
				translator.toWorkingFn = func(text, source string) string {
					if source == "fr" {
						return "What rate do savings earn?"
					}
					return "What is the APR on savings?"
				}

				_, err := engine.Resolve(ctx, query.Request{Query: "¿Cuál es la TAE?", Language: "es"})
				Expect(err).NotTo(HaveOccurred())
				resp, err := engine.Resolve(ctx, query.Request{Query: "Quel est le taux ?", Language: "fr"})

				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Source).To(Equal(models.SourceAI))
				Expect(generator.calls).To(HaveLen(2))
			})
		})

		Context("when translation fails open", func() {
			It("should continue with the original text", func() {
				resp, err := engine.Resolve(ctx, query.Request{Query: "Quel est le taux ?", Language: "fr"})

				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Source).To(Equal(models.SourceAI))
				Expect(retriever.calls).To(Equal([]string{"quel est le taux ?"}))
			})
		})

		Context("when retrieval fails", func() {
			It("should fail with ErrRetrieval and touch neither cache nor analytics", func() {
				boom := errors.New("vector store unavailable")
				retriever.retrieveFn = func(_ context.Context, _ string) (string, error) {
					return "", boom
				}

				resp, err := engine.Resolve(ctx, query.Request{Query: apQuery, Language: "en"})

				Expect(resp).To(BeNil())
				Expect(err).To(MatchError(query.ErrRetrieval))
				Expect(errors.Is(err, boom)).To(BeTrue())
				Expect(generator.calls).To(BeEmpty())
				Expect(cache.sets).To(BeZero())
				Expect(recorder.tracked).To(BeEmpty())
				Expect(queryLog.records).To(BeEmpty())
			})
		})

		Context("when generation fails", func() {
			It("should fail with ErrGeneration and touch neither cache nor analytics", func() {
				generator.generateFn = func(_ context.Context, _, _ string) (string, error) {
					return "", errors.New("status 500")
				}

				_, err := engine.Resolve(ctx, query.Request{Query: apQuery, Language: "en"})

				Expect(err).To(MatchError(query.ErrGeneration))
				Expect(cache.sets).To(BeZero())
				Expect(recorder.tracked).To(BeEmpty())
			})
		})

		Context("when the cache write fails", func() {
			It("should still return the ai answer and record it", func() {
				cache.setErr = errors.New("redis down")

				resp, err := engine.Resolve(ctx, query.Request{Query: apQuery, Language: "en"})

				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Source).To(Equal(models.SourceAI))
				Expect(recorder.tracked).To(HaveLen(1))
			})
		})

		Context("when the cache lookup fails", func() {
			It("should treat it as a miss", func() {
				cache.getErr = errors.New("redis down")

				resp, err := engine.Resolve(ctx, query.Request{Query: apQuery, Language: "en"})

				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Source).To(Equal(models.SourceAI))
				Expect(generator.calls).To(HaveLen(1))
			})
		})

		Context("when the query log cannot be persisted", func() {
			It("should still return the answer", func() {
				queryLog.insertFn = func(_ context.Context, _ *models.QueryRecord) error {
					return errors.New("disk full")
				}

				resp, err := engine.Resolve(ctx, query.Request{Query: apQuery, Language: "en", UserID: "agent-7"})

				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Source).To(Equal(models.SourceAI))
				Expect(queryLog.records[0].UserID).To(Equal("agent-7"))
				Expect(queryLog.records[0].ID).To(Equal(resp.QueryID))
			})
		})
	})

	Describe("CacheKey", func() {
		It("should use the bare normalized query for the working language", func() {
			Expect(engine.CacheKey("what is the apr?", "EN")).To(Equal("what is the apr?"))
		})

		It("should qualify other languages", func() {
			Expect(engine.CacheKey("what is the apr?", "es")).To(Equal("what is the apr?#es"))
		})
	})

	Describe("Normalize", func() {
		It("should trim and lower-case", func() {
			Expect(query.Normalize("  What Is The APR?\n")).To(Equal("what is the apr?"))
		})
	})
})
