package analytics_test

import (
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kbassist/backend/internal/analytics"
	"github.com/kbassist/backend/internal/storage/models"
)

var _ = Describe("Recorder", func() {
	var recorder *analytics.Recorder

	BeforeEach(func() {
		recorder = analytics.NewRecorder()
	})

	Describe("Report", func() {
		It("should report a zero hit rate before any query", func() {
			report := recorder.Report()

			Expect(report.TotalQueries).To(BeZero())
			Expect(report.CacheHitRate).To(BeZero())
			Expect(report.TopQueries).To(BeEmpty())
		})

		It("should count sources and compute the hit rate", func() {
			recorder.TrackQuery("What is the APR", "a", models.SourceAI)
			recorder.TrackQuery("what is the apr", "a", models.SourceCache)
			recorder.TrackQuery("Open an account", "b", models.SourceAI)
			recorder.TrackQuery("what is the apr ", "a", models.SourceCache)

			report := recorder.Report()

			Expect(report.TotalQueries).To(Equal(4))
			Expect(report.AIGeneratedQueries + report.CachedQueries).To(Equal(4))
			Expect(report.CacheHitRate).To(BeNumerically("~", 50.0, 1e-9))
			Expect(report.TopQueries[0]).To(Equal(analytics.QueryCount{Query: "what is the apr", Count: 3}))
			Expect(report.QueryDistributionByLanguage).To(HaveKeyWithValue("en", 4))
		})

		It("should keep only the ten most frequent queries", func() {
			for i := 0; i < 12; i++ {
				for j := 0; j <= i; j++ {
					recorder.TrackQuery(fmt.Sprintf("query %c", 'a'+i), "r", models.SourceAI)
				}
			}

			report := recorder.Report()

			Expect(report.TopQueries).To(HaveLen(10))
			Expect(report.TopQueries[0]).To(Equal(analytics.QueryCount{Query: "query l", Count: 12}))
			Expect(report.TopQueries[9].Count).To(Equal(3))
		})

		It("should break count ties by query text", func() {
			recorder.TrackQuery("beta", "r", models.SourceAI)
			recorder.TrackQuery("alpha", "r", models.SourceAI)

			report := recorder.Report()

			Expect(report.TopQueries).To(Equal([]analytics.QueryCount{
				{Query: "alpha", Count: 1},
				{Query: "beta", Count: 1},
			}))
		})

		It("should return a snapshot that is not aliased", func() {
			recorder.TrackQuery("hello", "r", models.SourceAI)
			report := recorder.Report()
			report.QueryDistributionByLanguage["en"] = 100

			Expect(recorder.Report().QueryDistributionByLanguage["en"]).To(Equal(1))
		})
	})

	Describe("concurrent tracking", func() {
		It("should not lose increments", func() {
			const workers, perWorker = 32, 250
			var wg sync.WaitGroup
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					for i := 0; i < perWorker; i++ {
						source := models.SourceAI
						if i%2 == 0 {
							source = models.SourceCache
						}
						recorder.TrackQuery("shared question", "r", source)
					}
				}(w)
			}
			wg.Wait()

			report := recorder.Report()

			Expect(report.TotalQueries).To(Equal(workers * perWorker))
			Expect(report.CachedQueries).To(Equal(workers * perWorker / 2))
			Expect(report.AIGeneratedQueries).To(Equal(workers * perWorker / 2))
			Expect(report.TopQueries[0].Count).To(Equal(workers * perWorker))
			Expect(report.CacheHitRate).To(BeNumerically("~", 50.0, 1e-9))
		})
	})

	Describe("TrackFeedback", func() {
		It("should bucket ratings", func() {
			recorder.TrackFeedback("q1", 2)
			recorder.TrackFeedback("q2", 2)
			recorder.TrackFeedback("q3", 5)

			Expect(recorder.Report().FeedbackByRating).To(Equal(map[string]int{"2": 2, "5": 1}))
		})
	})

	DescribeTable("DetectLanguage",
		func(query, want string) {
			Expect(analytics.DetectLanguage(query)).To(Equal(want))
		},
		Entry("plain ascii", "what is the rate", "en"),
		Entry("spanish accents", "cuál es la tasa", "es"),
		Entry("french accents", "quel est le taux à payer", "fr"),
		Entry("punctuation", "what is the rate?", "unknown"),
		Entry("digits", "apr 2024", "unknown"),
		Entry("empty", "", "unknown"),
	)
})
