package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/kbassist/backend/internal/analytics"
	"github.com/kbassist/backend/internal/api/handlers"
	"github.com/kbassist/backend/internal/cache/redis"
	"github.com/kbassist/backend/internal/confidence"
	"github.com/kbassist/backend/internal/feedback"
	"github.com/kbassist/backend/internal/knowledge"
	"github.com/kbassist/backend/internal/llm"
	"github.com/kbassist/backend/internal/metrics"
	"github.com/kbassist/backend/internal/middleware/auth"
	"github.com/kbassist/backend/internal/middleware/ratelimit"
	"github.com/kbassist/backend/internal/middleware/security"
	"github.com/kbassist/backend/internal/middleware/validation"
	"github.com/kbassist/backend/internal/query"
	"github.com/kbassist/backend/internal/retrieval"
	"github.com/kbassist/backend/internal/storage/sqlite"
	"github.com/kbassist/backend/internal/translation"
	"github.com/kbassist/backend/internal/vector/zilliz"
	"github.com/kbassist/backend/pkg/config"
	appLogger "github.com/kbassist/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath,
		zap.String("service", "kbassist"),
		zap.String("environment", cfg.Server.Environment),
	)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting knowledge base assistant API server")

	if cfg.Auth.JWTSecret == "" {
		appLogger.Fatal("auth.jwtSecret must be set")
	}

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		appLogger.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer redisClient.Close()

	zillizClient, err := zilliz.NewClient(
		context.Background(),
		cfg.Zilliz.Endpoint,
		cfg.Zilliz.APIKey,
		cfg.Zilliz.CollectionName,
		cfg.Zilliz.VectorDim,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Zilliz client", zap.Error(err))
	}
	defer zillizClient.Close()

	err = zillizClient.CreateCollection(context.Background())
	if err != nil {
		appLogger.Fatal("Failed to create collection", zap.Error(err))
	}

	llmClient := llm.NewClient(llm.Options{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		Timeout:        time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	})

	cacheTTL := time.Duration(cfg.Redis.CacheTTLSec) * time.Second

	translator := translation.NewClient(
		cfg.Translation.APIURL,
		cfg.Translation.APIKey,
		cfg.Pipeline.WorkingLanguage,
		time.Duration(cfg.Translation.TimeoutSec)*time.Second,
	)
	retriever := retrieval.NewEngine(llmClient, zillizClient, cfg.Pipeline.TopK).
		WithEmbeddingCache(redisClient, cacheTTL)
	scorer := confidence.NewScorer(cfg.Pipeline.MinConfidence, cfg.Pipeline.MaxConfidence)
	recorder := analytics.NewRecorder()

	queryEngine := query.NewEngine(
		translator,
		redisClient,
		retriever,
		llmClient,
		scorer,
		recorder,
		sqliteClient,
		query.Config{
			WorkingLanguage:     cfg.Pipeline.WorkingLanguage,
			ConfidenceThreshold: cfg.Pipeline.ConfidenceThreshold,
			CacheTTL:            cacheTTL,
			AdvisoryMessage:     cfg.Pipeline.AdvisoryMessage,
		},
	)
	feedbackService := feedback.NewService(sqliteClient, recorder)
	knowledgeService := knowledge.NewService(sqliteClient, llmClient, zillizClient, retriever, redisClient)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
		ErrorHandler: handlers.ErrorHandler(cfg.Server.IsProduction()),
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.AllowedOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	healthHandler := handlers.NewHealthHandler(map[string]handlers.Pinger{
		"sqlite": sqliteClient,
		"redis":  redisClient,
	})
	app.Get("/metrics", metrics.MetricsHandler())
	app.Get("/api/v1/health", healthHandler.Check)

	authenticator := auth.New(cfg.Auth.JWTSecret, appLogger.GetLogger())
	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		KeyFunc:              auth.UserID,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()

	validationCfg := validation.Config{
		MaxDocumentSize: cfg.Server.BodyLimit,
		Logger:          appLogger.GetLogger(),
	}

	api := app.Group("/api/v1",
		security.HeadersMiddleware(security.HeadersConfig{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			IsDevelopment:  !cfg.Server.IsProduction(),
		}),
		authenticator.Middleware(),
		limiter.Middleware(),
		validation.ContentType(validationCfg),
	)

	requestTimeout := time.Duration(cfg.Server.WriteTimeout) * time.Second
	queryHandler := handlers.NewQueryHandler(queryEngine, sqliteClient, requestTimeout)
	wsHandler := handlers.NewWebSocketHandler(queryEngine, requestTimeout)
	feedbackHandler := handlers.NewFeedbackHandler(feedbackService)
	analyticsHandler := handlers.NewAnalyticsHandler(recorder)
	knowledgeHandler := handlers.NewKnowledgeHandler(knowledgeService)

	api.Post("/query", validation.Query(validationCfg), queryHandler.HandleQuery)
	api.Get("/queries", queryHandler.GetQueryLogs)
	api.Get("/queries/review", queryHandler.GetReviewQueue)

	api.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws/query", websocket.New(wsHandler.HandleConnection))

	api.Post("/feedback", validation.Feedback(validationCfg, true), feedbackHandler.Submit)
	api.Get("/feedback", feedbackHandler.Recent)
	api.Get("/feedback/stats", feedbackHandler.Stats)
	api.Get("/feedback/:id", feedbackHandler.Get)
	api.Put("/feedback/:id", validation.Feedback(validationCfg, false), feedbackHandler.Update)
	api.Delete("/feedback/:id", feedbackHandler.Delete)

	api.Get("/analytics", analyticsHandler.Report)

	api.Post("/knowledge", validation.Document(validationCfg, true), knowledgeHandler.Create)
	api.Get("/knowledge", knowledgeHandler.List)
	api.Post("/knowledge/search", validation.Search(validationCfg), knowledgeHandler.Search)
	api.Get("/knowledge/:id", knowledgeHandler.Get)
	api.Put("/knowledge/:id", validation.Document(validationCfg, false), knowledgeHandler.Update)
	api.Delete("/knowledge/:id", knowledgeHandler.Delete)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
