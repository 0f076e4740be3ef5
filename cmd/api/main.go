package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/concierge-agent/backend/internal/api/handlers"
	"github.com/concierge-agent/backend/internal/cache"
	cachememory "github.com/concierge-agent/backend/internal/cache/memory"
	cacheredis "github.com/concierge-agent/backend/internal/cache/redis"
	"github.com/concierge-agent/backend/internal/kb"
	"github.com/concierge-agent/backend/internal/llm"
	"github.com/concierge-agent/backend/internal/metrics"
	"github.com/concierge-agent/backend/internal/middleware/ratelimit"
	"github.com/concierge-agent/backend/internal/middleware/security"
	"github.com/concierge-agent/backend/internal/middleware/validation"
	"github.com/concierge-agent/backend/internal/pii"
	"github.com/concierge-agent/backend/internal/reflection"
	"github.com/concierge-agent/backend/internal/storage/sqlite"
	"github.com/concierge-agent/backend/internal/tools"
	"github.com/concierge-agent/backend/internal/vector/milvus"
	"github.com/concierge-agent/backend/internal/workflow"
	"github.com/concierge-agent/backend/pkg/config"
	appLogger "github.com/concierge-agent/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting concierge agent API server")

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

	ttl := time.Duration(cfg.Agent.CacheTTLDays) * 24 * time.Hour

	var cacheStore cache.Store
	if cfg.Redis.Enabled {
		redisStore, err := cacheredis.NewStore(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, ttl)
		if err != nil {
			appLogger.Warn("Redis unavailable, using in-memory cache", zap.Error(err))
			cacheStore = cachememory.NewStore(ttl)
		} else {
			defer redisStore.Close()
			cacheStore = redisStore
		}
	} else {
		cacheStore = cachememory.NewStore(ttl)
	}

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
		cfg.LLM.TimeoutSec,
	)

	var milvusClient *milvus.Client
	if cfg.Milvus.Enabled {
		milvusClient, err = milvus.NewClient(
			cfg.Milvus.Endpoint,
			cfg.Milvus.CollectionName,
			cfg.Milvus.VectorDim,
		)
		if err != nil {
			appLogger.Warn("Milvus unavailable, falling back to keyword search", zap.Error(err))
			milvusClient = nil
		} else {
			defer milvusClient.Close()
			if err := milvusClient.CreateCollection(context.Background()); err != nil {
				appLogger.Fatal("Failed to create collection", zap.Error(err))
			}
		}
	}

	toolRunner := tools.NewRunner(
		time.Duration(cfg.Agent.ToolTimeoutSec)*time.Second,
		tools.NewKBSearch(sqliteClient, milvusClient, llmClient),
		tools.NewGetPricing(sqliteClient),
		tools.NewRequestConsultation(sqliteClient),
	)

	reflector := reflection.NewEngine(llmClient, reflection.Config{
		FollowUpMarker: cfg.Agent.FollowUpMarker,
	})

	scanner := pii.NewFilter(true)

	controller := workflow.NewController(cacheStore, toolRunner, llmClient, reflector, scanner, sqliteClient)

	ingestor := kb.NewIngestor(sqliteClient, milvusClient, llmClient)

	// Expired entries also fall out lazily on Get; the sweep just keeps the
	// backend tidy.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sweepLoop(sweepCtx, cacheStore)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.Headers(security.Config{
		EmbeddingOrigins: cfg.Server.EmbedOrigins,
		Development:      cfg.Server.Development,
	}))

	limiter := ratelimit.New(ratelimit.Config{
		Logger: appLogger.GetLogger(),
	})
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	app.Use(validation.Middleware(validation.Config{
		Logger: appLogger.GetLogger(),
	}))

	chatHandler := handlers.NewChatHandler(controller)
	wsHandler := handlers.NewWebSocketHandler(controller)
	kbHandler := handlers.NewKBHandler(ingestor)
	turnsHandler := handlers.NewTurnsHandler(sqliteClient)

	api := app.Group("/api/v1")

	api.Post("/chat", chatHandler.HandleChat)
	api.Post("/admin/kb", kbHandler.UploadArticle)
	api.Get("/admin/turns", turnsHandler.ListRecentTurns)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(wsHandler.HandleConnection))

	app.Get("/metrics", metrics.MetricsHandler())

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

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
	app.Shutdown()
	appLogger.Info("Server stopped")
}

func sweepLoop(ctx context.Context, store cache.Store) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.Sweep(ctx)
			if err != nil {
				appLogger.Warn("Cache sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				appLogger.Info("Cache sweep completed", zap.Int("removed", removed))
			}
		}
	}
}
