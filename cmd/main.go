package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eduforge/knowledge-backend/internal/clients/aiservice"
	"github.com/eduforge/knowledge-backend/internal/data/graph"
	"github.com/eduforge/knowledge-backend/internal/db"
	"github.com/eduforge/knowledge-backend/internal/handlers"
	"github.com/eduforge/knowledge-backend/internal/middleware"
	"github.com/eduforge/knowledge-backend/internal/observability"
	"github.com/eduforge/knowledge-backend/internal/pkg/envutil"
	"github.com/eduforge/knowledge-backend/internal/pkg/logger"
	"github.com/eduforge/knowledge-backend/internal/platform/neo4jdb"
	"github.com/eduforge/knowledge-backend/internal/repos"
	"github.com/eduforge/knowledge-backend/internal/server"
	"github.com/eduforge/knowledge-backend/internal/services/graphquery"
	"github.com/eduforge/knowledge-backend/internal/services/ingest"
	"github.com/eduforge/knowledge-backend/internal/services/search"
)

func main() {
	// Logger
	logMode := envutil.String("LOG_MODE", "development")
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	// Observability
	metrics := observability.Get(log)
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "knowledge-backend",
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", "dev"),
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Warn("otel shutdown failed", "error", err)
		}
	}()
	if metrics != nil {
		metrics.StartServer(ctx, log, envutil.String("METRICS_ADDR", ":9090"))
	}

	// Postgres
	log.Info("Setting up Postgres from main...")
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Neo4j
	log.Info("Setting up Neo4j from main...")
	neoClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Error("Neo4j init failed", "error", err)
		os.Exit(1)
	}
	defer neoClient.Close(ctx)
	graph.EnsureSchema(ctx, neoClient, log)

	// Redis (optional, graph responses just skip caching without it)
	var rdb *redis.Client
	if addr := envutil.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: envutil.String("REDIS_PASSWORD", ""),
			DB:       envutil.Int("REDIS_DB", 0),
		})
		if metrics != nil {
			metrics.StartRedisCollector(ctx, log, rdb)
		}
	}

	// Repos
	log.Info("Setting up Repos from main...")
	documentRepo := repos.NewKnowledgeDocumentRepo(thePG, log)

	// Downstream AI service client
	aiClient, err := aiservice.NewClient(log, metrics)
	if err != nil {
		log.Error("Could not init AI service client", "error", err)
		os.Exit(1)
	}

	// Services
	log.Info("Setting up Services from main...")
	graphStore := graph.NewStore(neoClient, log)
	graphCache := graphquery.NewRedisCache(rdb, log)
	graphService := graphquery.NewService(graphStore, graphCache, metrics, log)
	searchService := search.NewService(aiClient, graphStore, metrics, log)
	ingestPipeline := ingest.NewPipeline(documentRepo, aiClient, graphCache, metrics, log)

	// Handlers
	log.Info("Setting up handlers from main...")
	documentHandler := handlers.NewDocumentHandler(log, ingestPipeline)
	graphHandler := handlers.NewGraphHandler(log, graphService)
	searchHandler := handlers.NewSearchHandler(log, searchService)

	// Middleware
	log.Info("Setting up middleware from main...")
	authMiddleware, err := middleware.NewAuthMiddleware(log)
	if err != nil {
		log.Error("Could not init auth middleware", "error", err)
		os.Exit(1)
	}

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		DocumentHandler: documentHandler,
		GraphHandler:    graphHandler,
		SearchHandler:   searchHandler,
		AuthMiddleware:  authMiddleware,
		Metrics:         metrics,
	})

	port := envutil.String("PORT", "8080")
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Warn("Server failed", "error", err)
	}
}
