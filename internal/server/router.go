package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/eduforge/knowledge-backend/internal/handlers"
	"github.com/eduforge/knowledge-backend/internal/middleware"
	"github.com/eduforge/knowledge-backend/internal/observability"
	"github.com/eduforge/knowledge-backend/internal/pkg/envutil"
)

type RouterConfig struct {
	DocumentHandler *handlers.DocumentHandler
	GraphHandler    *handlers.GraphHandler
	SearchHandler   *handlers.SearchHandler
	AuthMiddleware  *middleware.AuthMiddleware
	Metrics         *observability.Metrics
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Trace-ID"},
		AllowCredentials: true,
	}))

	router.Use(otelgin.Middleware("knowledge-backend"))
	router.Use(middleware.Trace())
	router.Use(middleware.APIMetrics(cfg.Metrics))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)
	router.GET("/internal/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))

	// ===============
	// || Protected ||
	// ===============
	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireAuth())
	// Documents
	api.POST("/documents", cfg.DocumentHandler.Upload)
	api.GET("/documents", cfg.DocumentHandler.List)
	api.GET("/documents/:id", cfg.DocumentHandler.Get)
	api.GET("/documents/:id/status", cfg.DocumentHandler.Status)
	api.DELETE("/documents/:id", cfg.DocumentHandler.Delete)
	// Graph
	api.GET("/graph", cfg.GraphHandler.Get)
	// Search
	api.GET("/search", cfg.SearchHandler.Search)

	return router
}

func allowedOrigins() []string {
	raw := envutil.String("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://localhost:5173")
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
