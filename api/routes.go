package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/customeros/feedsync/api/handlers"
	"github.com/customeros/feedsync/api/middleware"
	"github.com/customeros/feedsync/internal/logger"
	"github.com/customeros/feedsync/internal/tracing"
	"github.com/customeros/feedsync/services"
)

const APIKeyHeader = "X-FEEDSYNC-API-KEY"

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, s *services.Services, log logger.Logger, apikey string) {
	if s == nil {
		panic("Services cannot be nil")
	}

	// Add recovery middlewares
	r.Use(gin.Recovery())                                         // Gin's built-in recovery
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer())) // Our custom Jaeger recovery

	// Health check and status endpoints
	r.GET("/health", handlers.HealthCheck)
	r.GET("/status", handlers.Status(s.SyncService, s.SyncStore))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  APIKeyHeader,
		ValidAPIKey: apikey,
	})

	// API group with version
	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.TracingMiddleware()) // Add tracing for all /v1/* endpoints
	{
		eventRoutes := api.Group("/events")
		{
			eventRoutes.POST("/news", handlers.PublishNewsUpdated(s.Bus))
			eventRoutes.POST("/filter", handlers.PublishFilterApplied(s.Bus))
			eventRoutes.POST("/deleted", handlers.PublishEntitiesDeleted(s.Bus))
		}

		syncRoutes := api.Group("/sync")
		{
			syncRoutes.POST("", handlers.TriggerSync(s.SyncService, log))
			syncRoutes.GET("/pending", handlers.PendingItems(s.SyncStore))
		}
	}
}
