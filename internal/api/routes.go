package api

import (
	"github.com/cairndns/cairndns/internal/api/handlers"
	"github.com/cairndns/cairndns/internal/api/middleware"
	"github.com/cairndns/cairndns/internal/config"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/cairndns/cairndns/internal/api/docs" // swagger docs
)

func RegisterRoutes(r *gin.Engine, h *handlers.Handler, cfg *config.Config) {
	// Swagger UI at /swagger/*
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")

	// Optional API key protection.
	if cfg != nil && cfg.API.APIKey != "" {
		api.Use(middleware.RequireAPIKey(cfg.API.APIKey))
	}

	api.GET("/health", h.Health)
	api.GET("/stats", h.Stats)

	api.GET("/cache", h.CacheInfo)
	api.DELETE("/cache", h.ClearCache)
	api.POST("/cache/save", h.SaveCache)

	api.POST("/shutdown", h.Shutdown)
}
