package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/fairlead/disclosure-backend/internal/handlers"
	"github.com/fairlead/disclosure-backend/internal/middleware"
)

type RouterConfig struct {
	AuthHandler         *handlers.AuthHandler
	FormHandler         *handlers.FormHandler
	AuthMiddleware      *middleware.AuthMiddleware
	RateLimitMiddleware *middleware.RateLimitMiddleware
	AllowOrigins        []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)
	router.POST("/register", cfg.RateLimitMiddleware.Limit(), cfg.AuthHandler.Register)
	router.POST("/login", cfg.RateLimitMiddleware.Limit(), cfg.AuthHandler.Login)
	router.POST("/refresh", cfg.RateLimitMiddleware.Limit(), cfg.AuthHandler.Refresh)

	// ===============
	// || Protected ||
	// ===============
	protected := router.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	protected.Use(cfg.RateLimitMiddleware.Limit())
	// Auth
	protected.POST("/logout", cfg.AuthHandler.Logout)
	// Forms
	protected.POST("/forms", cfg.FormHandler.Create)
	protected.GET("/forms", cfg.FormHandler.List)
	protected.GET("/forms/:id", cfg.FormHandler.Get)
	protected.PUT("/forms/:id/steps/:step", cfg.FormHandler.SaveStep)
	protected.POST("/forms/:id/validate", cfg.FormHandler.Validate)
	protected.POST("/forms/:id/submit", cfg.FormHandler.Submit)
	protected.POST("/forms/:id/review", cfg.FormHandler.Review)
	protected.DELETE("/forms/:id", cfg.FormHandler.Delete)

	return router
}
