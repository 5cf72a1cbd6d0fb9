package app

import (
	"github.com/gin-gonic/gin"

	"github.com/fairlead/disclosure-backend/internal/server"
)

func wireRouter(cfg Config, handlerset Handlers, mw Middleware) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		AuthHandler:         handlerset.Auth,
		FormHandler:         handlerset.Form,
		AuthMiddleware:      mw.Auth,
		RateLimitMiddleware: mw.RateLimit,
		AllowOrigins:        cfg.AllowOrigins,
	})
}
