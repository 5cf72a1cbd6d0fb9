package app

import (
	goredis "github.com/redis/go-redis/v9"

	"github.com/fairlead/disclosure-backend/internal/logger"
	"github.com/fairlead/disclosure-backend/internal/middleware"
)

type Middleware struct {
	Auth      *middleware.AuthMiddleware
	RateLimit *middleware.RateLimitMiddleware
}

func wireMiddleware(log *logger.Logger, cfg Config, serviceset Services, rdb *goredis.Client) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth:      middleware.NewAuthMiddleware(log, serviceset.Auth),
		RateLimit: middleware.NewRateLimitMiddleware(log, rdb, cfg.RateLimit, cfg.RateWindow),
	}
}
