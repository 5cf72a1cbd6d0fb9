package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"

	"github.com/fairlead/disclosure-backend/internal/logger"
	"github.com/fairlead/disclosure-backend/internal/requestdata"
)

// RateLimitMiddleware is a fixed-window limiter backed by an injected
// redis client. The store is owned by the caller (created at startup,
// closed on shutdown); there is no module-level state. A nil client
// disables limiting entirely.
type RateLimitMiddleware struct {
	log    *logger.Logger
	rdb    *goredis.Client
	limit  int
	window time.Duration
}

func NewRateLimitMiddleware(log *logger.Logger, rdb *goredis.Client, limit int, window time.Duration) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		log:    log.With("middleware", "RateLimitMiddleware"),
		rdb:    rdb,
		limit:  limit,
		window: window,
	}
}

func (rl *RateLimitMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.rdb == nil || rl.limit <= 0 {
			c.Next()
			return
		}
		key := rl.key(c)
		ctx := c.Request.Context()
		count, err := rl.rdb.Incr(ctx, key).Result()
		if err != nil {
			// Fail open: the limiter protects capacity, it is not an
			// availability dependency.
			rl.log.Warn("Rate limit check failed", "error", err)
			c.Next()
			return
		}
		if count == 1 {
			if err := rl.rdb.Expire(ctx, key, rl.window).Err(); err != nil {
				rl.log.Warn("Rate limit expire failed", "error", err)
			}
		}
		if count > int64(rl.limit) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// key prefers the authenticated user; anonymous requests fall back to the
// client address.
func (rl *RateLimitMiddleware) key(c *gin.Context) string {
	if rd := requestdata.GetRequestData(c.Request.Context()); rd != nil {
		return fmt.Sprintf("ratelimit:user:%s", rd.UserID.String())
	}
	return fmt.Sprintf("ratelimit:ip:%s", c.ClientIP())
}
