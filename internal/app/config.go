package app

import (
	"strings"
	"time"

	"github.com/fairlead/disclosure-backend/internal/logger"
	"github.com/fairlead/disclosure-backend/internal/utils"
)

type Config struct {
	JWTSecretKey    string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	SchemaPath      string
	WebhookURL      string
	RedisAddr       string
	RateLimit       int
	RateWindow      time.Duration
	AllowOrigins    []string
}

func LoadConfig(log *logger.Logger) Config {
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	accessTokenTTLSeconds := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
	refreshTokenTTLSeconds := utils.GetEnvAsInt("REFRESH_TOKEN_TTL", 86400, log)
	schemaPath := utils.GetEnv("FORM_SCHEMA_PATH", "assets/statement_of_financial_condition.yaml", log)
	webhookURL := utils.GetEnv("SUBMISSION_WEBHOOK_URL", "", log)
	redisAddr := utils.GetEnv("REDIS_ADDR", "", log)
	rateLimit := utils.GetEnvAsInt("RATE_LIMIT_REQUESTS", 120, log)
	rateWindowSeconds := utils.GetEnvAsInt("RATE_LIMIT_WINDOW", 60, log)
	origins := utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://localhost:5174", log)

	return Config{
		JWTSecretKey:    jwtSecretKey,
		AccessTokenTTL:  time.Duration(accessTokenTTLSeconds) * time.Second,
		RefreshTokenTTL: time.Duration(refreshTokenTTLSeconds) * time.Second,
		SchemaPath:      schemaPath,
		WebhookURL:      webhookURL,
		RedisAddr:       redisAddr,
		RateLimit:       rateLimit,
		RateWindow:      time.Duration(rateWindowSeconds) * time.Second,
		AllowOrigins:    strings.Split(origins, ","),
	}
}
