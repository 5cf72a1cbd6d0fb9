package app

import (
	"gorm.io/gorm"

	"github.com/fairlead/disclosure-backend/internal/logger"
	"github.com/fairlead/disclosure-backend/internal/schema"
	"github.com/fairlead/disclosure-backend/internal/services"
)

type Services struct {
	Auth     services.AuthService
	Form     services.FormService
	Notifier services.SubmissionNotifier
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, s *schema.Schema, reposet Repos) Services {
	log.Info("Wiring services...")
	notifier := services.NewWebhookNotifier(log, cfg.WebhookURL, reposet.WebhookDelivery)
	return Services{
		Auth: services.NewAuthService(
			db, log,
			reposet.User, reposet.UserToken,
			cfg.JWTSecretKey, cfg.AccessTokenTTL, cfg.RefreshTokenTTL,
		),
		Form: services.NewFormService(
			db, log, s,
			reposet.FormRecord, reposet.FormValue,
			notifier,
		),
		Notifier: notifier,
	}
}
