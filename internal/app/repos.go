package app

import (
	"gorm.io/gorm"

	"github.com/fairlead/disclosure-backend/internal/logger"
	"github.com/fairlead/disclosure-backend/internal/repos"
)

type Repos struct {
	User            repos.UserRepo
	UserToken       repos.UserTokenRepo
	FormRecord      repos.FormRecordRepo
	FormValue       repos.FormValueRepo
	WebhookDelivery repos.WebhookDeliveryRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:            repos.NewUserRepo(db, log),
		UserToken:       repos.NewUserTokenRepo(db, log),
		FormRecord:      repos.NewFormRecordRepo(db, log),
		FormValue:       repos.NewFormValueRepo(db, log),
		WebhookDelivery: repos.NewWebhookDeliveryRepo(db, log),
	}
}
