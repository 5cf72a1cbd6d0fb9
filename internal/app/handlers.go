package app

import (
	"github.com/fairlead/disclosure-backend/internal/handlers"
	"github.com/fairlead/disclosure-backend/internal/logger"
)

type Handlers struct {
	Auth *handlers.AuthHandler
	Form *handlers.FormHandler
}

func wireHandlers(log *logger.Logger, serviceset Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Auth: handlers.NewAuthHandler(serviceset.Auth),
		Form: handlers.NewFormHandler(serviceset.Form),
	}
}
