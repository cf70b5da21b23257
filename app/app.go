package app

import (
	"appcommerce/services"
	"appcommerce/validator"
	"log/slog"
	"time"
)

// DefaultRequestTimeout bounds how long a handler waits on a live value
const DefaultRequestTimeout = 15 * time.Second

// App holds all application dependencies
// This struct is the central point for dependency injection
type App struct {
	Catalog        *services.CatalogService
	Accounts       *services.AccountService
	SessionStore   services.SessionStore
	Validator      *validator.Validator
	Logger         *slog.Logger
	RequestTimeout time.Duration
}

// New creates a new App instance with all dependencies
func New(catalog *services.CatalogService, accounts *services.AccountService, sessionStore services.SessionStore, logger *slog.Logger) *App {
	return &App{
		Catalog:        catalog,
		Accounts:       accounts,
		SessionStore:   sessionStore,
		Validator:      validator.New(),
		Logger:         logger,
		RequestTimeout: DefaultRequestTimeout,
	}
}
