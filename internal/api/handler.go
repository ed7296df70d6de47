package api

import (
	"github.com/codebattle/codebattle/internal/auth"
	"github.com/codebattle/codebattle/internal/battle"
	"github.com/codebattle/codebattle/internal/config"
	"github.com/codebattle/codebattle/internal/pubsub"
	"gorm.io/gorm"
)

// Handler holds all dependencies for the API handlers.
type Handler struct {
	cfg         *config.Config
	db          *gorm.DB
	battles     *battle.Service
	broker      *pubsub.Broker
	oidcHandler *auth.OIDCHandler
}

// NewHandler creates a new handler with its dependencies. oidcHandler may be
// nil when OIDC login is disabled.
func NewHandler(
	cfg *config.Config,
	db *gorm.DB,
	battles *battle.Service,
	broker *pubsub.Broker,
	oidcHandler *auth.OIDCHandler,
) *Handler {
	return &Handler{
		cfg:         cfg,
		db:          db,
		battles:     battles,
		broker:      broker,
		oidcHandler: oidcHandler,
	}
}
