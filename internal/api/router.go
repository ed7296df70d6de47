package api

import (
	"github.com/codebattle/codebattle/internal/auth"
	"github.com/codebattle/codebattle/internal/battle"
	"github.com/codebattle/codebattle/internal/config"
	"github.com/codebattle/codebattle/internal/pubsub"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// NewRouter creates and configures the Gin engine.
func NewRouter(
	cfg *config.Config,
	db *gorm.DB,
	battles *battle.Service,
	broker *pubsub.Broker,
	oidcHandler *auth.OIDCHandler) *gin.Engine {

	r := gin.Default()

	r.Use(CORSMiddleware(cfg.CORS))

	h := NewHandler(cfg, db, battles, broker, oidcHandler)

	v1 := r.Group("/api/v1")
	{
		// Auth
		authGroup := v1.Group("/auth")
		{
			authGroup.GET("/status", h.getAuthStatus)

			if oidcHandler != nil {
				oidcGroup := authGroup.Group("/oidc")
				oidcGroup.GET("/login", oidcHandler.Login)
				oidcGroup.GET("/callback", oidcHandler.Callback)
			}

			// Local Username/Password Auth (if enabled)
			if cfg.Auth.Local.Enabled {
				localAuthGroup := authGroup.Group("/local")
				{
					localAuthGroup.POST("/register", h.localRegister)
					localAuthGroup.POST("/login", h.localLogin)
				}
			}
		}

		// Websocket for live battle events with authorization
		v1.GET("/ws/battles/:id", h.handleBattleWs)

		// Authenticated routes
		authed := v1.Group("/")
		authed.Use(AuthMiddleware(cfg.Auth.JWT.Secret))
		{
			// User profile
			profile := authed.Group("/user")
			{
				profile.GET("/profile", h.getProfile)
				profile.PATCH("/profile", h.updateProfile)
			}

			// Battles
			authed.POST("/battles", h.createBattle)
			authed.GET("/battles", h.getUserBattles)
			authed.POST("/battles/join/:joinToken", h.joinBattle)

			battles := authed.Group("/battles/:id")
			{
				battles.GET("", h.getBattle)
				battles.GET("/participants", h.getBattleParticipants)
				battles.GET("/problems", h.getBattleProblems)
				battles.GET("/standings", h.getBattleStandings)
				battles.GET("/submissions", h.getBattleSubmissions)
				battles.POST("/refresh", h.refreshSubmissions)
				battles.POST("/start", h.startBattle)
				battles.POST("/end", h.endBattle)
				battles.DELETE("", h.cancelBattle)
			}
		}
	}

	return r
}
