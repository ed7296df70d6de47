package api

import (
	"net/http"

	"github.com/codebattle/codebattle/internal/auth"
	"github.com/codebattle/codebattle/internal/database"
	"github.com/codebattle/codebattle/internal/pubsub"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleBattleWs streams live battle events (status changes, new
// submissions) to a participant. Browsers cannot set an Authorization header
// on websocket upgrades, so the token comes as a query parameter.
func (h *Handler) handleBattleWs(c *gin.Context) {
	battleID := c.Param("id")
	tokenString := c.Query("token")

	if tokenString == "" {
		c.String(http.StatusUnauthorized, "token query parameter is required")
		return
	}

	claims, err := auth.ValidateJWT(tokenString, h.cfg.Auth.JWT.Secret)
	if err != nil {
		c.String(http.StatusUnauthorized, "invalid token")
		return
	}
	userID := claims.Subject

	b, err := database.GetBattle(h.db, battleID)
	if err != nil {
		c.String(http.StatusNotFound, "battle not found")
		return
	}
	if b.CreatedBy != userID {
		isParticipant, err := database.IsParticipant(h.db, battleID, userID)
		if err != nil || !isParticipant {
			c.String(http.StatusForbidden, "you are not a participant of this battle")
			return
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zap.S().Errorf("failed to upgrade websocket: %v", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := h.broker.Subscribe(pubsub.BattleTopic(battleID))
	defer unsubscribe()

	// Drain reads so close frames are processed; clients never send data.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for msg := range events {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			zap.S().Debugf("websocket write to user %s failed: %v", userID, err)
			return
		}
	}
}
