package api

import (
	"net/http"

	"github.com/codebattle/codebattle/internal/battle"
	"github.com/codebattle/codebattle/internal/util"

	"github.com/gin-gonic/gin"
)

func (h *Handler) createBattle(c *gin.Context) {
	userID := c.GetString("userID")

	var req battle.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}

	battleID, err := h.battles.Create(c.Request.Context(), userID, req)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, gin.H{"battle_id": battleID}, "Battle created")
}

func (h *Handler) getUserBattles(c *gin.Context) {
	userID := c.GetString("userID")

	battles, err := h.battles.GetUserBattles(userID)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, battles, "Battles retrieved")
}

func (h *Handler) joinBattle(c *gin.Context) {
	userID := c.GetString("userID")
	joinToken := c.Param("joinToken")

	battleID, err := h.battles.Join(joinToken, userID)
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, gin.H{"battle_id": battleID}, "Joined battle")
}

func (h *Handler) getBattle(c *gin.Context) {
	b, err := h.battles.GetBattle(c.Param("id"), c.GetString("userID"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, b, "Battle retrieved")
}

func (h *Handler) getBattleParticipants(c *gin.Context) {
	participants, err := h.battles.GetParticipants(c.Param("id"), c.GetString("userID"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, participants, "Participants retrieved")
}

func (h *Handler) getBattleProblems(c *gin.Context) {
	problems, err := h.battles.GetProblems(c.Param("id"), c.GetString("userID"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, problems, "Problems retrieved")
}

func (h *Handler) getBattleStandings(c *gin.Context) {
	standings, err := h.battles.GetStandings(c.Param("id"), c.GetString("userID"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, standings, "Standings retrieved")
}

func (h *Handler) getBattleSubmissions(c *gin.Context) {
	submissions, err := h.battles.GetSubmissions(c.Param("id"), c.GetString("userID"))
	if err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, submissions, "Submissions retrieved")
}

func (h *Handler) refreshSubmissions(c *gin.Context) {
	if err := h.battles.RefreshSubmissions(c.Param("id"), c.GetString("userID")); err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, nil, "Refresh started")
}

func (h *Handler) startBattle(c *gin.Context) {
	if err := h.battles.Start(c.Request.Context(), c.Param("id"), c.GetString("userID")); err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, nil, "Battle started")
}

func (h *Handler) endBattle(c *gin.Context) {
	if err := h.battles.End(c.Request.Context(), c.Param("id"), c.GetString("userID")); err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, nil, "Battle ended")
}

func (h *Handler) cancelBattle(c *gin.Context) {
	if err := h.battles.Cancel(c.Request.Context(), c.Param("id"), c.GetString("userID")); err != nil {
		util.Fail(c, err)
		return
	}
	util.Success(c, nil, "Battle cancelled")
}
