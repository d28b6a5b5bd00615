package handler

import (
	"net/http"

	"ecoreports/internal/middleware"
	"ecoreports/internal/service"

	"github.com/gin-gonic/gin"
)

type PointsHandler struct {
	points       *service.PointsService
	achievements *service.AchievementService
}

func NewPointsHandler(points *service.PointsService, achievements *service.AchievementService) *PointsHandler {
	return &PointsHandler{points: points, achievements: achievements}
}

// History handles GET /points/historial.
func (h *PointsHandler) History(c *gin.Context) {
	userID := middleware.GetUserID(c)
	limit := queryInt(c, "limit", 20)
	page, err := h.points.History(c.Request.Context(), userID, limit, queryInt(c, "offset", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Achievements handles GET /points/logros.
func (h *PointsHandler) Achievements(c *gin.Context) {
	list, err := h.achievements.ListForUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logros": list})
}

func (h *PointsHandler) Leaderboard(c *gin.Context) {
	rows, err := h.points.Leaderboard(c.Request.Context(), queryInt(c, "limit", 10))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": rows})
}
