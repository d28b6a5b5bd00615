package handler

import (
	"net/http"

	"ecoreports/internal/middleware"
	"ecoreports/internal/service"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	users    *service.UserService
	points   *service.PointsService
	settings *service.SettingsService
}

func NewAdminHandler(users *service.UserService, points *service.PointsService, settings *service.SettingsService) *AdminHandler {
	return &AdminHandler{users: users, points: points, settings: settings}
}

// ListUsers handles GET /admin/users?search=&rol=&page=&page_size=.
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, err := h.users.List(c.Request.Context(), c.Query("search"), c.Query("rol"),
		queryInt(c, "page", 1), queryInt(c, "page_size", 20))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *AdminHandler) SetActive(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Active *bool `json:"activo" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "activo es obligatorio")
		return
	}
	if err := h.users.SetActive(c.Request.Context(), middleware.GetUserID(c), id, *req.Active); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *AdminHandler) SetRole(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Role string `json:"rol" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "rol es obligatorio")
		return
	}
	if err := h.users.SetRole(c.Request.Context(), middleware.GetUserID(c), id, req.Role); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GrantPoints handles POST /admin/points/grant.
func (h *AdminHandler) GrantPoints(c *gin.Context) {
	var req struct {
		UserID uint   `json:"usuario_id" binding:"required"`
		Points int    `json:"puntos" binding:"required"`
		Reason string `json:"motivo"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "usuario_id y puntos son obligatorios")
		return
	}
	res, err := h.users.GrantPoints(c.Request.Context(), middleware.GetUserID(c), req.UserID, req.Points, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// BroadcastUrgent handles POST /admin/notifications/urgent.
func (h *AdminHandler) BroadcastUrgent(c *gin.Context) {
	var req struct {
		Title string   `json:"titulo"`
		Body  string   `json:"mensaje"`
		Roles []string `json:"roles"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	n, err := h.users.BroadcastUrgent(c.Request.Context(), middleware.GetUserID(c), req.Roles, req.Title, req.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enviadas": n})
}

func (h *AdminHandler) ListSettings(c *gin.Context) {
	list, err := h.settings.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": list})
}

// UpdateSetting handles PUT /admin/settings/:key with {"value": "12"}.
func (h *AdminHandler) UpdateSetting(c *gin.Context) {
	var req struct {
		Value string `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "value es obligatorio")
		return
	}
	v, err := h.settings.Set(c.Request.Context(), c.Param("key"), req.Value)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// LedgerHealth handles GET /admin/health/ledger.
func (h *AdminHandler) LedgerHealth(c *gin.Context) {
	list, err := h.points.Reconcile(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"consistente": len(list) == 0, "diferencias": list})
}
