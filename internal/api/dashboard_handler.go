package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"doubtsolver-backend/internal/core"
	"doubtsolver-backend/internal/middleware"
)

// DashboardHandler serves the landing views.
type DashboardHandler struct {
	dashboardService core.DashboardService
	logger           *zap.Logger
}

func NewDashboardHandler(ds core.DashboardService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{dashboardService: ds, logger: logger}
}

// Student handles GET /dashboard
func (h *DashboardHandler) Student(c *gin.Context) {
	view, err := h.dashboardService.Student(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Admin handles GET /admin/dashboard
func (h *DashboardHandler) Admin(c *gin.Context) {
	stats, err := h.dashboardService.Admin(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
