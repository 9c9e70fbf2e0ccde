package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"doubtsolver-backend/internal/core"
	"doubtsolver-backend/internal/middleware"
	"doubtsolver-backend/internal/models"
)

// DoubtHandler handles API endpoints related to doubts and their chat threads.
type DoubtHandler struct {
	doubtService core.DoubtService
	limits       core.UploadLimits
	logger       *zap.Logger
}

// NewDoubtHandler creates a new DoubtHandler. limits sizes the request body
// accepted by CreateDoubt; the service enforces the same limits per file.
func NewDoubtHandler(ds core.DoubtService, limits core.UploadLimits, logger *zap.Logger) *DoubtHandler {
	return &DoubtHandler{doubtService: ds, limits: limits, logger: logger}
}

// CreateDoubt handles POST /doubts (multipart: title, description, subject, images).
func (h *DoubtHandler) CreateDoubt(c *gin.Context) {
	limitBody(c, h.limits.MaxBytes*int64(h.limits.MaxImages+1))

	form, err := c.MultipartForm()
	if err != nil {
		respondFormError(c, "", err)
		return
	}

	in := core.CreateDoubtInput{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Subject:     models.Subject(c.PostForm("subject")),
	}
	for _, fh := range form.File["images"] {
		file, err := readUpload(fh, h.limits.MaxBytes)
		if err != nil {
			respondFormError(c, "images", err)
			return
		}
		in.Images = append(in.Images, file)
	}

	doubt, err := h.doubtService.CreateDoubt(c.Request.Context(), middleware.CurrentUser(c), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, doubt)
}

// ListMine handles GET /doubts?status=
func (h *DoubtHandler) ListMine(c *gin.Context) {
	status := models.DoubtStatus(c.Query("status"))
	doubts, err := h.doubtService.ListMyDoubts(c.Request.Context(), middleware.CurrentUser(c), status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, doubts)
}

// ListSolved handles GET /doubts/solved
func (h *DoubtHandler) ListSolved(c *gin.Context) {
	doubts, err := h.doubtService.ListSolved(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, doubts)
}

// GetDoubt handles GET /doubts/:doubtId and GET /admin/doubts/:doubtId
func (h *DoubtHandler) GetDoubt(c *gin.Context) {
	doubt, err := h.doubtService.GetDoubt(c.Request.Context(), middleware.CurrentUser(c), c.Param("doubtId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, doubt)
}

// ListMessages handles GET /doubts/:doubtId/messages
func (h *DoubtHandler) ListMessages(c *gin.Context) {
	messages, err := h.doubtService.ListMessages(c.Request.Context(), middleware.CurrentUser(c), c.Param("doubtId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

// PostMessage handles POST /doubts/:doubtId/messages and its admin twin.
func (h *DoubtHandler) PostMessage(c *gin.Context) {
	var req models.PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	msg, err := h.doubtService.PostMessage(c.Request.Context(), middleware.CurrentUser(c), c.Param("doubtId"), req.Text)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// List handles GET /admin/doubts?status=&subject=&search=&limit=
func (h *DoubtHandler) List(c *gin.Context) {
	var filter models.DoubtFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondBindError(c, err)
		return
	}
	doubts, err := h.doubtService.ListDoubts(c.Request.Context(), middleware.CurrentUser(c), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, doubts)
}

// UpdateStatus handles PUT /admin/doubts/:doubtId/status
func (h *DoubtHandler) UpdateStatus(c *gin.Context) {
	var req models.UpdateDoubtStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	doubt, err := h.doubtService.TransitionStatus(c.Request.Context(), middleware.CurrentUser(c), c.Param("doubtId"), req.Status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, doubt)
}

// UpdateDoubt handles PUT /admin/doubts/:doubtId
func (h *DoubtHandler) UpdateDoubt(c *gin.Context) {
	var req models.UpdateDoubtRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	doubt, err := h.doubtService.UpdateDoubt(c.Request.Context(), middleware.CurrentUser(c), c.Param("doubtId"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, doubt)
}

// AttachSolution handles PUT /admin/doubts/:doubtId/solution
func (h *DoubtHandler) AttachSolution(c *gin.Context) {
	var req models.AttachSolutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	doubt, err := h.doubtService.AttachSolution(c.Request.Context(), middleware.CurrentUser(c), c.Param("doubtId"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, doubt)
}
