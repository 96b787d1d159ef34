package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/task-manager-api/internal/service"
	appErrors "github.com/noah-isme/task-manager-api/pkg/errors"
	"github.com/noah-isme/task-manager-api/pkg/response"
)

// LogHandler exposes the audit trails.
type LogHandler struct {
	service *service.LoggingService
}

// NewLogHandler creates a new handler.
func NewLogHandler(svc *service.LoggingService) *LogHandler {
	return &LogHandler{service: svc}
}

// LoginLogs godoc
// @Summary List login attempts
// @Description Paginated login audit trail, including failed attempts
// @Tags Logs
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size (max 100)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /logs/login [get]
func (h *LogHandler) LoginLogs(c *gin.Context) {
	page, pageSize := pageParams(c)

	logs, pagination, err := h.service.LoginLogs(c.Request.Context(), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, logs, pagination)
}

// ActivityLogs godoc
// @Summary List activity log
// @Description Paginated record of mutations with the acting user joined in
// @Tags Logs
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size (max 100)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /logs/activity [get]
func (h *LogHandler) ActivityLogs(c *gin.Context) {
	page, pageSize := pageParams(c)

	logs, pagination, err := h.service.ActivityLogs(c.Request.Context(), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, logs, pagination)
}

// TaskStatusHistory godoc
// @Summary Task status history
// @Description Status transitions for one task, newest first
// @Tags Logs
// @Produce json
// @Param taskId query string true "Task ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /logs/task-status [get]
func (h *LogHandler) TaskStatusHistory(c *gin.Context) {
	taskID := c.Query("taskId")
	if taskID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "taskId is required"))
		return
	}

	history, err := h.service.StatusHistory(c.Request.Context(), taskID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, history, nil)
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, pageSize
}
