package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/task-manager-api/internal/models"
	"github.com/noah-isme/task-manager-api/internal/service"
	appErrors "github.com/noah-isme/task-manager-api/pkg/errors"
	"github.com/noah-isme/task-manager-api/pkg/response"
)

// StatsHandler wires statistics, chart and export endpoints.
type StatsHandler struct {
	stats   *service.StatsService
	exports *service.ExportService
	metrics *service.MetricsService
}

// NewStatsHandler creates a new handler.
func NewStatsHandler(stats *service.StatsService, exports *service.ExportService, metrics *service.MetricsService) *StatsHandler {
	return &StatsHandler{stats: stats, exports: exports, metrics: metrics}
}

// Summary godoc
// @Summary Task statistics summary
// @Description Task totals grouped by status and priority
// @Tags Statistics
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /statistics/summary [get]
func (h *StatsHandler) Summary(c *gin.Context) {
	summary, err := h.stats.Summary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, summary, nil)
}

// UserCount godoc
// @Summary User count
// @Tags Statistics
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /statistics/users/count [get]
func (h *StatsHandler) UserCount(c *gin.Context) {
	count, err := h.stats.UserCount(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"count": count}, nil)
}

// TaskCount godoc
// @Summary Task counts chart
// @Description Task counts grouped by status (pie) or priority (bar)
// @Tags Statistics
// @Produce json
// @Param groupBy query string true "status or priority"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /statistics/tasks/count [get]
func (h *StatsHandler) TaskCount(c *gin.Context) {
	var (
		chart *models.ChartData
		err   error
	)
	switch c.Query("groupBy") {
	case "status":
		chart, err = h.stats.StatusChart(c.Request.Context())
	case "priority":
		chart, err = h.stats.PriorityChart(c.Request.Context())
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "groupBy must be status or priority"))
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, chart, nil)
}

// Export godoc
// @Summary Enqueue export
// @Description Queue a background CSV or PDF export of tasks or login logs
// @Tags Statistics
// @Accept json
// @Produce json
// @Param payload body models.ExportRequest true "Export payload"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /statistics/export [post]
func (h *StatsHandler) Export(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}

	job, err := h.exports.Enqueue(c.Request.Context(), claims, req.Kind, req.Format)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusAccepted, job, nil)
}

// ExportStatus godoc
// @Summary Export job status
// @Description Poll an export job; finished jobs include a signed download URL
// @Tags Statistics
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /statistics/export/{id} [get]
func (h *StatsHandler) ExportStatus(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	job, url, err := h.exports.Status(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	var meta map[string]interface{}
	if url != "" {
		meta = map[string]interface{}{"download_url": url}
	}
	response.JSON(c, http.StatusOK, job, nil, meta)
}

// ExportDownload godoc
// @Summary Download export
// @Description Stream a finished export; authenticated by the signed token, not a bearer token
// @Tags Statistics
// @Produce octet-stream
// @Param id path string true "Job ID"
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /statistics/export/{id}/download [get]
func (h *StatsHandler) ExportDownload(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "download token required"))
		return
	}

	file, job, err := h.exports.OpenDownload(c.Request.Context(), c.Param("id"), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export file"))
		return
	}

	contentType := "text/csv"
	if job.Format == models.ExportFormatPDF {
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Name()))
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
}

// SystemMetrics godoc
// @Summary System metrics snapshot
// @Description Cache hit ratio, request counters and goroutine count
// @Tags Statistics
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /statistics/system [get]
func (h *StatsHandler) SystemMetrics(c *gin.Context) {
	snapshot := h.metrics.Snapshot()
	response.JSON(c, http.StatusOK, snapshot, nil)
}
