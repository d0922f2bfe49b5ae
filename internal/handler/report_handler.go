package handler

import (
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gaon-dev/gaon-api/internal/models"
	"github.com/gaon-dev/gaon-api/internal/service"
	appErrors "github.com/gaon-dev/gaon-api/pkg/errors"
	"github.com/gaon-dev/gaon-api/pkg/response"
)

// ReportHandler exposes the monthly rollup and the async export pipeline.
type ReportHandler struct {
	reports *service.ReportService
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

func yearMonthQuery(c *gin.Context) (int, int, error) {
	now := time.Now()
	year, err := strconv.Atoi(c.DefaultQuery("year", strconv.Itoa(now.Year())))
	if err != nil {
		return 0, 0, err
	}
	month, err := strconv.Atoi(c.DefaultQuery("month", strconv.Itoa(int(now.Month()))))
	if err != nil {
		return 0, 0, err
	}
	return year, month, nil
}

// Monthly godoc
// @Summary Monthly attendance rollup
// @Description Calendar of classified days plus late/absent counts and total study time
// @Tags Reports
// @Produce json
// @Param studentId path string true "Student ID"
// @Param year query int false "Year, defaults to current"
// @Param month query int false "Month (1-12), defaults to current"
// @Success 200 {object} response.Envelope
// @Router /reports/monthly/{studentId} [get]
func (h *ReportHandler) Monthly(c *gin.Context) {
	year, month, err := yearMonthQuery(c)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "year and month must be integers"))
		return
	}
	aggregate, err := h.reports.BuildCalendar(c.Request.Context(), c.Param("studentId"), year, month, time.Now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, aggregate, nil)
}

type exportRequest struct {
	StudentID string              `json:"student_id" binding:"required"`
	Year      int                 `json:"year" binding:"required"`
	Month     int                 `json:"month" binding:"required"`
	Format    models.ReportFormat `json:"format" binding:"required"`
}

// RequestExport godoc
// @Summary Queue a monthly report export
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body exportRequest true "Export payload"
// @Success 202 {object} response.Envelope
// @Router /reports/exports [post]
func (h *ReportHandler) RequestExport(c *gin.Context) {
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	job, err := h.reports.RequestExport(c.Request.Context(), req.StudentID, req.Year, req.Month, req.Format, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// GetExport godoc
// @Summary Export job status
// @Tags Reports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /reports/exports/{id} [get]
func (h *ReportHandler) GetExport(c *gin.Context) {
	job, err := h.reports.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// ExportURL godoc
// @Summary Signed download URL for a finished export
// @Tags Reports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /reports/exports/{id}/url [get]
func (h *ReportHandler) ExportURL(c *gin.Context) {
	token, expiresAt, err := h.reports.DownloadURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"url":        "/reports/download?token=" + token,
		"expires_at": expiresAt,
	}, nil)
}

// Download godoc
// @Summary Download an exported report
// @Description Token-authenticated file download, no session required
// @Tags Reports
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Router /reports/download [get]
func (h *ReportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, name, err := h.reports.OpenDownload(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	contentType := "application/octet-stream"
	switch filepath.Ext(name) {
	case ".pdf":
		contentType = "application/pdf"
	case ".csv":
		contentType = "text/csv"
	}
	c.Header("Content-Disposition", "attachment; filename="+filepath.Base(name))
	c.Header("Content-Type", contentType)
	c.File(file.Name())
}
