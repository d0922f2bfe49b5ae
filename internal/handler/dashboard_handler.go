package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gaon-dev/gaon-api/internal/service"
	appErrors "github.com/gaon-dev/gaon-api/pkg/errors"
	"github.com/gaon-dev/gaon-api/pkg/response"
)

// DashboardHandler serves the daily attendance board.
type DashboardHandler struct {
	dashboard *service.DashboardService
	location  *time.Location
}

// NewDashboardHandler constructs DashboardHandler.
func NewDashboardHandler(dashboard *service.DashboardService, location *time.Location) *DashboardHandler {
	if location == nil {
		location = time.UTC
	}
	return &DashboardHandler{dashboard: dashboard, location: location}
}

// Daily godoc
// @Summary Daily attendance board
// @Description Scheduled students for the day with live derived statuses
// @Tags Dashboard
// @Produce json
// @Param date query string false "Date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Router /dashboard/daily [get]
func (h *DashboardHandler) Daily(c *gin.Context) {
	date, err := dateQuery(c, h.location)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
		return
	}
	board, err := h.dashboard.Daily(c.Request.Context(), date, time.Now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, board, nil)
}
