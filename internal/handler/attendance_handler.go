package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gaon-dev/gaon-api/internal/models"
	"github.com/gaon-dev/gaon-api/internal/service"
	appErrors "github.com/gaon-dev/gaon-api/pkg/errors"
	"github.com/gaon-dev/gaon-api/pkg/response"
)

// AttendanceHandler exposes the daily attendance lifecycle endpoints.
type AttendanceHandler struct {
	attendance *service.AttendanceService
	dashboard  *service.DashboardService
	metrics    *service.MetricsService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance *service.AttendanceService, dashboard *service.DashboardService, metrics *service.MetricsService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance, dashboard: dashboard, metrics: metrics}
}

func (h *AttendanceHandler) afterMutation(c *gin.Context, action string, event *models.AttendanceEvent) {
	h.metrics.RecordAttendanceAction(action)
	if h.dashboard != nil {
		h.dashboard.InvalidateDay(c.Request.Context(), event.Date)
	}
}

// CheckIn godoc
// @Summary Record a student arrival
// @Tags Attendance
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /attendance/{studentId}/check-in [post]
func (h *AttendanceHandler) CheckIn(c *gin.Context) {
	event, err := h.attendance.RecordCheckIn(c.Request.Context(), c.Param("studentId"), time.Now())
	if err != nil {
		response.Error(c, err)
		return
	}
	h.afterMutation(c, "check_in", event)
	response.JSON(c, http.StatusOK, event, nil)
}

// CheckOut godoc
// @Summary Record a student departure
// @Tags Attendance
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /attendance/{studentId}/check-out [post]
func (h *AttendanceHandler) CheckOut(c *gin.Context) {
	event, err := h.attendance.RecordCheckOut(c.Request.Context(), c.Param("studentId"), time.Now())
	if err != nil {
		response.Error(c, err)
		return
	}
	h.afterMutation(c, "check_out", event)
	response.JSON(c, http.StatusOK, event, nil)
}

// StartOuting godoc
// @Summary Start an outing
// @Tags Attendance
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /attendance/{studentId}/outing/start [post]
func (h *AttendanceHandler) StartOuting(c *gin.Context) {
	event, err := h.attendance.StartOuting(c.Request.Context(), c.Param("studentId"), time.Now())
	if err != nil {
		response.Error(c, err)
		return
	}
	h.afterMutation(c, "outing_start", event)
	response.JSON(c, http.StatusOK, event, nil)
}

// EndOuting godoc
// @Summary Return from an outing
// @Tags Attendance
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /attendance/{studentId}/outing/end [post]
func (h *AttendanceHandler) EndOuting(c *gin.Context) {
	event, err := h.attendance.EndOuting(c.Request.Context(), c.Param("studentId"), time.Now())
	if err != nil {
		response.Error(c, err)
		return
	}
	h.afterMutation(c, "outing_end", event)
	response.JSON(c, http.StatusOK, event, nil)
}

// ExcuseLate godoc
// @Summary Toggle the notified-late flag
// @Tags Attendance
// @Produce json
// @Param studentId path string true "Student ID"
// @Param date query string false "Date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Router /attendance/{studentId}/excuse-late [post]
func (h *AttendanceHandler) ExcuseLate(c *gin.Context) {
	date, err := dateQuery(c, h.attendance.Location())
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
		return
	}
	event, err := h.attendance.ToggleExcuseLate(c.Request.Context(), c.Param("studentId"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.afterMutation(c, "excuse_late", event)
	response.JSON(c, http.StatusOK, event, nil)
}

// ExcuseAbsent godoc
// @Summary Toggle the notified-absence flag
// @Tags Attendance
// @Produce json
// @Param studentId path string true "Student ID"
// @Param date query string false "Date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Router /attendance/{studentId}/excuse-absent [post]
func (h *AttendanceHandler) ExcuseAbsent(c *gin.Context) {
	date, err := dateQuery(c, h.attendance.Location())
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
		return
	}
	event, err := h.attendance.ToggleExcuseAbsent(c.Request.Context(), c.Param("studentId"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.afterMutation(c, "excuse_absent", event)
	response.JSON(c, http.StatusOK, event, nil)
}

// Get godoc
// @Summary Get a student's attendance event for a day
// @Tags Attendance
// @Produce json
// @Param studentId path string true "Student ID"
// @Param date query string false "Date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Router /attendance/{studentId} [get]
func (h *AttendanceHandler) Get(c *gin.Context) {
	date, err := dateQuery(c, h.attendance.Location())
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
		return
	}
	event, err := h.attendance.EventForDate(c.Request.Context(), c.Param("studentId"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	if event == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "no attendance recorded for that day"))
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

type updateTimesRequest struct {
	AttendTime *time.Time `json:"attend_time,omitempty"`
	LeaveTime  *time.Time `json:"leave_time,omitempty"`
}

// UpdateTimes godoc
// @Summary Correct recorded arrival and departure times
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Attendance record ID"
// @Param payload body updateTimesRequest true "Corrected times"
// @Success 200 {object} response.Envelope
// @Router /attendance-records/{id} [put]
func (h *AttendanceHandler) UpdateTimes(c *gin.Context) {
	var req updateTimesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	event, err := h.attendance.UpdateTimes(c.Request.Context(), c.Param("id"), service.UpdateTimesInput{
		AttendTime: req.AttendTime,
		LeaveTime:  req.LeaveTime,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	h.afterMutation(c, "admin_edit", event)
	response.JSON(c, http.StatusOK, event, nil)
}
