package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gaon-dev/gaon-api/internal/models"
	"github.com/gaon-dev/gaon-api/internal/service"
	appErrors "github.com/gaon-dev/gaon-api/pkg/errors"
	"github.com/gaon-dev/gaon-api/pkg/response"
)

// ScheduleHandler exposes weekly schedule and change-request endpoints.
type ScheduleHandler struct {
	schedules *service.ScheduleService
}

// NewScheduleHandler constructs ScheduleHandler.
func NewScheduleHandler(schedules *service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules}
}

// Upsert godoc
// @Summary Create or replace a weekday schedule entry
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body service.UpsertScheduleInput true "Schedule payload"
// @Success 200 {object} response.Envelope
// @Router /schedules [put]
func (h *ScheduleHandler) Upsert(c *gin.Context) {
	var req service.UpsertScheduleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	entry, err := h.schedules.Upsert(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// ListForStudent godoc
// @Summary Get a student's weekly plan
// @Tags Schedules
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/students/{studentId} [get]
func (h *ScheduleHandler) ListForStudent(c *gin.Context) {
	entries, err := h.schedules.ListForStudent(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// ListForDay godoc
// @Summary List approved entries for one weekday
// @Tags Schedules
// @Produce json
// @Param day path string true "Day of week (MONDAY..SUNDAY)"
// @Success 200 {object} response.Envelope
// @Router /schedules/day/{day} [get]
func (h *ScheduleHandler) ListForDay(c *gin.Context) {
	day := models.DayOfWeek(strings.ToUpper(c.Param("day")))
	entries, err := h.schedules.ListForDay(c.Request.Context(), day)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Delete godoc
// @Summary Delete a schedule entry
// @Tags Schedules
// @Param id path string true "Schedule ID"
// @Success 204 "No Content"
// @Router /schedules/{id} [delete]
func (h *ScheduleHandler) Delete(c *gin.Context) {
	if err := h.schedules.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RequestChange godoc
// @Summary Submit a schedule change request
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body service.RequestChangeInput true "Change request payload"
// @Success 201 {object} response.Envelope
// @Router /schedule-requests [post]
func (h *ScheduleHandler) RequestChange(c *gin.Context) {
	var req service.RequestChangeInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleStudent {
		if claims.StudentID == nil || *claims.StudentID != req.StudentID {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "cannot request changes for another student"))
			return
		}
	}
	request, err := h.schedules.RequestChange(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// PendingRequests godoc
// @Summary List pending schedule change requests
// @Tags Schedules
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /schedule-requests [get]
func (h *ScheduleHandler) PendingRequests(c *gin.Context) {
	requests, err := h.schedules.PendingRequests(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// Approve godoc
// @Summary Approve a schedule change request
// @Tags Schedules
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /schedule-requests/{id}/approve [post]
func (h *ScheduleHandler) Approve(c *gin.Context) {
	h.decide(c, true)
}

// Reject godoc
// @Summary Reject a schedule change request
// @Tags Schedules
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /schedule-requests/{id}/reject [post]
func (h *ScheduleHandler) Reject(c *gin.Context) {
	h.decide(c, false)
}

func (h *ScheduleHandler) decide(c *gin.Context, approve bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.schedules.DecideRequest(c.Request.Context(), c.Param("id"), approve, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}
