package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/gaon-dev/gaon-api/internal/models"
	appErrors "github.com/gaon-dev/gaon-api/pkg/errors"
)

type scheduleRepository interface {
	GetByStudentAndDay(ctx context.Context, studentID string, day models.DayOfWeek) (*models.ScheduleEntry, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.ScheduleEntry, error)
	ListByDay(ctx context.Context, day models.DayOfWeek) ([]models.ScheduleWithStudent, error)
	Upsert(ctx context.Context, entry *models.ScheduleEntry) (*models.ScheduleEntry, error)
	Delete(ctx context.Context, id string) error
	CreateRequest(ctx context.Context, req *models.ScheduleChangeRequest) error
	GetRequest(ctx context.Context, id string) (*models.ScheduleChangeRequest, error)
	ListRequests(ctx context.Context, status models.ApprovalStatus) ([]models.ScheduleChangeRequest, error)
	DecideRequest(ctx context.Context, id string, status models.ApprovalStatus, decidedBy string, decidedAt time.Time) error
}

// ScheduleService manages the weekly attendance plan and the student-side
// change-request workflow.
type ScheduleService struct {
	schedules scheduleRepository
	validator *validator.Validate
	logger    *zap.Logger
}

func NewScheduleService(schedules scheduleRepository, validator *validator.Validate, logger *zap.Logger) *ScheduleService {
	return &ScheduleService{schedules: schedules, validator: validator, logger: logger}
}

// UpsertScheduleInput carries an admin-side schedule write. Times are
// wall-clock "HH:MM" strings.
type UpsertScheduleInput struct {
	StudentID      string               `json:"student_id" validate:"required,uuid"`
	Day            models.DayOfWeek     `json:"day" validate:"required"`
	AttendTime     string               `json:"attend_time" validate:"required"`
	LeaveTime      *string              `json:"leave_time,omitempty"`
	Memo           *string              `json:"memo,omitempty"`
	PlannedOutings []PlannedOutingInput `json:"planned_outings,omitempty"`
}

// PlannedOutingInput is one planned departure window.
type PlannedOutingInput struct {
	StartTime string  `json:"start_time" validate:"required"`
	EndTime   string  `json:"end_time" validate:"required"`
	Label     *string `json:"label,omitempty"`
}

// Upsert writes the schedule entry for one (student, weekday) pair. Admin
// writes are approved immediately.
func (s *ScheduleService) Upsert(ctx context.Context, input UpsertScheduleInput) (*models.ScheduleEntry, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if err := validateScheduleTimes(input.Day, input.AttendTime, input.LeaveTime); err != nil {
		return nil, err
	}

	entry := &models.ScheduleEntry{
		StudentID:  input.StudentID,
		Day:        input.Day,
		AttendTime: input.AttendTime,
		LeaveTime:  input.LeaveTime,
		Memo:       input.Memo,
		Status:     models.ApprovalApproved,
	}
	for _, outing := range input.PlannedOutings {
		start, err := ParseClock(outing.StartTime)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		end, err := ParseClock(outing.EndTime)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		if end <= start {
			return nil, appErrors.Clone(appErrors.ErrValidation, "planned outing must end after it starts")
		}
		entry.PlannedOutings = append(entry.PlannedOutings, models.PlannedOuting{
			StartTime: outing.StartTime,
			EndTime:   outing.EndTime,
			Label:     outing.Label,
		})
	}

	saved, err := s.schedules.Upsert(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("save schedule: %w", err)
	}

	s.logger.Info("schedule saved",
		zap.String("student_id", input.StudentID),
		zap.String("day", string(input.Day)))

	return saved, nil
}

// GetForDay returns a student's entry for one weekday.
func (s *ScheduleService) GetForDay(ctx context.Context, studentID string, day models.DayOfWeek) (*models.ScheduleEntry, error) {
	if !day.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid day of week")
	}
	entry, err := s.schedules.GetByStudentAndDay(ctx, studentID, day)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no schedule for that day")
		}
		return nil, fmt.Errorf("load schedule: %w", err)
	}
	return entry, nil
}

// ListForStudent returns the full weekly plan for one student.
func (s *ScheduleService) ListForStudent(ctx context.Context, studentID string) ([]models.ScheduleEntry, error) {
	entries, err := s.schedules.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return entries, nil
}

// ListForDay returns every approved entry for one weekday with student names.
func (s *ScheduleService) ListForDay(ctx context.Context, day models.DayOfWeek) ([]models.ScheduleWithStudent, error) {
	if !day.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid day of week")
	}
	entries, err := s.schedules.ListByDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("list schedules for day: %w", err)
	}
	return entries, nil
}

// Delete removes a schedule entry.
func (s *ScheduleService) Delete(ctx context.Context, id string) error {
	if err := s.schedules.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return nil
}

// RequestChangeInput is a student-submitted schedule change.
type RequestChangeInput struct {
	StudentID  string           `json:"student_id" validate:"required,uuid"`
	Day        models.DayOfWeek `json:"day" validate:"required"`
	AttendTime string           `json:"attend_time" validate:"required"`
	LeaveTime  *string          `json:"leave_time,omitempty"`
	Memo       *string          `json:"memo,omitempty"`
}

// RequestChange records a pending change request for admin review.
func (s *ScheduleService) RequestChange(ctx context.Context, input RequestChangeInput) (*models.ScheduleChangeRequest, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if err := validateScheduleTimes(input.Day, input.AttendTime, input.LeaveTime); err != nil {
		return nil, err
	}

	req := &models.ScheduleChangeRequest{
		StudentID:  input.StudentID,
		Day:        input.Day,
		AttendTime: input.AttendTime,
		LeaveTime:  input.LeaveTime,
		Memo:       input.Memo,
	}
	if err := s.schedules.CreateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("create schedule request: %w", err)
	}

	s.logger.Info("schedule change requested",
		zap.String("student_id", input.StudentID),
		zap.String("day", string(input.Day)))

	return req, nil
}

// PendingRequests lists change requests awaiting a decision.
func (s *ScheduleService) PendingRequests(ctx context.Context) ([]models.ScheduleChangeRequest, error) {
	requests, err := s.schedules.ListRequests(ctx, models.ApprovalPending)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	return requests, nil
}

// DecideRequest approves or rejects a pending change request. Approval copies
// the requested times onto the live schedule entry.
func (s *ScheduleService) DecideRequest(ctx context.Context, id string, approve bool, decidedBy string) (*models.ScheduleChangeRequest, error) {
	req, err := s.schedules.GetRequest(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule request not found")
		}
		return nil, fmt.Errorf("load schedule request: %w", err)
	}
	if req.Status != models.ApprovalPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "schedule request already decided")
	}

	status := models.ApprovalRejected
	if approve {
		status = models.ApprovalApproved
	}
	now := time.Now().UTC()
	if err := s.schedules.DecideRequest(ctx, id, status, decidedBy, now); err != nil {
		return nil, fmt.Errorf("decide schedule request: %w", err)
	}

	if approve {
		entry := &models.ScheduleEntry{
			StudentID:  req.StudentID,
			Day:        req.Day,
			AttendTime: req.AttendTime,
			LeaveTime:  req.LeaveTime,
			Memo:       req.Memo,
			Status:     models.ApprovalApproved,
		}
		if existing, err := s.schedules.GetByStudentAndDay(ctx, req.StudentID, req.Day); err == nil {
			entry.PlannedOutings = existing.PlannedOutings
		}
		if _, err := s.schedules.Upsert(ctx, entry); err != nil {
			return nil, fmt.Errorf("apply approved schedule: %w", err)
		}
	}

	req.Status = status
	req.DecidedBy = &decidedBy
	req.DecidedAt = &now

	s.logger.Info("schedule request decided",
		zap.String("request_id", id),
		zap.String("status", string(status)))

	return req, nil
}

func validateScheduleTimes(day models.DayOfWeek, attendTime string, leaveTime *string) error {
	if !day.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "invalid day of week")
	}
	attend, err := ParseClock(attendTime)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if leaveTime != nil {
		leave, err := ParseClock(*leaveTime)
		if err != nil {
			return appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		if leave <= attend {
			return appErrors.Clone(appErrors.ErrValidation, "leave time must be after attend time")
		}
	}
	return nil
}
