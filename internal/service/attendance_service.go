package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/gaon-dev/gaon-api/internal/models"
	appErrors "github.com/gaon-dev/gaon-api/pkg/errors"
)

type attendanceEventRepository interface {
	GetEvent(ctx context.Context, studentID string, date time.Time) (*models.AttendanceEvent, error)
	GetByID(ctx context.Context, id string) (*models.AttendanceEvent, error)
	Upsert(ctx context.Context, event *models.AttendanceEvent) (*models.AttendanceEvent, error)
	ListForDate(ctx context.Context, date time.Time) ([]models.AttendanceRecord, error)
	ListRange(ctx context.Context, studentID string, from, to time.Time) ([]models.AttendanceEvent, error)
}

type attendanceScheduleRepository interface {
	GetByStudentAndDay(ctx context.Context, studentID string, day models.DayOfWeek) (*models.ScheduleEntry, error)
	ListByDay(ctx context.Context, day models.DayOfWeek) ([]models.ScheduleWithStudent, error)
}

type penaltyWriter interface {
	Create(ctx context.Context, log *models.AttendancePenaltyLog) error
}

// AttendanceService owns the per-day attendance lifecycle: check-in,
// check-out, outings and excuse flags. Every mutation for one
// (student, date) pair is serialized through a keyed mutex so concurrent
// kiosk taps cannot interleave.
type AttendanceService struct {
	events    attendanceEventRepository
	schedules attendanceScheduleRepository
	penalties penaltyWriter
	rules     AttendanceRules
	location  *time.Location
	validator *validator.Validate
	logger    *zap.Logger

	dayLocks sync.Map
}

func NewAttendanceService(
	events attendanceEventRepository,
	schedules attendanceScheduleRepository,
	penalties penaltyWriter,
	rules AttendanceRules,
	location *time.Location,
	validator *validator.Validate,
	logger *zap.Logger,
) *AttendanceService {
	if location == nil {
		location = time.UTC
	}
	return &AttendanceService{
		events:    events,
		schedules: schedules,
		penalties: penalties,
		rules:     rules,
		location:  location,
		validator: validator,
		logger:    logger,
	}
}

// Location returns the wall-clock zone attendance days are keyed by.
func (s *AttendanceService) Location() *time.Location {
	return s.location
}

// Rules exposes the derivation thresholds for read-side consumers.
func (s *AttendanceService) Rules() AttendanceRules {
	return s.rules
}

// DateOf truncates an instant to the local attendance day.
func (s *AttendanceService) DateOf(at time.Time) time.Time {
	local := at.In(s.location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *AttendanceService) lockDay(studentID string, date time.Time) func() {
	key := studentID + "|" + date.Format("2006-01-02")
	value, _ := s.dayLocks.LoadOrStore(key, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *AttendanceService) loadEvent(ctx context.Context, studentID string, date time.Time) (*models.AttendanceEvent, error) {
	event, err := s.events.GetEvent(ctx, studentID, date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load attendance event: %w", err)
	}
	return event, nil
}

func (s *AttendanceService) scheduleFor(ctx context.Context, studentID string, date time.Time) *models.ScheduleEntry {
	entry, err := s.schedules.GetByStudentAndDay(ctx, studentID, models.DayOf(date))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("schedule lookup failed",
				zap.String("student_id", studentID),
				zap.Error(err))
		}
		return nil
	}
	return entry
}

// RecordCheckIn registers an arrival. A repeated check-in while the day is
// still open refreshes the arrival time and resets the status to 출석; after
// check-out the day is closed and the call is rejected. Arrivals past the
// schedule's late threshold write a LATE penalty unless the late excuse flag
// is set.
func (s *AttendanceService) RecordCheckIn(ctx context.Context, studentID string, now time.Time) (*models.AttendanceEvent, error) {
	date := s.DateOf(now)
	unlock := s.lockDay(studentID, date)
	defer unlock()

	event, err := s.loadEvent(ctx, studentID, date)
	if err != nil {
		return nil, err
	}
	if event != nil && event.DayClosed() {
		return nil, appErrors.ErrDayClosed
	}
	if event == nil {
		event = &models.AttendanceEvent{StudentID: studentID, Date: date}
	}

	arrival := now.In(s.location)
	event.AttendTime = &arrival
	event.FinalStatus = models.StatusPresent

	saved, err := s.events.Upsert(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("save check-in: %w", err)
	}

	schedule := s.scheduleFor(ctx, studentID, date)
	if !saved.ExcuseLate && s.rules.PastLateThreshold(schedule, arrival) {
		penalty := &models.AttendancePenaltyLog{
			AttendanceID: saved.ID,
			StudentID:    studentID,
			PenaltyType:  models.PenaltyLate,
			OccurredAt:   arrival,
		}
		if err := s.penalties.Create(ctx, penalty); err != nil {
			s.logger.Error("failed to record late penalty",
				zap.String("student_id", studentID),
				zap.Error(err))
		}
	}

	s.logger.Info("check-in recorded",
		zap.String("student_id", studentID),
		zap.Time("attend_time", arrival))

	return saved, nil
}

// RecordCheckOut closes the day: sets the leave time, ends any outing still
// open and marks the status 하원.
func (s *AttendanceService) RecordCheckOut(ctx context.Context, studentID string, now time.Time) (*models.AttendanceEvent, error) {
	date := s.DateOf(now)
	unlock := s.lockDay(studentID, date)
	defer unlock()

	event, err := s.loadEvent(ctx, studentID, date)
	if err != nil {
		return nil, err
	}
	if event == nil || event.AttendTime == nil {
		return nil, appErrors.ErrNotCheckedIn
	}
	if event.DayClosed() {
		return nil, appErrors.ErrDayClosed
	}

	departure := now.In(s.location)
	if open := event.OpenOuting(); open != nil {
		open.EndTime = &departure
	}
	event.LeaveTime = &departure
	event.IsOuting = false
	event.FinalStatus = models.StatusLeft

	saved, err := s.events.Upsert(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("save check-out: %w", err)
	}

	s.logger.Info("check-out recorded",
		zap.String("student_id", studentID),
		zap.Time("leave_time", departure))

	return saved, nil
}

// StartOuting opens an outing interval for a checked-in student.
func (s *AttendanceService) StartOuting(ctx context.Context, studentID string, now time.Time) (*models.AttendanceEvent, error) {
	date := s.DateOf(now)
	unlock := s.lockDay(studentID, date)
	defer unlock()

	event, err := s.loadEvent(ctx, studentID, date)
	if err != nil {
		return nil, err
	}
	if event == nil || event.AttendTime == nil {
		return nil, appErrors.ErrNotCheckedIn
	}
	if event.DayClosed() {
		return nil, appErrors.ErrDayClosed
	}
	if event.IsOuting {
		return nil, appErrors.Clone(appErrors.ErrConflict, "outing already in progress")
	}

	start := now.In(s.location)
	event.OutingLog = append(event.OutingLog, models.OutingInterval{StartTime: start})
	event.IsOuting = true
	event.FinalStatus = models.StatusOuting

	saved, err := s.events.Upsert(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("save outing start: %w", err)
	}

	return saved, nil
}

// EndOuting closes the open outing interval and returns the student to 출석.
func (s *AttendanceService) EndOuting(ctx context.Context, studentID string, now time.Time) (*models.AttendanceEvent, error) {
	date := s.DateOf(now)
	unlock := s.lockDay(studentID, date)
	defer unlock()

	event, err := s.loadEvent(ctx, studentID, date)
	if err != nil {
		return nil, err
	}
	if event == nil || !event.IsOuting {
		return nil, appErrors.ErrNoActiveOuting
	}
	if event.DayClosed() {
		return nil, appErrors.ErrDayClosed
	}

	end := now.In(s.location)
	if open := event.OpenOuting(); open != nil {
		open.EndTime = &end
	}
	event.IsOuting = false
	event.FinalStatus = models.StatusPresent

	saved, err := s.events.Upsert(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("save outing end: %w", err)
	}

	return saved, nil
}

// ToggleExcuseLate flips the notified-late flag for the given day, creating
// the day's event when none exists yet.
func (s *AttendanceService) ToggleExcuseLate(ctx context.Context, studentID string, date time.Time) (*models.AttendanceEvent, error) {
	return s.toggleExcuse(ctx, studentID, date, func(event *models.AttendanceEvent) {
		event.ExcuseLate = !event.ExcuseLate
	})
}

// ToggleExcuseAbsent flips the notified-absence flag for the given day,
// creating the day's event when none exists yet.
func (s *AttendanceService) ToggleExcuseAbsent(ctx context.Context, studentID string, date time.Time) (*models.AttendanceEvent, error) {
	return s.toggleExcuse(ctx, studentID, date, func(event *models.AttendanceEvent) {
		event.ExcuseAbsent = !event.ExcuseAbsent
	})
}

func (s *AttendanceService) toggleExcuse(ctx context.Context, studentID string, date time.Time, flip func(*models.AttendanceEvent)) (*models.AttendanceEvent, error) {
	date = s.DateOf(date)
	unlock := s.lockDay(studentID, date)
	defer unlock()

	event, err := s.loadEvent(ctx, studentID, date)
	if err != nil {
		return nil, err
	}
	if event != nil && event.DayClosed() {
		return nil, appErrors.ErrDayClosed
	}
	if event == nil {
		event = &models.AttendanceEvent{
			StudentID:   studentID,
			Date:        date,
			FinalStatus: models.StatusPresent,
		}
	}

	flip(event)

	saved, err := s.events.Upsert(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("save excuse flag: %w", err)
	}
	return saved, nil
}

// MarkAbsent records an unnotified absence for a scheduled student who never
// checked in, writing an ABSENT penalty alongside. The mark is skipped when
// the student has arrived, carries a notified-absence flag or is already
// marked. Returns true when a new mark was written.
func (s *AttendanceService) MarkAbsent(ctx context.Context, studentID string, at time.Time) (bool, error) {
	date := s.DateOf(at)
	unlock := s.lockDay(studentID, date)
	defer unlock()

	event, err := s.loadEvent(ctx, studentID, date)
	if err != nil {
		return false, err
	}
	if event != nil && (event.AttendTime != nil || event.ExcuseAbsent || event.FinalStatus == models.StatusAbsent) {
		return false, nil
	}
	if event == nil {
		event = &models.AttendanceEvent{StudentID: studentID, Date: date}
	}
	event.FinalStatus = models.StatusAbsent

	saved, err := s.events.Upsert(ctx, event)
	if err != nil {
		return false, fmt.Errorf("save absence mark: %w", err)
	}

	penalty := &models.AttendancePenaltyLog{
		AttendanceID: saved.ID,
		StudentID:    studentID,
		PenaltyType:  models.PenaltyAbsent,
		OccurredAt:   at.In(s.location),
	}
	if err := s.penalties.Create(ctx, penalty); err != nil {
		s.logger.Error("failed to record absence penalty",
			zap.String("student_id", studentID),
			zap.Error(err))
	}

	return true, nil
}

// UpdateTimesInput carries an administrative correction of arrival and
// departure times.
type UpdateTimesInput struct {
	AttendTime *time.Time
	LeaveTime  *time.Time
}

// UpdateTimes applies an admin correction to a stored event. Values left nil
// are preserved; a departure before the arrival is rejected.
func (s *AttendanceService) UpdateTimes(ctx context.Context, id string, input UpdateTimesInput) (*models.AttendanceEvent, error) {
	// First load only resolves the lock key; the copy mutated below is
	// re-read once the day is held.
	ref, err := s.events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, fmt.Errorf("load attendance record: %w", err)
	}

	unlock := s.lockDay(ref.StudentID, ref.Date)
	defer unlock()

	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, fmt.Errorf("load attendance record: %w", err)
	}

	if input.AttendTime != nil {
		local := input.AttendTime.In(s.location)
		event.AttendTime = &local
	}
	if input.LeaveTime != nil {
		local := input.LeaveTime.In(s.location)
		event.LeaveTime = &local
	}
	if event.AttendTime != nil && event.LeaveTime != nil && event.LeaveTime.Before(*event.AttendTime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "leave time precedes attend time")
	}

	saved, err := s.events.Upsert(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("save attendance correction: %w", err)
	}

	s.logger.Info("attendance times corrected", zap.String("attendance_id", id))

	return saved, nil
}

// EventForDate returns the stored event for a student on a given day, or nil
// when none exists.
func (s *AttendanceService) EventForDate(ctx context.Context, studentID string, date time.Time) (*models.AttendanceEvent, error) {
	return s.loadEvent(ctx, studentID, s.DateOf(date))
}

// ListForDate returns every stored event for a day joined with the student
// name, ordered by name.
func (s *AttendanceService) ListForDate(ctx context.Context, date time.Time) ([]models.AttendanceRecord, error) {
	records, err := s.events.ListForDate(ctx, s.DateOf(date))
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return records, nil
}

// DeriveStatus computes the display status for a student right now.
func (s *AttendanceService) DeriveStatus(ctx context.Context, studentID string, now time.Time) (models.DerivedStatus, error) {
	date := s.DateOf(now)
	event, err := s.loadEvent(ctx, studentID, date)
	if err != nil {
		return "", err
	}
	schedule := s.scheduleFor(ctx, studentID, date)
	return s.rules.ComputeAutoStatus(schedule, event, now.In(s.location)), nil
}
