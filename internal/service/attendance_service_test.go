package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gaon-dev/gaon-api/internal/models"
	appErrors "github.com/gaon-dev/gaon-api/pkg/errors"
)

type fakeEventRepo struct {
	events map[string]*models.AttendanceEvent
	nextID int
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{events: make(map[string]*models.AttendanceEvent)}
}

func eventKey(studentID string, date time.Time) string {
	return studentID + "|" + date.Format("2006-01-02")
}

func (f *fakeEventRepo) GetEvent(_ context.Context, studentID string, date time.Time) (*models.AttendanceEvent, error) {
	event, ok := f.events[eventKey(studentID, date)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *event
	copied.OutingLog = append([]models.OutingInterval(nil), event.OutingLog...)
	return &copied, nil
}

func (f *fakeEventRepo) GetByID(_ context.Context, id string) (*models.AttendanceEvent, error) {
	for _, event := range f.events {
		if event.ID == id {
			copied := *event
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeEventRepo) Upsert(_ context.Context, event *models.AttendanceEvent) (*models.AttendanceEvent, error) {
	if event.ID == "" {
		f.nextID++
		event.ID = fmt.Sprintf("evt-%d", f.nextID)
	}
	copied := *event
	copied.OutingLog = append([]models.OutingInterval(nil), event.OutingLog...)
	f.events[eventKey(event.StudentID, event.Date)] = &copied
	return event, nil
}

func (f *fakeEventRepo) ListForDate(_ context.Context, date time.Time) ([]models.AttendanceRecord, error) {
	var records []models.AttendanceRecord
	for _, event := range f.events {
		if event.Date.Equal(date) {
			records = append(records, models.AttendanceRecord{AttendanceEvent: *event})
		}
	}
	return records, nil
}

func (f *fakeEventRepo) ListRange(_ context.Context, studentID string, from, to time.Time) ([]models.AttendanceEvent, error) {
	var events []models.AttendanceEvent
	for _, event := range f.events {
		if event.StudentID == studentID && !event.Date.Before(from) && !event.Date.After(to) {
			events = append(events, *event)
		}
	}
	return events, nil
}

type fakeScheduleRepo struct {
	entries map[string]*models.ScheduleEntry // studentID|day
}

func newFakeScheduleRepo() *fakeScheduleRepo {
	return &fakeScheduleRepo{entries: make(map[string]*models.ScheduleEntry)}
}

func (f *fakeScheduleRepo) put(entry *models.ScheduleEntry) {
	f.entries[entry.StudentID+"|"+string(entry.Day)] = entry
}

func (f *fakeScheduleRepo) GetByStudentAndDay(_ context.Context, studentID string, day models.DayOfWeek) (*models.ScheduleEntry, error) {
	entry, ok := f.entries[studentID+"|"+string(day)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return entry, nil
}

func (f *fakeScheduleRepo) ListByStudent(_ context.Context, studentID string) ([]models.ScheduleEntry, error) {
	var entries []models.ScheduleEntry
	for _, entry := range f.entries {
		if entry.StudentID == studentID {
			entries = append(entries, *entry)
		}
	}
	return entries, nil
}

func (f *fakeScheduleRepo) ListByDay(_ context.Context, day models.DayOfWeek) ([]models.ScheduleWithStudent, error) {
	var rows []models.ScheduleWithStudent
	for _, entry := range f.entries {
		if entry.Day == day && entry.Status == models.ApprovalApproved {
			rows = append(rows, models.ScheduleWithStudent{ScheduleEntry: *entry, StudentName: "학생"})
		}
	}
	return rows, nil
}

// hookedEventRepo lets a test interleave a competing mutation at the moment
// the service reads a record.
type hookedEventRepo struct {
	*fakeEventRepo
	onGetEvent func(studentID string)
	onGetByID  func(id string)
}

func (h *hookedEventRepo) GetEvent(ctx context.Context, studentID string, date time.Time) (*models.AttendanceEvent, error) {
	if h.onGetEvent != nil {
		h.onGetEvent(studentID)
	}
	return h.fakeEventRepo.GetEvent(ctx, studentID, date)
}

func (h *hookedEventRepo) GetByID(ctx context.Context, id string) (*models.AttendanceEvent, error) {
	if h.onGetByID != nil {
		h.onGetByID(id)
	}
	return h.fakeEventRepo.GetByID(ctx, id)
}

type fakePenaltyRepo struct {
	logs []*models.AttendancePenaltyLog
}

func (f *fakePenaltyRepo) Create(_ context.Context, log *models.AttendancePenaltyLog) error {
	f.logs = append(f.logs, log)
	return nil
}

func newTestAttendanceService(events attendanceEventRepository, schedules *fakeScheduleRepo, penalties *fakePenaltyRepo) *AttendanceService {
	return NewAttendanceService(events, schedules, penalties, defaultRules(), time.UTC, validator.New(), zap.NewNop())
}

func TestRecordCheckIn(t *testing.T) {
	events := newFakeEventRepo()
	schedules := newFakeScheduleRepo()
	penalties := &fakePenaltyRepo{}
	svc := newTestAttendanceService(events, schedules, penalties)

	event, err := svc.RecordCheckIn(context.Background(), "s1", at(14, 0))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPresent, event.FinalStatus)
	require.NotNil(t, event.AttendTime)
	assert.Empty(t, penalties.logs)

	// A second tap while the day is open refreshes the arrival time.
	event, err = svc.RecordCheckIn(context.Background(), "s1", at(14, 30))
	require.NoError(t, err)
	assert.Equal(t, 14*60+30, event.AttendTime.Hour()*60+event.AttendTime.Minute())
}

func TestRecordCheckInAfterCheckoutRejected(t *testing.T) {
	events := newFakeEventRepo()
	svc := newTestAttendanceService(events, newFakeScheduleRepo(), &fakePenaltyRepo{})

	_, err := svc.RecordCheckIn(context.Background(), "s1", at(14, 0))
	require.NoError(t, err)
	_, err = svc.RecordCheckOut(context.Background(), "s1", at(20, 0))
	require.NoError(t, err)

	_, err = svc.RecordCheckIn(context.Background(), "s1", at(20, 30))
	assert.ErrorIs(t, err, appErrors.ErrDayClosed)
}

func TestRecordCheckInLatePenalty(t *testing.T) {
	events := newFakeEventRepo()
	schedules := newFakeScheduleRepo()
	schedules.put(mondaySchedule("15:00"))
	penalties := &fakePenaltyRepo{}
	svc := newTestAttendanceService(events, schedules, penalties)

	_, err := svc.RecordCheckIn(context.Background(), "s1", at(16, 0))
	require.NoError(t, err)
	require.Len(t, penalties.logs, 1)
	assert.Equal(t, models.PenaltyLate, penalties.logs[0].PenaltyType)
}

func TestRecordCheckInExcusedLateSkipsPenalty(t *testing.T) {
	events := newFakeEventRepo()
	schedules := newFakeScheduleRepo()
	schedules.put(mondaySchedule("15:00"))
	penalties := &fakePenaltyRepo{}
	svc := newTestAttendanceService(events, schedules, penalties)

	_, err := svc.ToggleExcuseLate(context.Background(), "s1", at(10, 0))
	require.NoError(t, err)
	_, err = svc.RecordCheckIn(context.Background(), "s1", at(16, 0))
	require.NoError(t, err)
	assert.Empty(t, penalties.logs)
}

func TestRecordCheckOutRequiresCheckIn(t *testing.T) {
	svc := newTestAttendanceService(newFakeEventRepo(), newFakeScheduleRepo(), &fakePenaltyRepo{})

	_, err := svc.RecordCheckOut(context.Background(), "s1", at(20, 0))
	assert.ErrorIs(t, err, appErrors.ErrNotCheckedIn)
}

func TestRecordCheckOutClosesOpenOuting(t *testing.T) {
	events := newFakeEventRepo()
	svc := newTestAttendanceService(events, newFakeScheduleRepo(), &fakePenaltyRepo{})

	_, err := svc.RecordCheckIn(context.Background(), "s1", at(14, 0))
	require.NoError(t, err)
	_, err = svc.StartOuting(context.Background(), "s1", at(16, 0))
	require.NoError(t, err)

	event, err := svc.RecordCheckOut(context.Background(), "s1", at(20, 0))
	require.NoError(t, err)
	assert.Equal(t, models.StatusLeft, event.FinalStatus)
	assert.False(t, event.IsOuting)
	require.Len(t, event.OutingLog, 1)
	require.NotNil(t, event.OutingLog[0].EndTime)
	assert.Equal(t, 20, event.OutingLog[0].EndTime.Hour())
}

func TestOutingLifecycle(t *testing.T) {
	events := newFakeEventRepo()
	svc := newTestAttendanceService(events, newFakeScheduleRepo(), &fakePenaltyRepo{})

	_, err := svc.StartOuting(context.Background(), "s1", at(16, 0))
	assert.ErrorIs(t, err, appErrors.ErrNotCheckedIn)

	_, err = svc.RecordCheckIn(context.Background(), "s1", at(14, 0))
	require.NoError(t, err)

	event, err := svc.StartOuting(context.Background(), "s1", at(16, 0))
	require.NoError(t, err)
	assert.Equal(t, models.StatusOuting, event.FinalStatus)
	assert.True(t, event.IsOuting)

	_, err = svc.StartOuting(context.Background(), "s1", at(16, 30))
	require.Error(t, err)
	var typed *appErrors.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, appErrors.ErrConflict.Code, typed.Code)

	event, err = svc.EndOuting(context.Background(), "s1", at(17, 0))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPresent, event.FinalStatus)
	assert.False(t, event.IsOuting)
	require.Len(t, event.OutingLog, 1)
	assert.True(t, event.OutingLog[0].Closed())

	_, err = svc.EndOuting(context.Background(), "s1", at(17, 30))
	assert.ErrorIs(t, err, appErrors.ErrNoActiveOuting)
}

func TestToggleExcuseCreatesAndFlips(t *testing.T) {
	events := newFakeEventRepo()
	svc := newTestAttendanceService(events, newFakeScheduleRepo(), &fakePenaltyRepo{})

	event, err := svc.ToggleExcuseAbsent(context.Background(), "s1", at(9, 0))
	require.NoError(t, err)
	assert.True(t, event.ExcuseAbsent)
	assert.Nil(t, event.AttendTime)
	assert.Equal(t, models.StatusPresent, event.FinalStatus)

	// A second toggle restores the original state.
	event, err = svc.ToggleExcuseAbsent(context.Background(), "s1", at(9, 5))
	require.NoError(t, err)
	assert.False(t, event.ExcuseAbsent)
}

func TestUpdateTimesValidatesOrder(t *testing.T) {
	events := newFakeEventRepo()
	svc := newTestAttendanceService(events, newFakeScheduleRepo(), &fakePenaltyRepo{})

	created, err := svc.RecordCheckIn(context.Background(), "s1", at(14, 0))
	require.NoError(t, err)

	early := at(13, 0)
	_, err = svc.UpdateTimes(context.Background(), created.ID, UpdateTimesInput{LeaveTime: &early})
	require.Error(t, err)
	var typed *appErrors.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, appErrors.ErrValidation.Code, typed.Code)

	later := at(21, 0)
	updated, err := svc.UpdateTimes(context.Background(), created.ID, UpdateTimesInput{LeaveTime: &later})
	require.NoError(t, err)
	require.NotNil(t, updated.LeaveTime)
	assert.Equal(t, 21, updated.LeaveTime.Hour())
}

func TestUpdateTimesKeepsCompetingMutation(t *testing.T) {
	events := &hookedEventRepo{fakeEventRepo: newFakeEventRepo()}
	svc := newTestAttendanceService(events, newFakeScheduleRepo(), &fakePenaltyRepo{})

	created, err := svc.RecordCheckIn(context.Background(), "s1", at(15, 10))
	require.NoError(t, err)

	// Flip an excuse flag between the correction's initial read and its
	// locked write; the flag must survive the correction.
	var once sync.Once
	events.onGetByID = func(string) {
		once.Do(func() {
			_, err := svc.ToggleExcuseLate(context.Background(), "s1", at(15, 20))
			require.NoError(t, err)
		})
	}

	leave := at(20, 0)
	updated, err := svc.UpdateTimes(context.Background(), created.ID, UpdateTimesInput{LeaveTime: &leave})
	require.NoError(t, err)
	assert.True(t, updated.ExcuseLate)
	require.NotNil(t, updated.LeaveTime)
	assert.Equal(t, 20, updated.LeaveTime.Hour())
}

func TestUpdateTimesUnknownRecord(t *testing.T) {
	svc := newTestAttendanceService(newFakeEventRepo(), newFakeScheduleRepo(), &fakePenaltyRepo{})

	_, err := svc.UpdateTimes(context.Background(), "missing", UpdateTimesInput{})
	var typed *appErrors.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, appErrors.ErrNotFound.Code, typed.Code)
}
