package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gaon-dev/gaon-api/internal/models"
	"github.com/gaon-dev/gaon-api/pkg/jobs"
)

func newTestReportService(events *fakeEventRepo, schedules *fakeScheduleRepo) *ReportService {
	return NewReportService(ReportServiceDeps{
		Events:    events,
		Schedules: schedules,
		Rules:     defaultRules(),
		Location:  time.UTC,
		Logger:    zap.NewNop(),
	}, jobs.QueueConfig{})
}

func weekdaySchedules(studentID, attend string) *fakeScheduleRepo {
	schedules := newFakeScheduleRepo()
	for _, day := range []models.DayOfWeek{models.Monday, models.Tuesday, models.Wednesday, models.Thursday, models.Friday} {
		schedules.put(&models.ScheduleEntry{
			StudentID:  studentID,
			Day:        day,
			AttendTime: attend,
			Status:     models.ApprovalApproved,
		})
	}
	return schedules
}

func storeEvent(events *fakeEventRepo, studentID string, day int, mutate func(*models.AttendanceEvent)) {
	date := time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC)
	event := &models.AttendanceEvent{StudentID: studentID, Date: date, FinalStatus: models.StatusNotArrived}
	mutate(event)
	_, _ = events.Upsert(context.Background(), event)
}

func TestBuildCalendarClassifiesMonth(t *testing.T) {
	events := newFakeEventRepo()
	schedules := weekdaySchedules("s1", "15:00")
	svc := newTestReportService(events, schedules)

	clock := func(day, hour, minute int) *time.Time {
		v := time.Date(2026, 3, day, hour, minute, 0, 0, time.UTC)
		return &v
	}

	// Monday: on time, full day.
	storeEvent(events, "s1", 2, func(e *models.AttendanceEvent) {
		e.AttendTime = clock(2, 15, 10)
		e.LeaveTime = clock(2, 20, 10)
		e.FinalStatus = models.StatusLeft
	})
	// Tuesday: unexcused late arrival.
	storeEvent(events, "s1", 3, func(e *models.AttendanceEvent) {
		e.AttendTime = clock(3, 16, 0)
		e.LeaveTime = clock(3, 20, 0)
		e.FinalStatus = models.StatusLeft
	})
	// Wednesday: no event at all.
	// Thursday: notified absence.
	storeEvent(events, "s1", 5, func(e *models.AttendanceEvent) {
		e.ExcuseAbsent = true
	})
	// Friday: late but excused, day never closed.
	storeEvent(events, "s1", 6, func(e *models.AttendanceEvent) {
		e.AttendTime = clock(6, 16, 0)
		e.ExcuseLate = true
		e.FinalStatus = models.StatusPresent
	})

	now := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	aggregate, err := svc.BuildCalendar(context.Background(), "s1", 2026, 3, now)
	require.NoError(t, err)

	assert.Equal(t, 5, aggregate.TotalDays)
	assert.Equal(t, 1, aggregate.LateCount)
	assert.Equal(t, 1, aggregate.AbsentCount)
	assert.Equal(t, 540, aggregate.TotalStudyMinutes)
	require.Len(t, aggregate.Calendar, 5)

	byDate := make(map[string]models.AttendanceCalendarDay, len(aggregate.Calendar))
	for _, day := range aggregate.Calendar {
		byDate[day.Date] = day
	}

	assert.Equal(t, models.CalendarPresent, byDate["2026-03-02"].Status)
	require.NotNil(t, byDate["2026-03-02"].StudyMinutes)
	assert.Equal(t, 300, *byDate["2026-03-02"].StudyMinutes)

	assert.Equal(t, models.CalendarLate, byDate["2026-03-03"].Status)
	assert.Equal(t, models.CalendarAbsent, byDate["2026-03-04"].Status)

	assert.Equal(t, models.CalendarPresent, byDate["2026-03-05"].Status)
	require.NotNil(t, byDate["2026-03-05"].StudyMinutes)
	assert.Equal(t, 0, *byDate["2026-03-05"].StudyMinutes)

	assert.Equal(t, models.CalendarPresent, byDate["2026-03-06"].Status)
	assert.Nil(t, byDate["2026-03-06"].StudyMinutes)
}

func TestBuildCalendarSkipsWeekendsAndFutureDays(t *testing.T) {
	events := newFakeEventRepo()
	schedules := weekdaySchedules("s1", "15:00")
	// A weekend entry must never count even when approved.
	schedules.put(&models.ScheduleEntry{
		StudentID:  "s1",
		Day:        models.Saturday,
		AttendTime: "10:00",
		Status:     models.ApprovalApproved,
	})
	svc := newTestReportService(events, schedules)

	now := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	aggregate, err := svc.BuildCalendar(context.Background(), "s1", 2026, 3, now)
	require.NoError(t, err)

	// Only March 2-4 have elapsed.
	assert.Equal(t, 3, aggregate.TotalDays)
	for _, day := range aggregate.Calendar {
		parsed, err := time.Parse("2006-01-02", day.Date)
		require.NoError(t, err)
		assert.False(t, models.DayOf(parsed).Weekend())
	}
}

func TestBuildCalendarSkipsUnscheduledWeekdays(t *testing.T) {
	events := newFakeEventRepo()
	schedules := newFakeScheduleRepo()
	schedules.put(&models.ScheduleEntry{
		StudentID:  "s1",
		Day:        models.Monday,
		AttendTime: "15:00",
		Status:     models.ApprovalApproved,
	})
	svc := newTestReportService(events, schedules)

	now := time.Date(2026, 3, 13, 9, 0, 0, 0, time.UTC)
	aggregate, err := svc.BuildCalendar(context.Background(), "s1", 2026, 3, now)
	require.NoError(t, err)

	// Two Mondays have elapsed: March 2 and March 9.
	assert.Equal(t, 2, aggregate.TotalDays)
	assert.Equal(t, 2, aggregate.AbsentCount)
}

func TestBuildCalendarRejectsInvalidMonth(t *testing.T) {
	svc := newTestReportService(newFakeEventRepo(), newFakeScheduleRepo())

	_, err := svc.BuildCalendar(context.Background(), "s1", 2026, 13, time.Now())
	assert.Error(t, err)
}
