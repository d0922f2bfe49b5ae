package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gaon-dev/gaon-api/internal/models"
)

func TestSweepMarksUnexcusedNoShows(t *testing.T) {
	events := newFakeEventRepo()
	schedules := newFakeScheduleRepo()
	penalties := &fakePenaltyRepo{}

	for _, studentID := range []string{"s1", "s2", "s3", "s4"} {
		schedules.put(&models.ScheduleEntry{
			StudentID:  studentID,
			Day:        models.Monday,
			AttendTime: "15:00",
			Status:     models.ApprovalApproved,
		})
	}

	// s1 checked in, s2 has a notified absence, s3 and s4 never showed up.
	attendSvc := newTestAttendanceService(events, schedules, penalties)
	_, err := attendSvc.RecordCheckIn(context.Background(), "s1", at(15, 10))
	require.NoError(t, err)
	_, err = attendSvc.ToggleExcuseAbsent(context.Background(), "s2", at(10, 0))
	require.NoError(t, err)

	sweeper := NewAbsenceSweeper(attendSvc, time.Minute, nil, zap.NewNop())
	require.NoError(t, sweeper.Sweep(context.Background(), at(23, 0)))

	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	checkedIn, err := events.GetEvent(context.Background(), "s1", date)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPresent, checkedIn.FinalStatus)

	excused, err := events.GetEvent(context.Background(), "s2", date)
	require.NoError(t, err)
	assert.NotEqual(t, models.StatusAbsent, excused.FinalStatus)

	for _, studentID := range []string{"s3", "s4"} {
		event, err := events.GetEvent(context.Background(), studentID, date)
		require.NoError(t, err)
		assert.Equal(t, models.StatusAbsent, event.FinalStatus)
	}
	require.Len(t, penalties.logs, 2)
	for _, log := range penalties.logs {
		assert.Equal(t, models.PenaltyAbsent, log.PenaltyType)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	events := newFakeEventRepo()
	schedules := newFakeScheduleRepo()
	schedules.put(mondaySchedule("15:00"))
	penalties := &fakePenaltyRepo{}

	attendSvc := newTestAttendanceService(events, schedules, penalties)
	sweeper := NewAbsenceSweeper(attendSvc, time.Minute, nil, zap.NewNop())
	require.NoError(t, sweeper.Sweep(context.Background(), at(23, 0)))
	require.NoError(t, sweeper.Sweep(context.Background(), at(23, 30)))

	assert.Len(t, penalties.logs, 1)
}

func TestSweepDoesNotEraseConcurrentCheckIn(t *testing.T) {
	base := newFakeEventRepo()
	schedules := newFakeScheduleRepo()
	schedules.put(mondaySchedule("15:00"))

	events := &hookedEventRepo{fakeEventRepo: base}
	attendSvc := newTestAttendanceService(events, schedules, &fakePenaltyRepo{})
	sweeper := NewAbsenceSweeper(attendSvc, time.Minute, nil, zap.NewNop())

	// Fire a check-in the instant the sweep reads the student's day. The
	// shared day lock forces the two writes to serialize, so the arrival
	// must survive no matter which side wins the read.
	var wg sync.WaitGroup
	var once sync.Once
	events.onGetEvent = func(string) {
		once.Do(func() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = attendSvc.RecordCheckIn(context.Background(), "s1", at(22, 59))
			}()
			time.Sleep(20 * time.Millisecond)
		})
	}

	require.NoError(t, sweeper.Sweep(context.Background(), at(23, 1)))
	wg.Wait()

	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	event, err := base.GetEvent(context.Background(), "s1", date)
	require.NoError(t, err)
	require.NotNil(t, event.AttendTime)
	assert.Equal(t, models.StatusPresent, event.FinalStatus)
}
