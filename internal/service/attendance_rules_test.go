package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaon-dev/gaon-api/internal/models"
)

func defaultRules() AttendanceRules {
	return NewAttendanceRules(30*time.Minute, "23:00")
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

func mondaySchedule(attend string) *models.ScheduleEntry {
	return &models.ScheduleEntry{
		StudentID:  "s1",
		Day:        models.Monday,
		AttendTime: attend,
		Status:     models.ApprovalApproved,
	}
}

func TestComputeAutoStatusBeforeLateThreshold(t *testing.T) {
	rules := defaultRules()
	schedule := mondaySchedule("15:00")

	status := rules.ComputeAutoStatus(schedule, nil, at(15, 29))
	assert.Equal(t, models.Derived(models.StatusPresent), status)
}

func TestComputeAutoStatusPastLateThreshold(t *testing.T) {
	rules := defaultRules()
	schedule := mondaySchedule("15:00")

	assert.Equal(t, models.DerivedLate, rules.ComputeAutoStatus(schedule, nil, at(15, 30)))
	assert.Equal(t, models.DerivedLate, rules.ComputeAutoStatus(schedule, nil, at(15, 31)))
}

func TestComputeAutoStatusPastAbsentCutoff(t *testing.T) {
	rules := defaultRules()
	schedule := mondaySchedule("15:00")

	assert.Equal(t, models.Derived(models.StatusAbsent), rules.ComputeAutoStatus(schedule, nil, at(23, 0)))
	assert.Equal(t, models.Derived(models.StatusAbsent), rules.ComputeAutoStatus(schedule, nil, at(23, 1)))
}

func TestComputeAutoStatusExcuseFlagsSuppressAutoClassification(t *testing.T) {
	rules := defaultRules()
	schedule := mondaySchedule("15:00")

	lateExcused := &models.AttendanceEvent{StudentID: "s1", ExcuseLate: true}
	assert.Equal(t, models.Derived(models.StatusPresent), rules.ComputeAutoStatus(schedule, lateExcused, at(16, 0)))

	absentExcused := &models.AttendanceEvent{StudentID: "s1", ExcuseAbsent: true}
	assert.Equal(t, models.Derived(models.StatusNotArrived), rules.ComputeAutoStatus(schedule, absentExcused, at(23, 30)))
}

func TestComputeAutoStatusCheckInWins(t *testing.T) {
	rules := defaultRules()
	schedule := mondaySchedule("15:00")
	arrival := at(16, 0)

	event := &models.AttendanceEvent{StudentID: "s1", AttendTime: &arrival}
	assert.Equal(t, models.Derived(models.StatusPresent), rules.ComputeAutoStatus(schedule, event, at(23, 30)))

	event.OutingLog = []models.OutingInterval{{StartTime: at(17, 0)}}
	event.IsOuting = true
	assert.Equal(t, models.Derived(models.StatusOuting), rules.ComputeAutoStatus(schedule, event, at(17, 30)))

	departure := at(21, 0)
	event.LeaveTime = &departure
	assert.Equal(t, models.Derived(models.StatusLeft), rules.ComputeAutoStatus(schedule, event, at(21, 30)))
}

func TestComputeAutoStatusWithoutSchedule(t *testing.T) {
	rules := defaultRules()

	assert.Equal(t, models.Derived(models.StatusPresent), rules.ComputeAutoStatus(nil, nil, at(18, 0)))
	assert.Equal(t, models.Derived(models.StatusAbsent), rules.ComputeAutoStatus(nil, nil, at(23, 5)))
}

func TestNetStudyMinutes(t *testing.T) {
	arrival := at(10, 0)
	departure := at(19, 30)
	event := &models.AttendanceEvent{AttendTime: &arrival, LeaveTime: &departure}

	minutes, ok := NetStudyMinutes(event)
	require.True(t, ok)
	assert.Equal(t, 570, minutes)

	outingEnd := at(13, 0)
	event.OutingLog = []models.OutingInterval{{StartTime: at(12, 0), EndTime: &outingEnd}}
	minutes, ok = NetStudyMinutes(event)
	require.True(t, ok)
	assert.Equal(t, 510, minutes)
	assert.Equal(t, "8시간 30분", FormatDuration(minutes))
}

func TestNetStudyMinutesOpenDay(t *testing.T) {
	arrival := at(10, 0)

	_, ok := NetStudyMinutes(&models.AttendanceEvent{AttendTime: &arrival})
	assert.False(t, ok)

	_, ok = NetStudyMinutes(nil)
	assert.False(t, ok)
}

func TestNetStudyMinutesIgnoresOpenOuting(t *testing.T) {
	arrival := at(10, 0)
	departure := at(12, 0)
	event := &models.AttendanceEvent{
		AttendTime: &arrival,
		LeaveTime:  &departure,
		OutingLog:  []models.OutingInterval{{StartTime: at(11, 0)}},
	}

	minutes, ok := NetStudyMinutes(event)
	require.True(t, ok)
	assert.Equal(t, 120, minutes)
}

func TestNetStudyMinutesNegativeUnavailable(t *testing.T) {
	arrival := at(10, 0)
	departure := at(11, 0)
	outingEnd := at(13, 0)
	event := &models.AttendanceEvent{
		AttendTime: &arrival,
		LeaveTime:  &departure,
		OutingLog:  []models.OutingInterval{{StartTime: at(10, 30), EndTime: &outingEnd}},
	}

	_, ok := NetStudyMinutes(event)
	assert.False(t, ok)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0시간 0분", FormatDuration(0))
	assert.Equal(t, "0시간 45분", FormatDuration(45))
	assert.Equal(t, "2시간 0분", FormatDuration(120))
	assert.Equal(t, "8시간 30분", FormatDuration(510))
}

func TestParseClock(t *testing.T) {
	minutes, err := ParseClock("15:30")
	require.NoError(t, err)
	assert.Equal(t, 930, minutes)

	_, err = ParseClock("25:00")
	assert.Error(t, err)
	_, err = ParseClock("bogus")
	assert.Error(t, err)
}
