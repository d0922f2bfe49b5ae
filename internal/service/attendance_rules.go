package service

import (
	"fmt"
	"time"

	"github.com/gaon-dev/gaon-api/internal/models"
)

// AttendanceRules holds the thresholds that drive automatic status
// classification: how long after the planned attend time a missing check-in
// counts as an unnotified late, and the minute-of-day past which it becomes
// an unnotified absence.
type AttendanceRules struct {
	LateGrace    time.Duration
	AbsentCutoff int
}

// DefaultAbsentCutoff is 23:00, matching the hall's closing sweep.
const DefaultAbsentCutoff = 23 * 60

// NewAttendanceRules builds rules from config values, falling back to the
// 30-minute grace / 23:00 cutoff the hall operates with.
func NewAttendanceRules(lateGrace time.Duration, absentCutoff string) AttendanceRules {
	rules := AttendanceRules{LateGrace: 30 * time.Minute, AbsentCutoff: DefaultAbsentCutoff}
	if lateGrace > 0 {
		rules.LateGrace = lateGrace
	}
	if cutoff, err := ParseClock(absentCutoff); err == nil {
		rules.AbsentCutoff = cutoff
	}
	return rules
}

// ComputeAutoStatus derives the display status for a student given the
// weekday schedule, today's event (nil when none exists) and the current
// time. Precedence: a real check-in always wins; excuse flags only suppress
// the automatic late/absent classification while the student has not arrived.
func (r AttendanceRules) ComputeAutoStatus(schedule *models.ScheduleEntry, event *models.AttendanceEvent, now time.Time) models.DerivedStatus {
	if event != nil && event.AttendTime != nil {
		if event.LeaveTime != nil {
			return models.Derived(models.StatusLeft)
		}
		if event.OpenOuting() != nil {
			return models.Derived(models.StatusOuting)
		}
		return models.Derived(models.StatusPresent)
	}

	nowMinutes := now.Hour()*60 + now.Minute()

	if nowMinutes >= r.AbsentCutoff {
		if event != nil && event.ExcuseAbsent {
			return models.Derived(models.StatusNotArrived)
		}
		return models.Derived(models.StatusAbsent)
	}

	if schedule != nil {
		if planned, err := ParseClock(schedule.AttendTime); err == nil {
			grace := int(r.LateGrace.Minutes())
			if nowMinutes >= planned+grace {
				if event != nil && (event.ExcuseLate || event.ExcuseAbsent) {
					return models.Derived(models.StatusPresent)
				}
				return models.DerivedLate
			}
		}
	}

	// Pre-arrival placeholder: the admin table shows 출석 until the late
	// threshold passes.
	return models.Derived(models.StatusPresent)
}

// PastLateThreshold reports whether a check-in at the given time counts as
// late against the schedule.
func (r AttendanceRules) PastLateThreshold(schedule *models.ScheduleEntry, at time.Time) bool {
	if schedule == nil {
		return false
	}
	planned, err := ParseClock(schedule.AttendTime)
	if err != nil {
		return false
	}
	atMinutes := at.Hour()*60 + at.Minute()
	return atMinutes >= planned+int(r.LateGrace.Minutes())
}

// NetStudyMinutes returns the elapsed minutes between arrival and departure
// minus every closed outing interval. The second return is false while the
// day is still open or when outing deductions exceed the attended span.
func NetStudyMinutes(event *models.AttendanceEvent) (int, bool) {
	if event == nil || event.AttendTime == nil || event.LeaveTime == nil {
		return 0, false
	}
	total := int(event.LeaveTime.Sub(*event.AttendTime).Minutes())
	for _, interval := range event.OutingLog {
		if !interval.Closed() {
			continue
		}
		total -= int(interval.EndTime.Sub(interval.StartTime).Minutes())
	}
	if total < 0 {
		return 0, false
	}
	return total, true
}

// FormatDuration renders a minute count as "H시간 M분".
func FormatDuration(minutes int) string {
	return fmt.Sprintf("%d시간 %d분", minutes/60, minutes%60)
}

// ParseClock converts an "HH:MM" wall-clock string into minutes of day.
func ParseClock(value string) (int, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(value, "%d:%d", &hour, &minute); err != nil {
		return 0, fmt.Errorf("invalid clock value %q", value)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("clock value %q out of range", value)
	}
	return hour*60 + minute, nil
}
