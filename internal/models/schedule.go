package models

import (
	"strings"
	"time"
)

// DayOfWeek enumerates the seven weekday values used by schedule entries.
type DayOfWeek string

const (
	Monday    DayOfWeek = "MONDAY"
	Tuesday   DayOfWeek = "TUESDAY"
	Wednesday DayOfWeek = "WEDNESDAY"
	Thursday  DayOfWeek = "THURSDAY"
	Friday    DayOfWeek = "FRIDAY"
	Saturday  DayOfWeek = "SATURDAY"
	Sunday    DayOfWeek = "SUNDAY"
)

// Valid returns true when the day is a supported value.
func (d DayOfWeek) Valid() bool {
	switch d {
	case Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday:
		return true
	default:
		return false
	}
}

// Weekend reports whether the day falls outside the attendance-required set.
func (d DayOfWeek) Weekend() bool {
	return d == Saturday || d == Sunday
}

// DayOf maps a calendar date onto the schedule weekday enum.
func DayOf(t time.Time) DayOfWeek {
	return DayOfWeek(strings.ToUpper(t.Weekday().String()))
}

// PlannedOuting is a scheduled departure window within a study day.
type PlannedOuting struct {
	ID         string  `db:"id" json:"id"`
	ScheduleID string  `db:"schedule_id" json:"-"`
	StartTime  string  `db:"start_time" json:"start_time"`
	EndTime    string  `db:"end_time" json:"end_time"`
	Label      *string `db:"label" json:"label,omitempty"`
}

// ApprovalStatus tracks the schedule change workflow.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// ScheduleEntry is a student's planned attendance for one weekday.
// AttendTime and LeaveTime are wall-clock "HH:MM" strings; LeaveTime, when
// present, is chronologically after AttendTime.
type ScheduleEntry struct {
	ID             string          `db:"id" json:"id"`
	StudentID      string          `db:"student_id" json:"student_id"`
	Day            DayOfWeek       `db:"day" json:"day"`
	AttendTime     string          `db:"attend_time" json:"attend_time"`
	LeaveTime      *string         `db:"leave_time" json:"leave_time,omitempty"`
	Memo           *string         `db:"memo" json:"memo,omitempty"`
	Status         ApprovalStatus  `db:"status" json:"status"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
	PlannedOutings []PlannedOuting `db:"-" json:"planned_outings"`
}

// ScheduleWithStudent joins the entry with roster metadata for admin listings.
type ScheduleWithStudent struct {
	ScheduleEntry
	StudentName string `db:"student_name" json:"student_name"`
}

// ScheduleChangeRequest is a student-submitted schedule mutation awaiting an
// admin decision. Approval copies the requested fields onto the live entry.
type ScheduleChangeRequest struct {
	ID         string         `db:"id" json:"id"`
	StudentID  string         `db:"student_id" json:"student_id"`
	Day        DayOfWeek      `db:"day" json:"day"`
	AttendTime string         `db:"attend_time" json:"attend_time"`
	LeaveTime  *string        `db:"leave_time" json:"leave_time,omitempty"`
	Memo       *string        `db:"memo" json:"memo,omitempty"`
	Status     ApprovalStatus `db:"status" json:"status"`
	DecidedBy  *string        `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt  *time.Time     `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}
