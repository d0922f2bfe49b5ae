package models

import "time"

// FinalStatus is the authoritative attendance-state label surfaced to every
// consumer. The values are the exact strings the admin screens render.
type FinalStatus string

const (
	StatusPresent    FinalStatus = "출석"
	StatusLeft       FinalStatus = "하원"
	StatusOuting     FinalStatus = "외출중"
	StatusAbsent     FinalStatus = "무단결석"
	StatusNotArrived FinalStatus = "미등원"
)

// Valid returns true when the status is a supported value.
func (s FinalStatus) Valid() bool {
	switch s {
	case StatusPresent, StatusLeft, StatusOuting, StatusAbsent, StatusNotArrived:
		return true
	default:
		return false
	}
}

// DerivedStatus extends FinalStatus with the display-only late signal. It is
// never persisted; dashboards compute it from the schedule and current time.
type DerivedStatus string

const (
	DerivedLate DerivedStatus = "무단지각"
)

// Derived lifts a persisted status into the display domain.
func Derived(s FinalStatus) DerivedStatus {
	return DerivedStatus(s)
}

// OutingInterval is one departure-and-return window within an attendance day.
// EndTime stays nil while the outing is still open.
type OutingInterval struct {
	ID           string     `db:"id" json:"id"`
	AttendanceID string     `db:"attendance_id" json:"-"`
	StartTime    time.Time  `db:"start_time" json:"start_time"`
	EndTime      *time.Time `db:"end_time" json:"end_time,omitempty"`
}

// Closed reports whether the interval has ended.
func (o OutingInterval) Closed() bool {
	return o.EndTime != nil
}

// AttendanceEvent records what actually happened for a student on one date.
// At most one event exists per (student_id, date).
type AttendanceEvent struct {
	ID           string           `db:"id" json:"id"`
	StudentID    string           `db:"student_id" json:"student_id"`
	Date         time.Time        `db:"date" json:"date"`
	AttendTime   *time.Time       `db:"attend_time" json:"attend_time,omitempty"`
	LeaveTime    *time.Time       `db:"leave_time" json:"leave_time,omitempty"`
	IsOuting     bool             `db:"is_outing" json:"is_outing"`
	ExcuseLate   bool             `db:"excuse_late" json:"excuse_late"`
	ExcuseAbsent bool             `db:"excuse_absent" json:"excuse_absent"`
	FinalStatus  FinalStatus      `db:"final_status" json:"final_status"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
	OutingLog    []OutingInterval `db:"-" json:"outing_log"`
}

// DayClosed reports whether the day's attendance is finished (하원 is terminal).
func (e *AttendanceEvent) DayClosed() bool {
	return e != nil && e.LeaveTime != nil
}

// OpenOuting returns the most recent interval without an end time, or nil.
func (e *AttendanceEvent) OpenOuting() *OutingInterval {
	if e == nil {
		return nil
	}
	for i := len(e.OutingLog) - 1; i >= 0; i-- {
		if !e.OutingLog[i].Closed() {
			return &e.OutingLog[i]
		}
	}
	return nil
}

// AttendanceRecord joins the event with student metadata for the dashboard.
type AttendanceRecord struct {
	AttendanceEvent
	StudentName string `db:"student_name" json:"student_name"`
}

// PenaltyType classifies attendance penalties.
type PenaltyType string

const (
	PenaltyLate   PenaltyType = "LATE"
	PenaltyAbsent PenaltyType = "ABSENT"
)

// AttendancePenaltyLog is the audit row written when a student checks in past
// the late threshold or is swept as an unexcused absence.
type AttendancePenaltyLog struct {
	ID           string      `db:"id" json:"id"`
	AttendanceID string      `db:"attendance_id" json:"attendance_id"`
	StudentID    string      `db:"student_id" json:"student_id"`
	PenaltyType  PenaltyType `db:"penalty_type" json:"penalty_type"`
	OccurredAt   time.Time   `db:"occurred_at" json:"occurred_at"`
}
