package models

import "time"

// CalendarDayStatus classifies one required attendance day in the monthly
// report. The strings match what the parent report renders.
type CalendarDayStatus string

const (
	CalendarPresent CalendarDayStatus = "정상출석"
	CalendarLate    CalendarDayStatus = "무단지각"
	CalendarAbsent  CalendarDayStatus = "무단결석"
)

// AttendanceCalendarDay is one classified day in the monthly calendar.
// StudyMinutes is nil when the day has no closed attendance record.
type AttendanceCalendarDay struct {
	Date         string            `json:"date"`
	Status       CalendarDayStatus `json:"status"`
	StudyMinutes *int              `json:"study_minutes,omitempty"`
}

// MonthlyAggregate is the derived month rollup; it is computed on demand and
// never stored.
type MonthlyAggregate struct {
	StudentID         string                  `json:"student_id"`
	Year              int                     `json:"year"`
	Month             int                     `json:"month"`
	TotalDays         int                     `json:"total_days"`
	LateCount         int                     `json:"late_count"`
	AbsentCount       int                     `json:"absent_count"`
	TotalStudyMinutes int                     `json:"total_study_minutes"`
	Calendar          []AttendanceCalendarDay `json:"calendar"`
}

// ReportFormat selects the export file type.
type ReportFormat string

const (
	ReportFormatPDF ReportFormat = "pdf"
	ReportFormatCSV ReportFormat = "csv"
)

// Valid returns true when the format is supported.
func (f ReportFormat) Valid() bool {
	return f == ReportFormatPDF || f == ReportFormatCSV
}

// ReportStatus tracks the export job lifecycle.
type ReportStatus string

const (
	ReportStatusQueued     ReportStatus = "queued"
	ReportStatusProcessing ReportStatus = "processing"
	ReportStatusDone       ReportStatus = "done"
	ReportStatusFailed     ReportStatus = "failed"
)

// ReportJob is a queued monthly report export.
type ReportJob struct {
	ID           string       `db:"id" json:"id"`
	StudentID    string       `db:"student_id" json:"student_id"`
	Year         int          `db:"year" json:"year"`
	Month        int          `db:"month" json:"month"`
	Format       ReportFormat `db:"format" json:"format"`
	Status       ReportStatus `db:"status" json:"status"`
	FilePath     *string      `db:"file_path" json:"-"`
	ErrorMessage *string      `db:"error_message" json:"error_message,omitempty"`
	CreatedBy    string       `db:"created_by" json:"created_by"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time   `db:"finished_at" json:"finished_at,omitempty"`
}
