package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gaon-dev/gaon-api/internal/models"
)

// AttendanceRepository persists attendance events and their outing logs.
// The attendance table is keyed by (student_id, date); outing intervals live
// in a child table and are replaced wholesale on every upsert.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const attendanceColumns = `id, student_id, date, attend_time, leave_time, is_outing, excuse_late, excuse_absent, final_status, created_at, updated_at`

// GetEvent loads the event for a student on a date. Returns sql.ErrNoRows
// when the day has no record yet.
func (r *AttendanceRepository) GetEvent(ctx context.Context, studentID string, date time.Time) (*models.AttendanceEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance WHERE student_id = $1 AND date = $2`, attendanceColumns)
	var event models.AttendanceEvent
	if err := r.db.GetContext(ctx, &event, query, studentID, dateOnly(date)); err != nil {
		return nil, err
	}
	if err := r.attachOutings(ctx, []*models.AttendanceEvent{&event}); err != nil {
		return nil, err
	}
	return &event, nil
}

// GetByID loads an event by primary key.
func (r *AttendanceRepository) GetByID(ctx context.Context, id string) (*models.AttendanceEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance WHERE id = $1`, attendanceColumns)
	var event models.AttendanceEvent
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		return nil, err
	}
	if err := r.attachOutings(ctx, []*models.AttendanceEvent{&event}); err != nil {
		return nil, err
	}
	return &event, nil
}

// Upsert inserts or updates the event for its (student_id, date) pair and
// rewrites the outing log to match the in-memory state.
func (r *AttendanceRepository) Upsert(ctx context.Context, event *models.AttendanceEvent) (*models.AttendanceEvent, error) {
	now := time.Now().UTC()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin attendance upsert: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	query := fmt.Sprintf(`INSERT INTO attendance (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (student_id, date)
DO UPDATE SET attend_time = EXCLUDED.attend_time,
    leave_time = EXCLUDED.leave_time,
    is_outing = EXCLUDED.is_outing,
    excuse_late = EXCLUDED.excuse_late,
    excuse_absent = EXCLUDED.excuse_absent,
    final_status = EXCLUDED.final_status,
    updated_at = EXCLUDED.updated_at
RETURNING %s`, attendanceColumns, attendanceColumns)

	var stored models.AttendanceEvent
	if err := tx.GetContext(ctx, &stored, query,
		event.ID, event.StudentID, dateOnly(event.Date), event.AttendTime, event.LeaveTime,
		event.IsOuting, event.ExcuseLate, event.ExcuseAbsent, event.FinalStatus,
		event.CreatedAt, event.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert attendance: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM outing_logs WHERE attendance_id = $1`, stored.ID); err != nil {
		return nil, fmt.Errorf("clear outing logs: %w", err)
	}
	stored.OutingLog = make([]models.OutingInterval, 0, len(event.OutingLog))
	for _, interval := range event.OutingLog {
		if interval.ID == "" {
			interval.ID = uuid.NewString()
		}
		interval.AttendanceID = stored.ID
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO outing_logs (id, attendance_id, start_time, end_time) VALUES ($1, $2, $3, $4)`,
			interval.ID, interval.AttendanceID, interval.StartTime, interval.EndTime); err != nil {
			return nil, fmt.Errorf("insert outing log: %w", err)
		}
		stored.OutingLog = append(stored.OutingLog, interval)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit attendance upsert: %w", err)
	}
	committed = true
	return &stored, nil
}

// ListForDate returns every event recorded on a date joined with the roster.
func (r *AttendanceRepository) ListForDate(ctx context.Context, date time.Time) ([]models.AttendanceRecord, error) {
	query := `SELECT a.id, a.student_id, a.date, a.attend_time, a.leave_time, a.is_outing,
    a.excuse_late, a.excuse_absent, a.final_status, a.created_at, a.updated_at,
    s.name AS student_name
FROM attendance a
JOIN students s ON s.id = a.student_id
WHERE a.date = $1
ORDER BY s.name ASC`
	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, dateOnly(date)); err != nil {
		return nil, fmt.Errorf("list attendance for date: %w", err)
	}
	events := make([]*models.AttendanceEvent, len(rows))
	for i := range rows {
		events[i] = &rows[i].AttendanceEvent
	}
	if err := r.attachOutings(ctx, events); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListRange returns a student's events with date in [from, to], ascending.
func (r *AttendanceRepository) ListRange(ctx context.Context, studentID string, from, to time.Time) ([]models.AttendanceEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance
WHERE student_id = $1 AND date >= $2 AND date <= $3
ORDER BY date ASC`, attendanceColumns)
	var rows []models.AttendanceEvent
	if err := r.db.SelectContext(ctx, &rows, query, studentID, dateOnly(from), dateOnly(to)); err != nil {
		return nil, fmt.Errorf("list attendance range: %w", err)
	}
	events := make([]*models.AttendanceEvent, len(rows))
	for i := range rows {
		events[i] = &rows[i]
	}
	if err := r.attachOutings(ctx, events); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AttendanceRepository) attachOutings(ctx context.Context, events []*models.AttendanceEvent) error {
	if len(events) == 0 {
		return nil
	}
	ids := make([]string, len(events))
	byID := make(map[string]*models.AttendanceEvent, len(events))
	for i, event := range events {
		ids[i] = event.ID
		byID[event.ID] = event
		event.OutingLog = []models.OutingInterval{}
	}
	query, args, err := sqlx.In(`SELECT id, attendance_id, start_time, end_time
FROM outing_logs WHERE attendance_id IN (?) ORDER BY start_time ASC`, ids)
	if err != nil {
		return fmt.Errorf("build outing log query: %w", err)
	}
	query = r.db.Rebind(query)
	var intervals []models.OutingInterval
	if err := r.db.SelectContext(ctx, &intervals, query, args...); err != nil {
		return fmt.Errorf("load outing logs: %w", err)
	}
	for _, interval := range intervals {
		if event, ok := byID[interval.AttendanceID]; ok {
			event.OutingLog = append(event.OutingLog, interval)
		}
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
