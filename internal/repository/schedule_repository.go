package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gaon-dev/gaon-api/internal/models"
)

// ScheduleRepository persists weekly schedule entries, their planned outings
// and the student change-request workflow.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs the repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

const scheduleColumns = `id, student_id, day, attend_time, leave_time, memo, status, created_at, updated_at`

// GetByStudentAndDay loads the schedule entry for one weekday.
func (r *ScheduleRepository) GetByStudentAndDay(ctx context.Context, studentID string, day models.DayOfWeek) (*models.ScheduleEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedules WHERE student_id = $1 AND day = $2`, scheduleColumns)
	var entry models.ScheduleEntry
	if err := r.db.GetContext(ctx, &entry, query, studentID, day); err != nil {
		return nil, err
	}
	if err := r.attachOutings(ctx, []*models.ScheduleEntry{&entry}); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListByStudent returns every entry for one student, Monday first.
func (r *ScheduleRepository) ListByStudent(ctx context.Context, studentID string) ([]models.ScheduleEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedules WHERE student_id = $1
ORDER BY array_position(ARRAY['MONDAY','TUESDAY','WEDNESDAY','THURSDAY','FRIDAY','SATURDAY','SUNDAY'], day)`, scheduleColumns)
	var rows []models.ScheduleEntry
	if err := r.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("list schedules by student: %w", err)
	}
	entries := make([]*models.ScheduleEntry, len(rows))
	for i := range rows {
		entries[i] = &rows[i]
	}
	if err := r.attachOutings(ctx, entries); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListByDay returns all approved entries for one weekday joined with the roster.
func (r *ScheduleRepository) ListByDay(ctx context.Context, day models.DayOfWeek) ([]models.ScheduleWithStudent, error) {
	query := `SELECT sc.id, sc.student_id, sc.day, sc.attend_time, sc.leave_time, sc.memo, sc.status,
    sc.created_at, sc.updated_at, s.name AS student_name
FROM schedules sc
JOIN students s ON s.id = sc.student_id
WHERE sc.day = $1 AND sc.status = $2 AND s.active
ORDER BY sc.attend_time ASC, s.name ASC`
	var rows []models.ScheduleWithStudent
	if err := r.db.SelectContext(ctx, &rows, query, day, models.ApprovalApproved); err != nil {
		return nil, fmt.Errorf("list schedules by day: %w", err)
	}
	entries := make([]*models.ScheduleEntry, len(rows))
	for i := range rows {
		entries[i] = &rows[i].ScheduleEntry
	}
	if err := r.attachOutings(ctx, entries); err != nil {
		return nil, err
	}
	return rows, nil
}

// Upsert writes the entry for its (student_id, day) pair and replaces the
// planned outing list.
func (r *ScheduleRepository) Upsert(ctx context.Context, entry *models.ScheduleEntry) (*models.ScheduleEntry, error) {
	now := time.Now().UTC()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin schedule upsert: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	query := fmt.Sprintf(`INSERT INTO schedules (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (student_id, day)
DO UPDATE SET attend_time = EXCLUDED.attend_time,
    leave_time = EXCLUDED.leave_time,
    memo = EXCLUDED.memo,
    status = EXCLUDED.status,
    updated_at = EXCLUDED.updated_at
RETURNING %s`, scheduleColumns, scheduleColumns)

	var stored models.ScheduleEntry
	if err := tx.GetContext(ctx, &stored, query,
		entry.ID, entry.StudentID, entry.Day, entry.AttendTime, entry.LeaveTime,
		entry.Memo, entry.Status, entry.CreatedAt, entry.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert schedule: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_outings WHERE schedule_id = $1`, stored.ID); err != nil {
		return nil, fmt.Errorf("clear planned outings: %w", err)
	}
	stored.PlannedOutings = make([]models.PlannedOuting, 0, len(entry.PlannedOutings))
	for _, outing := range entry.PlannedOutings {
		if outing.ID == "" {
			outing.ID = uuid.NewString()
		}
		outing.ScheduleID = stored.ID
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schedule_outings (id, schedule_id, start_time, end_time, label) VALUES ($1, $2, $3, $4, $5)`,
			outing.ID, outing.ScheduleID, outing.StartTime, outing.EndTime, outing.Label); err != nil {
			return nil, fmt.Errorf("insert planned outing: %w", err)
		}
		stored.PlannedOutings = append(stored.PlannedOutings, outing)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit schedule upsert: %w", err)
	}
	committed = true
	return &stored, nil
}

// Delete removes an entry and its planned outings.
func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return nil
}

const requestColumns = `id, student_id, day, attend_time, leave_time, memo, status, decided_by, decided_at, created_at`

// CreateRequest stores a pending schedule change request.
func (r *ScheduleRepository) CreateRequest(ctx context.Context, req *models.ScheduleChangeRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	req.Status = models.ApprovalPending
	query := fmt.Sprintf(`INSERT INTO schedule_requests (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, requestColumns)
	if _, err := r.db.ExecContext(ctx, query,
		req.ID, req.StudentID, req.Day, req.AttendTime, req.LeaveTime,
		req.Memo, req.Status, req.DecidedBy, req.DecidedAt, req.CreatedAt); err != nil {
		return fmt.Errorf("insert schedule request: %w", err)
	}
	return nil
}

// GetRequest loads a change request by id.
func (r *ScheduleRepository) GetRequest(ctx context.Context, id string) (*models.ScheduleChangeRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedule_requests WHERE id = $1`, requestColumns)
	var req models.ScheduleChangeRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// ListRequests returns change requests filtered by status, newest first.
func (r *ScheduleRepository) ListRequests(ctx context.Context, status models.ApprovalStatus) ([]models.ScheduleChangeRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedule_requests WHERE status = $1 ORDER BY created_at DESC`, requestColumns)
	var rows []models.ScheduleChangeRequest
	if err := r.db.SelectContext(ctx, &rows, query, status); err != nil {
		return nil, fmt.Errorf("list schedule requests: %w", err)
	}
	return rows, nil
}

// DecideRequest records an approval decision.
func (r *ScheduleRepository) DecideRequest(ctx context.Context, id string, status models.ApprovalStatus, decidedBy string, decidedAt time.Time) error {
	query := `UPDATE schedule_requests SET status = $2, decided_by = $3, decided_at = $4 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status, decidedBy, decidedAt)
	if err != nil {
		return fmt.Errorf("decide schedule request: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("schedule request %s not found", id)
	}
	return nil
}

func (r *ScheduleRepository) attachOutings(ctx context.Context, entries []*models.ScheduleEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ids := make([]string, len(entries))
	byID := make(map[string]*models.ScheduleEntry, len(entries))
	for i, entry := range entries {
		ids[i] = entry.ID
		byID[entry.ID] = entry
		entry.PlannedOutings = []models.PlannedOuting{}
	}
	query, args, err := sqlx.In(`SELECT id, schedule_id, start_time, end_time, label
FROM schedule_outings WHERE schedule_id IN (?) ORDER BY start_time ASC`, ids)
	if err != nil {
		return fmt.Errorf("build planned outing query: %w", err)
	}
	query = r.db.Rebind(query)
	var outings []models.PlannedOuting
	if err := r.db.SelectContext(ctx, &outings, query, args...); err != nil {
		return fmt.Errorf("load planned outings: %w", err)
	}
	for _, outing := range outings {
		if entry, ok := byID[outing.ScheduleID]; ok {
			entry.PlannedOutings = append(entry.PlannedOutings, outing)
		}
	}
	return nil
}
