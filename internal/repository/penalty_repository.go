package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gaon-dev/gaon-api/internal/models"
)

// PenaltyRepository stores attendance penalty audit rows.
type PenaltyRepository struct {
	db *sqlx.DB
}

// NewPenaltyRepository constructs the repository.
func NewPenaltyRepository(db *sqlx.DB) *PenaltyRepository {
	return &PenaltyRepository{db: db}
}

// Create inserts a penalty log entry.
func (r *PenaltyRepository) Create(ctx context.Context, log *models.AttendancePenaltyLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.OccurredAt.IsZero() {
		log.OccurredAt = time.Now().UTC()
	}
	query := `INSERT INTO attendance_penalty_logs (id, attendance_id, student_id, penalty_type, occurred_at)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(ctx, query, log.ID, log.AttendanceID, log.StudentID, log.PenaltyType, log.OccurredAt); err != nil {
		return fmt.Errorf("insert penalty log: %w", err)
	}
	return nil
}

// ListByAttendance returns penalties recorded against one attendance event.
func (r *PenaltyRepository) ListByAttendance(ctx context.Context, attendanceID string) ([]models.AttendancePenaltyLog, error) {
	query := `SELECT id, attendance_id, student_id, penalty_type, occurred_at
FROM attendance_penalty_logs WHERE attendance_id = $1 ORDER BY occurred_at ASC`
	var rows []models.AttendancePenaltyLog
	if err := r.db.SelectContext(ctx, &rows, query, attendanceID); err != nil {
		return nil, fmt.Errorf("list penalty logs: %w", err)
	}
	return rows, nil
}
