package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gaon-dev/gaon-api/internal/models"
)

// ReportJobRepository persists monthly report export jobs.
type ReportJobRepository struct {
	db *sqlx.DB
}

// NewReportJobRepository constructs the repository.
func NewReportJobRepository(db *sqlx.DB) *ReportJobRepository {
	return &ReportJobRepository{db: db}
}

const reportJobColumns = `id, student_id, year, month, format, status, file_path, error_message, created_by, created_at, finished_at`

// Create inserts a queued job.
func (r *ReportJobRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	query := fmt.Sprintf(`INSERT INTO report_jobs (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`, reportJobColumns)
	if _, err := r.db.ExecContext(ctx, query,
		job.ID, job.StudentID, job.Year, job.Month, job.Format, job.Status,
		job.FilePath, job.ErrorMessage, job.CreatedBy, job.CreatedAt, job.FinishedAt); err != nil {
		return fmt.Errorf("insert report job: %w", err)
	}
	return nil
}

// GetByID loads a job.
func (r *ReportJobRepository) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM report_jobs WHERE id = $1`, reportJobColumns)
	var job models.ReportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateReportJobParams carries the mutable job fields.
type UpdateReportJobParams struct {
	Status       *models.ReportStatus
	FilePath     *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

// Update applies the provided fields to a job row.
func (r *ReportJobRepository) Update(ctx context.Context, id string, params UpdateReportJobParams) error {
	set := []string{}
	args := []interface{}{id}
	if params.Status != nil {
		set = append(set, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *params.Status)
	}
	if params.FilePath != nil {
		set = append(set, fmt.Sprintf("file_path = $%d", len(args)+1))
		args = append(args, *params.FilePath)
	}
	if params.ErrorMessage != nil {
		set = append(set, fmt.Sprintf("error_message = $%d", len(args)+1))
		args = append(args, *params.ErrorMessage)
	}
	if params.FinishedAt != nil {
		set = append(set, fmt.Sprintf("finished_at = $%d", len(args)+1))
		args = append(args, *params.FinishedAt)
	}
	if len(set) == 0 {
		return nil
	}
	query := fmt.Sprintf("UPDATE report_jobs SET %s WHERE id = $1", strings.Join(set, ", "))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update report job: %w", err)
	}
	return nil
}
