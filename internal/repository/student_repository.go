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

// StudentRepository handles persistence for the roster.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `id, name, school, grade, phone, parent_phone, active, created_at, updated_at`

// List returns roster rows matching the provided filter.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Active != nil {
		where = append(where, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	whereClause := strings.Join(where, " AND ")

	allowedSort := map[string]string{
		"name":       "name",
		"created_at": "created_at",
	}
	sortColumn, ok := allowedSort[filter.SortBy]
	if !ok {
		sortColumn = "name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM students WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		studentColumns, whereClause, sortColumn, order, size, offset)
	var rows []models.Student
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM students WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return rows, total, nil
}

// GetByID loads one student.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf(`SELECT %s FROM students WHERE id = $1`, studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// Create inserts a roster row.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) (*models.Student, error) {
	now := time.Now().UTC()
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	student.CreatedAt = now
	student.UpdatedAt = now
	query := fmt.Sprintf(`INSERT INTO students (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING %s`, studentColumns, studentColumns)
	var stored models.Student
	if err := r.db.GetContext(ctx, &stored, query,
		student.ID, student.Name, student.School, student.Grade,
		student.Phone, student.ParentPhone, student.Active,
		student.CreatedAt, student.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert student: %w", err)
	}
	return &stored, nil
}

// Update rewrites the mutable fields of a roster row.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) (*models.Student, error) {
	student.UpdatedAt = time.Now().UTC()
	query := fmt.Sprintf(`UPDATE students
SET name = $2, school = $3, grade = $4, phone = $5, parent_phone = $6, active = $7, updated_at = $8
WHERE id = $1
RETURNING %s`, studentColumns)
	var stored models.Student
	if err := r.db.GetContext(ctx, &stored, query,
		student.ID, student.Name, student.School, student.Grade,
		student.Phone, student.ParentPhone, student.Active, student.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update student: %w", err)
	}
	return &stored, nil
}
