package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/gaon-dev/gaon-api/internal/models"
	appErrors "github.com/gaon-dev/gaon-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	GetByID(ctx context.Context, id string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) (*models.Student, error)
	Update(ctx context.Context, student *models.Student) (*models.Student, error)
}

// StudentService manages the hall roster.
type StudentService struct {
	students  studentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

func NewStudentService(students studentRepository, validator *validator.Validate, logger *zap.Logger) *StudentService {
	return &StudentService{students: students, validator: validator, logger: logger}
}

// List returns a filtered roster page plus pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, models.Pagination, error) {
	students, total, err := s.students.List(ctx, filter)
	if err != nil {
		return nil, models.Pagination{}, fmt.Errorf("list students: %w", err)
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size < 1 {
		size = 20
	}
	return students, models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one student by id.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.students.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, fmt.Errorf("load student: %w", err)
	}
	return student, nil
}

// CreateStudentInput holds a roster registration.
type CreateStudentInput struct {
	Name        string  `json:"name" validate:"required,min=1,max=100"`
	School      *string `json:"school,omitempty"`
	Grade       *int    `json:"grade,omitempty" validate:"omitempty,min=1,max=12"`
	Phone       *string `json:"phone,omitempty"`
	ParentPhone *string `json:"parent_phone,omitempty"`
}

// Create registers a new student on the roster.
func (s *StudentService) Create(ctx context.Context, input CreateStudentInput) (*models.Student, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student := &models.Student{
		Name:        input.Name,
		School:      input.School,
		Grade:       input.Grade,
		Phone:       input.Phone,
		ParentPhone: input.ParentPhone,
		Active:      true,
	}
	saved, err := s.students.Create(ctx, student)
	if err != nil {
		return nil, fmt.Errorf("create student: %w", err)
	}

	s.logger.Info("student registered", zap.String("student_id", saved.ID), zap.String("name", saved.Name))

	return saved, nil
}

// UpdateStudentInput holds a partial roster update.
type UpdateStudentInput struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	School      *string `json:"school,omitempty"`
	Grade       *int    `json:"grade,omitempty" validate:"omitempty,min=1,max=12"`
	Phone       *string `json:"phone,omitempty"`
	ParentPhone *string `json:"parent_phone,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

// Update applies a partial update to a roster row.
func (s *StudentService) Update(ctx context.Context, id string, input UpdateStudentInput) (*models.Student, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		student.Name = *input.Name
	}
	if input.School != nil {
		student.School = input.School
	}
	if input.Grade != nil {
		student.Grade = input.Grade
	}
	if input.Phone != nil {
		student.Phone = input.Phone
	}
	if input.ParentPhone != nil {
		student.ParentPhone = input.ParentPhone
	}
	if input.Active != nil {
		student.Active = *input.Active
	}

	saved, err := s.students.Update(ctx, student)
	if err != nil {
		return nil, fmt.Errorf("update student: %w", err)
	}
	return saved, nil
}
