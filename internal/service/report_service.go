package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gaon-dev/gaon-api/internal/models"
	"github.com/gaon-dev/gaon-api/internal/repository"
	appErrors "github.com/gaon-dev/gaon-api/pkg/errors"
	"github.com/gaon-dev/gaon-api/pkg/export"
	"github.com/gaon-dev/gaon-api/pkg/jobs"
	"github.com/gaon-dev/gaon-api/pkg/storage"
)

type reportEventRepository interface {
	ListRange(ctx context.Context, studentID string, from, to time.Time) ([]models.AttendanceEvent, error)
}

type reportScheduleRepository interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.ScheduleEntry, error)
}

type reportStudentRepository interface {
	GetByID(ctx context.Context, id string) (*models.Student, error)
}

type reportJobRepository interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id string) (*models.ReportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error
}

// ReportService builds the monthly attendance rollup and runs the async
// export pipeline: queue a job, render PDF or CSV in the background, hand
// the file out through a signed URL.
type ReportService struct {
	events     reportEventRepository
	schedules  reportScheduleRepository
	students   reportStudentRepository
	reportJobs reportJobRepository
	rules      AttendanceRules
	location   *time.Location
	queue      *jobs.Queue
	store      *storage.LocalStorage
	signer     *storage.SignedURLSigner
	pdf        *export.PDFExporter
	csv        *export.CSVExporter
	metrics    *MetricsService
	logger     *zap.Logger
}

type ReportServiceDeps struct {
	Events     reportEventRepository
	Schedules  reportScheduleRepository
	Students   reportStudentRepository
	ReportJobs reportJobRepository
	Rules      AttendanceRules
	Location   *time.Location
	Store      *storage.LocalStorage
	Signer     *storage.SignedURLSigner
	Metrics    *MetricsService
	Logger     *zap.Logger
}

func NewReportService(deps ReportServiceDeps, queueCfg jobs.QueueConfig) *ReportService {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	s := &ReportService{
		events:     deps.Events,
		schedules:  deps.Schedules,
		students:   deps.Students,
		reportJobs: deps.ReportJobs,
		rules:      deps.Rules,
		location:   deps.Location,
		store:      deps.Store,
		signer:     deps.Signer,
		pdf:        export.NewPDFExporter(),
		csv:        export.NewCSVExporter(),
		metrics:    deps.Metrics,
		logger:     deps.Logger,
	}
	s.queue = jobs.NewQueue("monthly-reports", s.processExport, queueCfg)
	return s
}

// Start launches the export workers.
func (s *ReportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the export workers.
func (s *ReportService) Stop() {
	s.queue.Stop()
}

// BuildCalendar computes the monthly rollup for one student. Only weekdays
// with an approved schedule entry that are not in the future are counted.
func (s *ReportService) BuildCalendar(ctx context.Context, studentID string, year, month int, now time.Time) (*models.MonthlyAggregate, error) {
	if month < 1 || month > 12 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "month must be between 1 and 12")
	}

	entries, err := s.schedules.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}
	byDay := make(map[models.DayOfWeek]*models.ScheduleEntry, len(entries))
	for i := range entries {
		if entries[i].Status == models.ApprovalApproved {
			byDay[entries[i].Day] = &entries[i]
		}
	}

	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	eventsInMonth, err := s.events.ListRange(ctx, studentID, first, last)
	if err != nil {
		return nil, fmt.Errorf("load attendance range: %w", err)
	}
	byDate := make(map[string]*models.AttendanceEvent, len(eventsInMonth))
	for i := range eventsInMonth {
		byDate[eventsInMonth[i].Date.Format("2006-01-02")] = &eventsInMonth[i]
	}

	localNow := now.In(s.location)
	today := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, time.UTC)

	aggregate := &models.MonthlyAggregate{
		StudentID: studentID,
		Year:      year,
		Month:     month,
		Calendar:  []models.AttendanceCalendarDay{},
	}

	for date := first; !date.After(last); date = date.AddDate(0, 0, 1) {
		day := models.DayOf(date)
		if day.Weekend() {
			continue
		}
		schedule, required := byDay[day]
		if !required {
			continue
		}
		if date.After(today) {
			continue
		}

		aggregate.TotalDays++
		calendarDay := s.classifyDay(date, schedule, byDate[date.Format("2006-01-02")])
		switch calendarDay.Status {
		case models.CalendarLate:
			aggregate.LateCount++
		case models.CalendarAbsent:
			aggregate.AbsentCount++
		}
		if calendarDay.StudyMinutes != nil {
			aggregate.TotalStudyMinutes += *calendarDay.StudyMinutes
		}
		aggregate.Calendar = append(aggregate.Calendar, calendarDay)
	}

	return aggregate, nil
}

func (s *ReportService) classifyDay(date time.Time, schedule *models.ScheduleEntry, event *models.AttendanceEvent) models.AttendanceCalendarDay {
	day := models.AttendanceCalendarDay{Date: date.Format("2006-01-02")}

	if event == nil || (event.AttendTime == nil && !event.ExcuseAbsent) {
		day.Status = models.CalendarAbsent
		return day
	}

	if event.AttendTime == nil {
		// Notified absence counts as a regular day with no study time.
		zero := 0
		day.Status = models.CalendarPresent
		day.StudyMinutes = &zero
		return day
	}

	if !event.ExcuseLate && s.rules.PastLateThreshold(schedule, event.AttendTime.In(s.location)) {
		day.Status = models.CalendarLate
	} else {
		day.Status = models.CalendarPresent
	}
	if minutes, ok := NetStudyMinutes(event); ok {
		day.StudyMinutes = &minutes
	}
	return day
}

// RequestExport queues a monthly report export and returns the tracking job.
func (s *ReportService) RequestExport(ctx context.Context, studentID string, year, month int, format models.ReportFormat, createdBy string) (*models.ReportJob, error) {
	if !format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be pdf or csv")
	}
	if month < 1 || month > 12 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "month must be between 1 and 12")
	}
	if _, err := s.students.GetByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, fmt.Errorf("load student: %w", err)
	}

	job := &models.ReportJob{
		ID:        uuid.NewString(),
		StudentID: studentID,
		Year:      year,
		Month:     month,
		Format:    format,
		Status:    models.ReportStatusQueued,
		CreatedBy: createdBy,
	}
	if err := s.reportJobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create report job: %w", err)
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "monthly-report", Payload: job.ID}); err != nil {
		return nil, fmt.Errorf("enqueue report job: %w", err)
	}

	s.logger.Info("report export queued",
		zap.String("job_id", job.ID),
		zap.String("student_id", studentID),
		zap.Int("year", year),
		zap.Int("month", month),
		zap.String("format", string(format)))

	return job, nil
}

// GetJob returns an export job by id.
func (s *ReportService) GetJob(ctx context.Context, id string) (*models.ReportJob, error) {
	job, err := s.reportJobs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, fmt.Errorf("load report job: %w", err)
	}
	return job, nil
}

// DownloadURL issues a signed, expiring token for a finished export.
func (s *ReportService) DownloadURL(ctx context.Context, jobID string) (string, time.Time, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return "", time.Time{}, err
	}
	if job.Status != models.ReportStatusDone || job.FilePath == nil {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrConflict, "report is not ready")
	}
	return s.signer.Generate(job.ID, *job.FilePath)
}

// OpenDownload validates a signed token and opens the underlying file.
func (s *ReportService) OpenDownload(token string) (*os.File, string, error) {
	jobID, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		s.logger.Warn("download open failed",
			zap.String("job_id", jobID),
			zap.Error(err))
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "report file not found")
	}
	return file, relPath, nil
}

func (s *ReportService) processExport(ctx context.Context, queued jobs.Job) error {
	jobID, ok := queued.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", queued.Payload)
	}

	job, err := s.reportJobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load report job %s: %w", jobID, err)
	}

	processing := models.ReportStatusProcessing
	if err := s.reportJobs.Update(ctx, job.ID, repository.UpdateReportJobParams{Status: &processing}); err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}

	filePath, err := s.renderExport(ctx, job)
	finished := time.Now().UTC()
	if err != nil {
		failed := models.ReportStatusFailed
		message := err.Error()
		if updateErr := s.reportJobs.Update(ctx, job.ID, repository.UpdateReportJobParams{
			Status:       &failed,
			ErrorMessage: &message,
			FinishedAt:   &finished,
		}); updateErr != nil {
			s.logger.Error("failed to mark report job failed",
				zap.String("job_id", job.ID),
				zap.Error(updateErr))
		}
		s.metrics.RecordReportJob("failed")
		return err
	}

	done := models.ReportStatusDone
	if err := s.reportJobs.Update(ctx, job.ID, repository.UpdateReportJobParams{
		Status:     &done,
		FilePath:   &filePath,
		FinishedAt: &finished,
	}); err != nil {
		return fmt.Errorf("mark job done: %w", err)
	}

	s.metrics.RecordReportJob("done")
	s.logger.Info("report export finished",
		zap.String("job_id", job.ID),
		zap.String("file", filePath))

	return nil
}

func (s *ReportService) renderExport(ctx context.Context, job *models.ReportJob) (string, error) {
	student, err := s.students.GetByID(ctx, job.StudentID)
	if err != nil {
		return "", fmt.Errorf("load student: %w", err)
	}
	aggregate, err := s.BuildCalendar(ctx, job.StudentID, job.Year, job.Month, time.Now())
	if err != nil {
		return "", fmt.Errorf("build calendar: %w", err)
	}

	dataset := export.Dataset{
		Headers: []string{"Date", "Status", "Study Time"},
	}
	for _, day := range aggregate.Calendar {
		studyTime := "-"
		if day.StudyMinutes != nil {
			studyTime = FormatDuration(*day.StudyMinutes)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Date":       day.Date,
			"Status":     string(day.Status),
			"Study Time": studyTime,
		})
	}

	var content []byte
	switch job.Format {
	case models.ReportFormatCSV:
		content, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		title := fmt.Sprintf("%s - %d/%02d Attendance Report", student.Name, job.Year, job.Month)
		summary := []string{
			"Required days: " + strconv.Itoa(aggregate.TotalDays),
			"Late: " + strconv.Itoa(aggregate.LateCount),
			"Absent: " + strconv.Itoa(aggregate.AbsentCount),
			"Total study time: " + FormatDuration(aggregate.TotalStudyMinutes),
		}
		content, err = s.pdf.Render(dataset, title, summary)
	default:
		return "", fmt.Errorf("unsupported report format %q", job.Format)
	}
	if err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}

	filename := fmt.Sprintf("report-%s-%d-%02d-%s.%s", job.StudentID, job.Year, job.Month, job.ID[:8], job.Format)
	return s.store.Save(filename, content)
}
