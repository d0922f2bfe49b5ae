package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gaon-dev/gaon-api/internal/models"
)

// DashboardRow is one student line on the daily attendance board.
type DashboardRow struct {
	StudentID     string               `json:"student_id"`
	StudentName   string               `json:"student_name"`
	PlannedAttend string               `json:"planned_attend"`
	PlannedLeave  *string              `json:"planned_leave,omitempty"`
	Status        models.DerivedStatus `json:"status"`
	AttendTime    *time.Time           `json:"attend_time,omitempty"`
	LeaveTime     *time.Time           `json:"leave_time,omitempty"`
	IsOuting      bool                 `json:"is_outing"`
	StudyTime     *string              `json:"study_time,omitempty"`
	ExcuseLate    bool                 `json:"excuse_late"`
	ExcuseAbsent  bool                 `json:"excuse_absent"`
}

// DashboardSummary aggregates the board into headline counts.
type DashboardSummary struct {
	Scheduled int `json:"scheduled"`
	Present   int `json:"present"`
	Left      int `json:"left"`
	OnOuting  int `json:"on_outing"`
	Late      int `json:"late"`
	Absent    int `json:"absent"`
}

// DailyDashboard is the full board for one day.
type DailyDashboard struct {
	Date        string           `json:"date"`
	Day         models.DayOfWeek `json:"day"`
	Rows        []DashboardRow   `json:"rows"`
	Summary     DashboardSummary `json:"summary"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// DashboardService assembles the live daily board from schedules and
// attendance events. Boards are cached briefly; any attendance mutation
// invalidates the day.
type DashboardService struct {
	schedules attendanceScheduleRepository
	events    attendanceEventRepository
	rules     AttendanceRules
	location  *time.Location
	cache     *CacheService
	cacheTTL  time.Duration
	logger    *zap.Logger
}

func NewDashboardService(
	schedules attendanceScheduleRepository,
	events attendanceEventRepository,
	rules AttendanceRules,
	location *time.Location,
	cache *CacheService,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *DashboardService {
	if location == nil {
		location = time.UTC
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &DashboardService{
		schedules: schedules,
		events:    events,
		rules:     rules,
		location:  location,
		cache:     cache,
		cacheTTL:  cacheTTL,
		logger:    logger,
	}
}

func dashboardCacheKey(date time.Time) string {
	return "dashboard:daily:" + date.Format("2006-01-02")
}

// Daily returns the board for one day, serving a cached copy when fresh.
func (s *DashboardService) Daily(ctx context.Context, date, now time.Time) (*DailyDashboard, error) {
	date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	key := dashboardCacheKey(date)

	var cached DailyDashboard
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	board, err := s.build(ctx, date, now)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, board, s.cacheTTL); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.Error(err))
	}
	return board, nil
}

// InvalidateDay drops the cached board after an attendance mutation.
func (s *DashboardService) InvalidateDay(ctx context.Context, date time.Time) {
	if err := s.cache.Invalidate(ctx, dashboardCacheKey(date)); err != nil {
		s.logger.Warn("dashboard cache invalidate failed", zap.Error(err))
	}
}

func (s *DashboardService) build(ctx context.Context, date, now time.Time) (*DailyDashboard, error) {
	day := models.DayOf(date)
	entries, err := s.schedules.ListByDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("load day schedules: %w", err)
	}
	records, err := s.events.ListForDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load day attendance: %w", err)
	}
	byStudent := make(map[string]*models.AttendanceEvent, len(records))
	for i := range records {
		byStudent[records[i].StudentID] = &records[i].AttendanceEvent
	}

	localNow := now.In(s.location)
	board := &DailyDashboard{
		Date:        date.Format("2006-01-02"),
		Day:         day,
		Rows:        make([]DashboardRow, 0, len(entries)),
		GeneratedAt: time.Now().UTC(),
	}
	board.Summary.Scheduled = len(entries)

	for i := range entries {
		entry := &entries[i]
		event := byStudent[entry.StudentID]
		status := s.rules.ComputeAutoStatus(&entry.ScheduleEntry, event, localNow)

		row := DashboardRow{
			StudentID:     entry.StudentID,
			StudentName:   entry.StudentName,
			PlannedAttend: entry.AttendTime,
			PlannedLeave:  entry.LeaveTime,
			Status:        status,
		}
		if event != nil {
			row.AttendTime = event.AttendTime
			row.LeaveTime = event.LeaveTime
			row.IsOuting = event.IsOuting
			row.ExcuseLate = event.ExcuseLate
			row.ExcuseAbsent = event.ExcuseAbsent
			if minutes, ok := NetStudyMinutes(event); ok {
				formatted := FormatDuration(minutes)
				row.StudyTime = &formatted
			}
		}

		switch status {
		case models.Derived(models.StatusPresent):
			board.Summary.Present++
		case models.Derived(models.StatusLeft):
			board.Summary.Left++
		case models.Derived(models.StatusOuting):
			board.Summary.OnOuting++
		case models.DerivedLate:
			board.Summary.Late++
		case models.Derived(models.StatusAbsent):
			board.Summary.Absent++
		}

		board.Rows = append(board.Rows, row)
	}

	return board, nil
}
