package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gaon-dev/gaon-api/internal/models"
)

// AbsenceSweeper marks students who were scheduled for the day but never
// checked in as 무단결석 once the cutoff passes. Marks go through
// AttendanceService so each (student, date) write holds the same day lock as
// a live check-in; students flagged with a notified absence are skipped.
type AbsenceSweeper struct {
	attendance *AttendanceService
	interval   time.Duration
	metrics    *MetricsService
	logger     *zap.Logger

	lastSwept string
}

func NewAbsenceSweeper(
	attendance *AttendanceService,
	interval time.Duration,
	metrics *MetricsService,
	logger *zap.Logger,
) *AbsenceSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &AbsenceSweeper{
		attendance: attendance,
		interval:   interval,
		metrics:    metrics,
		logger:     logger,
	}
}

// Start runs the sweep loop until ctx is cancelled. The sweep fires at most
// once per local day, on the first tick at or past the cutoff.
func (s *AbsenceSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				local := now.In(s.attendance.location)
				if local.Hour()*60+local.Minute() < s.attendance.rules.AbsentCutoff {
					continue
				}
				day := local.Format("2006-01-02")
				if day == s.lastSwept {
					continue
				}
				if err := s.Sweep(ctx, now); err != nil {
					s.logger.Error("absence sweep failed", zap.Error(err))
					continue
				}
				s.lastSwept = day
			}
		}
	}()
}

// Sweep walks the day's approved schedules and marks every student without a
// check-in as an unnotified absence, writing an ABSENT penalty alongside.
func (s *AbsenceSweeper) Sweep(ctx context.Context, now time.Time) error {
	date := s.attendance.DateOf(now)
	day := models.DayOf(date)

	entries, err := s.attendance.schedules.ListByDay(ctx, day)
	if err != nil {
		return err
	}

	var marked int
	for _, entry := range entries {
		wrote, err := s.attendance.MarkAbsent(ctx, entry.StudentID, now)
		if err != nil {
			s.logger.Error("sweep: failed to mark absence",
				zap.String("student_id", entry.StudentID),
				zap.Error(err))
			continue
		}
		if wrote {
			marked++
		}
	}

	s.metrics.RecordAbsencesMarked(marked)
	s.logger.Info("absence sweep complete",
		zap.String("date", date.Format("2006-01-02")),
		zap.Int("scheduled", len(entries)),
		zap.Int("marked_absent", marked))

	return nil
}
