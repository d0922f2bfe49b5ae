package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaon-dev/gaon-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestGetEvent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now().UTC()
	date := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "student_id", "date", "attend_time", "leave_time", "is_outing", "excuse_late", "excuse_absent", "final_status", "created_at", "updated_at"}).
		AddRow("evt-1", "stu-1", date, now, nil, false, false, false, string(models.StatusPresent), now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, date, attend_time, leave_time, is_outing, excuse_late, excuse_absent, final_status, created_at, updated_at FROM attendance WHERE student_id = $1 AND date = $2")).
		WithArgs("stu-1", date).
		WillReturnRows(rows)

	outingRows := sqlmock.NewRows([]string{"id", "attendance_id", "start_time", "end_time"}).
		AddRow("out-1", "evt-1", now, nil)
	mock.ExpectQuery("SELECT id, attendance_id, start_time, end_time").
		WithArgs("evt-1").
		WillReturnRows(outingRows)

	event, err := repo.GetEvent(context.Background(), "stu-1", date)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPresent, event.FinalStatus)
	require.Len(t, event.OutingLog, 1)
	assert.Nil(t, event.OutingLog[0].EndTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRewritesOutingLog(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now().UTC()
	date := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	end := now.Add(30 * time.Minute)

	mock.ExpectBegin()
	returned := sqlmock.NewRows([]string{"id", "student_id", "date", "attend_time", "leave_time", "is_outing", "excuse_late", "excuse_absent", "final_status", "created_at", "updated_at"}).
		AddRow("evt-1", "stu-1", date, now, nil, false, false, false, string(models.StatusPresent), now, now)
	mock.ExpectQuery("INSERT INTO attendance").WillReturnRows(returned)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM outing_logs WHERE attendance_id = $1")).
		WithArgs("evt-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO outing_logs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	stored, err := repo.Upsert(context.Background(), &models.AttendanceEvent{
		ID:          "evt-1",
		StudentID:   "stu-1",
		Date:        date,
		AttendTime:  &now,
		FinalStatus: models.StatusPresent,
		OutingLog: []models.OutingInterval{
			{StartTime: now, EndTime: &end},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", stored.ID)
	require.Len(t, stored.OutingLog, 1)
	assert.Equal(t, "evt-1", stored.OutingLog[0].AttendanceID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListForDate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now().UTC()
	date := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "student_id", "date", "attend_time", "leave_time", "is_outing", "excuse_late", "excuse_absent", "final_status", "created_at", "updated_at", "student_name"}).
		AddRow("evt-1", "stu-1", date, now, nil, false, false, false, string(models.StatusPresent), now, now, "김가온")
	mock.ExpectQuery("SELECT a.id, a.student_id").
		WithArgs(date).
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT id, attendance_id, start_time, end_time").
		WithArgs("evt-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "attendance_id", "start_time", "end_time"}))

	records, err := repo.ListForDate(context.Background(), date)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "김가온", records[0].StudentName)
	assert.NotNil(t, records[0].OutingLog)
	assert.NoError(t, mock.ExpectationsWereMet())
}
