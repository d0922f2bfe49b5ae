package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gaon-dev/gaon-api/internal/models"
	appErrors "github.com/gaon-dev/gaon-api/pkg/errors"
)

type fakeScheduleStore struct {
	*fakeScheduleRepo
	requests map[string]*models.ScheduleChangeRequest
	nextID   int
}

func newFakeScheduleStore() *fakeScheduleStore {
	return &fakeScheduleStore{
		fakeScheduleRepo: newFakeScheduleRepo(),
		requests:         make(map[string]*models.ScheduleChangeRequest),
	}
}

func (f *fakeScheduleStore) Upsert(_ context.Context, entry *models.ScheduleEntry) (*models.ScheduleEntry, error) {
	if entry.ID == "" {
		f.nextID++
		entry.ID = fmt.Sprintf("sch-%d", f.nextID)
	}
	copied := *entry
	f.put(&copied)
	return entry, nil
}

func (f *fakeScheduleStore) Delete(_ context.Context, id string) error {
	for key, entry := range f.entries {
		if entry.ID == id {
			delete(f.entries, key)
			return nil
		}
	}
	return nil
}

func (f *fakeScheduleStore) CreateRequest(_ context.Context, req *models.ScheduleChangeRequest) error {
	f.nextID++
	req.ID = fmt.Sprintf("req-%d", f.nextID)
	req.Status = models.ApprovalPending
	req.CreatedAt = time.Now().UTC()
	copied := *req
	f.requests[req.ID] = &copied
	return nil
}

func (f *fakeScheduleStore) GetRequest(_ context.Context, id string) (*models.ScheduleChangeRequest, error) {
	req, ok := f.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *req
	return &copied, nil
}

func (f *fakeScheduleStore) ListRequests(_ context.Context, status models.ApprovalStatus) ([]models.ScheduleChangeRequest, error) {
	var out []models.ScheduleChangeRequest
	for _, req := range f.requests {
		if req.Status == status {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (f *fakeScheduleStore) DecideRequest(_ context.Context, id string, status models.ApprovalStatus, decidedBy string, decidedAt time.Time) error {
	req, ok := f.requests[id]
	if !ok {
		return sql.ErrNoRows
	}
	req.Status = status
	req.DecidedBy = &decidedBy
	req.DecidedAt = &decidedAt
	return nil
}

func newTestScheduleService(store *fakeScheduleStore) *ScheduleService {
	return NewScheduleService(store, validator.New(), zap.NewNop())
}

const testStudentID = "2b1e0a74-9c61-4b59-9a1d-6f2f7c3f1a10"

func TestScheduleUpsertValidation(t *testing.T) {
	svc := newTestScheduleService(newFakeScheduleStore())

	_, err := svc.Upsert(context.Background(), UpsertScheduleInput{
		StudentID:  testStudentID,
		Day:        "FUNDAY",
		AttendTime: "15:00",
	})
	assertValidationError(t, err)

	_, err = svc.Upsert(context.Background(), UpsertScheduleInput{
		StudentID:  testStudentID,
		Day:        models.Monday,
		AttendTime: "25:99",
	})
	assertValidationError(t, err)

	leave := "14:00"
	_, err = svc.Upsert(context.Background(), UpsertScheduleInput{
		StudentID:  testStudentID,
		Day:        models.Monday,
		AttendTime: "15:00",
		LeaveTime:  &leave,
	})
	assertValidationError(t, err)
}

func assertValidationError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var typed *appErrors.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, appErrors.ErrValidation.Code, typed.Code)
}

func TestScheduleUpsertStoresPlannedOutings(t *testing.T) {
	store := newFakeScheduleStore()
	svc := newTestScheduleService(store)

	leave := "22:00"
	entry, err := svc.Upsert(context.Background(), UpsertScheduleInput{
		StudentID:  testStudentID,
		Day:        models.Monday,
		AttendTime: "15:00",
		LeaveTime:  &leave,
		PlannedOutings: []PlannedOutingInput{
			{StartTime: "18:00", EndTime: "19:00"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, entry.Status)
	require.Len(t, entry.PlannedOutings, 1)

	_, err = svc.Upsert(context.Background(), UpsertScheduleInput{
		StudentID:  testStudentID,
		Day:        models.Monday,
		AttendTime: "15:00",
		PlannedOutings: []PlannedOutingInput{
			{StartTime: "19:00", EndTime: "18:00"},
		},
	})
	assertValidationError(t, err)
}

func TestScheduleRequestApprovalAppliesEntry(t *testing.T) {
	store := newFakeScheduleStore()
	svc := newTestScheduleService(store)

	req, err := svc.RequestChange(context.Background(), RequestChangeInput{
		StudentID:  testStudentID,
		Day:        models.Tuesday,
		AttendTime: "16:00",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalPending, req.Status)

	pending, err := svc.PendingRequests(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)

	decided, err := svc.DecideRequest(context.Background(), req.ID, true, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, decided.Status)
	require.NotNil(t, decided.DecidedBy)
	assert.Equal(t, "admin-1", *decided.DecidedBy)

	entry, err := svc.GetForDay(context.Background(), testStudentID, models.Tuesday)
	require.NoError(t, err)
	assert.Equal(t, "16:00", entry.AttendTime)
	assert.Equal(t, models.ApprovalApproved, entry.Status)

	// A decided request cannot be decided twice.
	_, err = svc.DecideRequest(context.Background(), req.ID, false, "admin-1")
	require.Error(t, err)
	var typed *appErrors.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, appErrors.ErrConflict.Code, typed.Code)
}

func TestScheduleRequestRejectionLeavesPlanUntouched(t *testing.T) {
	store := newFakeScheduleStore()
	svc := newTestScheduleService(store)

	req, err := svc.RequestChange(context.Background(), RequestChangeInput{
		StudentID:  testStudentID,
		Day:        models.Wednesday,
		AttendTime: "17:00",
	})
	require.NoError(t, err)

	decided, err := svc.DecideRequest(context.Background(), req.ID, false, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalRejected, decided.Status)

	_, err = svc.GetForDay(context.Background(), testStudentID, models.Wednesday)
	require.Error(t, err)
	var typed *appErrors.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, appErrors.ErrNotFound.Code, typed.Code)
}
