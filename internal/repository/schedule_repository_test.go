package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/room-reservation/internal/model"
)

func scheduleRows(scheds ...model.Schedule) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "room_id", "title", "starts_at", "ends_at",
		"repeat_kind", "status", "creator_id", "created_at", "updated_at"})
	for _, s := range scheds {
		rows.AddRow(s.ID, s.RoomID, s.Title, s.StartsAt, s.EndsAt,
			s.Repeat, s.Status, s.CreatorID, s.CreatedAt, s.UpdatedAt)
	}
	return rows
}

func TestFindOverlapsQueryShape(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewScheduleRepo(db)

	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
	existing := model.Schedule{
		ID: 5, RoomID: 1, Title: "lecture", StartsAt: start, EndsAt: end,
		Repeat: model.RepeatNone, Status: model.ScheduleApproved, CreatorID: 2,
		CreatedAt: start, UpdatedAt: start,
	}

	// Window args are swapped against the columns: starts_at is compared
	// with the requested end and ends_at with the requested start.
	mock.ExpectQuery(`SELECT .+ FROM schedules\s+WHERE room_id = \? AND status IN \(\?,\?\)\s+AND starts_at < \? AND ends_at > \? ORDER BY starts_at`).
		WithArgs(uint64(1), model.SchedulePending, model.ScheduleApproved, end, start).
		WillReturnRows(scheduleRows(existing))

	got, err := repo.FindOverlaps(context.Background(), 1, start, end, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(5), got[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOverlapsExcludesID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewScheduleRepo(db)

	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	mock.ExpectQuery(`AND starts_at < \? AND ends_at > \?\s+AND id != \? ORDER BY starts_at`).
		WithArgs(uint64(1), model.SchedulePending, model.ScheduleApproved, end, start, uint64(5)).
		WillReturnRows(scheduleRows())

	got, err := repo.FindOverlaps(context.Background(), 1, start, end, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindBlockingOverlapsIncludesCompleted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewScheduleRepo(db)

	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`status IN \(\?,\?,\?\)`).
		WithArgs(uint64(1), model.SchedulePending, model.ScheduleApproved, model.ScheduleCompleted, end, start).
		WillReturnRows(scheduleRows())
	tx, err := db.Begin()
	require.NoError(t, err)

	got, err := repo.FindBlockingOverlapsTx(context.Background(), tx, 1, start, end)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewScheduleRepo(db)

	mock.ExpectQuery(`SELECT .+ FROM schedules WHERE id = \?`).
		WithArgs(uint64(42)).
		WillReturnRows(scheduleRows())

	_, err = repo.GetByID(context.Background(), 42)
	assert.ErrorIs(t, err, ErrScheduleNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByAdvisorJoinsUsers(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewScheduleRepo(db)

	now := time.Now().UTC()
	adviseeSched := model.Schedule{
		ID: 9, RoomID: 3, Title: "study group", StartsAt: now, EndsAt: now.Add(time.Hour),
		Repeat: model.RepeatNone, Status: model.SchedulePending, CreatorID: 4,
		CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectQuery(`JOIN users u ON u\.id = s\.creator_id\s+WHERE u\.advisor_id = \?`).
		WithArgs(uint64(2)).
		WillReturnRows(scheduleRows(adviseeSched))

	got, err := repo.ListByAdvisor(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(4), got[0].CreatorID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
