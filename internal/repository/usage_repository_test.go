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

func TestHasOpenForUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewUsageRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM room_usages WHERE room_id = \? AND user_id = \? AND ended_at IS NULL`).
		WithArgs(uint64(1), uint64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	tx, err := db.Begin()
	require.NoError(t, err)

	open, err := repo.HasOpenForUserTx(context.Background(), tx, 1, 4)
	require.NoError(t, err)
	assert.True(t, open)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseOnlyTouchesOpenRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewUsageRepo(db)

	endedAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE room_usages SET ended_at = \? WHERE id = \? AND ended_at IS NULL`).
		WithArgs(endedAt, uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	tx, err := db.Begin()
	require.NoError(t, err)

	require.NoError(t, repo.CloseTx(context.Background(), tx, 5, endedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMaintenanceUsage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewUsageRepo(db)

	start := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	end := start.Add(4 * time.Hour)
	reason := "projector replacement"
	u := model.RoomUsage{
		RoomID:    1,
		UserID:    2,
		Kind:      model.UsageKindMaintenance,
		StartedAt: start,
		EndedAt:   &end,
		Reason:    &reason,
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO room_usages`).
		WithArgs(uint64(1), uint64(2), nil, model.UsageKindMaintenance,
			start, end, nil, &reason).
		WillReturnResult(sqlmock.NewResult(8, 1))
	tx, err := db.Begin()
	require.NoError(t, err)

	require.NoError(t, repo.CreateTx(context.Background(), tx, &u))
	assert.Equal(t, uint64(8), u.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteRemovesNestedComputerSessions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewUsageRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM computer_usages WHERE room_usage_id = \?`).
		WithArgs(uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM room_usages WHERE id = \?`).
		WithArgs(uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	tx, err := db.Begin()
	require.NoError(t, err)

	require.NoError(t, repo.DeleteTx(context.Background(), tx, 5))
	assert.NoError(t, mock.ExpectationsWereMet())
}
