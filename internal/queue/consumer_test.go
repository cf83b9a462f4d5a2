package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/room-reservation/internal/cache"
	"github.com/campuskit/room-reservation/internal/repository"
)

func TestActivityFallbackHandlerReplaysEntry(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	actorID := uint64(2)
	msg := ActivityMessage{
		Action:     "SCHEDULE_APPROVED",
		EntityType: "SCHEDULE",
		EntityID:   7,
		Details:    json.RawMessage(`{"roomId":1}`),
		ActorID:    &actorID,
		CreatedAt:  orig.Format(time.RFC3339),
	}
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO activities`).
		WithArgs("SCHEDULE_APPROVED", "SCHEDULE", uint64(7),
			[]byte(`{"roomId":1}`), &actorID, nil, orig).
		WillReturnResult(sqlmock.NewResult(1, 1))

	handle := NewActivityFallbackHandler(repository.NewActivityRepo(db))
	require.NoError(t, handle(body))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityFallbackHandlerRejectsGarbage(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	handle := NewActivityFallbackHandler(repository.NewActivityRepo(db))
	assert.Error(t, handle([]byte("not json")))
}

func TestRoomStatusHandler(t *testing.T) {
	// nil Redis client: Set becomes a no-op, so only validation is
	// observable here.
	handle := NewRoomStatusHandler(cache.NewRoomStatusCache(nil))

	ok, err := json.Marshal(RoomStatusEvent{EventID: "e1", RoomID: 3, RoomStatus: "RESERVED"})
	require.NoError(t, err)
	assert.NoError(t, handle(ok))

	assert.Error(t, handle([]byte("not json")))

	missing, err := json.Marshal(RoomStatusEvent{EventID: "e2", RoomStatus: "RESERVED"})
	require.NoError(t, err)
	assert.Error(t, handle(missing), "room_id is mandatory")

	noStatus, err := json.Marshal(RoomStatusEvent{EventID: "e3", RoomID: 3})
	require.NoError(t, err)
	assert.Error(t, handle(noStatus), "room_status is mandatory")
}

func TestStatusQueuesCoverRoomEvents(t *testing.T) {
	qs := StatusQueues()
	assert.ElementsMatch(t, []string{
		QueueRoomReserved, QueueRoomReleased, QueueRoomMaintenance,
		QueueRoomUsageStarted, QueueRoomUsageEnded,
	}, qs)
	assert.NotContains(t, qs, QueueScheduleScheduled)
	assert.NotContains(t, qs, QueueActivityFallback)
}
