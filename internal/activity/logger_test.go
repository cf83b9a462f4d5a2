package activity

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/room-reservation/internal/model"
	"github.com/campuskit/room-reservation/internal/queue"
)

type fakeStore struct {
	err     error
	entries []model.ActivityEntry
}

func (s *fakeStore) Insert(_ context.Context, e *model.ActivityEntry) error {
	if s.err != nil {
		return s.err
	}
	e.ID = uint64(len(s.entries) + 1)
	s.entries = append(s.entries, *e)
	return nil
}

type fakeFallback struct {
	err  error
	msgs []queue.ActivityMessage
}

func (f *fakeFallback) PublishActivityFallback(_ context.Context, msg queue.ActivityMessage) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func TestEntryEmbedsEntityInDetails(t *testing.T) {
	actorID := uint64(2)
	e := Entry(model.ActionRoomScheduled, model.EntitySchedule, 7, &actorID, nil,
		map[string]any{"roomId": 1})

	var details map[string]any
	require.NoError(t, json.Unmarshal(e.Details, &details))
	assert.Equal(t, "SCHEDULE", details["entityType"])
	assert.EqualValues(t, 7, details["entityId"])
	assert.EqualValues(t, 1, details["roomId"])
	require.NotNil(t, e.ActorID)
	assert.Equal(t, uint64(2), *e.ActorID)
}

func TestEntryNilDetails(t *testing.T) {
	e := Entry(model.ActionRoomMaintenance, model.EntityRoom, 3, nil, nil, nil)
	var details map[string]any
	require.NoError(t, json.Unmarshal(e.Details, &details))
	assert.Equal(t, "ROOM", details["entityType"])
	assert.Nil(t, e.ActorID)
	assert.Nil(t, e.VisibleToID)
}

func TestLogInsertsDirectly(t *testing.T) {
	store := &fakeStore{}
	fallback := &fakeFallback{}
	l := NewLogger(store, fallback, nil)

	l.Log(context.Background(), Entry(model.ActionRoomUsageStarted, model.EntityRoomUsage, 5, nil, nil, nil))

	require.Len(t, store.entries, 1)
	assert.Empty(t, fallback.msgs, "fallback untouched on success")
	assert.False(t, store.entries[0].CreatedAt.IsZero())
}

func TestLogFallsBackOnInsertFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	fallback := &fakeFallback{}
	l := NewLogger(store, fallback, nil)

	visibleTo := uint64(4)
	l.Log(context.Background(), Entry(model.ActionScheduleCancelled, model.EntitySchedule, 7, nil, &visibleTo, nil))

	require.Len(t, fallback.msgs, 1)
	msg := fallback.msgs[0]
	assert.Equal(t, "SCHEDULE_CANCELLED", msg.Action)
	assert.Equal(t, uint64(7), msg.EntityID)
	require.NotNil(t, msg.VisibleToID)
	assert.Equal(t, uint64(4), *msg.VisibleToID)
	assert.NotEmpty(t, msg.CreatedAt, "original timestamp travels with the message")
}

func TestLogSurvivesTotalOutage(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	fallback := &fakeFallback{err: errors.New("broker down")}
	l := NewLogger(store, fallback, nil)

	// Must not panic or propagate anything.
	l.Log(context.Background(), Entry(model.ActionRoomUsageEnded, model.EntityRoomUsage, 5, nil, nil, nil))
	assert.Empty(t, fallback.msgs)
}

func TestLogNilFallback(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	l := NewLogger(store, nil, nil)

	l.Log(context.Background(), Entry(model.ActionRoomUsageEnded, model.EntityRoomUsage, 5, nil, nil, nil))
}
