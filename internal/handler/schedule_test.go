package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campuskit/room-reservation/internal/activity"
	"github.com/campuskit/room-reservation/internal/middleware"
	"github.com/campuskit/room-reservation/internal/model"
	"github.com/campuskit/room-reservation/internal/queue"
	"github.com/campuskit/room-reservation/internal/repository"
)

// eventRecorder captures published events in memory.
type eventRecorder struct {
	published []recordedEvent
}

type recordedEvent struct {
	queue   string
	payload any
}

func (r *eventRecorder) Publish(_ context.Context, queueName string, payload any) error {
	r.published = append(r.published, recordedEvent{queue: queueName, payload: payload})
	return nil
}

func (r *eventRecorder) onQueue(name string) []any {
	var out []any
	for _, ev := range r.published {
		if ev.queue == name {
			out = append(out, ev.payload)
		}
	}
	return out
}

func buildScheduleHandler(t *testing.T) (*ScheduleHandler, sqlmock.Sqlmock, *eventRecorder, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	audit := activity.NewLogger(repository.NewActivityRepo(db), nil, zap.NewNop())
	events := &eventRecorder{}
	h := NewScheduleHandler(
		repository.NewRoomRepo(db),
		repository.NewScheduleRepo(db),
		repository.NewUserRepo(db),
		audit,
		events,
	)
	return h, mock, events, func() { db.Close() }
}

func ctxWithActor(e *echo.Echo, req *http.Request, actorID uint64, role model.Role) (echo.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(middleware.CtxUserID, actorID)
	c.Set(middleware.CtxRole, role)
	return c, rec
}

func userRow(id uint64, role model.Role, advisorID any) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "email", "full_name", "password_hash",
		"role", "advisor_id", "is_active", "created_at", "updated_at"}).
		AddRow(id, "u@example.edu", "Some User", "x", string(role), advisorID, true, now, now)
}

func roomRow(id uint64, status model.RoomStatus) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "name", "capacity", "location",
		"status", "is_active", "created_at", "updated_at"}).
		AddRow(id, "Lab 101", 24, "Main building", string(status), true, now, now)
}

func schedRow(s model.Schedule) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "room_id", "title", "starts_at", "ends_at",
		"repeat_kind", "status", "creator_id", "created_at", "updated_at"}).
		AddRow(s.ID, s.RoomID, s.Title, s.StartsAt, s.EndsAt,
			string(s.Repeat), string(s.Status), s.CreatorID, s.CreatedAt, s.UpdatedAt)
}

func TestCreateRejectsOverlap(t *testing.T) {
	h, mock, _, done := buildScheduleHandler(t)
	defer done()

	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	existing := model.Schedule{
		ID: 5, RoomID: 1, Title: "lecture", StartsAt: start.Add(time.Hour), EndsAt: end.Add(time.Hour),
		Repeat: model.RepeatNone, Status: model.ScheduleApproved, CreatorID: 9,
		CreatedAt: start, UpdatedAt: start,
	}

	mock.ExpectQuery(`FROM users WHERE id = \?`).WithArgs(uint64(4)).
		WillReturnRows(userRow(4, model.RoleStudent, 2))
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM rooms WHERE id = \? AND is_active = 1 FOR UPDATE`).WithArgs(uint64(1)).
		WillReturnRows(roomRow(1, model.RoomAvailable))
	mock.ExpectQuery(`AND starts_at < \? AND ends_at > \?`).
		WithArgs(uint64(1), model.SchedulePending, model.ScheduleApproved, end, start).
		WillReturnRows(schedRow(existing))
	mock.ExpectRollback()

	body := `{"room_id":1,"title":"study session","starts_at":"2026-03-10T09:00:00Z","ends_at":"2026-03-10T11:00:00Z"}`
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/schedules", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c, rec := ctxWithActor(e, req, 4, model.RoleStudent)

	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusConflict, rec.Code)

	var resp struct {
		Success    bool              `json:"success"`
		Message    string            `json:"message"`
		StatusCode int               `json:"statusCode"`
		Data       []json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Len(t, resp.Data, 1, "conflicting reservations are returned")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateValidatesWindow(t *testing.T) {
	h, _, _, done := buildScheduleHandler(t)
	defer done()

	body := `{"room_id":1,"title":"x","starts_at":"2026-03-10T11:00:00Z","ends_at":"2026-03-10T09:00:00Z"}`
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/schedules", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c, rec := ctxWithActor(e, req, 4, model.RoleStudent)

	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApproveRequiresSupervision(t *testing.T) {
	h, mock, _, done := buildScheduleHandler(t)
	defer done()

	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	sched := model.Schedule{
		ID: 7, RoomID: 1, Title: "study", StartsAt: start, EndsAt: start.Add(time.Hour),
		Repeat: model.RepeatNone, Status: model.SchedulePending, CreatorID: 5,
		CreatedAt: start, UpdatedAt: start,
	}

	// Actor is a teacher, but the creator's advisor is someone else.
	mock.ExpectQuery(`FROM users WHERE id = \?`).WithArgs(uint64(3)).
		WillReturnRows(userRow(3, model.RoleTeacher, nil))
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM schedules WHERE id = \? FOR UPDATE`).WithArgs(uint64(7)).
		WillReturnRows(schedRow(sched))
	mock.ExpectQuery(`FROM users WHERE id = \?`).WithArgs(uint64(5)).
		WillReturnRows(userRow(5, model.RoleStudent, 2))
	mock.ExpectRollback()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/schedules/7/approve", nil)
	c, rec := ctxWithActor(e, req, 3, model.RoleTeacher)
	c.SetParamNames("id")
	c.SetParamValues("7")

	require.NoError(t, h.Approve(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveRejectsNonPending(t *testing.T) {
	h, mock, _, done := buildScheduleHandler(t)
	defer done()

	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	sched := model.Schedule{
		ID: 7, RoomID: 1, Title: "study", StartsAt: start, EndsAt: start.Add(time.Hour),
		Repeat: model.RepeatNone, Status: model.ScheduleCancelled, CreatorID: 5,
		CreatedAt: start, UpdatedAt: start,
	}

	mock.ExpectQuery(`FROM users WHERE id = \?`).WithArgs(uint64(1)).
		WillReturnRows(userRow(1, model.RoleAdmin, nil))
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM schedules WHERE id = \? FOR UPDATE`).WithArgs(uint64(7)).
		WillReturnRows(schedRow(sched))
	mock.ExpectQuery(`FROM users WHERE id = \?`).WithArgs(uint64(5)).
		WillReturnRows(userRow(5, model.RoleStudent, 2))
	mock.ExpectRollback()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/schedules/7/approve", nil)
	c, rec := ctxWithActor(e, req, 1, model.RoleAdmin)
	c.SetParamNames("id")
	c.SetParamValues("7")

	require.NoError(t, h.Approve(c))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestModerateBlocksStudents(t *testing.T) {
	h, mock, _, done := buildScheduleHandler(t)
	defer done()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/schedules/7/reject", nil)
	c, rec := ctxWithActor(e, req, 4, model.RoleStudent)
	c.SetParamNames("id")
	c.SetParamValues("7")

	require.NoError(t, h.Reject(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet(), "rejected before touching the database")
}

func TestCheckConflictsValidation(t *testing.T) {
	h, _, _, done := buildScheduleHandler(t)
	defer done()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/schedules/conflicts?starts_at=2026-03-10T09:00:00Z&ends_at=2026-03-10T11:00:00Z", nil)
	c, rec := ctxWithActor(e, req, 4, model.RoleStudent)

	require.NoError(t, h.CheckConflicts(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "room_id is mandatory")
}

func cancelContext(scheduleID string, actorID uint64, role model.Role) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/schedules/"+scheduleID+"/cancel", nil)
	c, rec := ctxWithActor(e, req, actorID, role)
	c.SetParamNames("id")
	c.SetParamValues(scheduleID)
	return c, rec
}

func TestCancelReleasesReservedRoom(t *testing.T) {
	h, mock, events, done := buildScheduleHandler(t)
	defer done()

	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	sched := model.Schedule{
		ID: 7, RoomID: 1, Title: "study", StartsAt: start, EndsAt: start.Add(time.Hour),
		Repeat: model.RepeatNone, Status: model.ScheduleApproved, CreatorID: 5,
		CreatedAt: start, UpdatedAt: start,
	}

	mock.ExpectQuery(`FROM users WHERE id = \?`).WithArgs(uint64(1)).
		WillReturnRows(userRow(1, model.RoleAdmin, nil))
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM schedules WHERE id = \? FOR UPDATE`).WithArgs(uint64(7)).
		WillReturnRows(schedRow(sched))
	mock.ExpectQuery(`FROM users WHERE id = \?`).WithArgs(uint64(5)).
		WillReturnRows(userRow(5, model.RoleStudent, 2))
	mock.ExpectQuery(`FROM rooms WHERE id = \? FOR UPDATE`).WithArgs(uint64(1)).
		WillReturnRows(roomRow(1, model.RoomReserved))
	mock.ExpectExec(`UPDATE schedules SET status`).
		WithArgs(model.ScheduleCancelled, uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE rooms SET status`).
		WithArgs(model.RoomAvailable, uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`INSERT INTO activities`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	c, rec := cancelContext("7", 1, model.RoleAdmin)
	require.NoError(t, h.Cancel(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())

	released := events.onQueue(queue.QueueRoomReleased)
	require.Len(t, released, 1)
	ev, ok := released[0].(queue.RoomStatusEvent)
	require.True(t, ok)
	assert.Equal(t, string(model.RoomAvailable), ev.RoomStatus)
}

func TestCancelKeepsLiveOccupancyStatus(t *testing.T) {
	h, mock, events, done := buildScheduleHandler(t)
	defer done()

	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	sched := model.Schedule{
		ID: 7, RoomID: 1, Title: "study", StartsAt: start, EndsAt: start.Add(time.Hour),
		Repeat: model.RepeatNone, Status: model.ScheduleApproved, CreatorID: 5,
		CreatedAt: start, UpdatedAt: start,
	}

	mock.ExpectQuery(`FROM users WHERE id = \?`).WithArgs(uint64(1)).
		WillReturnRows(userRow(1, model.RoleAdmin, nil))
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM schedules WHERE id = \? FOR UPDATE`).WithArgs(uint64(7)).
		WillReturnRows(schedRow(sched))
	mock.ExpectQuery(`FROM users WHERE id = \?`).WithArgs(uint64(5)).
		WillReturnRows(userRow(5, model.RoleStudent, 2))
	// The room is occupied by a walk-in session: its status must
	// survive the cancellation, with no UPDATE on rooms.
	mock.ExpectQuery(`FROM rooms WHERE id = \? FOR UPDATE`).WithArgs(uint64(1)).
		WillReturnRows(roomRow(1, model.RoomInUse))
	mock.ExpectExec(`UPDATE schedules SET status`).
		WithArgs(model.ScheduleCancelled, uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`INSERT INTO activities`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	c, rec := cancelContext("7", 1, model.RoleAdmin)
	require.NoError(t, h.Cancel(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())

	released := events.onQueue(queue.QueueRoomReleased)
	require.Len(t, released, 1)
	ev, ok := released[0].(queue.RoomStatusEvent)
	require.True(t, ok)
	assert.Equal(t, string(model.RoomInUse), ev.RoomStatus, "event carries the room's live status")
}

func TestCancelRoomLookupFailureAborts(t *testing.T) {
	h, mock, events, done := buildScheduleHandler(t)
	defer done()

	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	sched := model.Schedule{
		ID: 7, RoomID: 1, Title: "study", StartsAt: start, EndsAt: start.Add(time.Hour),
		Repeat: model.RepeatNone, Status: model.ScheduleApproved, CreatorID: 5,
		CreatedAt: start, UpdatedAt: start,
	}

	mock.ExpectQuery(`FROM users WHERE id = \?`).WithArgs(uint64(1)).
		WillReturnRows(userRow(1, model.RoleAdmin, nil))
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM schedules WHERE id = \? FOR UPDATE`).WithArgs(uint64(7)).
		WillReturnRows(schedRow(sched))
	mock.ExpectQuery(`FROM users WHERE id = \?`).WithArgs(uint64(5)).
		WillReturnRows(userRow(5, model.RoleStudent, 2))
	mock.ExpectQuery(`FROM rooms WHERE id = \? FOR UPDATE`).WithArgs(uint64(1)).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	c, rec := cancelContext("7", 1, model.RoleAdmin)
	require.NoError(t, h.Cancel(c))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet(), "cancellation rolls back, nothing is committed")
	assert.Empty(t, events.published, "no events for an aborted cancellation")
}

func TestRejectReportsLiveRoomStatus(t *testing.T) {
	h, mock, events, done := buildScheduleHandler(t)
	defer done()

	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	sched := model.Schedule{
		ID: 7, RoomID: 1, Title: "study", StartsAt: start, EndsAt: start.Add(time.Hour),
		Repeat: model.RepeatNone, Status: model.SchedulePending, CreatorID: 5,
		CreatedAt: start, UpdatedAt: start,
	}

	mock.ExpectQuery(`FROM users WHERE id = \?`).WithArgs(uint64(1)).
		WillReturnRows(userRow(1, model.RoleAdmin, nil))
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM schedules WHERE id = \? FOR UPDATE`).WithArgs(uint64(7)).
		WillReturnRows(schedRow(sched))
	mock.ExpectQuery(`FROM users WHERE id = \?`).WithArgs(uint64(5)).
		WillReturnRows(userRow(5, model.RoleStudent, 2))
	mock.ExpectQuery(`FROM rooms WHERE id = \? FOR UPDATE`).WithArgs(uint64(1)).
		WillReturnRows(roomRow(1, model.RoomInUse))
	mock.ExpectExec(`UPDATE schedules SET status`).
		WithArgs(model.ScheduleRejected, uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`INSERT INTO activities`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/schedules/7/reject", nil)
	c, rec := ctxWithActor(e, req, 1, model.RoleAdmin)
	c.SetParamNames("id")
	c.SetParamValues("7")

	require.NoError(t, h.Reject(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())

	released := events.onQueue(queue.QueueRoomReleased)
	require.Len(t, released, 1)
	ev, ok := released[0].(queue.RoomStatusEvent)
	require.True(t, ok)
	assert.Equal(t, string(model.RoomInUse), ev.RoomStatus, "rejecting never touches the room")
}
