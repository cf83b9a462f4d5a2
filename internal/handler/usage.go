package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/campuskit/room-reservation/internal/activity"
	"github.com/campuskit/room-reservation/internal/model"
	"github.com/campuskit/room-reservation/internal/queue"
	"github.com/campuskit/room-reservation/internal/repository"
)

// UsageHandler tracks actual occupancy: room check-in/out, nested
// computer sessions, maintenance windows, and the administrative delete
// override. Room status follows the open-session count: the first open
// session flips the room to IN_USE and closing the last one releases it.
type UsageHandler struct {
	Rooms     *repository.RoomRepo
	Schedules *repository.ScheduleRepo
	Usages    *repository.UsageRepo
	Audit     *activity.Logger
	Events    EventPublisher
}

// NewUsageHandler constructs a UsageHandler with the provided
// dependencies. All of them must be non-nil.
func NewUsageHandler(rooms *repository.RoomRepo, schedules *repository.ScheduleRepo, usages *repository.UsageRepo, audit *activity.Logger, events EventPublisher) *UsageHandler {
	if rooms == nil || schedules == nil || usages == nil || audit == nil || events == nil {
		panic("nil dependency passed to NewUsageHandler")
	}
	return &UsageHandler{Rooms: rooms, Schedules: schedules, Usages: usages, Audit: audit, Events: events}
}

type usageView struct {
	ID         uint64  `json:"id"`
	RoomID     uint64  `json:"room_id"`
	UserID     uint64  `json:"user_id"`
	ScheduleID *uint64 `json:"schedule_id,omitempty"`
	Kind       string  `json:"kind"`
	StartedAt  string  `json:"started_at"`
	EndedAt    *string `json:"ended_at,omitempty"`
	Purpose    *string `json:"purpose,omitempty"`
	Reason     *string `json:"reason,omitempty"`
}

func toUsageView(u model.RoomUsage) usageView {
	v := usageView{
		ID:         u.ID,
		RoomID:     u.RoomID,
		UserID:     u.UserID,
		ScheduleID: u.ScheduleID,
		Kind:       string(u.Kind),
		StartedAt:  u.StartedAt.UTC().Format(time.RFC3339),
		Purpose:    u.Purpose,
		Reason:     u.Reason,
	}
	if u.EndedAt != nil {
		s := u.EndedAt.UTC().Format(time.RFC3339)
		v.EndedAt = &s
	}
	return v
}

type computerUsageView struct {
	ID          uint64  `json:"id"`
	ComputerID  uint64  `json:"computer_id"`
	RoomUsageID uint64  `json:"room_usage_id"`
	UserID      uint64  `json:"user_id"`
	StartedAt   string  `json:"started_at"`
	EndedAt     *string `json:"ended_at,omitempty"`
}

func toComputerUsageView(u model.ComputerUsage) computerUsageView {
	v := computerUsageView{
		ID:          u.ID,
		ComputerID:  u.ComputerID,
		RoomUsageID: u.RoomUsageID,
		UserID:      u.UserID,
		StartedAt:   u.StartedAt.UTC().Format(time.RFC3339),
	}
	if u.EndedAt != nil {
		s := u.EndedAt.UTC().Format(time.RFC3339)
		v.EndedAt = &s
	}
	return v
}

func (h *UsageHandler) usageEvent(u model.RoomUsage, roomStatus model.RoomStatus) queue.UsageEvent {
	ev := queue.UsageEvent{
		EventID:    uuid.NewString(),
		UsageID:    u.ID,
		RoomID:     u.RoomID,
		UserID:     u.UserID,
		RoomStatus: string(roomStatus),
		StartedAt:  u.StartedAt.UTC().Format(time.RFC3339),
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
	if u.EndedAt != nil {
		s := u.EndedAt.UTC().Format(time.RFC3339)
		ev.EndedAt = &s
	}
	return ev
}

// Start handles POST /v1/usages: a user checks into a room. A user may
// hold at most one open session per room; the check is repeated inside
// the transaction so concurrent check-ins cannot both pass.
func (h *UsageHandler) Start(c echo.Context) error {
	actorID, _, err := actor(c)
	if err != nil {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}

	var body struct {
		RoomID     uint64  `json:"room_id"`
		ScheduleID *uint64 `json:"schedule_id"`
		Purpose    *string `json:"purpose"`
	}
	if err := c.Bind(&body); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if body.RoomID == 0 {
		return fail(c, http.StatusBadRequest, "room_id is required")
	}

	ctx := c.Request().Context()
	tx, err := h.Usages.DB().BeginTx(ctx, nil)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to start transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	room, err := h.Rooms.GetActiveTx(ctx, tx, body.RoomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return fail(c, http.StatusNotFound, "room not found")
		}
		return fail(c, http.StatusInternalServerError, "database error")
	}
	if room.Status == model.RoomMaintenance {
		return fail(c, http.StatusUnprocessableEntity, "room is under maintenance")
	}
	open, err := h.Usages.HasOpenForUserTx(ctx, tx, body.RoomID, actorID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "database error")
	}
	if open {
		return fail(c, http.StatusConflict, "user already has an open session for this room")
	}
	if body.ScheduleID != nil {
		sched, err := h.Schedules.GetByIDTx(ctx, tx, *body.ScheduleID)
		if err != nil {
			if errors.Is(err, repository.ErrScheduleNotFound) {
				return fail(c, http.StatusNotFound, "reservation not found")
			}
			return fail(c, http.StatusInternalServerError, "database error")
		}
		if sched.RoomID != body.RoomID {
			return fail(c, http.StatusBadRequest, "reservation is for a different room")
		}
		if sched.Status != model.ScheduleApproved {
			return fail(c, http.StatusUnprocessableEntity, "reservation is not approved")
		}
	}

	usage := model.RoomUsage{
		RoomID:     body.RoomID,
		UserID:     actorID,
		ScheduleID: body.ScheduleID,
		Kind:       model.UsageKindUse,
		StartedAt:  time.Now().UTC(),
		Purpose:    body.Purpose,
	}
	if err := h.Usages.CreateTx(ctx, tx, &usage); err != nil {
		return fail(c, http.StatusInternalServerError, "failed to record usage")
	}
	roomStatus := room.Status
	if roomStatus != model.RoomInUse {
		if err := h.Rooms.UpdateStatusTx(ctx, tx, body.RoomID, model.RoomInUse); err != nil {
			return fail(c, http.StatusInternalServerError, "failed to update room status")
		}
		roomStatus = model.RoomInUse
	}
	if err := tx.Commit(); err != nil {
		return fail(c, http.StatusInternalServerError, "failed to commit transaction")
	}
	committed = true

	h.Audit.Log(ctx, activity.Entry(model.ActionRoomUsageStarted, model.EntityRoomUsage, usage.ID,
		&actorID, nil, map[string]any{
			"roomId":    usage.RoomID,
			"startedAt": usage.StartedAt.Format(time.RFC3339),
		}))
	_ = h.Events.Publish(ctx, queue.QueueRoomUsageStarted, h.usageEvent(usage, roomStatus))
	return respond(c, http.StatusCreated, toUsageView(usage))
}

// End handles POST /v1/usages/:id/end: check-out. Only the occupant or
// an admin may close a session. Closing the room's last open session
// releases the room, unless maintenance claimed it meanwhile.
func (h *UsageHandler) End(c echo.Context) error {
	actorID, actorRole, err := actor(c)
	if err != nil {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	usageID, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid usage id")
	}

	ctx := c.Request().Context()
	tx, err := h.Usages.DB().BeginTx(ctx, nil)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to start transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	usage, err := h.Usages.GetByIDTx(ctx, tx, usageID)
	if err != nil {
		if errors.Is(err, repository.ErrUsageNotFound) {
			return fail(c, http.StatusNotFound, "usage not found")
		}
		return fail(c, http.StatusInternalServerError, "database error")
	}
	if usage.UserID != actorID && actorRole != model.RoleAdmin {
		return fail(c, http.StatusForbidden, "not allowed to end this session")
	}
	if !usage.Open() {
		return fail(c, http.StatusUnprocessableEntity, "session is already closed")
	}

	endedAt := time.Now().UTC()
	if err := h.Usages.CloseTx(ctx, tx, usage.ID, endedAt); err != nil {
		return fail(c, http.StatusInternalServerError, "failed to close session")
	}
	remaining, err := h.Usages.CountOpenByRoomTx(ctx, tx, usage.RoomID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "database error")
	}
	roomStatus := model.RoomInUse
	if remaining == 0 {
		room, err := h.Rooms.GetActiveTx(ctx, tx, usage.RoomID)
		if err != nil {
			return fail(c, http.StatusInternalServerError, "database error")
		}
		roomStatus = room.Status
		if room.Status == model.RoomInUse {
			if err := h.Rooms.UpdateStatusTx(ctx, tx, usage.RoomID, model.RoomAvailable); err != nil {
				return fail(c, http.StatusInternalServerError, "failed to update room status")
			}
			roomStatus = model.RoomAvailable
		}
	}
	if err := tx.Commit(); err != nil {
		return fail(c, http.StatusInternalServerError, "failed to commit transaction")
	}
	committed = true
	usage.EndedAt = &endedAt

	h.Audit.Log(ctx, activity.Entry(model.ActionRoomUsageEnded, model.EntityRoomUsage, usage.ID,
		&actorID, nil, map[string]any{
			"roomId":  usage.RoomID,
			"endedAt": endedAt.Format(time.RFC3339),
		}))
	_ = h.Events.Publish(ctx, queue.QueueRoomUsageEnded, h.usageEvent(usage, roomStatus))
	if roomStatus == model.RoomAvailable {
		_ = h.Events.Publish(ctx, queue.QueueRoomReleased, queue.RoomStatusEvent{
			EventID:    uuid.NewString(),
			RoomID:     usage.RoomID,
			RoomStatus: string(model.RoomAvailable),
			OccurredAt: time.Now().UTC().Format(time.RFC3339),
		})
	}
	return respond(c, http.StatusOK, toUsageView(usage))
}

// StartComputer handles POST /v1/usages/:id/computers: a computer
// session nested under an open room session. The parent session must
// belong to the actor unless the actor is an admin.
func (h *UsageHandler) StartComputer(c echo.Context) error {
	actorID, actorRole, err := actor(c)
	if err != nil {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	usageID, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid usage id")
	}

	var body struct {
		ComputerID uint64 `json:"computer_id"`
	}
	if err := c.Bind(&body); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if body.ComputerID == 0 {
		return fail(c, http.StatusBadRequest, "computer_id is required")
	}

	ctx := c.Request().Context()
	tx, err := h.Usages.DB().BeginTx(ctx, nil)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to start transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	parent, err := h.Usages.GetByIDTx(ctx, tx, usageID)
	if err != nil {
		if errors.Is(err, repository.ErrUsageNotFound) {
			return fail(c, http.StatusNotFound, "usage not found")
		}
		return fail(c, http.StatusInternalServerError, "database error")
	}
	if parent.UserID != actorID && actorRole != model.RoleAdmin {
		return fail(c, http.StatusForbidden, "not allowed to use this session")
	}
	if !parent.Open() {
		return fail(c, http.StatusUnprocessableEntity, "room session is closed")
	}
	if _, err := h.Rooms.GetComputerTx(ctx, tx, body.ComputerID, parent.RoomID); err != nil {
		if errors.Is(err, repository.ErrComputerNotFound) {
			return fail(c, http.StatusNotFound, "computer not found in this room")
		}
		return fail(c, http.StatusInternalServerError, "database error")
	}
	open, err := h.Usages.HasOpenComputerForUserTx(ctx, tx, body.ComputerID, parent.UserID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "database error")
	}
	if open {
		return fail(c, http.StatusConflict, "user already has an open session on this computer")
	}

	cu := model.ComputerUsage{
		ComputerID:  body.ComputerID,
		RoomUsageID: parent.ID,
		UserID:      parent.UserID,
		StartedAt:   time.Now().UTC(),
	}
	if err := h.Usages.CreateComputerTx(ctx, tx, &cu); err != nil {
		return fail(c, http.StatusInternalServerError, "failed to record computer usage")
	}
	if err := tx.Commit(); err != nil {
		return fail(c, http.StatusInternalServerError, "failed to commit transaction")
	}
	committed = true

	h.Audit.Log(ctx, activity.Entry(model.ActionComputerUsageStarted, model.EntityComputerUsage, cu.ID,
		&actorID, nil, map[string]any{
			"computerId":  cu.ComputerID,
			"roomUsageId": cu.RoomUsageID,
		}))
	return respond(c, http.StatusCreated, toComputerUsageView(cu))
}

// EndComputer handles POST /v1/computer-usages/:id/end.
func (h *UsageHandler) EndComputer(c echo.Context) error {
	actorID, actorRole, err := actor(c)
	if err != nil {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	cuID, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid computer usage id")
	}

	ctx := c.Request().Context()
	tx, err := h.Usages.DB().BeginTx(ctx, nil)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to start transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	cu, err := h.Usages.GetComputerUsageTx(ctx, tx, cuID)
	if err != nil {
		if errors.Is(err, repository.ErrComputerUsageNotFound) {
			return fail(c, http.StatusNotFound, "computer usage not found")
		}
		return fail(c, http.StatusInternalServerError, "database error")
	}
	if cu.UserID != actorID && actorRole != model.RoleAdmin {
		return fail(c, http.StatusForbidden, "not allowed to end this session")
	}
	if cu.EndedAt != nil {
		return fail(c, http.StatusUnprocessableEntity, "session is already closed")
	}

	endedAt := time.Now().UTC()
	if err := h.Usages.CloseComputerTx(ctx, tx, cu.ID, endedAt); err != nil {
		return fail(c, http.StatusInternalServerError, "failed to close session")
	}
	if err := tx.Commit(); err != nil {
		return fail(c, http.StatusInternalServerError, "failed to commit transaction")
	}
	committed = true
	cu.EndedAt = &endedAt

	h.Audit.Log(ctx, activity.Entry(model.ActionComputerUsageEnded, model.EntityComputerUsage, cu.ID,
		&actorID, nil, map[string]any{
			"computerId": cu.ComputerID,
			"endedAt":    endedAt.Format(time.RFC3339),
		}))
	return respond(c, http.StatusOK, toComputerUsageView(cu))
}

// Maintenance handles POST /v1/rooms/:id/maintenance. Privileged users
// only. The window is refused when any non-terminal reservation or
// completed booking overlaps it; on success a MAINTENANCE usage record
// is written and the room status flips immediately. The audit entry
// carries no visibility grant, so only admins and the actor see it.
func (h *UsageHandler) Maintenance(c echo.Context) error {
	actorID, actorRole, err := actor(c)
	if err != nil {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	if !actorRole.Privileged() {
		return fail(c, http.StatusForbidden, "students cannot schedule maintenance")
	}
	roomID, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid room id")
	}

	var body struct {
		StartsAt string `json:"starts_at"`
		EndsAt   string `json:"ends_at"`
		Reason   string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	startsAt, err := parseRFC3339(body.StartsAt)
	if err != nil {
		return fail(c, http.StatusBadRequest, "starts_at must be RFC3339")
	}
	endsAt, err := parseRFC3339(body.EndsAt)
	if err != nil {
		return fail(c, http.StatusBadRequest, "ends_at must be RFC3339")
	}
	if !startsAt.Before(endsAt) {
		return fail(c, http.StatusBadRequest, "starts_at must be before ends_at")
	}
	if body.Reason == "" {
		return fail(c, http.StatusBadRequest, "reason is required")
	}

	ctx := c.Request().Context()
	tx, err := h.Usages.DB().BeginTx(ctx, nil)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to start transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := h.Rooms.GetActiveTx(ctx, tx, roomID); err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return fail(c, http.StatusNotFound, "room not found")
		}
		return fail(c, http.StatusInternalServerError, "database error")
	}
	blocking, err := h.Schedules.FindBlockingOverlapsTx(ctx, tx, roomID, startsAt, endsAt)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to check conflicts")
	}
	if len(blocking) > 0 {
		return failWith(c, http.StatusConflict, "maintenance window conflicts with reservations", toScheduleViews(blocking))
	}

	reason := body.Reason
	usage := model.RoomUsage{
		RoomID:    roomID,
		UserID:    actorID,
		Kind:      model.UsageKindMaintenance,
		StartedAt: startsAt,
		EndedAt:   &endsAt,
		Reason:    &reason,
	}
	if err := h.Usages.CreateTx(ctx, tx, &usage); err != nil {
		return fail(c, http.StatusInternalServerError, "failed to record maintenance")
	}
	if err := h.Rooms.UpdateStatusTx(ctx, tx, roomID, model.RoomMaintenance); err != nil {
		return fail(c, http.StatusInternalServerError, "failed to update room status")
	}
	if err := tx.Commit(); err != nil {
		return fail(c, http.StatusInternalServerError, "failed to commit transaction")
	}
	committed = true

	h.Audit.Log(ctx, activity.Entry(model.ActionRoomMaintenance, model.EntityRoom, roomID,
		&actorID, nil, map[string]any{
			"reason":   reason,
			"startsAt": startsAt.Format(time.RFC3339),
			"endsAt":   endsAt.Format(time.RFC3339),
		}))
	_ = h.Events.Publish(ctx, queue.QueueRoomMaintenance, queue.RoomStatusEvent{
		EventID:    uuid.NewString(),
		RoomID:     roomID,
		RoomStatus: string(model.RoomMaintenance),
		Reason:     &reason,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	})
	return respond(c, http.StatusCreated, toUsageView(usage))
}

// Delete handles DELETE /v1/usages/:id, the admin-only correction path
// for records created in error. Nested computer sessions go with the
// parent; the deletion itself is audited.
func (h *UsageHandler) Delete(c echo.Context) error {
	actorID, actorRole, err := actor(c)
	if err != nil {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	if actorRole != model.RoleAdmin {
		return fail(c, http.StatusForbidden, "admin only")
	}
	usageID, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid usage id")
	}

	ctx := c.Request().Context()
	tx, err := h.Usages.DB().BeginTx(ctx, nil)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to start transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	usage, err := h.Usages.GetByIDTx(ctx, tx, usageID)
	if err != nil {
		if errors.Is(err, repository.ErrUsageNotFound) {
			return fail(c, http.StatusNotFound, "usage not found")
		}
		return fail(c, http.StatusInternalServerError, "database error")
	}
	if err := h.Usages.DeleteTx(ctx, tx, usage.ID); err != nil {
		return fail(c, http.StatusInternalServerError, "failed to delete usage")
	}
	// Deleting an open session may leave the room marked IN_USE with no
	// occupants; recount and release in the same transaction.
	if usage.Open() {
		remaining, err := h.Usages.CountOpenByRoomTx(ctx, tx, usage.RoomID)
		if err != nil {
			return fail(c, http.StatusInternalServerError, "database error")
		}
		if remaining == 0 {
			room, err := h.Rooms.GetActiveTx(ctx, tx, usage.RoomID)
			if err == nil && room.Status == model.RoomInUse {
				if err := h.Rooms.UpdateStatusTx(ctx, tx, usage.RoomID, model.RoomAvailable); err != nil {
					return fail(c, http.StatusInternalServerError, "failed to update room status")
				}
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fail(c, http.StatusInternalServerError, "failed to commit transaction")
	}
	committed = true

	h.Audit.Log(ctx, activity.Entry(model.ActionRoomUsageDeleted, model.EntityRoomUsage, usage.ID,
		&actorID, nil, map[string]any{
			"roomId": usage.RoomID,
			"userId": usage.UserID,
		}))
	return respond(c, http.StatusOK, echo.Map{"deleted": usage.ID})
}
