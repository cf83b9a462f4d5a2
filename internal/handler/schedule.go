package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/campuskit/room-reservation/internal/activity"
	"github.com/campuskit/room-reservation/internal/model"
	"github.com/campuskit/room-reservation/internal/queue"
	"github.com/campuskit/room-reservation/internal/repository"
)

// ScheduleHandler owns the reservation lifecycle: admission with
// conflict detection, role-gated approval/rejection/cancellation, and
// the audit entries and events each transition produces. Every mutating
// method runs its validation, persistence and room-status side effects
// in a single transaction; audit logging and event publication happen
// after commit and are best-effort.
type ScheduleHandler struct {
	Rooms     *repository.RoomRepo
	Schedules *repository.ScheduleRepo
	Users     *repository.UserRepo
	Audit     *activity.Logger
	Events    EventPublisher
}

// NewScheduleHandler constructs a ScheduleHandler with the provided
// dependencies. All of them must be non-nil.
func NewScheduleHandler(rooms *repository.RoomRepo, schedules *repository.ScheduleRepo, users *repository.UserRepo, audit *activity.Logger, events EventPublisher) *ScheduleHandler {
	if rooms == nil || schedules == nil || users == nil || audit == nil || events == nil {
		panic("nil dependency passed to NewScheduleHandler")
	}
	return &ScheduleHandler{Rooms: rooms, Schedules: schedules, Users: users, Audit: audit, Events: events}
}

// scheduleView is the JSON shape of a reservation in replies.
type scheduleView struct {
	ID        uint64 `json:"id"`
	RoomID    uint64 `json:"room_id"`
	Title     string `json:"title"`
	StartsAt  string `json:"starts_at"`
	EndsAt    string `json:"ends_at"`
	Repeat    string `json:"repeat"`
	Status    string `json:"status"`
	CreatorID uint64 `json:"creator_id"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toScheduleView(s model.Schedule) scheduleView {
	return scheduleView{
		ID:        s.ID,
		RoomID:    s.RoomID,
		Title:     s.Title,
		StartsAt:  s.StartsAt.UTC().Format(time.RFC3339),
		EndsAt:    s.EndsAt.UTC().Format(time.RFC3339),
		Repeat:    string(s.Repeat),
		Status:    string(s.Status),
		CreatorID: s.CreatorID,
		CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: s.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toScheduleViews(list []model.Schedule) []scheduleView {
	out := make([]scheduleView, 0, len(list))
	for _, s := range list {
		out = append(out, toScheduleView(s))
	}
	return out
}

func (h *ScheduleHandler) scheduleEvent(s model.Schedule) queue.ScheduleEvent {
	return queue.ScheduleEvent{
		EventID:    uuid.NewString(),
		ScheduleID: s.ID,
		RoomID:     s.RoomID,
		Title:      s.Title,
		StartsAt:   s.StartsAt.UTC().Format(time.RFC3339),
		EndsAt:     s.EndsAt.UTC().Format(time.RFC3339),
		Status:     string(s.Status),
		CreatorID:  s.CreatorID,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
}

func (h *ScheduleHandler) roomStatusEvent(roomID uint64, status model.RoomStatus, scheduleID uint64) queue.RoomStatusEvent {
	ev := queue.RoomStatusEvent{
		EventID:    uuid.NewString(),
		RoomID:     roomID,
		RoomStatus: string(status),
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
	if scheduleID != 0 {
		ev.ScheduleID = &scheduleID
	}
	return ev
}

// Create handles POST /v1/schedules. Admission order: time-range
// validation, active-room lookup, overlap re-check inside the
// transaction, initial status per the creator's role. The audit entry
// of a student booking is made visible to the student's advisor so the
// supervising teacher sees it without an admin role.
func (h *ScheduleHandler) Create(c echo.Context) error {
	actorID, actorRole, err := actor(c)
	if err != nil {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}

	var body struct {
		RoomID   uint64 `json:"room_id"`
		Title    string `json:"title"`
		StartsAt string `json:"starts_at"`
		EndsAt   string `json:"ends_at"`
		Repeat   string `json:"repeat"`
	}
	if err := c.Bind(&body); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if body.RoomID == 0 || body.Title == "" {
		return fail(c, http.StatusBadRequest, "room_id and title are required")
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
	repeat, ok := model.ParseRepeatKind(body.Repeat)
	if !ok {
		return fail(c, http.StatusBadRequest, "unknown repeat kind")
	}

	ctx := c.Request().Context()
	creator, err := h.Users.GetByID(ctx, actorID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to load user")
	}

	tx, err := h.Schedules.DB().BeginTx(ctx, nil)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to start transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := h.Rooms.GetActiveTx(ctx, tx, body.RoomID); err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return fail(c, http.StatusNotFound, "room not found")
		}
		return fail(c, http.StatusInternalServerError, "database error")
	}

	// Re-check overlaps on the transaction: two concurrent creates for
	// the same window are a race the pre-submission check cannot close.
	overlaps, err := h.Schedules.FindOverlapsTx(ctx, tx, body.RoomID, startsAt, endsAt, 0)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to check conflicts")
	}
	if len(overlaps) > 0 {
		return failWith(c, http.StatusConflict, "time window conflicts with existing reservations", toScheduleViews(overlaps))
	}

	sched := model.Schedule{
		RoomID:    body.RoomID,
		Title:     body.Title,
		StartsAt:  startsAt,
		EndsAt:    endsAt,
		Repeat:    repeat,
		Status:    model.InitialStatus(actorRole),
		CreatorID: actorID,
	}
	if err := h.Schedules.CreateTx(ctx, tx, &sched); err != nil {
		return fail(c, http.StatusInternalServerError, "failed to create reservation")
	}
	if sched.Status == model.ScheduleApproved {
		if err := h.Rooms.UpdateStatusTx(ctx, tx, sched.RoomID, model.RoomReserved); err != nil {
			return fail(c, http.StatusInternalServerError, "failed to update room status")
		}
	}
	if err := tx.Commit(); err != nil {
		return fail(c, http.StatusInternalServerError, "failed to commit transaction")
	}
	committed = true

	// A student's booking is additionally visible to their advisor;
	// privileged creators need no grant since admins see everything.
	var visibleTo *uint64
	if creator.Role == model.RoleStudent {
		visibleTo = creator.AdvisorID
	}
	h.Audit.Log(ctx, activity.Entry(model.ActionRoomScheduled, model.EntitySchedule, sched.ID,
		&actorID, visibleTo, map[string]any{
			"roomId":   sched.RoomID,
			"title":    sched.Title,
			"startsAt": sched.StartsAt.UTC().Format(time.RFC3339),
			"endsAt":   sched.EndsAt.UTC().Format(time.RFC3339),
			"status":   string(sched.Status),
		}))

	_ = h.Events.Publish(ctx, queue.QueueScheduleScheduled, h.scheduleEvent(sched))
	if sched.Status == model.ScheduleApproved {
		_ = h.Events.Publish(ctx, queue.QueueRoomReserved, h.roomStatusEvent(sched.RoomID, model.RoomReserved, sched.ID))
	}
	return respond(c, http.StatusCreated, toScheduleView(sched))
}

// Approve handles POST /v1/schedules/:id/approve.
func (h *ScheduleHandler) Approve(c echo.Context) error {
	return h.moderate(c, model.ScheduleApproved)
}

// Reject handles POST /v1/schedules/:id/reject.
func (h *ScheduleHandler) Reject(c echo.Context) error {
	return h.moderate(c, model.ScheduleRejected)
}

// moderate implements the shared approve/reject transition: students
// can never moderate, teachers only their own advisees' requests, and
// only pending reservations are eligible.
func (h *ScheduleHandler) moderate(c echo.Context, target model.ScheduleStatus) error {
	actorID, actorRole, err := actor(c)
	if err != nil {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	scheduleID, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid schedule id")
	}
	if actorRole == model.RoleStudent {
		return fail(c, http.StatusForbidden, "students cannot approve or reject reservations")
	}

	ctx := c.Request().Context()
	actorUser, err := h.Users.GetByID(ctx, actorID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to load user")
	}

	tx, err := h.Schedules.DB().BeginTx(ctx, nil)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to start transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	sched, err := h.Schedules.GetByIDTx(ctx, tx, scheduleID)
	if err != nil {
		if errors.Is(err, repository.ErrScheduleNotFound) {
			return fail(c, http.StatusNotFound, "reservation not found")
		}
		return fail(c, http.StatusInternalServerError, "database error")
	}
	creator, err := h.Users.GetByID(ctx, sched.CreatorID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to load creator")
	}
	if !model.CanModerate(actorUser, creator) {
		return fail(c, http.StatusForbidden, "not allowed to moderate this reservation")
	}
	if !sched.Status.CanTransitionTo(target) {
		return fail(c, http.StatusUnprocessableEntity, "reservation is not pending")
	}

	// A rejection never flipped the room, so its released event reports
	// the room's live status rather than assuming AVAILABLE.
	releasedStatus := model.RoomAvailable
	if target == model.ScheduleRejected {
		room, err := h.Rooms.GetByIDTx(ctx, tx, sched.RoomID)
		if err != nil {
			return fail(c, http.StatusInternalServerError, "database error")
		}
		releasedStatus = room.Status
	}

	if err := h.Schedules.UpdateStatusTx(ctx, tx, sched.ID, target); err != nil {
		return fail(c, http.StatusInternalServerError, "failed to update reservation")
	}
	if target == model.ScheduleApproved {
		if err := h.Rooms.UpdateStatusTx(ctx, tx, sched.RoomID, model.RoomReserved); err != nil {
			return fail(c, http.StatusInternalServerError, "failed to update room status")
		}
	}
	if err := tx.Commit(); err != nil {
		return fail(c, http.StatusInternalServerError, "failed to commit transaction")
	}
	committed = true
	sched.Status = target

	action := model.ActionScheduleApproved
	if target == model.ScheduleRejected {
		action = model.ActionScheduleRejected
	}
	creatorID := sched.CreatorID
	h.Audit.Log(ctx, activity.Entry(action, model.EntitySchedule, sched.ID,
		&actorID, &creatorID, map[string]any{
			"roomId": sched.RoomID,
			"status": string(target),
		}))

	_ = h.Events.Publish(ctx, queue.QueueScheduleStatusUpdated, h.scheduleEvent(sched))
	if target == model.ScheduleApproved {
		_ = h.Events.Publish(ctx, queue.QueueRoomReserved, h.roomStatusEvent(sched.RoomID, model.RoomReserved, sched.ID))
	} else {
		_ = h.Events.Publish(ctx, queue.QueueRoomReleased, h.roomStatusEvent(sched.RoomID, releasedStatus, sched.ID))
	}
	return respond(c, http.StatusOK, toScheduleView(sched))
}

// Cancel handles POST /v1/schedules/:id/cancel. Cancellation is open to
// the creator, an admin, or the advisor of a student creator; completed,
// cancelled and rejected reservations are final. The audit entry grants
// visibility to exactly one extra party depending on who cancelled.
func (h *ScheduleHandler) Cancel(c echo.Context) error {
	actorID, _, err := actor(c)
	if err != nil {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	scheduleID, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid schedule id")
	}

	ctx := c.Request().Context()
	actorUser, err := h.Users.GetByID(ctx, actorID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to load user")
	}

	tx, err := h.Schedules.DB().BeginTx(ctx, nil)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to start transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	sched, err := h.Schedules.GetByIDTx(ctx, tx, scheduleID)
	if err != nil {
		if errors.Is(err, repository.ErrScheduleNotFound) {
			return fail(c, http.StatusNotFound, "reservation not found")
		}
		return fail(c, http.StatusInternalServerError, "database error")
	}
	creator, err := h.Users.GetByID(ctx, sched.CreatorID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to load creator")
	}
	if !model.CanCancel(actorUser, sched, creator) {
		return fail(c, http.StatusForbidden, "not allowed to cancel this reservation")
	}
	if !sched.Status.CanTransitionTo(model.ScheduleCancelled) {
		return fail(c, http.StatusUnprocessableEntity, "reservation can no longer be cancelled")
	}
	wasApproved := sched.Status == model.ScheduleApproved

	// Release the room, but never clobber a live occupancy or
	// maintenance status: only RESERVED reverts to AVAILABLE. The room
	// is read under the same lock as the flip so the pair commits or
	// rolls back together, and the released event carries whatever
	// status the room ends up with.
	releaseRoom := false
	releasedStatus := model.RoomAvailable
	if wasApproved {
		room, err := h.Rooms.GetByIDTx(ctx, tx, sched.RoomID)
		if err != nil {
			return fail(c, http.StatusInternalServerError, "database error")
		}
		if room.Status == model.RoomReserved {
			releaseRoom = true
		} else {
			releasedStatus = room.Status
		}
	}

	if err := h.Schedules.UpdateStatusTx(ctx, tx, sched.ID, model.ScheduleCancelled); err != nil {
		return fail(c, http.StatusInternalServerError, "failed to update reservation")
	}
	if releaseRoom {
		if err := h.Rooms.UpdateStatusTx(ctx, tx, sched.RoomID, model.RoomAvailable); err != nil {
			return fail(c, http.StatusInternalServerError, "failed to update room status")
		}
	}
	if err := tx.Commit(); err != nil {
		return fail(c, http.StatusInternalServerError, "failed to commit transaction")
	}
	committed = true
	sched.Status = model.ScheduleCancelled

	h.Audit.Log(ctx, activity.Entry(model.ActionScheduleCancelled, model.EntitySchedule, sched.ID,
		&actorID, model.CancelVisibility(actorUser, creator), map[string]any{
			"roomId":      sched.RoomID,
			"cancelledBy": actorID,
		}))

	_ = h.Events.Publish(ctx, queue.QueueScheduleStatusUpdated, h.scheduleEvent(sched))
	if wasApproved {
		_ = h.Events.Publish(ctx, queue.QueueRoomReleased, h.roomStatusEvent(sched.RoomID, releasedStatus, sched.ID))
	}
	return respond(c, http.StatusOK, toScheduleView(sched))
}

// CheckConflicts handles GET /v1/schedules/conflicts. It is the
// pre-submission pass-through to the conflict detector; no side effects.
func (h *ScheduleHandler) CheckConflicts(c echo.Context) error {
	roomID, err := strconv.ParseUint(c.QueryParam("room_id"), 10, 64)
	if err != nil || roomID == 0 {
		return fail(c, http.StatusBadRequest, "room_id is required")
	}
	startsAt, err := parseRFC3339(c.QueryParam("starts_at"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "starts_at must be RFC3339")
	}
	endsAt, err := parseRFC3339(c.QueryParam("ends_at"))
	if err != nil {
		return fail(c, http.StatusBadRequest, "ends_at must be RFC3339")
	}
	if !startsAt.Before(endsAt) {
		return fail(c, http.StatusBadRequest, "starts_at must be before ends_at")
	}
	var excludeID uint64
	if raw := c.QueryParam("exclude_id"); raw != "" {
		excludeID, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fail(c, http.StatusBadRequest, "invalid exclude_id")
		}
	}

	overlaps, err := h.Schedules.FindOverlaps(c.Request().Context(), roomID, startsAt, endsAt, excludeID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to check conflicts")
	}
	return respond(c, http.StatusOK, toScheduleViews(overlaps))
}

// List handles GET /v1/schedules. Students see their own reservations;
// teachers additionally see their advisees'; admins may scope by
// room_id or user_id and otherwise get their own.
func (h *ScheduleHandler) List(c echo.Context) error {
	actorID, actorRole, err := actor(c)
	if err != nil {
		return fail(c, http.StatusUnauthorized, "unauthorized")
	}
	ctx := c.Request().Context()

	if actorRole == model.RoleAdmin {
		if raw := c.QueryParam("room_id"); raw != "" {
			roomID, err := strconv.ParseUint(raw, 10, 64)
			if err != nil || roomID == 0 {
				return fail(c, http.StatusBadRequest, "invalid room_id")
			}
			list, err := h.Schedules.ListByRoom(ctx, roomID)
			if err != nil {
				return fail(c, http.StatusInternalServerError, "database error")
			}
			return respond(c, http.StatusOK, toScheduleViews(list))
		}
		if raw := c.QueryParam("user_id"); raw != "" {
			userID, err := strconv.ParseUint(raw, 10, 64)
			if err != nil || userID == 0 {
				return fail(c, http.StatusBadRequest, "invalid user_id")
			}
			list, err := h.Schedules.ListByCreator(ctx, userID)
			if err != nil {
				return fail(c, http.StatusInternalServerError, "database error")
			}
			return respond(c, http.StatusOK, toScheduleViews(list))
		}
	}

	list, err := h.Schedules.ListByCreator(ctx, actorID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "database error")
	}
	if actorRole == model.RoleTeacher {
		advisee, err := h.Schedules.ListByAdvisor(ctx, actorID)
		if err != nil {
			return fail(c, http.StatusInternalServerError, "database error")
		}
		list = append(list, advisee...)
	}
	return respond(c, http.StatusOK, toScheduleViews(list))
}
