package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/campuskit/room-reservation/internal/cache"
	"github.com/campuskit/room-reservation/internal/model"
	"github.com/campuskit/room-reservation/internal/repository"
)

// RoomHandler is the read side of the room inventory. Listings overlay
// the Redis status mirror on top of the database rows so live status
// changes show up without waiting for the next database read.
type RoomHandler struct {
	Rooms    *repository.RoomRepo
	Usages   *repository.UsageRepo
	Statuses *cache.RoomStatusCache
}

// NewRoomHandler constructs a RoomHandler. Statuses may wrap a nil
// Redis client; the handler then serves database statuses only.
func NewRoomHandler(rooms *repository.RoomRepo, usages *repository.UsageRepo, statuses *cache.RoomStatusCache) *RoomHandler {
	if rooms == nil || usages == nil {
		panic("nil repository passed to NewRoomHandler")
	}
	return &RoomHandler{Rooms: rooms, Usages: usages, Statuses: statuses}
}

type roomView struct {
	ID       uint64 `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
	Capacity uint32 `json:"capacity"`
	Status   string `json:"status"`
	IsActive bool   `json:"is_active"`
}

func (h *RoomHandler) toRoomView(c echo.Context, r model.Room) roomView {
	status := r.Status
	if cached, ok := h.Statuses.Get(c.Request().Context(), r.ID); ok {
		status = cached
	}
	return roomView{
		ID:       r.ID,
		Name:     r.Name,
		Location: r.Location,
		Capacity: r.Capacity,
		Status:   string(status),
		IsActive: r.IsActive,
	}
}

type computerBrief struct {
	ID       uint64 `json:"id"`
	RoomID   uint64 `json:"room_id"`
	Label    string `json:"label"`
	IsActive bool   `json:"is_active"`
}

// List handles GET /v1/rooms.
func (h *RoomHandler) List(c echo.Context) error {
	rooms, err := h.Rooms.List(c.Request().Context())
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to load rooms")
	}
	out := make([]roomView, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, h.toRoomView(c, r))
	}
	return respond(c, http.StatusOK, out)
}

// Get handles GET /v1/rooms/:id.
func (h *RoomHandler) Get(c echo.Context) error {
	roomID, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid room id")
	}
	room, err := h.Rooms.GetByID(c.Request().Context(), roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return fail(c, http.StatusNotFound, "room not found")
		}
		return fail(c, http.StatusInternalServerError, "database error")
	}
	return respond(c, http.StatusOK, h.toRoomView(c, room))
}

// ListComputers handles GET /v1/rooms/:id/computers.
func (h *RoomHandler) ListComputers(c echo.Context) error {
	roomID, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid room id")
	}
	ctx := c.Request().Context()
	if _, err := h.Rooms.GetByID(ctx, roomID); err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return fail(c, http.StatusNotFound, "room not found")
		}
		return fail(c, http.StatusInternalServerError, "database error")
	}
	computers, err := h.Rooms.ListComputers(ctx, roomID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to load computers")
	}
	out := make([]computerBrief, 0, len(computers))
	for _, pc := range computers {
		out = append(out, computerBrief{ID: pc.ID, RoomID: pc.RoomID, Label: pc.Label, IsActive: pc.IsActive})
	}
	return respond(c, http.StatusOK, out)
}

// ListUsages handles GET /v1/rooms/:id/usages: a room's occupancy
// records, newest first.
func (h *RoomHandler) ListUsages(c echo.Context) error {
	roomID, err := pathID(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid room id")
	}
	ctx := c.Request().Context()
	if _, err := h.Rooms.GetByID(ctx, roomID); err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return fail(c, http.StatusNotFound, "room not found")
		}
		return fail(c, http.StatusInternalServerError, "database error")
	}
	usages, err := h.Usages.ListByRoom(ctx, roomID)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to load usages")
	}
	out := make([]usageView, 0, len(usages))
	for _, u := range usages {
		out = append(out, toUsageView(u))
	}
	return respond(c, http.StatusOK, out)
}
