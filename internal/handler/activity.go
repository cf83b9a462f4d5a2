package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/campuskit/room-reservation/internal/model"
	"github.com/campuskit/room-reservation/internal/repository"
)

// ActivityHandler serves the audit log. Permission scoping happens in
// the repository's WHERE clause; the handler only translates query
// parameters into a filter and never widens what the requester may see.
type ActivityHandler struct {
	Activities *repository.ActivityRepo
}

// NewActivityHandler constructs an ActivityHandler.
func NewActivityHandler(activities *repository.ActivityRepo) *ActivityHandler {
	if activities == nil {
		panic("nil repository passed to NewActivityHandler")
	}
	return &ActivityHandler{Activities: activities}
}

// filterFrom builds the repository filter from the request. Requester
// identity always comes from the token, never from a parameter. When ok
// is false the error reply has already been written.
func (h *ActivityHandler) filterFrom(c echo.Context) (f repository.HistoryFilter, ok bool) {
	actorID, actorRole, err := actor(c)
	if err != nil {
		_ = fail(c, http.StatusUnauthorized, "unauthorized")
		return f, false
	}
	f = repository.HistoryFilter{RequesterID: actorID, RequesterRole: actorRole}

	if raw := strings.TrimSpace(c.QueryParam("entity_type")); raw != "" {
		et := model.EntityType(strings.ToUpper(raw))
		switch et {
		case model.EntityRoom, model.EntitySchedule, model.EntityRoomUsage, model.EntityComputerUsage:
			f.EntityType = et
		default:
			_ = fail(c, http.StatusBadRequest, "unknown entity_type")
			return f, false
		}
	}
	if raw := c.QueryParam("entity_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			_ = fail(c, http.StatusBadRequest, "invalid entity_id")
			return f, false
		}
		f.EntityID = id
	}
	if raw := c.QueryParam("start_date"); raw != "" {
		t, err := parseRFC3339(raw)
		if err != nil {
			_ = fail(c, http.StatusBadRequest, "start_date must be RFC3339")
			return f, false
		}
		f.StartDate = &t
	}
	if raw := c.QueryParam("end_date"); raw != "" {
		t, err := parseRFC3339(raw)
		if err != nil {
			_ = fail(c, http.StatusBadRequest, "end_date must be RFC3339")
			return f, false
		}
		f.EndDate = &t
	}
	if f.StartDate != nil && f.EndDate != nil && !f.StartDate.Before(*f.EndDate) {
		_ = fail(c, http.StatusBadRequest, "start_date must be before end_date")
		return f, false
	}
	if raw := c.QueryParam("page"); raw != "" {
		f.Page, _ = strconv.Atoi(raw)
	}
	if raw := c.QueryParam("page_size"); raw != "" {
		f.PageSize, _ = strconv.Atoi(raw)
	}
	return f, true
}

// History handles GET /v1/activities.
func (h *ActivityHandler) History(c echo.Context) error {
	f, ok := h.filterFrom(c)
	if !ok {
		return nil
	}
	page, err := h.Activities.History(c.Request().Context(), f)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to load activity history")
	}
	return respond(c, http.StatusOK, page)
}

// Stats handles GET /v1/activities/stats: per-action counts over the
// same filter and visibility rules as History.
func (h *ActivityHandler) Stats(c echo.Context) error {
	f, ok := h.filterFrom(c)
	if !ok {
		return nil
	}
	counts, err := h.Activities.Stats(c.Request().Context(), f)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to load activity statistics")
	}
	return respond(c, http.StatusOK, echo.Map{
		"counts":      counts,
		"generatedAt": time.Now().UTC().Format(time.RFC3339),
	})
}
