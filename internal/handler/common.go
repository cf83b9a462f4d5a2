package handler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/campuskit/room-reservation/internal/middleware"
	"github.com/campuskit/room-reservation/internal/model"
)

// EventPublisher is the broker surface handlers emit domain events
// through. *queue.Publisher satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, queueName string, payload any) error
}

// actor extracts the authenticated user's ID and role from the context.
// JWTAuth guarantees both are present on protected routes; the error
// path only triggers when a handler is wired without it.
func actor(c echo.Context) (uint64, model.Role, error) {
	id, ok := c.Get(middleware.CtxUserID).(uint64)
	if !ok || id == 0 {
		return 0, "", errors.New("missing user_id in context")
	}
	role, ok := c.Get(middleware.CtxRole).(model.Role)
	if !ok {
		return 0, "", errors.New("missing role in context")
	}
	return id, role, nil
}

// pathID parses the named path parameter as a positive integer.
func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

// parseRFC3339 parses a required RFC3339 timestamp and normalizes it to
// UTC.
func parseRFC3339(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
