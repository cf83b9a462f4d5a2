// Package router wires HTTP routes to their handlers and middleware.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/campuskit/room-reservation/internal/config"
	"github.com/campuskit/room-reservation/internal/handler"
	"github.com/campuskit/room-reservation/internal/middleware"
	"github.com/campuskit/room-reservation/internal/model"
)

// Handlers bundles every handler the router needs.
type Handlers struct {
	Auth       *handler.AuthHandler
	Rooms      *handler.RoomHandler
	Schedules  *handler.ScheduleHandler
	Usages     *handler.UsageHandler
	Activities *handler.ActivityHandler
}

// RegisterRoutes registers routes that require no authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the /v1/auth group. Login and refresh are open;
// logout accepts either a refresh token in the body or a bearer token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler) {
	g := e.Group("/v1/auth")
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)
}

// RegisterAPI registers the protected /v1 surface. Every route requires
// a valid access token with a known role; a Redis token bucket throttles
// per user, IP and route. Moderation and maintenance endpoints carry
// their own role gates inside the handlers; delete is admin only at the
// routing layer as well.
func RegisterAPI(e *echo.Echo, h Handlers, jwtSecret string, rlCfg config.RateLimitConfig, rdb *redis.Client) {
	v1 := e.Group("/v1")
	v1.Use(middleware.JWTAuth(jwtSecret))
	v1.Use(middleware.RequireRole(model.RoleAdmin, model.RoleTeacher, model.RoleStudent))
	v1.Use(middleware.NewTokenBucket(rlCfg, rdb))

	v1.GET("/me", h.Auth.Me)

	v1.GET("/rooms", h.Rooms.List)
	v1.GET("/rooms/:id", h.Rooms.Get)
	v1.GET("/rooms/:id/computers", h.Rooms.ListComputers)
	v1.GET("/rooms/:id/usages", h.Rooms.ListUsages)
	v1.POST("/rooms/:id/maintenance", h.Usages.Maintenance,
		middleware.RequireRole(model.RoleAdmin, model.RoleTeacher))

	v1.POST("/schedules", h.Schedules.Create)
	v1.GET("/schedules", h.Schedules.List)
	v1.GET("/schedules/conflicts", h.Schedules.CheckConflicts)
	v1.POST("/schedules/:id/approve", h.Schedules.Approve,
		middleware.RequireRole(model.RoleAdmin, model.RoleTeacher))
	v1.POST("/schedules/:id/reject", h.Schedules.Reject,
		middleware.RequireRole(model.RoleAdmin, model.RoleTeacher))
	v1.POST("/schedules/:id/cancel", h.Schedules.Cancel)

	v1.POST("/usages", h.Usages.Start)
	v1.POST("/usages/:id/end", h.Usages.End)
	v1.POST("/usages/:id/computers", h.Usages.StartComputer)
	v1.POST("/computer-usages/:id/end", h.Usages.EndComputer)
	v1.DELETE("/usages/:id", h.Usages.Delete,
		middleware.RequireRole(model.RoleAdmin))

	v1.GET("/activities", h.Activities.History)
	v1.GET("/activities/stats", h.Activities.Stats)
}
