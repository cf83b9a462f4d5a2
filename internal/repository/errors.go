// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between failure scenarios without inspecting
// driver errors; not-found lookups map to HTTP 404.
package repository

import "errors"

// ErrRoomNotFound is returned when a room lookup fails, or when a room
// exists but is inactive where an active one is required.
var ErrRoomNotFound = errors.New("room not found")

// ErrComputerNotFound is returned when a computer lookup fails.
var ErrComputerNotFound = errors.New("computer not found")

// ErrScheduleNotFound is returned when a reservation lookup fails.
var ErrScheduleNotFound = errors.New("schedule not found")

// ErrUsageNotFound is returned when a room usage lookup fails.
var ErrUsageNotFound = errors.New("room usage not found")

// ErrComputerUsageNotFound is returned when a computer usage lookup fails.
var ErrComputerUsageNotFound = errors.New("computer usage not found")

// ErrUserNotFound is returned when a user lookup fails.
var ErrUserNotFound = errors.New("user not found")
