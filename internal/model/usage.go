package model

import "time"

// UsageKind distinguishes ordinary occupancy from maintenance windows,
// which are stored as occupancy-like rows on the same table.
type UsageKind string

const (
	UsageKindUse         UsageKind = "USE"
	UsageKindMaintenance UsageKind = "MAINTENANCE"
)

// RoomUsage is evidence that a room was actually occupied, independent of
// whether a reservation authorized it. An open session has a nil EndedAt.
//
// At most one open usage per (room, user) pair is enforced at creation
// time by re-checking inside the transaction, not by a unique constraint.
type RoomUsage struct {
	ID         uint64
	RoomID     uint64
	UserID     uint64
	ScheduleID *uint64
	Kind       UsageKind
	StartedAt  time.Time
	EndedAt    *time.Time
	Purpose    *string
	Reason     *string
	CreatedAt  time.Time
}

// Open reports whether the session is still running.
func (u RoomUsage) Open() bool { return u.EndedAt == nil }

// ComputerUsage tracks a workstation session nested under an open room
// usage.
type ComputerUsage struct {
	ID          uint64
	ComputerID  uint64
	RoomUsageID uint64
	UserID      uint64
	StartedAt   time.Time
	EndedAt     *time.Time
	CreatedAt   time.Time
}
