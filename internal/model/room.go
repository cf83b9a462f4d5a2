package model

import "time"

// RoomStatus is the live state of a room as seen by browsers of the
// room list. The scheduling and occupancy flows are the only writers.
type RoomStatus string

const (
	RoomAvailable   RoomStatus = "AVAILABLE"
	RoomInUse       RoomStatus = "IN_USE"
	RoomMaintenance RoomStatus = "MAINTENANCE"
	RoomReserved    RoomStatus = "RESERVED"
)

// Room represents a bookable physical room.
//
// Fields:
//
//	ID        – primary key identifier.
//	Name      – human readable label.
//	Capacity  – seat capacity.
//	Location  – free text (building, floor, ...).
//	Status    – current live status, kept in sync by this service.
//	IsActive  – inactive rooms cannot be reserved or occupied.
type Room struct {
	ID        uint64
	Name      string
	Capacity  uint32
	Location  string
	Status    RoomStatus
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Computer is a workstation inside a room. Usage of a computer is always
// tracked under an open room usage session.
type Computer struct {
	ID        uint64
	RoomID    uint64
	Label     string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
