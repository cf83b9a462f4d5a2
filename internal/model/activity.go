package model

import (
	"encoding/json"
	"time"
)

// Action enumerates every auditable event the service records. The set
// is closed: adding a new activity kind means adding a constant here
// and handling it wherever actions are switched on.
type Action string

const (
	ActionRoomScheduled        Action = "ROOM_SCHEDULED"
	ActionScheduleApproved     Action = "SCHEDULE_APPROVED"
	ActionScheduleRejected     Action = "SCHEDULE_REJECTED"
	ActionScheduleCancelled    Action = "SCHEDULE_CANCELLED"
	ActionRoomUsageStarted     Action = "ROOM_USAGE_STARTED"
	ActionRoomUsageEnded       Action = "ROOM_USAGE_ENDED"
	ActionRoomUsageDeleted     Action = "ROOM_USAGE_DELETED"
	ActionComputerUsageStarted Action = "COMPUTER_USAGE_STARTED"
	ActionComputerUsageEnded   Action = "COMPUTER_USAGE_ENDED"
	ActionRoomMaintenance      Action = "ROOM_MAINTENANCE"
)

// Valid reports whether the action is one of the known constants.
func (a Action) Valid() bool {
	switch a {
	case ActionRoomScheduled, ActionScheduleApproved, ActionScheduleRejected,
		ActionScheduleCancelled, ActionRoomUsageStarted, ActionRoomUsageEnded,
		ActionRoomUsageDeleted, ActionComputerUsageStarted,
		ActionComputerUsageEnded, ActionRoomMaintenance:
		return true
	}
	return false
}

// EntityType names the kind of record an activity entry is about. Every
// details payload carries an entity type and id so history queries can
// filter by subject.
type EntityType string

const (
	EntityRoom          EntityType = "ROOM"
	EntitySchedule      EntityType = "SCHEDULE"
	EntityRoomUsage     EntityType = "ROOM_USAGE"
	EntityComputerUsage EntityType = "COMPUTER_USAGE"
)

// ActivityEntry is one immutable audit-log row. Entries are append-only:
// nothing in normal operation mutates or deletes them.
//
// ActorID is nil for system-originated entries. VisibleToID optionally
// grants exactly one party beyond administrators the right to see the
// entry in history queries.
type ActivityEntry struct {
	ID          uint64          `json:"id"`
	Action      Action          `json:"action"`
	EntityType  EntityType      `json:"entity_type"`
	EntityID    uint64          `json:"entity_id"`
	Details     json.RawMessage `json:"details,omitempty"`
	ActorID     *uint64         `json:"actor_id,omitempty"`
	VisibleToID *uint64         `json:"visible_to_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// EntryVisibleTo is the single visibility predicate of the audit log.
// Every history query variant must apply exactly this rule, before
// pagination: admins see everything; everyone else sees entries they
// acted in or were explicitly granted visibility of.
func EntryVisibleTo(e ActivityEntry, requesterID uint64, requesterRole Role) bool {
	if requesterRole == RoleAdmin {
		return true
	}
	if e.ActorID != nil && *e.ActorID == requesterID {
		return true
	}
	return e.VisibleToID != nil && *e.VisibleToID == requesterID
}
