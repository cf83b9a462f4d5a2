// Package queue defines the message contract published to the broker and
// the background consumers that feed on it. One durable queue exists per
// event kind; messages are JSON and persistent.
package queue

import "encoding/json"

// Queue names. Downstream collaborators (notification, UI refresh,
// occupancy bookkeeping) consume the schedule.* and room.* queues; the
// activity fallback queue is internal to the audit side channel.
const (
	QueueScheduleScheduled     = "schedule.scheduled"
	QueueScheduleStatusUpdated = "schedule.status_updated"
	QueueRoomReserved          = "room.reserved"
	QueueRoomReleased          = "room.released"
	QueueRoomMaintenance       = "room.maintenance"
	QueueRoomUsageStarted      = "room.usage_started"
	QueueRoomUsageEnded        = "room.usage_ended"
	QueueActivityFallback      = "activity.fallback"
)

// ScheduleEvent is published on schedule.scheduled and
// schedule.status_updated. It carries enough for consumers to notify or
// refresh without querying the primary database.
type ScheduleEvent struct {
	EventID    string `json:"event_id"`
	ScheduleID uint64 `json:"schedule_id"`
	RoomID     uint64 `json:"room_id"`
	Title      string `json:"title"`
	StartsAt   string `json:"starts_at"`
	EndsAt     string `json:"ends_at"`
	Status     string `json:"status"`
	CreatorID  uint64 `json:"creator_id"`
	OccurredAt string `json:"occurred_at"`
}

// RoomStatusEvent is published on room.reserved, room.released and
// room.maintenance. RoomStatus is the room's live status after the
// operation so status mirrors never have to re-derive it.
type RoomStatusEvent struct {
	EventID    string  `json:"event_id"`
	RoomID     uint64  `json:"room_id"`
	RoomStatus string  `json:"room_status"`
	ScheduleID *uint64 `json:"schedule_id,omitempty"`
	Reason     *string `json:"reason,omitempty"`
	OccurredAt string  `json:"occurred_at"`
}

// UsageEvent is published on room.usage_started and room.usage_ended.
// Like RoomStatusEvent it carries the resulting room status.
type UsageEvent struct {
	EventID    string  `json:"event_id"`
	UsageID    uint64  `json:"usage_id"`
	RoomID     uint64  `json:"room_id"`
	UserID     uint64  `json:"user_id"`
	RoomStatus string  `json:"room_status"`
	StartedAt  string  `json:"started_at"`
	EndedAt    *string `json:"ended_at,omitempty"`
	OccurredAt string  `json:"occurred_at"`
}

// ActivityMessage travels on the activity.fallback queue when a direct
// audit insert fails. It mirrors the activities row so the consumer can
// replay it verbatim, original timestamp included.
type ActivityMessage struct {
	Action      string          `json:"action"`
	EntityType  string          `json:"entity_type"`
	EntityID    uint64          `json:"entity_id"`
	Details     json.RawMessage `json:"details,omitempty"`
	ActorID     *uint64         `json:"actor_id,omitempty"`
	VisibleToID *uint64         `json:"visible_to_id,omitempty"`
	CreatedAt   string          `json:"created_at"`
}
