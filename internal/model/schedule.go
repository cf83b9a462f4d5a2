package model

import "time"

// ScheduleStatus is the lifecycle state of a reservation.
type ScheduleStatus string

const (
	SchedulePending   ScheduleStatus = "PENDING"
	ScheduleApproved  ScheduleStatus = "APPROVED"
	ScheduleRejected  ScheduleStatus = "REJECTED"
	ScheduleCancelled ScheduleStatus = "CANCELLED"
	ScheduleCompleted ScheduleStatus = "COMPLETED"
)

// Terminal reports whether the status can never change again. Terminal
// reservations never participate in conflict detection.
func (s ScheduleStatus) Terminal() bool {
	switch s {
	case ScheduleRejected, ScheduleCancelled, ScheduleCompleted:
		return true
	}
	return false
}

// CanTransitionTo encodes the legal state machine edges: only PENDING may
// become APPROVED or REJECTED, and only PENDING or APPROVED may become
// CANCELLED. COMPLETED is reached by an external time-based process and
// is not reachable through this table.
func (s ScheduleStatus) CanTransitionTo(next ScheduleStatus) bool {
	switch next {
	case ScheduleApproved, ScheduleRejected:
		return s == SchedulePending
	case ScheduleCancelled:
		return s == SchedulePending || s == ScheduleApproved
	}
	return false
}

// InitialStatus computes the status a freshly created reservation starts
// in. Privileged creators (teachers, admins) self-approve; students
// always start pending.
func InitialStatus(creator Role) ScheduleStatus {
	if creator.Privileged() {
		return ScheduleApproved
	}
	return SchedulePending
}

// RepeatKind tags a reservation with its recurrence. The tag is stored
// verbatim; expansion into concrete occurrences is out of scope here.
type RepeatKind string

const (
	RepeatNone    RepeatKind = "NONE"
	RepeatDaily   RepeatKind = "DAILY"
	RepeatWeekly  RepeatKind = "WEEKLY"
	RepeatMonthly RepeatKind = "MONTHLY"
)

// ParseRepeatKind normalizes a raw repeat tag, defaulting to NONE for an
// empty input. Unknown tags are rejected.
func ParseRepeatKind(s string) (RepeatKind, bool) {
	switch RepeatKind(s) {
	case "":
		return RepeatNone, true
	case RepeatNone, RepeatDaily, RepeatWeekly, RepeatMonthly:
		return RepeatKind(s), true
	}
	return "", false
}

// Schedule records a reservation of a room for a time window.
//
// Fields:
//
//	ID        – primary key identifier.
//	RoomID    – room being reserved.
//	Title     – purpose shown to approvers.
//	StartsAt  – inclusive start of the window (UTC).
//	EndsAt    – exclusive end of the window (UTC).
//	Repeat    – stored recurrence tag (never expanded here).
//	Status    – lifecycle state (see ScheduleStatus).
//	CreatorID – user who requested the reservation.
//
// Rows are never hard-deleted; cancellation is a terminal status.
type Schedule struct {
	ID        uint64
	RoomID    uint64
	Title     string
	StartsAt  time.Time
	EndsAt    time.Time
	Repeat    RepeatKind
	Status    ScheduleStatus
	CreatorID uint64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Overlaps reports whether the half-open intervals [aStart,aEnd) and
// [bStart,bEnd) intersect. Touching intervals (one ends exactly when the
// other starts) do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// CanModerate reports whether the actor may approve or reject a
// reservation created by the given user. Students can never moderate.
// Teachers may moderate only their own advisees' requests; admins may
// moderate anything.
func CanModerate(actor User, creator User) bool {
	switch actor.Role {
	case RoleAdmin:
		return true
	case RoleTeacher:
		return creator.SupervisedBy(actor.ID)
	}
	return false
}

// CanCancel reports whether the actor may cancel the given reservation:
// the creator themselves, an admin, or the supervising teacher of a
// student creator.
func CanCancel(actor User, sched Schedule, creator User) bool {
	if actor.ID == sched.CreatorID {
		return true
	}
	if actor.Role == RoleAdmin {
		return true
	}
	return actor.Role == RoleTeacher && creator.SupervisedBy(actor.ID)
}

// CancelVisibility picks the single extra party granted visibility of the
// cancellation audit entry. Admins always see everything, so the grant
// always targets whoever was NOT the cancelling side: an admin or
// supervisor cancelling notifies the creator; a creator self-cancelling
// notifies their supervisor (nil when they have none).
func CancelVisibility(actor User, creator User) *uint64 {
	if actor.ID == creator.ID {
		return creator.AdvisorID
	}
	id := creator.ID
	return &id
}
