// Package activity writes the audit trail. Logging is best-effort by
// contract: an audit outage must never block or abort the operation
// being audited, but a failed write must not vanish either: it is
// pushed onto a durable broker queue and replayed by a background
// consumer.
package activity

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/campuskit/room-reservation/internal/model"
	"github.com/campuskit/room-reservation/internal/queue"
)

// Store is the insert-only persistence the logger needs.
type Store interface {
	Insert(ctx context.Context, e *model.ActivityEntry) error
}

// FallbackPublisher receives entries whose direct insert failed.
type FallbackPublisher interface {
	PublishActivityFallback(ctx context.Context, msg queue.ActivityMessage) error
}

// Logger appends activity entries. Log never returns an error: failures
// are logged operationally and handed to the fallback publisher.
type Logger struct {
	store    Store
	fallback FallbackPublisher
	log      *zap.Logger
}

// NewLogger wires the logger. fallback may be nil, in which case failed
// inserts are only logged (tests, degraded deployments).
func NewLogger(store Store, fallback FallbackPublisher, log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{store: store, fallback: fallback, log: log}
}

// Entry builds an activity entry. The details map is extended with the
// entity type and id so every payload is self-describing for later
// filtering; a nil map is allowed.
func Entry(action model.Action, entityType model.EntityType, entityID uint64, actorID *uint64, visibleToID *uint64, details map[string]any) model.ActivityEntry {
	if details == nil {
		details = make(map[string]any, 2)
	}
	details["entityType"] = string(entityType)
	details["entityId"] = entityID
	raw, err := json.Marshal(details)
	if err != nil {
		raw = json.RawMessage(`{}`)
	}
	return model.ActivityEntry{
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		Details:     raw,
		ActorID:     actorID,
		VisibleToID: visibleToID,
	}
}

// Log appends the entry. On insert failure the entry is published to the
// fallback queue; when even that fails the loss is logged loudly, which
// is the observability hook for an audit outage.
func (l *Logger) Log(ctx context.Context, e model.ActivityEntry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	err := l.store.Insert(ctx, &e)
	if err == nil {
		return
	}
	l.log.Error("activity insert failed, using fallback queue",
		zap.String("action", string(e.Action)), zap.Error(err))
	if l.fallback == nil {
		l.log.Error("activity entry dropped: no fallback publisher",
			zap.String("action", string(e.Action)))
		return
	}
	msg := queue.ActivityMessage{
		Action:      string(e.Action),
		EntityType:  string(e.EntityType),
		EntityID:    e.EntityID,
		Details:     e.Details,
		ActorID:     e.ActorID,
		VisibleToID: e.VisibleToID,
		CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339),
	}
	if err := l.fallback.PublishActivityFallback(ctx, msg); err != nil {
		l.log.Error("activity entry lost: fallback publish failed",
			zap.String("action", string(e.Action)), zap.Error(err))
	}
}
