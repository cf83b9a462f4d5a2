// Package cache keeps a Redis mirror of each room's live status. The
// room listing reads it so browsers see status changes without hitting
// the primary database; the event consumer refreshes it from the
// room.* queues.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/campuskit/room-reservation/internal/model"
)

// statusTTL bounds staleness when an update is missed; readers fall back
// to the database value on a miss.
const statusTTL = 12 * time.Hour

// RoomStatusCache mirrors room statuses in Redis. A nil client disables
// the cache: writes become no-ops and reads always miss, so the service
// degrades to database reads when Redis is unavailable.
type RoomStatusCache struct {
	rdb *redis.Client
}

// NewRoomStatusCache wraps the given client, which may be nil.
func NewRoomStatusCache(rdb *redis.Client) *RoomStatusCache {
	return &RoomStatusCache{rdb: rdb}
}

func statusKey(roomID uint64) string { return fmt.Sprintf("room:%d:status", roomID) }

// Set records the room's live status.
func (c *RoomStatusCache) Set(ctx context.Context, roomID uint64, status model.RoomStatus) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Set(ctx, statusKey(roomID), string(status), statusTTL).Err()
}

// Get returns the cached status and whether a value was present.
func (c *RoomStatusCache) Get(ctx context.Context, roomID uint64) (model.RoomStatus, bool) {
	if c == nil || c.rdb == nil {
		return "", false
	}
	v, err := c.rdb.Get(ctx, statusKey(roomID)).Result()
	if err != nil {
		return "", false
	}
	return model.RoomStatus(v), true
}
