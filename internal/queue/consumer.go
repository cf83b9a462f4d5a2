package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/campuskit/room-reservation/internal/cache"
	"github.com/campuskit/room-reservation/internal/model"
	"github.com/campuskit/room-reservation/internal/repository"
)

// RunConsumer connects to the broker, declares the durable queue and
// consumes it with the given handler. It runs a reconnect loop with
// exponential backoff and never returns: processing errors are logged
// and the offending message is rejected without requeue so the loop
// cannot spin on a poison message. Intended to be started as a
// goroutine from main.
func RunConsumer(queueName string, handle func([]byte) error, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	url := BrokerURL()
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn("consumer dial failed", zap.String("queue", queueName),
				zap.Error(err), zap.Duration("retry_in", backoff))
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeLoop(conn, queueName, handle, log); err != nil {
			log.Warn("consume loop ended", zap.String("queue", queueName), zap.Error(err))
			_ = conn.Close()
			time.Sleep(2 * time.Second)
		}
	}
}

func consumeLoop(conn *amqp.Connection, queueName string, handle func([]byte) error, log *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn("set QoS failed", zap.String("queue", queueName), zap.Error(err))
	}

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := handle(d.Body); err != nil {
			log.Warn("handle message failed", zap.String("queue", queueName), zap.Error(err))
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// NewActivityFallbackHandler replays audit entries that failed their
// direct insert back into the activities table, preserving the original
// timestamp. Together with the durable queue this makes the audit trail
// lag-tolerant instead of lossy.
func NewActivityFallbackHandler(repo *repository.ActivityRepo) func([]byte) error {
	return func(body []byte) error {
		var msg ActivityMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		entry := model.ActivityEntry{
			Action:      model.Action(msg.Action),
			EntityType:  model.EntityType(msg.EntityType),
			EntityID:    msg.EntityID,
			Details:     msg.Details,
			ActorID:     msg.ActorID,
			VisibleToID: msg.VisibleToID,
		}
		if t, err := time.Parse(time.RFC3339, msg.CreatedAt); err == nil {
			entry.CreatedAt = t
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return repo.Insert(ctx, &entry)
	}
}

// StatusQueues lists every queue carrying a room_status field, i.e. the
// ones the status mirror must observe.
func StatusQueues() []string {
	return []string{
		QueueRoomReserved,
		QueueRoomReleased,
		QueueRoomMaintenance,
		QueueRoomUsageStarted,
		QueueRoomUsageEnded,
	}
}

// NewRoomStatusHandler refreshes the Redis status mirror from any event
// carrying room_id and room_status. This consumer is the occupancy
// bookkeeping side of the event contract: the room list reads the
// mirror instead of re-deriving status.
func NewRoomStatusHandler(statuses *cache.RoomStatusCache) func([]byte) error {
	return func(body []byte) error {
		var ev struct {
			RoomID     uint64 `json:"room_id"`
			RoomStatus string `json:"room_status"`
		}
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		if ev.RoomID == 0 || ev.RoomStatus == "" {
			return errors.New("event missing room_id or room_status")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return statuses.Set(ctx, ev.RoomID, model.RoomStatus(ev.RoomStatus))
	}
}
