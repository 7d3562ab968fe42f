package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/christmas-fire/squadup/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const EventsChannel = "squadup:events"

var ErrOutboxFull = errors.New("relay outbox full")

type relayFrame struct {
	GroupID string          `json:"groupId"`
	Frame   json.RawMessage `json:"frame"`
}

// Relay spreads events across server nodes through Redis pub/sub. Publish
// queues locally and one goroutine forwards the queue in order; every node,
// this one included, hands what it receives to its local Hub.
type Relay struct {
	redis  *redis.Client
	hub    *Hub
	outbox chan []byte
	log    *zap.Logger
}

func NewRelay(redisClient *redis.Client, hub *Hub, buffer int, log *zap.Logger) *Relay {
	return &Relay{
		redis:  redisClient,
		hub:    hub,
		outbox: make(chan []byte, buffer),
		log:    log.Named("relay"),
	}
}

func (r *Relay) Publish(_ context.Context, groupID string, event models.Event) error {
	frame, err := models.EncodeEvent(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.EventKind(), err)
	}
	data, err := json.Marshal(relayFrame{GroupID: groupID, Frame: frame})
	if err != nil {
		return fmt.Errorf("failed to marshal relay frame: %w", err)
	}

	select {
	case r.outbox <- data:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Run subscribes to the events channel and blocks until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.redis.Subscribe(ctx, EventsChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", EventsChannel, err)
	}

	go r.forward(ctx)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case redisMsg, ok := <-ch:
			if !ok {
				return nil
			}
			var frame relayFrame
			if err := json.Unmarshal([]byte(redisMsg.Payload), &frame); err != nil {
				r.log.Warn("failed to unmarshal frame from redis", zap.Error(err))
				continue
			}
			r.hub.Broadcast(frame.GroupID, frame.Frame)
		}
	}
}

func (r *Relay) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-r.outbox:
			if err := r.redis.Publish(ctx, EventsChannel, data).Err(); err != nil {
				r.log.Warn("failed to publish event to redis", zap.Error(err))
			}
		}
	}
}
