package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ulearning-intl/bigbluebutton-streaming/internal/core/domain"
	"github.com/ulearning-intl/bigbluebutton-streaming/internal/core/ports"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultChannel = "bbb-streaming:events"

type envelope struct {
	InstanceID string             `json:"instance_id"`
	Event      domain.StreamEvent `json:"event"`
}

// RedisBus relays lifecycle events between controller processes that share
// one Docker host, so every process's subscribers see every start and stop.
// Local events go to the local publisher immediately and to redis from a
// background loop; remote events are handed to the local publisher.
type RedisBus struct {
	client     redis.UniversalClient
	channel    string
	instanceID string
	local      ports.EventPublisher
	outbox     chan domain.StreamEvent
	logger     *zap.SugaredLogger
}

func NewRedisBus(client redis.UniversalClient, channel string, local ports.EventPublisher, logger *zap.SugaredLogger) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBus{
		client:     client,
		channel:    channel,
		instanceID: uuid.NewString(),
		local:      local,
		outbox:     make(chan domain.StreamEvent, 256),
		logger:     logger,
	}
}

func (b *RedisBus) Publish(event domain.StreamEvent) {
	b.local.Publish(event)

	select {
	case b.outbox <- event:
	default:
		b.logger.Warnw("event relay queue full, dropping event",
			"type", event.Type,
			"meeting_id", event.MeetingID,
		)
	}
}

// Run forwards queued events to redis and remote events to the local
// publisher until ctx is done. It returns an error only when the initial
// subscription fails.
func (b *RedisBus) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	incoming := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-b.outbox:
			b.send(ctx, event)
		case msg, ok := <-incoming:
			if !ok {
				return nil
			}
			b.receive(msg.Payload)
		}
	}
}

func (b *RedisBus) send(ctx context.Context, event domain.StreamEvent) {
	data, err := json.Marshal(envelope{InstanceID: b.instanceID, Event: event})
	if err != nil {
		b.logger.Warnw("failed to marshal event", "error", err)
		return
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Warnw("failed to relay event", "type", event.Type, "error", err)
	}
}

func (b *RedisBus) receive(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.logger.Warnw("failed to unmarshal relayed event", "error", err)
		return
	}
	// Skip events from this instance
	if env.InstanceID == b.instanceID {
		return
	}
	b.local.Publish(env.Event)
}

var _ ports.EventPublisher = (*RedisBus)(nil)
