package relay

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Forwarder receives events published by other nodes. The hub implements it
// to deliver to locally connected clients.
type Forwarder interface {
	Forward(channel, event string, payload json.RawMessage)
}

// RedisSubscriber bridges redis pub/sub back into the local hub: every node
// publishes via RedisPublisher and forwards whatever it hears to its own
// websocket clients.
type RedisSubscriber struct {
	client    *redis.Client
	forwarder Forwarder
	logger    *zap.Logger
}

func NewRedisSubscriber(client *redis.Client, forwarder Forwarder, logger *zap.Logger) *RedisSubscriber {
	return &RedisSubscriber{
		client:    client,
		forwarder: forwarder,
		logger:    logger,
	}
}

// Run consumes relay envelopes until the context is cancelled.
func (s *RedisSubscriber) Run(ctx context.Context) {
	pubsub := s.client.PSubscribe(ctx, "user:*", "conversation:*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var envelope Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				s.logger.Warn("malformed relay envelope",
					zap.String("channel", msg.Channel),
					zap.Error(err),
				)
				continue
			}
			s.forwarder.Forward(envelope.Channel, envelope.Event, envelope.Payload)
		}
	}
}
