package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const publishTimeout = 2 * time.Second

// Envelope is the wire form of a relay event on a redis channel. Edge nodes
// subscribed to the channel forward the event to their connected websocket
// clients.
type Envelope struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// RedisPublisher publishes relay events over redis pub/sub, for deployments
// where websocket clients are spread across more than one node.
type RedisPublisher struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisPublisher(addr, password string, db int, logger *zap.Logger) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("redis connect failed: %w", err)
	}

	return &RedisPublisher{client: client, logger: logger}, nil
}

func (p *RedisPublisher) Trigger(ctx context.Context, channel, event string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal relay payload: %w", err)
	}

	envelope, err := json.Marshal(Envelope{Channel: channel, Event: event, Payload: body})
	if err != nil {
		return fmt.Errorf("marshal relay envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := p.client.Publish(ctx, channel, envelope).Err(); err != nil {
		return fmt.Errorf("redis publish to %s: %w", channel, err)
	}
	return nil
}

// Client exposes the underlying connection so the subscriber bridge can
// share it.
func (p *RedisPublisher) Client() *redis.Client {
	return p.client
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
