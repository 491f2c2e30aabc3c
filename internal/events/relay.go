package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type envelope struct {
	Origin string          `json:"origin"`
	Type   Topic           `json:"type"`
	Data   json.RawMessage `json:"data"`
}

// RedisRelay mirrors broker events across instances through a Redis channel,
// so a view connected to one instance sees mutations made on another.
type RedisRelay struct {
	client  *redis.Client
	channel string
	origin  string
	broker  *Broker
	logger  *slog.Logger
}

// NewRedisRelay connects to redisURL and returns a relay bound to broker.
func NewRedisRelay(redisURL, channel string, broker *Broker, logger *slog.Logger) (*RedisRelay, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("events: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("events: connect to redis: %w", err)
	}
	return NewRedisRelayWithClient(client, channel, broker, logger), nil
}

// NewRedisRelayWithClient builds a relay from an existing client.
func NewRedisRelayWithClient(client *redis.Client, channel string, broker *Broker, logger *slog.Logger) *RedisRelay {
	if channel == "" {
		channel = "verba:events"
	}
	return &RedisRelay{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		broker:  broker,
		logger:  logger,
	}
}

// Run forwards local events to Redis and remote events to the local broker
// until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before forwarding.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("events: redis subscribe: %w", err)
	}

	local := r.broker.Subscribe()
	defer r.broker.Unsubscribe(local)

	remote := pubsub.Channel()
	r.logger.Info("event relay started", slog.String("channel", r.channel), slog.String("origin", r.origin))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("event relay stopped")
			return nil

		case ev, ok := <-local.C:
			if !ok {
				return nil
			}
			if ev.Remote {
				continue
			}
			if err := r.forward(ctx, ev); err != nil {
				r.logger.Warn("event relay: publish failed",
					slog.String("type", string(ev.Type)),
					slog.String("error", err.Error()))
			}

		case msg, ok := <-remote:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn("event relay: bad payload", slog.String("error", err.Error()))
				continue
			}
			if env.Origin == r.origin {
				continue
			}
			r.broker.Publish(Event{Type: env.Type, Data: env.Data, Remote: true})
		}
	}
}

func (r *RedisRelay) forward(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(envelope{Origin: r.origin, Type: ev.Type, Data: data})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

// Close releases the Redis client.
func (r *RedisRelay) Close() error {
	return r.client.Close()
}
