package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/drorchestrator/backend-go/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	EventsChannel = "recovery:events"
	AlertsChannel = "recovery:alerts"
)

// RedisPublisher publishes events and alerts as JSON on Redis pub/sub
// channels. It is both an EventForwarder and an AlertSink.
type RedisPublisher struct {
	client        redis.UniversalClient
	eventsChannel string
	alertsChannel string
}

// NewRedisPublisher publishes on the default channels
func NewRedisPublisher(client redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{client: client, eventsChannel: EventsChannel, alertsChannel: AlertsChannel}
}

// NewRedisClient parses a redis:// URL and pings the server
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (p *RedisPublisher) PublishEvent(ctx context.Context, ev domain.Event) error {
	return p.publish(ctx, p.eventsChannel, ev)
}

func (p *RedisPublisher) Alert(ctx context.Context, a domain.Alert) error {
	return p.publish(ctx, p.alertsChannel, a)
}

func (p *RedisPublisher) publish(ctx context.Context, channel string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", channel, err)
	}
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}
