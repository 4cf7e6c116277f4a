package ws

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"github.com/tcriess/bingo-chat/globals"
)

// Delivery is a frame addressed to every subscriber of Room except the connection Exclude.
type Delivery struct {
	Room    string          `json:"room"`
	Exclude string          `json:"exclude,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Relay distributes deliveries between several hub instances. Every instance receives every delivery, including its
// own, and hands it to its local subscribers.
type Relay interface {
	Publish(ctx context.Context, d *Delivery) error
	// Subscribe calls deliver for each received delivery until ctx is done.
	Subscribe(ctx context.Context, deliver func(*Delivery)) error
	Close() error
}

// RedisRelay is a Relay on top of a redis pub/sub channel.
type RedisRelay struct {
	client  *redis.Client
	channel string
}

var _ Relay = &RedisRelay{}

// NewRedisRelay connects to the redis server at url (f.e. "redis://localhost:6379/0").
func NewRedisRelay(ctx context.Context, url, channel string) (*RedisRelay, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisRelay{client: client, channel: channel}, nil
}

func (r *RedisRelay) Publish(ctx context.Context, d *Delivery) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, raw).Err()
}

func (r *RedisRelay) Subscribe(ctx context.Context, deliver func(*Delivery)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()
	// wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil

		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			d := &Delivery{}
			if err := json.Unmarshal([]byte(msg.Payload), d); err != nil {
				globals.AppLogger.Warn("could not unmarshal relayed delivery", "error", err)
				continue
			}
			deliver(d)
		}
	}
}

func (r *RedisRelay) Close() error {
	return r.client.Close()
}
