package realtime

import (
	"context"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisFanout publishes notifications on a per-user channel so every instance
// delivers to its own connections. Run relays the channels into Hub.
type RedisFanout struct {
	client *redis.Client
	prefix string
	hub    *Hub
	logger *slog.Logger
}

func NewRedisFanout(opts *redis.Options, prefix string, hub *Hub, logger *slog.Logger) *RedisFanout {
	if prefix == "" {
		prefix = "octopus:user:"
	}
	return &RedisFanout{client: redis.NewClient(opts), prefix: prefix, hub: hub, logger: logger}
}

func (r *RedisFanout) Notify(ctx context.Context, userID string, payload []byte) error {
	return r.client.Publish(ctx, r.channel(userID), payload).Err()
}

// Run subscribes to every user channel until ctx is done.
func (r *RedisFanout) Run(ctx context.Context) error {
	sub := r.client.PSubscribe(ctx, r.prefix+"*")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			userID, found := r.userID(msg.Channel)
			if !found {
				continue
			}
			r.hub.Deliver(userID, []byte(msg.Payload))
		}
	}
}

func (r *RedisFanout) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisFanout) Close() error {
	return r.client.Close()
}

func (r *RedisFanout) channel(userID string) string {
	return r.prefix + userID
}

func (r *RedisFanout) userID(channel string) (string, bool) {
	id, ok := strings.CutPrefix(channel, r.prefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
