package provider

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/LuisNSantana/hums-authd/internal/logger"
)

const defaultFeedChannel = "authd:auth-events"

// Feed fans auth change events across processes over Redis pub/sub.
// A sign-out in one process reaches every other process's change
// listeners through it, the same way a provider push would.
type Feed struct {
	client  *redis.Client
	channel string
}

// NewFeed creates a feed on the default channel.
func NewFeed(client *redis.Client) *Feed {
	return &Feed{
		client:  client,
		channel: defaultFeedChannel,
	}
}

// Publish broadcasts ev to every subscribed process, including this one.
func (f *Feed) Publish(ctx context.Context, ev ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.channel, data).Err()
}

// Subscribe delivers every published event to fn on a dedicated
// goroutine until the returned stop function is called or ctx ends.
func (f *Feed) Subscribe(ctx context.Context, fn func(ChangeEvent)) (func(), error) {
	sub := f.client.Subscribe(ctx, f.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	ch := sub.Channel()
	go func() {
		for msg := range ch {
			var ev ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Warn("auth event feed received malformed event", map[string]any{
					"error": err.Error(),
				})
				continue
			}
			fn(ev)
		}
	}()

	return func() { _ = sub.Close() }, nil
}
