package repository

import (
	"context"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"medlink_chat_service/pkg/logger"
)

// PubSub is the raw frame transport used by the cross-process broadcast
// relay.
type PubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string, handler func(payload []byte))
}

// RedisPubSub definition redis pub/sub
type RedisPubSub struct {
	client *redis.Client
}

// NewRedisPubSub create RedisPubSub
func NewRedisPubSub(client *redis.Client) *RedisPubSub {
	return &RedisPubSub{client: client}
}

// Publish sends payload to the given channel.
func (r *RedisPubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.client.Publish(ctx, channel, payload).Err()
}

// Subscribe consumes the channel until ctx is done, invoking handler per
// frame.
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string, handler func(payload []byte)) {
	sub := r.client.Subscribe(ctx, channel)
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(m.Payload))
			case <-ctx.Done():
				logger.Log.Info("pubsub subscription closed", zap.String("channel", channel))
				return
			}
		}
	}()
}
