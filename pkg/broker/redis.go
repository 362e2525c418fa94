package broker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Redis is a PubSub over Redis channels. Every gateway process subscribes
// and re-broadcasts to its local connections.
type Redis struct {
	rdb    *redis.Client
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRedis(rdb *redis.Client) *Redis {
	ctx, cancel := context.WithCancel(context.Background())
	return &Redis{rdb: rdb, ctx: ctx, cancel: cancel}
}

func (b *Redis) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.rdb.Publish(ctx, topic, payload).Err()
}

func (b *Redis) Subscribe(ctx context.Context, topic string, handler Handler) error {
	sub := b.rdb.Subscribe(ctx, topic)
	// Wait for the confirmation so publishes after Subscribe returns are seen.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return err
	}
	ch := sub.Channel()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()

	slog.Debug("broker subscribed", "component", "broker", "topic", topic)
	return nil
}

// Close stops all subscriptions. The Redis client is owned by the caller.
func (b *Redis) Close() error {
	b.cancel()
	b.wg.Wait()
	return nil
}
