package store

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// ChangeNotifier 跨实例广播“集合已变化”
type ChangeNotifier interface {
	Notify(ctx context.Context) error
	// Listen 返回变更信号通道，调用返回的 close 停止监听
	Listen(ctx context.Context) (<-chan struct{}, func(), error)
}

// RedisNotifier 基于 Redis Pub/Sub 的变更通知
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

var _ ChangeNotifier = (*RedisNotifier)(nil)

// NewRedisNotifier 创建 Redis 变更通知
func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

func (n *RedisNotifier) Notify(ctx context.Context) error {
	if err := n.client.Publish(ctx, n.channel, "changed").Err(); err != nil {
		return fmt.Errorf("publish change to %s: %w", n.channel, err)
	}
	return nil
}

func (n *RedisNotifier) Listen(ctx context.Context) (<-chan struct{}, func(), error) {
	pubsub := n.client.Subscribe(ctx, n.channel)
	// 等待订阅确认，确保之后的 Publish 不会丢
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe to %s: %w", n.channel, err)
	}

	out := make(chan struct{}, 1)
	msgs := pubsub.Channel()
	go func() {
		defer close(out)
		for range msgs {
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()
	return out, func() { pubsub.Close() }, nil
}
