package docstore

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier fans change signals out over Redis pub/sub so live queries
// served by one instance see writes made by another.
type RedisNotifier struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisNotifier(rdb *redis.Client) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, prefix: "docstore:"}
}

func (n *RedisNotifier) channel(collection string) string { return n.prefix + collection }

func (n *RedisNotifier) Notify(ctx context.Context, collection string) error {
	return n.rdb.Publish(ctx, n.channel(collection), "changed").Err()
}

func (n *RedisNotifier) Listen(ctx context.Context, collection string) (<-chan struct{}, error) {
	ps := n.rdb.Subscribe(ctx, n.channel(collection))
	// wait for the subscription to be confirmed so no write is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	out := make(chan struct{}, 1)
	msgs := ps.Channel()
	go func() {
		defer close(out)
		defer ps.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				signal(out)
			}
		}
	}()
	return out, nil
}
