// README: Proximity latch so the "almost there" push fires once per out_for_delivery epoch.
package location

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"freshcart/internal/types"
)

const latchTTL = 12 * time.Hour

// Latch is acquired at most once per (order, status version).
type Latch interface {
	Acquire(ctx context.Context, orderID types.ID, statusVersion int) (bool, error)
}

func latchKey(orderID types.ID, statusVersion int) string {
	return fmt.Sprintf("tracking:order:%s:near:%d", orderID, statusVersion)
}

type RedisLatch struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLatch(client *redis.Client) *RedisLatch {
	return &RedisLatch{client: client, ttl: latchTTL}
}

func (l *RedisLatch) Acquire(ctx context.Context, orderID types.ID, statusVersion int) (bool, error) {
	ok, err := l.client.SetNX(ctx, latchKey(orderID, statusVersion), time.Now().Unix(), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring proximity latch: %w", err)
	}
	return ok, nil
}

// MemoryLatch is the single-process latch used without Redis.
type MemoryLatch struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryLatch() *MemoryLatch {
	return &MemoryLatch{held: make(map[string]struct{})}
}

func (l *MemoryLatch) Acquire(_ context.Context, orderID types.ID, statusVersion int) (bool, error) {
	key := latchKey(orderID, statusVersion)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return false, nil
	}
	l.held[key] = struct{}{}
	return true, nil
}
