package rateguard

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryCooldowns implements CooldownStore with a mutex-guarded map.
// State is scoped to one running instance.
type MemoryCooldowns struct {
	mu   sync.RWMutex
	last map[string]time.Time
}

// NewMemoryCooldowns creates an in-memory cooldown store.
func NewMemoryCooldowns() *MemoryCooldowns {
	return &MemoryCooldowns{last: make(map[string]time.Time)}
}

func (s *MemoryCooldowns) Last(_ context.Context, identity string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.last[identity]
	return ts, ok, nil
}

func (s *MemoryCooldowns) Record(_ context.Context, identity string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[identity] = ts
	return nil
}

// RedisCooldowns implements CooldownStore on Redis so cooldown state is
// shared across engine instances. Keys carry a TTL of the cooldown window;
// an expired key reads as "no recorded transaction", which is exactly the
// allowed state.
type RedisCooldowns struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCooldowns creates a Redis-backed cooldown store. ttl should be at
// least the cooldown window.
func NewRedisCooldowns(rdb *redis.Client, ttl time.Duration) *RedisCooldowns {
	return &RedisCooldowns{rdb: rdb, ttl: ttl}
}

func cooldownKey(identity string) string { return "cooldown:" + identity }

func (s *RedisCooldowns) Last(ctx context.Context, identity string) (time.Time, bool, error) {
	val, err := s.rdb.Get(ctx, cooldownKey(identity)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("rateguard: redis get %s: %w", identity, err)
	}

	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("rateguard: corrupt cooldown value for %s: %w", identity, err)
	}
	return time.UnixMilli(ms), true, nil
}

func (s *RedisCooldowns) Record(ctx context.Context, identity string, ts time.Time) error {
	err := s.rdb.Set(ctx, cooldownKey(identity), ts.UnixMilli(), s.ttl).Err()
	if err != nil {
		return fmt.Errorf("rateguard: redis set %s: %w", identity, err)
	}
	return nil
}
