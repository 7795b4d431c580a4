package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/spitaweb-web/recepcion-autopilot-wa/internal/redis"
)

// RedisStore shares the dedup window across instances. SETNX with a TTL
// makes the check-and-record atomic; Redis handles expiry on its own.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Seen(ctx context.Context, messageID string) (bool, error) {
	ok, err := s.client.SetNX(ctx, redis.DedupKey(messageID), 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return !ok, nil
}
