package server

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"filevault/internal/redisx"
)

// redisStore tracks login attempts with an INCR counter that expires after the
// configured window. The first increment in a window arms the expiry.
type redisStore struct {
	cfg    redisx.Config
	once   sync.Once
	client redis.UniversalClient
	err    error
}

func newRedisStore(cfg redisx.Config) *redisStore {
	return &redisStore{cfg: cfg}
}

func (s *redisStore) connection() (redis.UniversalClient, error) {
	s.once.Do(func() {
		s.client, s.err = redisx.NewUniversalClient(s.cfg)
	})
	return s.client, s.err
}

func (s *redisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	client, err := s.connection()
	if err != nil {
		return false, 0, err
	}

	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		expiry := window
		if expiry < time.Second {
			expiry = time.Second
		}
		if err := client.Expire(ctx, key, expiry).Err(); err != nil {
			return false, 0, err
		}
	}
	if count <= int64(limit) {
		return true, 0, nil
	}

	ttl, err := client.TTL(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if ttl < 0 {
		return false, window, nil
	}
	return false, ttl, nil
}
