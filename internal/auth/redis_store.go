package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"filevault/internal/redisx"
)

// sessionKeyPrefix matches the key layout used by earlier deployments so an
// in-flight token survives an upgrade.
const sessionKeyPrefix = "auth_"

// RedisSessionStore keeps sessions in Redis with per-key TTLs. The value of
// each key is the bare user ID, keeping the layout readable with redis-cli.
type RedisSessionStore struct {
	client redis.UniversalClient
}

// NewRedisSessionStore wraps an existing client. The store does not close the
// client; the caller owns its lifecycle.
func NewRedisSessionStore(client redis.UniversalClient) (*RedisSessionStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &RedisSessionStore{client: client}, nil
}

// DialRedisSessionStore builds a client from the configuration and wraps it.
// Close releases the underlying client.
func DialRedisSessionStore(cfg redisx.Config) (*RedisSessionStore, error) {
	client, err := redisx.NewUniversalClient(cfg)
	if err != nil {
		return nil, err
	}
	return &RedisSessionStore{client: client}, nil
}

func sessionKey(token string) string {
	return sessionKeyPrefix + token
}

// Save writes the session with a TTL derived from expiresAt. Already expired
// sessions are not written.
func (s *RedisSessionStore) Save(ctx context.Context, token, userID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, sessionKey(token), userID, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Get looks the token up and reconstructs the expiry from the remaining TTL.
func (s *RedisSessionStore) Get(ctx context.Context, token string) (SessionRecord, bool, error) {
	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, sessionKey(token))
	ttlCmd := pipe.TTL(ctx, sessionKey(token))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return SessionRecord{}, false, fmt.Errorf("load session: %w", err)
	}
	userID, err := getCmd.Result()
	if errors.Is(err, redis.Nil) {
		return SessionRecord{}, false, nil
	}
	if err != nil {
		return SessionRecord{}, false, fmt.Errorf("load session: %w", err)
	}
	record := SessionRecord{Token: token, UserID: userID}
	if ttl, err := ttlCmd.Result(); err == nil && ttl > 0 {
		record.ExpiresAt = time.Now().Add(ttl)
	}
	return record, true, nil
}

// Delete removes the token. Deleting an absent token is not an error.
func (s *RedisSessionStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// PurgeExpired is a no-op because Redis evicts expired keys on its own.
func (s *RedisSessionStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

// Ping reports whether the Redis deployment is reachable.
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}
