package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"EcoCart/internal/config"
	"EcoCart/internal/ports"
)

const defaultKeyPrefix = "ecocart:session:"

// releaseScript deletes the key only when it still carries the caller's owner id.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock shares run ownership between instances through Redis keys with a TTL.
type RedisLock struct {
	client    redis.Cmdable
	keyPrefix string
}

var _ ports.RunLock = (*RedisLock)(nil)

// NewRedisLock connects to Redis and verifies the connection.
func NewRedisLock(ctx context.Context, cfg config.SessionConfig) (*RedisLock, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect to redis %s: %w", cfg.RedisAddr, err)
	}

	return NewRedisLockWithClient(client, cfg.KeyPrefix), client, nil
}

// NewRedisLockWithClient reuses an existing client.
func NewRedisLockWithClient(client redis.Cmdable, keyPrefix string) *RedisLock {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisLock{client: client, keyPrefix: keyPrefix}
}

// Acquire uses SET NX so only one owner holds session; steal overwrites unconditionally.
func (l *RedisLock) Acquire(ctx context.Context, session, owner string, ttl time.Duration, steal bool) (bool, error) {
	key := l.keyPrefix + session
	if steal {
		if err := l.client.Set(ctx, key, owner, ttl).Err(); err != nil {
			return false, fmt.Errorf("redis set %s: %w", key, err)
		}
		return true, nil
	}

	ok, err := l.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

// Release deletes the session key only if owner still holds it.
func (l *RedisLock) Release(ctx context.Context, session, owner string) error {
	key := l.keyPrefix + session
	if err := releaseScript.Run(ctx, l.client, []string{key}, owner).Err(); err != nil {
		return fmt.Errorf("redis release %s: %w", key, err)
	}
	return nil
}
