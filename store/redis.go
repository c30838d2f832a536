package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisBackend is a Redis-backed [Backend]. Every key is namespaced under
// prefix; a positive ttl is applied on each Set.
type RedisBackend struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisBackend creates a [RedisBackend]. A zero ttl stores keys without expiry.
func NewRedisBackend(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisBackend {
	return &RedisBackend{
		redis:  client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// NewRedisProfileBackend returns the durable profile backend for a device.
// Keys live under "<prefix>:profile:<deviceID>:" and never expire.
func NewRedisProfileBackend(client redis.UniversalClient, prefix, deviceID string) *RedisBackend {
	return NewRedisBackend(client, prefix+":profile:"+deviceID+":", 0)
}

// NewRedisSessionBackend returns a session-scoped backend under a fresh
// random session namespace. Keys expire after ttl so a bearer token cannot
// outlive the session. The namespace is returned for diagnostics.
func NewRedisSessionBackend(client redis.UniversalClient, prefix string, ttl time.Duration) (*RedisBackend, string) {
	sid := uuid.NewString()
	return NewRedisSessionBackendWithID(client, prefix, sid, ttl), sid
}

// NewRedisSessionBackendWithID resumes an existing session namespace, as a
// reload of the same tab would.
func NewRedisSessionBackendWithID(client redis.UniversalClient, prefix, sessionID string, ttl time.Duration) *RedisBackend {
	return NewRedisBackend(client, prefix+":session:"+sessionID+":", ttl)
}

func (r *RedisBackend) key(k string) string {
	return r.prefix + k
}

// Get implements [Backend].
func (r *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.redis.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return v, true, nil
}

// Set implements [Backend].
func (r *RedisBackend) Set(ctx context.Context, key, value string) error {
	if err := r.redis.Set(ctx, r.key(key), value, r.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Delete implements [Backend].
func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := r.redis.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}
