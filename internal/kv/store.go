// Package kv is a generic TTL-leased key-value store on Redis. Flow state
// (registration, login OTP, password reset) lives here as JSON values whose
// lifetime matches the security window of the flow; deleting a key is the
// only destroy path.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned when a key is absent or already expired.
	ErrNotFound = errors.New("kv record not found")
	// ErrUnavailable wraps Redis transport failures.
	ErrUnavailable = errors.New("kv store unavailable")
)

// Store reads and writes JSON values under a key prefix.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a [Store] namespaced by prefix.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "af"
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) key(k string) string {
	return s.prefix + ":" + k
}

// Put stores value under key with the given TTL, replacing any prior value
// and lease.
func (s *Store) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Update rewrites the value under key without extending its lease. The key
// must already exist; an absent key returns [ErrNotFound].
func (s *Store) Update(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	set, err := s.redis.SetArgs(ctx, s.key(key), data, redis.SetArgs{
		Mode:    "XX",
		KeepTTL: true,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if set == "" {
		return ErrNotFound
	}
	return nil
}

// Get unmarshals the value under key into dest.
func (s *Store) Get(ctx context.Context, key string, dest any) error {
	data, err := s.redis.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return err
	}
	return nil
}

// Delete removes the given keys. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.key(k)
	}

	if err := s.redis.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// TTL reports the remaining lease of key, or [ErrNotFound] when absent.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.redis.TTL(ctx, s.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if ttl < 0 {
		return 0, ErrNotFound
	}
	return ttl, nil
}
