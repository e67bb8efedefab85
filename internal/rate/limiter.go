// Package rate implements fixed-window counters on Redis for throttling
// credential guesses, code sends and verification attempts.
package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited is returned when a scope exceeds its window limit.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrUnavailable wraps Redis transport failures.
	ErrUnavailable = errors.New("rate limiter unavailable")
)

// Limiter counts hits per scope in a fixed window. The window starts on the
// first hit and all later hits share its deadline. Concurrent callers near
// the boundary may overshoot the limit by a small margin; for abuse throttles
// that slack is acceptable.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
}

// NewLimiter creates a [Limiter] namespaced by prefix.
func NewLimiter(client redis.UniversalClient, prefix string) *Limiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &Limiter{redis: client, prefix: prefix}
}

func (l *Limiter) key(scope string) string {
	return l.prefix + ":" + scope
}

// Hit records one attempt in scope and returns [ErrRateLimited] once the
// count in the current window exceeds limit.
func (l *Limiter) Hit(ctx context.Context, scope string, limit int, window time.Duration) error {
	key := l.key(scope)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	if count > int64(limit) {
		return ErrRateLimited
	}
	return nil
}

// Check reports whether scope is already over limit without recording a hit.
func (l *Limiter) Check(ctx context.Context, scope string, limit int) error {
	count, err := l.redis.Get(ctx, l.key(scope)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if count >= int64(limit) {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the counters for the given scopes, typically after a
// successful attempt.
func (l *Limiter) Reset(ctx context.Context, scopes ...string) error {
	if len(scopes) == 0 {
		return nil
	}

	keys := make([]string, len(scopes))
	for i, s := range scopes {
		keys[i] = l.key(s)
	}

	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
