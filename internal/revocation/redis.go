package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

const keyPrefix = "denylist:"

// RedisDenylist stores revoked ids as expiring Redis keys. Calls go through a
// circuit breaker so an unreachable Redis fails fast instead of stalling every
// authenticated request.
type RedisDenylist struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	now     func() time.Time
}

var _ Denylist = (*RedisDenylist)(nil)

// NewRedisDenylist wraps client.
func NewRedisDenylist(client *redis.Client) *RedisDenylist {
	return &RedisDenylist{
		client:  client,
		breaker: newBreaker("Redis-Denylist"),
		now:     time.Now,
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
}

func (d *RedisDenylist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(d.now())
	if ttl <= 0 {
		return nil
	}

	_, err := d.breaker.Execute(func() (interface{}, error) {
		return nil, d.client.Set(ctx, keyPrefix+jti, 1, ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (d *RedisDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	res, err := d.breaker.Execute(func() (interface{}, error) {
		n, err := d.client.Exists(ctx, keyPrefix+jti).Result()
		if errors.Is(err, redis.Nil) {
			return int64(0), nil
		}
		return n, err
	})
	if err != nil {
		return false, fmt.Errorf("check token: %w", err)
	}
	return res.(int64) > 0, nil
}

// Ping checks the Redis connection without going through the breaker.
func (d *RedisDenylist) Ping(ctx context.Context) error {
	return d.client.Ping(ctx).Err()
}
