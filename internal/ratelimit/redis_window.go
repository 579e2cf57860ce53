// Package ratelimit holds alternative RateWindow backends for the admission controller.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// windowTTL keeps a window key alive past its minute so late increments still land on it
const windowTTL = 2 * time.Minute

// incrementWindowScript increments and sets the expiry on first use in one round trip.
// KEYS[1] = window key
// ARGV[1] = expiration in seconds
var incrementWindowScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('EXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

// RedisWindowStore keeps per-key minute windows in Redis
type RedisWindowStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisOptions configures the Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisClient opens a client and verifies the connection
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to ping redis: %w", err)
	}

	return client, nil
}

// NewRedisWindowStore creates a window store on an existing client
func NewRedisWindowStore(client redis.UniversalClient, prefix string) *RedisWindowStore {
	return &RedisWindowStore{client: client, prefix: prefix}
}

// IncrementRateWindow atomically increments the key's counter for windowStart and
// returns the post-increment value
func (s *RedisWindowStore) IncrementRateWindow(ctx context.Context, keyID string, windowStart time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	count, err := incrementWindowScript.Run(ctx, s.client,
		[]string{s.windowKey(keyID, windowStart)},
		int(windowTTL.Seconds()),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis rate window increment failed: %w", err)
	}

	return count, nil
}

func (s *RedisWindowStore) windowKey(keyID string, windowStart time.Time) string {
	return s.prefix + "rate:" + keyID + ":" + strconv.FormatInt(windowStart.UTC().Unix(), 10)
}
