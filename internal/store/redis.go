package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MJE43/coindle/internal/calendar"
	"github.com/MJE43/coindle/internal/stats"
)

// DistributionTTL keeps a day's hash around past the submission grace window.
const DistributionTTL = 48 * time.Hour

const distKeyPrefix = "coindle:dist:"

// RedisDB keeps each day's distribution in a hash of score -> count.
type RedisDB struct {
	client *redis.Client
}

// NewRedisDB wraps an existing client.
func NewRedisDB(client *redis.Client) *RedisDB {
	return &RedisDB{client: client}
}

// NewRedisDBFromURL connects using a redis:// URL.
func NewRedisDBFromURL(url string) (*RedisDB, error) {
	if url == "" {
		return nil, fmt.Errorf("store: redis URL is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("store: parse redis URL: %w", err)
	}
	return NewRedisDB(redis.NewClient(opts)), nil
}

func distKey(day calendar.Day) string {
	return distKeyPrefix + day.ISO()
}

// Migrate checks connectivity; Redis needs no schema.
func (r *RedisDB) Migrate(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (r *RedisDB) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client.
func (r *RedisDB) Close() error {
	return r.client.Close()
}

// Record increments the score's counter and refreshes the TTL in one MULTI/EXEC.
func (r *RedisDB) Record(ctx context.Context, day calendar.Day, score int) error {
	key := distKey(day)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, strconv.Itoa(score), 1)
		pipe.Expire(ctx, key, DistributionTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis record: %w", err)
	}
	return nil
}

// Distribution reads day's hash.
func (r *RedisDB) Distribution(ctx context.Context, day calendar.Day) ([]stats.Bucket, error) {
	fields, err := r.client.HGetAll(ctx, distKey(day)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis distribution: %w", err)
	}
	return parseBuckets(fields)
}

// Prune deletes hashes for days before the given one. Expiry normally gets there first.
func (r *RedisDB) Prune(ctx context.Context, before calendar.Day) (int64, error) {
	var removed int64

	iter := r.client.Scan(ctx, 0, distKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		day, err := calendar.Parse(strings.TrimPrefix(key, distKeyPrefix))
		if err != nil || !day.Before(before) {
			continue
		}

		fields, err := r.client.HGetAll(ctx, key).Result()
		if err != nil {
			return removed, fmt.Errorf("redis prune read %s: %w", key, err)
		}
		buckets, err := parseBuckets(fields)
		if err != nil {
			return removed, err
		}
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return removed, fmt.Errorf("redis prune delete %s: %w", key, err)
		}
		for _, b := range buckets {
			removed += b.Count
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis prune scan: %w", err)
	}
	return removed, nil
}

func parseBuckets(fields map[string]string) ([]stats.Bucket, error) {
	buckets := make([]stats.Bucket, 0, len(fields))
	for field, value := range fields {
		score, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("redis: bad score field %q", field)
		}
		count, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis: bad count %q for score %d", value, score)
		}
		buckets = append(buckets, stats.Bucket{Score: score, Count: count})
	}
	return buckets, nil
}
