// Package cache keeps computed leaderboards in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bountyboard/bounty-server/internal/models"
	"github.com/bountyboard/bounty-server/internal/stats"
)

const (
	keyPrefix     = "bounty:leaderboard:"
	generationKey = keyPrefix + "generation"
)

// NewClient connects to Redis and verifies the connection
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Leaderboard caches leaderboard snapshots per timeframe
type Leaderboard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLeaderboard wraps a Redis client; entries expire after ttl
func NewLeaderboard(client *redis.Client, ttl time.Duration) *Leaderboard {
	return &Leaderboard{client: client, ttl: ttl}
}

// Get returns the cached leaderboard for tf. found is false on a miss.
func (l *Leaderboard) Get(ctx context.Context, tf stats.Timeframe) ([]models.LeaderboardEntry, bool, error) {
	raw, err := l.client.Get(ctx, key(tf)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get leaderboard %s: %w", tf, err)
	}

	var entries []models.LeaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false, fmt.Errorf("decode leaderboard %s: %w", tf, err)
	}
	return entries, true, nil
}

// Generation returns the current invalidation generation, 0 before the
// first invalidation
func (l *Leaderboard) Generation(ctx context.Context) (int64, error) {
	gen, err := readGeneration(ctx, l.client)
	if err != nil {
		return 0, fmt.Errorf("get leaderboard generation: %w", err)
	}
	return gen, nil
}

// Set stores a leaderboard for tf unless the cache was invalidated after
// generation was read. The check and the write run in one WATCH transaction.
func (l *Leaderboard) Set(ctx context.Context, tf stats.Timeframe, generation int64, entries []models.LeaderboardEntry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode leaderboard %s: %w", tf, err)
	}

	err = l.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readGeneration(ctx, tx)
		if err != nil {
			return err
		}
		if current != generation {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key(tf), raw, l.ttl)
			return nil
		})
		return err
	}, generationKey)
	if errors.Is(err, redis.TxFailedErr) {
		// invalidated while writing
		return nil
	}
	if err != nil {
		return fmt.Errorf("set leaderboard %s: %w", tf, err)
	}
	return nil
}

// Invalidate advances the generation and drops every cached timeframe
func (l *Leaderboard) Invalidate(ctx context.Context) error {
	keys := make([]string, 0, len(stats.Timeframes))
	for _, tf := range stats.Timeframes {
		keys = append(keys, key(tf))
	}
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey)
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate leaderboard: %w", err)
	}
	return nil
}

// Ping checks the Redis connection
func (l *Leaderboard) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func key(tf stats.Timeframe) string {
	return keyPrefix + string(tf)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readGeneration(ctx context.Context, c getter) (int64, error) {
	gen, err := c.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}
