package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/concierge-agent/backend/internal/cache"
	"github.com/concierge-agent/backend/pkg/logger"
)

const keyPrefix = "resp:"

// Store is the shared cache.Store backed by Redis. Each entry is a hash so
// hit_count can be incremented server-side with HINCRBY; concurrent gets on
// one key never lose an update.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(host string, port int, password string, db int, ttl time.Duration) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}

	logger.Info("Redis response cache initialized",
		zap.String("addr", fmt.Sprintf("%s:%d", host, port)),
		zap.Duration("ttl", ttl),
	)

	return &Store{client: client, ttl: ttl}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Get(ctx context.Context, pageContext, query string) (*cache.Entry, bool, error) {
	key := keyPrefix + cache.EntryKey(pageContext, query)

	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}

	cachedAtUnix, err := strconv.ParseInt(fields["cached_at"], 10, 64)
	if err != nil {
		// A reader deleting an expired key can interleave with another
		// reader's HINCRBY and leave a hash holding only hit_count. Such a
		// key is garbage; drop it and report a miss.
		if delErr := s.client.Del(ctx, key).Err(); delErr != nil {
			logger.Warn("Failed to delete malformed cache entry", zap.Error(delErr))
		}
		return nil, false, nil
	}
	cachedAt := time.Unix(cachedAtUnix, 0)

	// Redis EXPIRE covers most cleanup; the lazy check here is what TTL
	// correctness actually rests on.
	if time.Since(cachedAt) > s.ttl {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			logger.Warn("Failed to delete expired cache entry", zap.Error(err))
		}
		return nil, false, nil
	}

	hitCount, err := s.client.HIncrBy(ctx, key, "hit_count", 1).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to increment hit count: %w", err)
	}

	qualityScore, _ := strconv.ParseFloat(fields["quality_score"], 64)

	logger.Debug("Response cache hit",
		zap.String("key", key),
		zap.Int64("hit_count", hitCount),
	)

	return &cache.Entry{
		Key:          key,
		PageContext:  fields["page_context"],
		Query:        fields["query"],
		ResponseText: fields["response_text"],
		QualityScore: qualityScore,
		CachedAt:     cachedAt,
		HitCount:     hitCount,
	}, true, nil
}

func (s *Store) Put(ctx context.Context, pageContext, query, responseText string, qualityScore float64) error {
	key := keyPrefix + cache.EntryKey(pageContext, query)

	fields := map[string]interface{}{
		"page_context":  pageContext,
		"query":         cache.NormalizeQuery(query),
		"response_text": responseText,
		"quality_score": qualityScore,
		"cached_at":     time.Now().Unix(),
		"hit_count":     0,
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	logger.Debug("Response cached", zap.String("key", key), zap.Float64("quality_score", qualityScore))
	return nil
}

func (s *Store) Sweep(ctx context.Context) (int, error) {
	removed := 0
	cutoff := time.Now().Add(-s.ttl).Unix()

	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		cachedAtStr, err := s.client.HGet(ctx, key, "cached_at").Result()
		if err != nil && err != redis.Nil {
			logger.Warn("Failed to read cache entry during sweep", zap.Error(err))
			continue
		}

		// err == redis.Nil means the hash lost its cached_at field; treat it
		// as expired so malformed keys cannot survive sweeps.
		cachedAtUnix, parseErr := strconv.ParseInt(cachedAtStr, 10, 64)
		if err == redis.Nil || parseErr != nil || cachedAtUnix < cutoff {
			if err := s.client.Del(ctx, key).Err(); err != nil {
				logger.Warn("Failed to delete cache key", zap.Error(err))
				continue
			}
			removed++
		}
	}

	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	if removed > 0 {
		logger.Info("Cache sweep completed", zap.Int("removed", removed))
	}

	return removed, nil
}
