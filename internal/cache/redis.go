package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/normanking/visemekit/internal/timeline"
)

// DefaultRedisPrefix namespaces cache keys in a shared Redis.
const DefaultRedisPrefix = "visemekit:timeline:"

// RedisConfig holds configuration for the Redis backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// RedisStore keeps each entry as one string value. SET replaces the whole
// document, so readers never observe a partial entry.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore connects and validates the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix}, nil
}

func (s *RedisStore) redisKey(key Key) string { return s.prefix + string(key) }

// Get loads an entry.
func (s *RedisStore) Get(ctx context.Context, key Key) (*timeline.Timeline, error) {
	if !key.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	data, err := s.rdb.Get(ctx, s.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &CacheError{Key: key, Op: "read", Err: err}
	}
	return decodeEntry(key, data)
}

// Put stores an entry without expiry.
func (s *RedisStore) Put(ctx context.Context, key Key, tl *timeline.Timeline) error {
	if !key.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	data, err := encodeEntry(key, tl)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	if err := s.rdb.Set(ctx, s.redisKey(key), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes an entry.
func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := s.rdb.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// Clear removes every entry under the prefix.
func (s *RedisStore) Clear(ctx context.Context) (int, error) {
	keys, err := s.scan(ctx)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis del failed: %w", err)
	}
	return int(n), nil
}

// Keys lists stored keys in sorted order.
func (s *RedisStore) Keys(ctx context.Context) ([]Key, error) {
	raw, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]Key, 0, len(raw))
	for _, r := range raw {
		if k := Key(strings.TrimPrefix(r, s.prefix)); k.Valid() {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

func (s *RedisStore) scan(ctx context.Context) ([]string, error) {
	var out []string
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan failed: %w", err)
	}
	return out, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
