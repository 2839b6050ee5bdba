// Package cachestore is the short-lived key/value cache used for query
// results and rate-limit counters. Get, Set and InvalidatePrefix degrade to
// a no-op when Redis is unreachable and never report an error; the counter
// operations IncrWithTTL and TTL return the backend error so their caller
// can fail open.
package cachestore

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is the TTL applied to query results when the caller doesn't
// specify one.
const DefaultTTL = 60 * time.Second

// Store wraps a go-redis client with the strym key scheme and fail-open
// semantics. Grounded on the Python prototype's CacheService: canonical
// param serialization, <root>:<namespace>:<hash> keys, invalidate by scan.
type Store struct {
	client *redis.Client
	root   string
}

// Config holds the connection parameters for the cache backend.
type Config struct {
	RedisURL string
	Root     string // key namespace root, defaults to "strym"
}

// Open connects to Redis. It does not fail if Redis is unreachable at
// startup — every Store method degrades gracefully on its own.
func Open(cfg Config) (*Store, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	root := cfg.Root
	if root == "" {
		root = "strym"
	}
	return &Store{client: redis.NewClient(opts), root: root}, nil
}

// NewFromClient wraps an already-constructed client, for tests.
func NewFromClient(client *redis.Client, root string) *Store {
	if root == "" {
		root = "strym"
	}
	return &Store{client: client, root: root}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// Fingerprint computes the cache key for a namespace and parameter bag:
// canonical (key-sorted) JSON serialization hashed with xxhash, rendered
// as <root>:<namespace>:<hash>.
func (s *Store) Fingerprint(namespace string, params map[string]any) string {
	canonical := canonicalJSON(params)
	sum := xxhash.Sum64String(canonical)
	return s.root + ":" + namespace + ":" + strconv.FormatUint(sum, 16)
}

// Get looks up the cached value for (namespace, params) and unmarshals it
// into dest. Returns found=false on a miss or any backend failure.
func (s *Store) Get(ctx context.Context, namespace string, params map[string]any, dest any) (found bool) {
	key := s.Fingerprint(namespace, params)
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("cache get failed, degrading to miss", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		slog.Warn("cache value unmarshal failed, degrading to miss", "key", key, "error", err)
		return false
	}
	return true
}

// Set stores value for (namespace, params) with ttl (DefaultTTL if zero).
// Failures are logged and swallowed.
func (s *Store) Set(ctx context.Context, namespace string, params map[string]any, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	key := s.Fingerprint(namespace, params)
	data, err := json.Marshal(value)
	if err != nil {
		slog.Warn("cache value marshal failed, skipping set", "key", key, "error", err)
		return
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		slog.Warn("cache set failed, degrading to no-op", "key", key, "error", err)
	}
}

// InvalidatePrefix deletes every key under <root>:<namespace>:*. Best
// effort: returns the count actually deleted, 0 on any backend failure.
func (s *Store) InvalidatePrefix(ctx context.Context, namespace string) int {
	pattern := s.root + ":" + namespace + ":*"
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		slog.Warn("cache invalidate scan failed, degrading to no-op", "pattern", pattern, "error", err)
		return 0
	}
	if len(keys) == 0 {
		return 0
	}
	deleted, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		slog.Warn("cache invalidate delete failed, degrading to no-op", "pattern", pattern, "error", err)
		return 0
	}
	return int(deleted)
}

// IncrWithTTL increments key and returns the resulting count. window is
// applied as the key's TTL only on the increment that creates the key
// (count becomes 1), matching the sliding-window bucket semantics: the
// first request in a window starts its 60s clock, later requests in the
// same window just bump the counter. On backend failure it returns (0,
// err) so the caller can fail open.
func (s *Store) IncrWithTTL(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, err
		}
	}
	return count, nil
}

// TTL returns the remaining time-to-live for key. On backend failure it
// returns (0, err).
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	return s.client.TTL(ctx, key).Result()
}

// canonicalJSON renders params with keys sorted, matching the Python
// prototype's json.dumps(..., sort_keys=True) used for cache fingerprinting.
func canonicalJSON(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]byte, 0, 128)
	ordered = append(ordered, '{')
	for i, k := range keys {
		if i > 0 {
			ordered = append(ordered, ',')
		}
		keyJSON, _ := json.Marshal(k)
		valJSON, _ := json.Marshal(params[k])
		ordered = append(ordered, keyJSON...)
		ordered = append(ordered, ':')
		ordered = append(ordered, valJSON...)
	}
	ordered = append(ordered, '}')
	return string(ordered)
}
