// Package cache memoizes pipeline output keyed by document digest, so a
// byte-identical re-submission skips the extraction work.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"threadsift/internal/extract"
)

type ResultCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewResultCache(redisURL string, ttl time.Duration) (*ResultCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewResultCacheWithClient(client, ttl), nil
}

// NewResultCacheWithClient creates a cache from an existing Redis client
func NewResultCacheWithClient(client *redis.Client, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ResultCache{
		client: client,
		prefix: "extract:",
		ttl:    ttl,
	}
}

func (c *ResultCache) key(documentSHA string) string {
	return c.prefix + documentSHA
}

// Get returns the cached pipeline result for a document digest. The second
// return is false on a miss.
func (c *ResultCache) Get(ctx context.Context, documentSHA string) (extract.Result, bool, error) {
	raw, err := c.client.Get(ctx, c.key(documentSHA)).Bytes()
	if err == redis.Nil {
		return extract.Result{}, false, nil
	}
	if err != nil {
		return extract.Result{}, false, fmt.Errorf("get cached result: %w", err)
	}

	// UseNumber keeps opaque comment ids exact through the round trip;
	// plain Unmarshal would widen them to float64.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var result extract.Result
	if err := dec.Decode(&result); err != nil {
		return extract.Result{}, false, fmt.Errorf("decode cached result: %w", err)
	}
	return result, true, nil
}

func (c *ResultCache) Put(ctx context.Context, documentSHA string, result extract.Result) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := c.client.Set(ctx, c.key(documentSHA), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("save cached result: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *ResultCache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable
func (c *ResultCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
