// Package cache keeps recently minted read URLs in Redis so listing a page of
// media does not re-sign every object on every request.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Key pattern: media:url:{storage key}
const keyPrefix = "media:url:"

// URLCache stores presigned GET URLs keyed by storage key.
type URLCache struct {
	client *goredis.Client
}

// NewURLCache wraps an existing client.
func NewURLCache(client *goredis.Client) *URLCache {
	return &URLCache{client: client}
}

// Connect builds a client for addr and checks it answers.
func Connect(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

func cacheKey(storageKey string) string { return keyPrefix + storageKey }

// Get returns the cached URL for storageKey. A miss is ("", false, nil).
func (c *URLCache) Get(ctx context.Context, storageKey string) (string, bool, error) {
	url, err := c.client.Get(ctx, cacheKey(storageKey)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get cached url: %w", err)
	}
	return url, true, nil
}

// Set stores url for storageKey for ttl.
func (c *URLCache) Set(ctx context.Context, storageKey, url string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, cacheKey(storageKey), url, ttl).Err(); err != nil {
		return fmt.Errorf("cache url: %w", err)
	}
	return nil
}

// Delete evicts the URLs of the given storage keys.
func (c *URLCache) Delete(ctx context.Context, storageKeys ...string) error {
	if len(storageKeys) == 0 {
		return nil
	}
	keys := make([]string, len(storageKeys))
	for i, k := range storageKeys {
		keys[i] = cacheKey(k)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("evict urls: %w", err)
	}
	return nil
}

// EntryTTL is how long a URL signed for urlTTL may be served from the cache.
// It keeps a tenth of the lifetime, capped at five minutes, as margin so a
// cached URL never reaches a client about to expire.
func EntryTTL(urlTTL time.Duration) time.Duration {
	margin := urlTTL / 10
	if margin > 5*time.Minute {
		margin = 5 * time.Minute
	}
	return urlTTL - margin
}
