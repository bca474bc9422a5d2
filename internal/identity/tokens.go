package identity

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// FetchFunc obtains a fresh token and its cacheable lifetime.
type FetchFunc func(ctx context.Context) (token string, ttl time.Duration, err error)

// TokenSource caches the provider's service token in Redis and collapses
// concurrent fetches into one upstream request.
type TokenSource struct {
	cache    *redis.Client
	cacheKey string
	fetch    FetchFunc
	group    singleflight.Group
}

// NewTokenSource constructs a TokenSource. cache may be nil.
func NewTokenSource(cache *redis.Client, cacheKey string, fetch FetchFunc) *TokenSource {
	return &TokenSource{cache: cache, cacheKey: cacheKey, fetch: fetch}
}

// Token returns a valid service token, from cache when possible.
func (t *TokenSource) Token(ctx context.Context) (string, error) {
	if t.cache != nil {
		if cached, err := t.cache.Get(ctx, t.cacheKey).Result(); err == nil && cached != "" {
			return cached, nil
		}
	}

	resultChan := t.group.DoChan(t.cacheKey, func() (any, error) {
		token, ttl, err := t.fetch(ctx)
		if err != nil {
			return nil, err
		}
		if t.cache != nil {
			// A failed cache write only costs an extra fetch later.
			_ = t.cache.Set(ctx, t.cacheKey, token, ttl).Err()
		}
		return token, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached token, forcing the next call to fetch.
func (t *TokenSource) Invalidate(ctx context.Context) {
	if t.cache != nil {
		_ = t.cache.Del(ctx, t.cacheKey).Err()
	}
}
