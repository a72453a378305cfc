package cache

import (
	"context"
	"time"

	"shopdash/internal/logger"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL         = 5 * time.Minute
	DefaultLoadTimeout = 30 * time.Second
)

// Cache is a read-through cache over a Store. Store errors are logged and
// treated as misses; they never fail a request.
type Cache struct {
	store       Store
	ttl         time.Duration
	loadTimeout time.Duration
	group       singleflight.Group
}

func New(store Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl, loadTimeout: DefaultLoadTimeout}
}

// GetOrLoad returns the cached bytes for key, or calls load and stores its
// result when load succeeds. hit reports whether the store answered.
func (c *Cache) GetOrLoad(ctx context.Context, key string, load func(context.Context) ([]byte, error)) (val []byte, hit bool, err error) {
	if b, ok, err := c.store.Get(ctx, key); err != nil {
		logger.Warn(ctx).Err(err).Str("cache_key", key).Msg("cache get failed")
	} else if ok {
		logger.Debug(ctx).Str("cache_key", key).Msg("cache hit")
		return b, true, nil
	}

	// The shared load outlives any one caller; a cancelled caller only
	// stops waiting for it.
	ch := c.group.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		b, err := load(lctx)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(lctx, key, b, c.ttl); err != nil {
			logger.Warn(lctx).Err(err).Str("cache_key", key).Msg("cache set failed")
		}
		return b, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.([]byte), false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	return c.store.Delete(ctx, keys...)
}

// InvalidateAll drops every cached query page.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	logger.Info(ctx).Msg("cache cleared")
	return nil
}
