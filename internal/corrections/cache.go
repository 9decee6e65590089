package corrections

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/joseph-ayodele/lab-report-parser/constants"
)

// missMarker is cached for lookups that found nothing so they are not repeated every parse.
const missMarker = "\x00"

// CachedStore is a read-through redis cache in front of another Store. Concurrent
// lookups of the same key are coalesced. Redis failures fall through to the store.
type CachedStore struct {
	next   Store
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	group  singleflight.Group
	logger *slog.Logger

	// learns counts successful Learn calls. A lookup that raced a Learn drops what it cached.
	learns atomic.Uint64
}

func NewCachedStore(next Store, rdb redis.Cmdable, ttl time.Duration, prefix string, logger *slog.Logger) *CachedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{next: next, rdb: rdb, ttl: ttl, prefix: prefix, logger: logger}
}

// CacheKey is the redis key for a lookup of text under typ.
func CacheKey(prefix string, typ constants.CorrectionType, text string) string {
	sum := sha256.Sum256([]byte(text))
	return prefix + string(typ) + ":" + hex.EncodeToString(sum[:16])
}

func (c *CachedStore) BestCorrection(ctx context.Context, text string, typ constants.CorrectionType) (string, bool, error) {
	if text == "" {
		return "", false, nil
	}
	key := CacheKey(c.prefix, typ, text)

	v, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if v == missMarker {
			return "", false, nil
		}
		return v, true, nil
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("corrections.cache.get.failed", "key", key, "error", err)
	}

	type answer struct {
		value string
		found bool
	}
	res, err, _ := c.group.Do(key, func() (any, error) {
		gen := c.learns.Load()
		value, found, err := c.next.BestCorrection(ctx, text, typ)
		if err != nil {
			return nil, err
		}
		cached := missMarker
		if found {
			cached = value
		}
		if err := c.rdb.Set(ctx, key, cached, c.ttl).Err(); err != nil {
			c.logger.Warn("corrections.cache.set.failed", "key", key, "error", err)
		} else if c.learns.Load() != gen {
			c.invalidate(ctx, key)
		}
		return answer{value, found}, nil
	})
	if err != nil {
		return "", false, err
	}
	a := res.(answer)
	return a.value, a.found, nil
}

// Learn delegates to the wrapped store and drops the cached answer for original.
// Similar-text answers for other keys age out with the TTL.
func (c *CachedStore) Learn(ctx context.Context, original, corrected string, typ constants.CorrectionType) (bool, error) {
	learned, err := c.next.Learn(ctx, original, corrected, typ)
	if err != nil || !learned {
		return learned, err
	}
	c.learns.Add(1)
	key := CacheKey(c.prefix, typ, original)
	c.group.Forget(key)
	c.invalidate(ctx, key)
	return true, nil
}

func (c *CachedStore) invalidate(ctx context.Context, key string) {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("corrections.cache.invalidate.failed", "key", key, "error", err)
	}
}
