package cache

import (
	"context"
	"time"
)

// BytesCache is a best-effort key/value cache. A miss is (nil, false, nil).
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// SetIfNewer writes value unless the key already holds a higher version.
	SetIfNewer(ctx context.Context, key string, version int64, value []byte, ttl time.Duration) (bool, error)
}

// RateLimiter counts hits for key inside a fixed window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}
