package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when a key is absent or has expired.
var ErrMiss = errors.New("cache: key not found")

// Store is the key-value cache used for refresh-token sessions and the
// featured-products snapshot. A ttl of zero means no expiry.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}
