// Package kv is the degraded, non-transactional storage backend. It keeps
// tasks, queued mutations and metadata as individual keys in a Driver and
// applies batches one key at a time.
package kv

import (
	"context"
)

// Driver is a minimal key/value store. Implementations need not support
// transactions; each call is atomic on its own key only.
type Driver interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys returns every key with the given prefix in ascending order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}
