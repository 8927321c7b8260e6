package cache

import (
	"context"
	"errors"
)

// ErrNotFound indicates the requested slot has no stored variants.
// Backends may return it from Get; callers treat it the same as an
// empty result.
var ErrNotFound = errors.New("cache entry not found")

// Manager is the storage contract the caching layer consumes. A slot
// (identified by Key.String()) holds one or more encoded variants keyed
// by their Vary sub-key. Implementations must be safe for concurrent
// use; no ordering is guaranteed beyond read-your-last-write per key
// from a single caller. Eviction policy is the backend's concern.
type Manager interface {
	// Get returns every encoded variant stored under the slot.
	// A missing slot yields an empty slice (or ErrNotFound); neither is
	// a failure.
	Get(ctx context.Context, key string) ([][]byte, error)

	// Put stores an encoded variant under the slot and its Vary sub-key,
	// replacing any previous variant with the same sub-key. The write is
	// atomic: readers see either the old bytes or the new ones.
	Put(ctx context.Context, key, variant string, data []byte) error

	// Delete removes the slot and all its variants.
	Delete(ctx context.Context, key string) error
}
