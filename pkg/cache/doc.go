// Package cache defines the data model of the caching layer: slot keys
// and Vary sub-keys, the stored entry with its policy snapshot, the
// versioned entry codec, and the Manager contract storage backends
// implement.
//
// # Keys and variants
//
// A Key names a slot (method + normalized URI). Multiple variants of
// one resource live under a single slot, split by the Vary sub-key
// computed from the request headers the stored response declared
// significant:
//
//	key := cache.NewKey("GET", req.URL)
//	variant, ok := cache.VariantKey(entry.Vary(), req.Header)
//
// Absent a Vary header the sub-key is empty and a slot holds exactly
// one variant.
//
// # Entries and the codec
//
//	entry, err := cache.NewEntry(req, resp, reqTime, respTime, opts)
//	data, err := entry.Encode()
//	entry, err = cache.Decode(data)
//
// Encoding is versioned by a leading format byte. Decode of an unknown
// version fails with ErrUnsupportedVersion, which consumers treat as a
// cache miss, never as a fatal error.
//
// # Backends
//
// Reference Manager implementations live in the subpackages memcache
// (bounded in-memory), diskcache (content-addressable persistent),
// rediscache (Redis hash per slot), and sqlitecache (SQLite).
package cache
