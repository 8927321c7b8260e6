package client

// Cache status headers added to every response that passed through the
// caching transport on a cacheable method.
const (
	// HeaderCacheStatus reports how the response was produced.
	HeaderCacheStatus = "X-Cache"

	// HeaderCacheKey reports the slot key the request mapped to.
	HeaderCacheKey = "X-Cache-Key"
)

// Values of HeaderCacheStatus.
const (
	// StatusHit: served from the store without contacting the origin.
	StatusHit = "hit"

	// StatusMiss: served from the network.
	StatusMiss = "miss"

	// StatusRevalidated: stale entry confirmed by a 304 and served.
	StatusRevalidated = "revalidated"

	// StatusStale: stale entry served, either ahead of a background
	// revalidation or as a stale-if-error fallback.
	StatusStale = "stale"
)
