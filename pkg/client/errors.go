package client

import "errors"

// ErrOnlyIfCached is the body of the synthesized 504 returned when an
// only-if-cached request cannot be satisfied from the store. Caching
// subsystem failures never surface as errors; per the degradation
// policy, only transport failures without a usable stale fallback reach
// the caller.
var ErrOnlyIfCached = errors.New("no cached response and network access disallowed")
