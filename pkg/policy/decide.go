package policy

import (
	"net/http"
	"strings"
	"time"
)

// Action is the caching decision for one request against one stored
// response.
type Action int

const (
	// ActionBypass skips the cache entirely: no lookup, no store.
	ActionBypass Action = iota

	// ActionFresh serves the stored response as-is, no network call.
	ActionFresh

	// ActionStaleMustRevalidate requires contacting the origin
	// (conditionally when validators exist) before anything is served.
	ActionStaleMustRevalidate

	// ActionStaleRevalidate serves the stale stored response immediately
	// and revalidates in the background.
	ActionStaleRevalidate

	// ActionMiss forwards the request; the result is stored if cacheable.
	ActionMiss
)

// String returns the action name for logging.
func (a Action) String() string {
	switch a {
	case ActionBypass:
		return "bypass"
	case ActionFresh:
		return "fresh"
	case ActionStaleMustRevalidate:
		return "stale-must-revalidate"
	case ActionStaleRevalidate:
		return "stale-revalidate"
	case ActionMiss:
		return "miss"
	}
	return "unknown"
}

// Decide maps a stored response's policy and an incoming request onto a
// cache action at the given instant. The caller has already established
// that a stored entry exists and matches the request's Vary sub-key;
// absence of an entry is a miss before this function is consulted.
func (p Policy) Decide(reqHeader http.Header, now time.Time) Action {
	reqCC := ParseRequestCacheControl(reqHeader)
	if reqCC.Has(DirectiveNoStore) {
		return ActionBypass
	}
	if reqCC.Has(DirectiveNoCache) {
		if p.HasValidator() {
			return ActionStaleMustRevalidate
		}
		return ActionMiss
	}

	fresh := p.IsFresh(now)
	if maxAge, ok := reqCC.Duration(DirectiveMaxAge); ok {
		// The client caps the acceptable age below the response's own
		// freshness lifetime.
		if p.CurrentAge(now) >= maxAge {
			fresh = false
		}
	}
	if fresh {
		return ActionFresh
	}

	if !p.MustRevalidate && !p.NoCache && p.HasStaleWhileRevalidate {
		if p.CurrentAge(now) < p.FreshnessLifetime+p.StaleWhileRevalidate {
			return ActionStaleRevalidate
		}
	}
	if p.HasValidator() {
		return ActionStaleMustRevalidate
	}
	return ActionMiss
}

// ConditionalRequest clones the request and attaches the stored
// response's validators: If-None-Match for an ETag, If-Modified-Since
// for Last-Modified. Both are sent when both exist; the origin checks
// the ETag first. All other request headers pass through unchanged.
func (p Policy) ConditionalRequest(req *http.Request) *http.Request {
	out := req.Clone(req.Context())
	if p.ETag != "" {
		out.Header.Set("If-None-Match", p.ETag)
	}
	if !p.LastModified.IsZero() {
		out.Header.Set("If-Modified-Since", p.LastModified.UTC().Format(http.TimeFormat))
	}
	return out
}

// mergeExcluded lists the fields never overwritten by a 304: the
// hop-by-hop transmission metadata of the revalidation response plus
// Content-Length, which describes the (absent) 304 body rather than the
// stored one (RFC 9111 §3.2).
var mergeExcluded = map[string]bool{
	"Connection":          true,
	"Content-Length":      true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// MergeHeaders folds the headers of a 304 revalidation response into a
// stored response's headers: every field present in the 304 replaces the
// stored field of the same name, all other stored fields survive.
func MergeHeaders(stored, revalidation http.Header) http.Header {
	merged := stored.Clone()
	if merged == nil {
		merged = make(http.Header)
	}
	for name, values := range revalidation {
		if mergeExcluded[http.CanonicalHeaderKey(name)] {
			continue
		}
		merged[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	return merged
}

// Vary parses a Vary header into its header-name list, trimmed and
// lowercased. A "*" member is returned as-is; it never matches.
func Vary(respHeader http.Header) []string {
	var names []string
	for _, line := range respHeader.Values("Vary") {
		for _, name := range strings.Split(line, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}
