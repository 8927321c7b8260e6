package cache

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Key identifies a cache slot: one request method plus one normalized
// URI. Two requests with the same method and URI share a slot; request
// headers never contribute (variants within a slot are split by the
// Vary sub-key instead).
type Key struct {
	// Method is the request method, uppercased.
	Method string

	// URI is the normalized request URI: scheme and host lowercased,
	// path and query preserved verbatim (query order is significant).
	URI string
}

// NewKey builds the cache key for a request method and URL.
// It is pure and deterministic; there are no error conditions.
func NewKey(method string, u *url.URL) Key {
	norm := *u
	norm.Scheme = strings.ToLower(norm.Scheme)
	norm.Host = strings.ToLower(norm.Host)
	norm.Fragment = ""
	norm.User = nil
	return Key{
		Method: strings.ToUpper(method),
		URI:    norm.String(),
	}
}

// String returns the deterministic slot identifier.
// Format: method:uri, e.g. "GET:https://example.com/a?b=1".
func (k Key) String() string {
	return k.Method + ":" + k.URI
}

// VariantKey derives the secondary identifier that disambiguates stored
// variants under one slot. It serializes the request's values for each
// header named in the stored response's Vary list, sorted by name so the
// result is deterministic. It returns ok=false for a Vary containing
// "*", which by definition matches no request. An empty Vary list
// yields the empty key: exactly one variant per slot.
func VariantKey(vary []string, reqHeader http.Header) (string, bool) {
	if len(vary) == 0 {
		return "", true
	}
	names := make([]string, 0, len(vary))
	for _, name := range vary {
		if name == "*" {
			return "", false
		}
		names = append(names, strings.ToLower(name))
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(strings.Join(reqHeader.Values(http.CanonicalHeaderKey(name)), ", "))
	}
	return b.String(), true
}
