package policy

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Cache-Control directive names understood by the policy engine.
const (
	DirectiveMaxAge               = "max-age"
	DirectiveSMaxAge              = "s-maxage"
	DirectiveNoCache              = "no-cache"
	DirectiveNoStore              = "no-store"
	DirectivePrivate              = "private"
	DirectivePublic               = "public"
	DirectiveMustRevalidate       = "must-revalidate"
	DirectiveProxyRevalidate      = "proxy-revalidate"
	DirectiveImmutable            = "immutable"
	DirectiveOnlyIfCached         = "only-if-cached"
	DirectiveStaleWhileRevalidate = "stale-while-revalidate"
	DirectiveStaleIfError         = "stale-if-error"
)

// CacheControl holds the parsed directives of a Cache-Control header.
// Directive names are lowercased; valueless directives map to "".
type CacheControl map[string]string

// ParseCacheControl parses one or more Cache-Control header lines.
// When a directive appears more than once, the first occurrence wins.
// Malformed input never produces an error: unparseable parts are skipped,
// which makes the directive look absent to every downstream rule.
func ParseCacheControl(values []string) CacheControl {
	cc := make(CacheControl)
	for _, line := range values {
		for _, part := range strings.Split(line, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			name, value, _ := strings.Cut(part, "=")
			name = strings.ToLower(strings.TrimSpace(name))
			value = strings.Trim(strings.TrimSpace(value), `"`)
			if _, seen := cc[name]; seen {
				continue
			}
			cc[name] = value
		}
	}
	return cc
}

// ParseRequestCacheControl parses the Cache-Control header of a request,
// folding in the HTTP/1.0 "Pragma: no-cache" compatibility rule.
func ParseRequestCacheControl(h http.Header) CacheControl {
	cc := ParseCacheControl(h.Values("Cache-Control"))
	if len(cc) == 0 && strings.EqualFold(h.Get("Pragma"), "no-cache") {
		cc[DirectiveNoCache] = ""
	}
	return cc
}

// Has reports whether the directive is present, with or without a value.
func (cc CacheControl) Has(directive string) bool {
	_, ok := cc[directive]
	return ok
}

// Duration returns the directive's value interpreted as a number of
// seconds. Malformed values (non-integer, negative) report absence,
// per the "treated as directive absent" error policy.
func (cc CacheControl) Duration(directive string) (time.Duration, bool) {
	raw, ok := cc[directive]
	if !ok || raw == "" {
		return 0, false
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
