// Package policy implements the HTTP caching decision rules of RFC 9111
// as pure functions over request and response metadata. Nothing in this
// package reads the wall clock or performs I/O; callers supply every
// timestamp explicitly, which keeps the rules independently testable.
package policy

import (
	"net/http"
	"strconv"
	"time"
)

// Options tunes the parts of the caching rules that RFC 9111 leaves to
// the deployment.
type Options struct {
	// Shared marks the cache as shared. Shared caches refuse responses
	// carrying Cache-Control: private and honor s-maxage.
	Shared bool

	// Heuristic enables heuristic freshness (RFC 9111 §4.2.2) for
	// responses that carry no explicit expiration. When disabled such
	// responses get a zero freshness lifetime and are always stale.
	Heuristic bool

	// HeuristicFraction is the fraction of (Date - Last-Modified) used
	// as the heuristic freshness lifetime.
	HeuristicFraction float64

	// HeuristicMax caps the heuristic freshness lifetime.
	HeuristicMax time.Duration
}

// DefaultOptions returns the options of a shared cache with heuristic
// freshness disabled.
func DefaultOptions() Options {
	return Options{
		Shared:            true,
		Heuristic:         false,
		HeuristicFraction: 0.1,
		HeuristicMax:      24 * time.Hour,
	}
}

// Policy is the freshness snapshot derived from a response at store time.
// It is recomputed, never mutated: revalidation produces a new Policy from
// the reconciled headers.
type Policy struct {
	// FreshnessLifetime is how long the response stays fresh. Zero means
	// always stale (still usable for conditional revalidation when
	// validators are present).
	FreshnessLifetime time.Duration `json:"freshness_lifetime"`

	// RequestTime is when the request that produced the response was sent.
	RequestTime time.Time `json:"request_time"`

	// ResponseTime is when the response was received.
	ResponseTime time.Time `json:"response_time"`

	// Date is the origin's Date header value, or ResponseTime when the
	// header is missing or malformed.
	Date time.Time `json:"date"`

	// AgeOffset is the Age header value carried by the response, if any.
	AgeOffset time.Duration `json:"age_offset"`

	// Directive flags from the response's Cache-Control header.
	NoStore        bool `json:"no_store"`
	NoCache        bool `json:"no_cache"`
	MustRevalidate bool `json:"must_revalidate"`
	Private        bool `json:"private"`
	Immutable      bool `json:"immutable"`

	// Validators for conditional revalidation.
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified,omitempty"`

	// RFC 5861 extension windows. The Has* flags distinguish an absent
	// directive from an explicit zero.
	StaleWhileRevalidate    time.Duration `json:"stale_while_revalidate"`
	HasStaleWhileRevalidate bool          `json:"has_stale_while_revalidate"`
	StaleIfError            time.Duration `json:"stale_if_error"`
	HasStaleIfError         bool          `json:"has_stale_if_error"`
}

// Compute derives the freshness policy of a response received between
// requestTime and responseTime. Precedence: s-maxage (shared caches only),
// then max-age, then Expires minus Date, then the heuristic lifetime when
// enabled, otherwise zero.
func Compute(requestTime, responseTime time.Time, respHeader http.Header, opts Options) Policy {
	cc := ParseCacheControl(respHeader.Values("Cache-Control"))

	p := Policy{
		RequestTime:    requestTime,
		ResponseTime:   responseTime,
		NoStore:        cc.Has(DirectiveNoStore),
		NoCache:        cc.Has(DirectiveNoCache),
		MustRevalidate: cc.Has(DirectiveMustRevalidate),
		Private:        cc.Has(DirectivePrivate),
		Immutable:      cc.Has(DirectiveImmutable),
		ETag:           respHeader.Get("ETag"),
	}
	if opts.Shared && cc.Has(DirectiveProxyRevalidate) {
		p.MustRevalidate = true
	}

	p.Date = responseTime
	if date, err := http.ParseTime(respHeader.Get("Date")); err == nil {
		p.Date = date
	}
	if lm, err := http.ParseTime(respHeader.Get("Last-Modified")); err == nil {
		p.LastModified = lm
	}
	if age, ok := headerSeconds(respHeader, "Age"); ok {
		p.AgeOffset = age
	}

	p.FreshnessLifetime = freshnessLifetime(cc, respHeader, p, opts)

	if swr, ok := cc.Duration(DirectiveStaleWhileRevalidate); ok {
		p.StaleWhileRevalidate = swr
		p.HasStaleWhileRevalidate = true
	}
	if sie, ok := cc.Duration(DirectiveStaleIfError); ok {
		p.StaleIfError = sie
		p.HasStaleIfError = true
	} else if cc.Has(DirectiveStaleIfError) && cc[DirectiveStaleIfError] == "" {
		// Valueless stale-if-error accepts any stale response.
		p.StaleIfError = 0
		p.HasStaleIfError = true
	}

	return p
}

func freshnessLifetime(cc CacheControl, respHeader http.Header, p Policy, opts Options) time.Duration {
	if opts.Shared {
		if d, ok := cc.Duration(DirectiveSMaxAge); ok {
			return d
		}
	}
	if d, ok := cc.Duration(DirectiveMaxAge); ok {
		return d
	}
	if expires, err := http.ParseTime(respHeader.Get("Expires")); err == nil {
		d := expires.Sub(p.Date)
		if d < 0 {
			return 0
		}
		return d
	}
	if opts.Heuristic && !p.LastModified.IsZero() {
		d := time.Duration(float64(p.Date.Sub(p.LastModified)) * opts.HeuristicFraction)
		if d < 0 {
			return 0
		}
		if opts.HeuristicMax > 0 && d > opts.HeuristicMax {
			return opts.HeuristicMax
		}
		return d
	}
	return 0
}

// CurrentAge computes the response's age at the given instant, per
// RFC 9111 §4.2.3: the corrected initial age (Age header plus response
// delay, clamped against the apparent age) plus resident time. Clock skew
// never yields a negative age.
func (p Policy) CurrentAge(now time.Time) time.Duration {
	apparentAge := maxDuration(0, p.ResponseTime.Sub(p.Date))
	responseDelay := maxDuration(0, p.ResponseTime.Sub(p.RequestTime))
	correctedAge := p.AgeOffset + responseDelay
	initialAge := maxDuration(apparentAge, correctedAge)
	residentTime := maxDuration(0, now.Sub(p.ResponseTime))
	return initialAge + residentTime
}

// IsFresh reports whether the response may be served without
// revalidation at the given instant. The boundary is exclusive: a
// response aged exactly its freshness lifetime is stale. no-cache and
// must-revalidate force revalidation regardless of age, except that
// must-revalidate only bites once the response is actually stale.
func (p Policy) IsFresh(now time.Time) bool {
	if p.NoCache {
		return false
	}
	return p.CurrentAge(now) < p.FreshnessLifetime
}

// TimeToFresh returns how much freshness remains at the given instant,
// zero when stale.
func (p Policy) TimeToFresh(now time.Time) time.Duration {
	return maxDuration(0, p.FreshnessLifetime-p.CurrentAge(now))
}

// HasValidator reports whether the response carries an ETag or
// Last-Modified usable for conditional revalidation.
func (p Policy) HasValidator() bool {
	return p.ETag != "" || !p.LastModified.IsZero()
}

// Storable reports whether a cacheable response is worth writing to the
// store: it must either have a nonzero freshness window (including the
// stale-serving extensions) or carry a validator enabling revalidation.
func (p Policy) Storable() bool {
	if p.NoStore {
		return false
	}
	if p.FreshnessLifetime > 0 || p.HasValidator() {
		return true
	}
	return p.HasStaleWhileRevalidate && p.StaleWhileRevalidate > 0
}

// AllowsStaleOnError reports whether a stale response may substitute for
// a transport failure at the given instant (RFC 5861 stale-if-error).
// A valueless directive accepts any staleness.
func (p Policy) AllowsStaleOnError(now time.Time) bool {
	if !p.HasStaleIfError || p.MustRevalidate {
		return false
	}
	if p.StaleIfError == 0 {
		return true
	}
	return p.CurrentAge(now) < p.FreshnessLifetime+p.StaleIfError
}

// cacheableStatuses are the status codes cacheable by default
// (RFC 9110 §15.1). 206 is excluded: partial content is not combined.
var cacheableStatuses = map[int]bool{
	http.StatusOK:                   true,
	http.StatusNonAuthoritativeInfo: true,
	http.StatusNoContent:            true,
	http.StatusMultipleChoices:      true,
	http.StatusMovedPermanently:     true,
	http.StatusPermanentRedirect:    true,
	http.StatusNotFound:             true,
	http.StatusMethodNotAllowed:     true,
	http.StatusGone:                 true,
	http.StatusRequestURITooLong:    true,
	http.StatusNotImplemented:       true,
}

// IsCacheableMethod reports whether responses to the method are
// cacheable by default.
func IsCacheableMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// IsUnsafeMethod reports whether a method can change state on the origin
// and must therefore invalidate stored responses on success.
func IsUnsafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	}
	return true
}

// IsCacheable decides whether a request/response exchange may be stored.
// Only GET and HEAD responses with a cacheable status are stored, and
// never when either side forbids it with no-store (or, for shared
// caches, private or an uncovered Authorization header).
func IsCacheable(method string, status int, reqHeader, respHeader http.Header, opts Options) bool {
	if !IsCacheableMethod(method) {
		return false
	}
	if !cacheableStatuses[status] {
		return false
	}
	respCC := ParseCacheControl(respHeader.Values("Cache-Control"))
	if respCC.Has(DirectiveNoStore) {
		return false
	}
	reqCC := ParseRequestCacheControl(reqHeader)
	if reqCC.Has(DirectiveNoStore) {
		return false
	}
	if opts.Shared {
		if respCC.Has(DirectivePrivate) {
			return false
		}
		if reqHeader.Get("Authorization") != "" &&
			!respCC.Has(DirectivePublic) &&
			!respCC.Has(DirectiveMustRevalidate) &&
			!respCC.Has(DirectiveSMaxAge) {
			return false
		}
	}
	return true
}

// ForbidsStorage reports whether a response actively forbids caches
// from holding the resource: no-store, or private seen by a shared
// cache. A status that is merely not cacheable by default (a transient
// 5xx, say) does not forbid storage, so an already stored entry may
// survive it and still serve a later stale fallback.
func ForbidsStorage(respHeader http.Header, opts Options) bool {
	cc := ParseCacheControl(respHeader.Values("Cache-Control"))
	if cc.Has(DirectiveNoStore) {
		return true
	}
	return opts.Shared && cc.Has(DirectivePrivate)
}

func headerSeconds(h http.Header, name string) (time.Duration, bool) {
	raw := h.Get(name)
	if raw == "" {
		return 0, false
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
