package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/midcache/midcache/pkg/policy"
)

// Entry is one stored response variant: status, headers, body, the
// request headers needed for Vary matching, and the freshness policy
// snapshot derived at store time. Entries are never mutated in place;
// revalidation builds a replacement via Reconcile.
type Entry struct {
	// StatusCode of the stored response.
	StatusCode int `json:"status_code"`

	// Header holds the stored response headers, duplicates preserved.
	Header http.Header `json:"header"`

	// Body is the stored response body.
	Body []byte `json:"body"`

	// ReqHeader is the subset of the originating request's headers named
	// by the response's Vary field, kept for variant matching.
	ReqHeader http.Header `json:"req_header,omitempty"`

	// Policy is the freshness snapshot derived from Header at store time.
	Policy policy.Policy `json:"policy"`

	// StoredAt is when the entry was written.
	StoredAt time.Time `json:"stored_at"`
}

// NewEntry captures a response received between requestTime and
// responseTime into a cache entry. The response body is fully read and
// then restored so the caller can still consume it.
func NewEntry(req *http.Request, resp *http.Response, requestTime, responseTime time.Time, opts policy.Options) (*Entry, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}

	var body []byte
	if resp.Body != nil {
		var err error
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(body))
	}

	entry := &Entry{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		Policy:     policy.Compute(requestTime, responseTime, resp.Header, opts),
		StoredAt:   responseTime,
	}

	// Keep only the request headers the Vary matching will consult.
	for _, name := range policy.Vary(resp.Header) {
		if name == "*" {
			continue
		}
		canonical := http.CanonicalHeaderKey(name)
		if values, ok := req.Header[canonical]; ok {
			if entry.ReqHeader == nil {
				entry.ReqHeader = make(http.Header)
			}
			entry.ReqHeader[canonical] = append([]string(nil), values...)
		}
	}

	return entry, nil
}

// Vary returns the stored response's Vary header-name list.
func (e *Entry) Vary() []string {
	return policy.Vary(e.Header)
}

// VariantKey returns the entry's own Vary sub-key, computed from the
// request headers captured at store time.
func (e *Entry) VariantKey() (string, bool) {
	return VariantKey(e.Vary(), e.ReqHeader)
}

// Matches reports whether a new request selects this variant: the
// request must produce the same Vary sub-key the entry was stored under.
func (e *Entry) Matches(reqHeader http.Header) bool {
	stored, ok := e.VariantKey()
	if !ok {
		return false
	}
	incoming, ok := VariantKey(e.Vary(), reqHeader)
	if !ok {
		return false
	}
	return stored == incoming
}

// Response synthesizes an http.Response from the entry for the given
// request. The Age header reflects the entry's current age at the given
// instant. The body is an independent reader over the stored bytes.
func (e *Entry) Response(req *http.Request, now time.Time) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	age := int64(e.Policy.CurrentAge(now) / time.Second)
	header.Set("Age", strconv.FormatInt(age, 10))

	return &http.Response{
		StatusCode:    e.StatusCode,
		Status:        fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode)),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// Reconcile merges a revalidation response into the stored entry,
// producing the replacement entry. A 304 keeps the stored body and
// status, overlays every header present in the 304 (transmission
// metadata excepted), and resets the freshness window from the merged
// headers and the new exchange timestamps. Any other status is the
// caller's signal to replace the entry wholesale via NewEntry instead.
func Reconcile(stored *Entry, resp *http.Response, requestTime, responseTime time.Time, opts policy.Options) *Entry {
	merged := policy.MergeHeaders(stored.Header, resp.Header)
	return &Entry{
		StatusCode: stored.StatusCode,
		Header:     merged,
		Body:       stored.Body,
		ReqHeader:  stored.ReqHeader,
		Policy:     policy.Compute(requestTime, responseTime, merged, opts),
		StoredAt:   responseTime,
	}
}
