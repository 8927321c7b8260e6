package policy

import (
	"net/http"
	"testing"
	"time"
)

var testBase = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// respHeader builds a response header with a Date field and the given
// extra fields as key/value pairs.
func respHeader(date time.Time, kv ...string) http.Header {
	h := http.Header{}
	if !date.IsZero() {
		h.Set("Date", date.UTC().Format(http.TimeFormat))
	}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Add(kv[i], kv[i+1])
	}
	return h
}

func TestComputeFreshnessPrecedence(t *testing.T) {
	expires := testBase.Add(10 * time.Minute)
	tests := []struct {
		name   string
		header http.Header
		opts   Options
		want   time.Duration
	}{
		{
			name:   "s-maxage wins for shared caches",
			header: respHeader(testBase, "Cache-Control", "s-maxage=120, max-age=60", "Expires", expires.Format(http.TimeFormat)),
			opts:   Options{Shared: true},
			want:   120 * time.Second,
		},
		{
			name:   "s-maxage ignored by private caches",
			header: respHeader(testBase, "Cache-Control", "s-maxage=120, max-age=60"),
			opts:   Options{Shared: false},
			want:   60 * time.Second,
		},
		{
			name:   "max-age beats Expires",
			header: respHeader(testBase, "Cache-Control", "max-age=60", "Expires", expires.Format(http.TimeFormat)),
			opts:   Options{Shared: true},
			want:   60 * time.Second,
		},
		{
			name:   "Expires minus Date",
			header: respHeader(testBase, "Expires", expires.Format(http.TimeFormat)),
			opts:   Options{Shared: true},
			want:   10 * time.Minute,
		},
		{
			name:   "Expires in the past yields zero",
			header: respHeader(testBase, "Expires", testBase.Add(-time.Hour).Format(http.TimeFormat)),
			opts:   Options{Shared: true},
			want:   0,
		},
		{
			name:   "malformed Expires treated as absent",
			header: respHeader(testBase, "Expires", "not-a-date"),
			opts:   Options{Shared: true},
			want:   0,
		},
		{
			name:   "malformed max-age treated as absent, Expires used",
			header: respHeader(testBase, "Cache-Control", "max-age=banana", "Expires", expires.Format(http.TimeFormat)),
			opts:   Options{Shared: true},
			want:   10 * time.Minute,
		},
		{
			name:   "no explicit expiration without heuristic",
			header: respHeader(testBase, "Last-Modified", testBase.Add(-10*time.Hour).Format(http.TimeFormat)),
			opts:   Options{Shared: true, Heuristic: false},
			want:   0,
		},
		{
			name:   "heuristic fraction of Date minus Last-Modified",
			header: respHeader(testBase, "Last-Modified", testBase.Add(-10*time.Hour).Format(http.TimeFormat)),
			opts:   Options{Shared: true, Heuristic: true, HeuristicFraction: 0.1, HeuristicMax: 24 * time.Hour},
			want:   time.Hour,
		},
		{
			name:   "heuristic capped",
			header: respHeader(testBase, "Last-Modified", testBase.Add(-100*24*time.Hour).Format(http.TimeFormat)),
			opts:   Options{Shared: true, Heuristic: true, HeuristicFraction: 0.1, HeuristicMax: 24 * time.Hour},
			want:   24 * time.Hour,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Compute(testBase, testBase, tt.header, tt.opts)
			if p.FreshnessLifetime != tt.want {
				t.Errorf("FreshnessLifetime = %v, want %v", p.FreshnessLifetime, tt.want)
			}
		})
	}
}

func TestComputeDirectiveFlags(t *testing.T) {
	h := respHeader(testBase,
		"Cache-Control", "no-cache, must-revalidate, private, immutable",
		"ETag", `"v1"`,
	)
	p := Compute(testBase, testBase, h, DefaultOptions())
	if !p.NoCache || !p.MustRevalidate || !p.Private || !p.Immutable {
		t.Errorf("flags = no-cache:%v must-revalidate:%v private:%v immutable:%v, want all true",
			p.NoCache, p.MustRevalidate, p.Private, p.Immutable)
	}
	if p.ETag != `"v1"` {
		t.Errorf("ETag = %q, want %q", p.ETag, `"v1"`)
	}
}

func TestComputeProxyRevalidate(t *testing.T) {
	h := respHeader(testBase, "Cache-Control", "proxy-revalidate, max-age=60")

	shared := Compute(testBase, testBase, h, Options{Shared: true})
	if !shared.MustRevalidate {
		t.Error("proxy-revalidate should force revalidation in a shared cache")
	}
	private := Compute(testBase, testBase, h, Options{Shared: false})
	if private.MustRevalidate {
		t.Error("proxy-revalidate should be ignored by private caches")
	}
}

func TestComputeMissingDateFallsBackToResponseTime(t *testing.T) {
	p := Compute(testBase, testBase.Add(time.Second), http.Header{}, DefaultOptions())
	if !p.Date.Equal(testBase.Add(time.Second)) {
		t.Errorf("Date = %v, want response time %v", p.Date, testBase.Add(time.Second))
	}
}

func TestCurrentAge(t *testing.T) {
	tests := []struct {
		name      string
		date      time.Time
		reqTime   time.Time
		respTime  time.Time
		ageHeader string
		at        time.Time
		want      time.Duration
	}{
		{
			name:     "resident time only",
			date:     testBase,
			reqTime:  testBase,
			respTime: testBase,
			at:       testBase.Add(30 * time.Second),
			want:     30 * time.Second,
		},
		{
			name:      "age header adds offset",
			date:      testBase,
			reqTime:   testBase,
			respTime:  testBase,
			ageHeader: "10",
			at:        testBase.Add(30 * time.Second),
			want:      40 * time.Second,
		},
		{
			name:     "apparent age from Date skew",
			date:     testBase.Add(-20 * time.Second),
			reqTime:  testBase,
			respTime: testBase,
			at:       testBase,
			want:     20 * time.Second,
		},
		{
			name:     "response delay counts toward age",
			date:     testBase,
			reqTime:  testBase,
			respTime: testBase.Add(5 * time.Second),
			at:       testBase.Add(5 * time.Second),
			want:     5 * time.Second,
		},
		{
			name:     "clock skew never yields negative age",
			date:     testBase.Add(time.Hour),
			reqTime:  testBase,
			respTime: testBase,
			at:       testBase,
			want:     0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := respHeader(tt.date)
			if tt.ageHeader != "" {
				h.Set("Age", tt.ageHeader)
			}
			p := Compute(tt.reqTime, tt.respTime, h, DefaultOptions())
			if got := p.CurrentAge(tt.at); got != tt.want {
				t.Errorf("CurrentAge() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsFreshBoundary(t *testing.T) {
	h := respHeader(testBase, "Cache-Control", "max-age=60")
	p := Compute(testBase, testBase, h, DefaultOptions())

	if !p.IsFresh(testBase.Add(59 * time.Second)) {
		t.Error("age 59s of 60s lifetime should be fresh")
	}
	if p.IsFresh(testBase.Add(60 * time.Second)) {
		t.Error("age exactly equal to lifetime should be stale")
	}
	if p.IsFresh(testBase.Add(61 * time.Second)) {
		t.Error("age 61s of 60s lifetime should be stale")
	}
}

func TestIsFreshNoCache(t *testing.T) {
	h := respHeader(testBase, "Cache-Control", "no-cache, max-age=3600")
	p := Compute(testBase, testBase, h, DefaultOptions())
	if p.IsFresh(testBase) {
		t.Error("no-cache should never be served without revalidation")
	}
}

func TestStorable(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		want   bool
	}{
		{"fresh window", respHeader(testBase, "Cache-Control", "max-age=60"), true},
		{"validator only", respHeader(testBase, "ETag", `"v1"`), true},
		{"last-modified only", respHeader(testBase, "Last-Modified", testBase.Format(http.TimeFormat)), true},
		{"stale-while-revalidate window", respHeader(testBase, "Cache-Control", "max-age=0, stale-while-revalidate=30"), true},
		{"nothing usable", respHeader(testBase), false},
		{"no-store wins", respHeader(testBase, "Cache-Control", "no-store, max-age=60"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Compute(testBase, testBase, tt.header, DefaultOptions())
			if got := p.Storable(); got != tt.want {
				t.Errorf("Storable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAllowsStaleOnError(t *testing.T) {
	tests := []struct {
		name   string
		cc     string
		at     time.Duration
		want   bool
	}{
		{"within window", "max-age=60, stale-if-error=60", 90 * time.Second, true},
		{"past window", "max-age=60, stale-if-error=60", 130 * time.Second, false},
		{"valueless accepts any staleness", "max-age=60, stale-if-error", 24 * 365 * time.Hour, true},
		{"absent directive", "max-age=60", 90 * time.Second, false},
		{"must-revalidate forbids stale", "max-age=60, stale-if-error=60, must-revalidate", 90 * time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := respHeader(testBase, "Cache-Control", tt.cc)
			p := Compute(testBase, testBase, h, DefaultOptions())
			if got := p.AllowsStaleOnError(testBase.Add(tt.at)); got != tt.want {
				t.Errorf("AllowsStaleOnError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsCacheable(t *testing.T) {
	okHeader := respHeader(testBase, "Cache-Control", "max-age=60")
	tests := []struct {
		name   string
		method string
		status int
		req    http.Header
		resp   http.Header
		opts   Options
		want   bool
	}{
		{"GET 200", http.MethodGet, 200, http.Header{}, okHeader, DefaultOptions(), true},
		{"HEAD 200", http.MethodHead, 200, http.Header{}, okHeader, DefaultOptions(), true},
		{"GET 404", http.MethodGet, 404, http.Header{}, okHeader, DefaultOptions(), true},
		{"GET 301", http.MethodGet, 301, http.Header{}, okHeader, DefaultOptions(), true},
		{"POST never", http.MethodPost, 200, http.Header{}, okHeader, DefaultOptions(), false},
		{"PUT never", http.MethodPut, 200, http.Header{}, okHeader, DefaultOptions(), false},
		{"GET 500", http.MethodGet, 500, http.Header{}, okHeader, DefaultOptions(), false},
		{"GET 206 partial", http.MethodGet, 206, http.Header{}, okHeader, DefaultOptions(), false},
		{
			"response no-store",
			http.MethodGet, 200, http.Header{},
			respHeader(testBase, "Cache-Control", "no-store"),
			DefaultOptions(), false,
		},
		{
			"request no-store",
			http.MethodGet, 200,
			http.Header{"Cache-Control": {"no-store"}},
			okHeader, DefaultOptions(), false,
		},
		{
			"private refused by shared cache",
			http.MethodGet, 200, http.Header{},
			respHeader(testBase, "Cache-Control", "private, max-age=60"),
			Options{Shared: true}, false,
		},
		{
			"private accepted by private cache",
			http.MethodGet, 200, http.Header{},
			respHeader(testBase, "Cache-Control", "private, max-age=60"),
			Options{Shared: false}, true,
		},
		{
			"authorization refused by shared cache",
			http.MethodGet, 200,
			http.Header{"Authorization": {"Bearer token"}},
			okHeader, Options{Shared: true}, false,
		},
		{
			"authorization allowed with public",
			http.MethodGet, 200,
			http.Header{"Authorization": {"Bearer token"}},
			respHeader(testBase, "Cache-Control", "public, max-age=60"),
			Options{Shared: true}, true,
		},
		{
			"authorization allowed with s-maxage",
			http.MethodGet, 200,
			http.Header{"Authorization": {"Bearer token"}},
			respHeader(testBase, "Cache-Control", "s-maxage=60"),
			Options{Shared: true}, true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsCacheable(tt.method, tt.status, tt.req, tt.resp, tt.opts)
			if got != tt.want {
				t.Errorf("IsCacheable(%s, %d) = %v, want %v", tt.method, tt.status, got, tt.want)
			}
		})
	}
}

func TestForbidsStorage(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		opts   Options
		want   bool
	}{
		{"no-store", respHeader(testBase, "Cache-Control", "no-store"), Options{Shared: true}, true},
		{"private in shared cache", respHeader(testBase, "Cache-Control", "private"), Options{Shared: true}, true},
		{"private in private cache", respHeader(testBase, "Cache-Control", "private"), Options{Shared: false}, false},
		{"plain response", respHeader(testBase), Options{Shared: true}, false},
		{"cacheable directives", respHeader(testBase, "Cache-Control", "max-age=60"), Options{Shared: true}, false},
		{"no-cache does not forbid holding", respHeader(testBase, "Cache-Control", "no-cache"), Options{Shared: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ForbidsStorage(tt.header, tt.opts); got != tt.want {
				t.Errorf("ForbidsStorage() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsUnsafeMethod(t *testing.T) {
	unsafe := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}
	for _, m := range unsafe {
		if !IsUnsafeMethod(m) {
			t.Errorf("IsUnsafeMethod(%s) = false, want true", m)
		}
	}
	safe := []string{http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace}
	for _, m := range safe {
		if IsUnsafeMethod(m) {
			t.Errorf("IsUnsafeMethod(%s) = true, want false", m)
		}
	}
}
