package policy

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name string
		cc   string
		etag string
		req  http.Header
		at   time.Duration
		want Action
	}{
		{
			name: "fresh entry",
			cc:   "max-age=60",
			at:   30 * time.Second,
			want: ActionFresh,
		},
		{
			name: "stale with validator",
			cc:   "max-age=60",
			etag: `"v1"`,
			at:   90 * time.Second,
			want: ActionStaleMustRevalidate,
		},
		{
			name: "stale without validator",
			cc:   "max-age=60",
			at:   90 * time.Second,
			want: ActionMiss,
		},
		{
			name: "request no-store bypasses",
			cc:   "max-age=60",
			req:  http.Header{"Cache-Control": {"no-store"}},
			at:   10 * time.Second,
			want: ActionBypass,
		},
		{
			name: "request no-cache forces revalidation of fresh entry",
			cc:   "max-age=3600",
			etag: `"v1"`,
			req:  http.Header{"Cache-Control": {"no-cache"}},
			at:   10 * time.Second,
			want: ActionStaleMustRevalidate,
		},
		{
			name: "request no-cache without validator refetches",
			cc:   "max-age=3600",
			req:  http.Header{"Cache-Control": {"no-cache"}},
			at:   10 * time.Second,
			want: ActionMiss,
		},
		{
			name: "pragma no-cache forces revalidation",
			cc:   "max-age=3600",
			etag: `"v1"`,
			req:  http.Header{"Pragma": {"no-cache"}},
			at:   10 * time.Second,
			want: ActionStaleMustRevalidate,
		},
		{
			name: "request max-age caps freshness",
			cc:   "max-age=3600",
			etag: `"v1"`,
			req:  http.Header{"Cache-Control": {"max-age=30"}},
			at:   45 * time.Second,
			want: ActionStaleMustRevalidate,
		},
		{
			name: "request max-age satisfied",
			cc:   "max-age=3600",
			req:  http.Header{"Cache-Control": {"max-age=30"}},
			at:   10 * time.Second,
			want: ActionFresh,
		},
		{
			name: "response no-cache forces revalidation even when young",
			cc:   "no-cache, max-age=3600",
			etag: `"v1"`,
			at:   time.Second,
			want: ActionStaleMustRevalidate,
		},
		{
			name: "stale-while-revalidate serves stale",
			cc:   "max-age=60, stale-while-revalidate=30",
			etag: `"v1"`,
			at:   75 * time.Second,
			want: ActionStaleRevalidate,
		},
		{
			name: "stale-while-revalidate window exhausted",
			cc:   "max-age=60, stale-while-revalidate=30",
			etag: `"v1"`,
			at:   100 * time.Second,
			want: ActionStaleMustRevalidate,
		},
		{
			name: "must-revalidate disables stale-while-revalidate",
			cc:   "max-age=60, stale-while-revalidate=30, must-revalidate",
			etag: `"v1"`,
			at:   75 * time.Second,
			want: ActionStaleMustRevalidate,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := respHeader(testBase, "Cache-Control", tt.cc)
			if tt.etag != "" {
				h.Set("ETag", tt.etag)
			}
			p := Compute(testBase, testBase, h, DefaultOptions())
			req := tt.req
			if req == nil {
				req = http.Header{}
			}
			if got := p.Decide(req, testBase.Add(tt.at)); got != tt.want {
				t.Errorf("Decide() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConditionalRequest(t *testing.T) {
	lastModified := testBase.Add(-time.Hour)

	t.Run("etag only", func(t *testing.T) {
		p := Policy{ETag: `"v1"`}
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "https://example.com/a", nil)
		out := p.ConditionalRequest(req)
		if got := out.Header.Get("If-None-Match"); got != `"v1"` {
			t.Errorf("If-None-Match = %q, want %q", got, `"v1"`)
		}
		if out.Header.Get("If-Modified-Since") != "" {
			t.Error("If-Modified-Since should be absent without Last-Modified")
		}
		if req.Header.Get("If-None-Match") != "" {
			t.Error("original request must not be mutated")
		}
	})

	t.Run("both validators", func(t *testing.T) {
		p := Policy{ETag: `"v1"`, LastModified: lastModified}
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "https://example.com/a", nil)
		out := p.ConditionalRequest(req)
		if out.Header.Get("If-None-Match") == "" || out.Header.Get("If-Modified-Since") == "" {
			t.Error("both validators should be attached when both exist")
		}
		if got := out.Header.Get("If-Modified-Since"); got != lastModified.UTC().Format(http.TimeFormat) {
			t.Errorf("If-Modified-Since = %q", got)
		}
	})
}

func TestMergeHeaders(t *testing.T) {
	stored := http.Header{
		"Content-Type":   {"application/json"},
		"Content-Length": {"1024"},
		"Cache-Control":  {"max-age=60"},
		"X-Custom":       {"original"},
	}
	revalidation := http.Header{
		"Cache-Control":     {"max-age=120"},
		"Date":              {"Mon, 01 Jan 2024 00:00:00 GMT"},
		"Content-Length":    {"0"},
		"Connection":        {"close"},
		"Transfer-Encoding": {"chunked"},
	}

	merged := MergeHeaders(stored, revalidation)

	if got := merged.Get("Cache-Control"); got != "max-age=120" {
		t.Errorf("Cache-Control = %q, want refreshed value", got)
	}
	if got := merged.Get("Date"); got == "" {
		t.Error("new fields from the 304 should be added")
	}
	if got := merged.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, stored fields must survive", got)
	}
	if got := merged.Get("X-Custom"); got != "original" {
		t.Errorf("X-Custom = %q, untouched stored fields must survive", got)
	}
	if got := merged.Get("Content-Length"); got != "1024" {
		t.Errorf("Content-Length = %q, must keep the stored body's length", got)
	}
	if merged.Get("Connection") != "" || merged.Get("Transfer-Encoding") != "" {
		t.Error("hop-by-hop fields of the 304 must not be merged")
	}
	if stored.Get("Cache-Control") != "max-age=60" {
		t.Error("stored headers must not be mutated")
	}
}

func TestVary(t *testing.T) {
	tests := []struct {
		name string
		vary []string
		want []string
	}{
		{"single", []string{"Accept-Encoding"}, []string{"accept-encoding"}},
		{"list", []string{"Accept-Encoding, Accept-Language"}, []string{"accept-encoding", "accept-language"}},
		{"multiple lines", []string{"Accept-Encoding", "Accept-Language"}, []string{"accept-encoding", "accept-language"}},
		{"wildcard preserved", []string{"*"}, []string{"*"}},
		{"absent", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for _, v := range tt.vary {
				h.Add("Vary", v)
			}
			got := Vary(h)
			if len(got) != len(tt.want) {
				t.Fatalf("Vary() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Vary()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestActionString(t *testing.T) {
	actions := map[Action]string{
		ActionBypass:              "bypass",
		ActionFresh:               "fresh",
		ActionStaleMustRevalidate: "stale-must-revalidate",
		ActionStaleRevalidate:     "stale-revalidate",
		ActionMiss:                "miss",
	}
	for action, want := range actions {
		if got := action.String(); got != want {
			t.Errorf("Action(%d).String() = %q, want %q", action, got, want)
		}
	}
}
