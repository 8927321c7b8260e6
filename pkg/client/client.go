// Package client provides the caching HTTP transport: an
// http.RoundTripper that serves repeated requests from a cache manager,
// revalidates stale entries, and invalidates slots touched by unsafe
// methods.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/midcache/midcache/pkg/cache"
	"github.com/midcache/midcache/pkg/policy"
)

// Prometheus metrics for caching transport operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "httpcache_requests_total",
		Help: "Total requests through the caching transport by cache status",
	}, []string{"cache_status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "httpcache_request_duration_seconds",
		Help:    "Request duration through the caching transport by cache status",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"cache_status"})

	revalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "httpcache_background_revalidations_total",
		Help: "Background revalidations by result",
	}, []string{"result"}) // "updated", "replaced", "discarded", "failed"

	staleFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "httpcache_stale_fallbacks_total",
		Help: "Stale entries served in place of a transport failure",
	})

	invalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "httpcache_invalidations_total",
		Help: "Cache slots invalidated by unsafe methods or no-store responses",
	})
)

// Config holds the caching transport configuration.
type Config struct {
	// Manager is the storage backend (required).
	Manager cache.Manager

	// Transport performs the actual network exchanges.
	// Defaults to http.DefaultTransport.
	Transport http.RoundTripper

	// Mode overrides the standard caching rules. Defaults to ModeDefault.
	Mode Mode

	// Options tunes the policy engine (shared cache, heuristic freshness).
	Options policy.Options

	// RevalidateTimeout bounds each background revalidation. Defaults to
	// 30 seconds.
	RevalidateTimeout time.Duration
}

// DefaultConfig returns a configuration with standard caching rules,
// shared-cache policy options, and the default transport.
func DefaultConfig(manager cache.Manager) Config {
	return Config{
		Manager:           manager,
		Transport:         http.DefaultTransport,
		Mode:              ModeDefault,
		Options:           policy.DefaultOptions(),
		RevalidateTimeout: 30 * time.Second,
	}
}

// Transport is the caching middleware. It implements http.RoundTripper
// and can be dropped into any http.Client.
type Transport struct {
	manager   cache.Manager
	transport http.RoundTripper
	mode      Mode
	opts      policy.Options
	revalTO   time.Duration
	logger    zerolog.Logger

	// now is the transport's clock; tests substitute it.
	now func() time.Time
}

// New creates a caching transport.
func New(cfg Config) (*Transport, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("cache manager is required")
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}
	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}
	if cfg.RevalidateTimeout <= 0 {
		cfg.RevalidateTimeout = 30 * time.Second
	}
	return &Transport{
		manager:   cfg.Manager,
		transport: cfg.Transport,
		mode:      mode,
		opts:      cfg.Options,
		revalTO:   cfg.RevalidateTimeout,
		logger:    log.With().Str("component", "httpcache").Logger(),
		now:       time.Now,
	}, nil
}

// NewClient returns an http.Client wired with the caching transport.
func NewClient(cfg Config) (*http.Client, error) {
	t, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: t}, nil
}

// RoundTrip drives one request through the caching state machine:
// lookup, decision, optional network exchange, reconciliation, store or
// invalidate. It performs exactly one manager read and at most one
// write and one delete per request.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := t.now()
	status := StatusMiss
	defer func() {
		requestsTotal.WithLabelValues(status).Inc()
		requestDuration.WithLabelValues(status).Observe(t.now().Sub(start).Seconds())
	}()

	logger := t.logger.With().
		Str("request_id", uuid.NewString()).
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Logger()

	if t.mode == ModeNoStore {
		return t.exchange(req)
	}

	if !policy.IsCacheableMethod(req.Method) {
		return t.roundTripUnsafe(req, logger)
	}

	key := cache.NewKey(req.Method, req.URL)

	reqCC := policy.ParseRequestCacheControl(req.Header)
	if reqCC.Has(policy.DirectiveNoStore) {
		logger.Debug().Str("key", key.String()).Msg("Request forbids storage, bypassing cache")
		resp, _, err := t.timedExchange(req)
		if err != nil {
			return nil, err
		}
		annotate(resp, StatusMiss, key)
		return resp, nil
	}

	entry := t.lookup(req, key, logger)

	if reqCC.Has(policy.DirectiveOnlyIfCached) || t.mode == ModeOnlyIfCached {
		if entry == nil {
			logger.Debug().Str("key", key.String()).Msg("Only-if-cached miss")
			return onlyIfCachedMiss(req), nil
		}
		status = StatusHit
		logger.Debug().Str("key", key.String()).Msg("Only-if-cached hit")
		return t.serve(entry, req, key, StatusHit), nil
	}

	action := t.decide(entry, req)
	logger.Debug().
		Str("key", key.String()).
		Str("action", action.String()).
		Bool("stored", entry != nil).
		Msg("Cache decision")

	switch action {
	case policy.ActionFresh:
		status = StatusHit
		return t.serve(entry, req, key, StatusHit), nil

	case policy.ActionStaleRevalidate:
		status = StatusStale
		t.spawnRevalidation(req, key, entry, logger)
		return t.serve(entry, req, key, StatusStale), nil

	case policy.ActionStaleMustRevalidate:
		resp, st, err := t.revalidate(req, key, entry, logger)
		status = st
		return resp, err

	default: // ActionMiss, ActionBypass
		resp, st, err := t.fetchAndStore(req, key, entry, logger)
		status = st
		return resp, err
	}
}

// decide maps the configured mode and the stored entry onto an action.
func (t *Transport) decide(entry *cache.Entry, req *http.Request) policy.Action {
	switch t.mode {
	case ModeReload:
		return policy.ActionMiss
	case ModeNoCache:
		if entry != nil {
			return policy.ActionStaleMustRevalidate
		}
		return policy.ActionMiss
	case ModeForceCache:
		if entry != nil {
			return policy.ActionFresh
		}
		return policy.ActionMiss
	}
	if entry == nil {
		return policy.ActionMiss
	}
	return entry.Policy.Decide(req.Header, t.now())
}

// lookup reads the slot and picks the variant matching the request's
// Vary sub-key. Manager and decode failures degrade to a miss.
func (t *Transport) lookup(req *http.Request, key cache.Key, logger zerolog.Logger) *cache.Entry {
	variants, err := t.manager.Get(req.Context(), key.String())
	if err != nil && !errors.Is(err, cache.ErrNotFound) {
		cache.ManagerErrors.WithLabelValues("get").Inc()
		logger.Warn().Err(err).Str("key", key.String()).Msg("Cache get failed, treating as miss")
		return nil
	}
	for _, data := range variants {
		entry, err := cache.Decode(data)
		if err != nil {
			cache.DecodeFailures.Inc()
			logger.Warn().Err(err).Str("key", key.String()).Msg("Stored entry undecodable, treating as miss")
			continue
		}
		if entry.Matches(req.Header) {
			return entry
		}
	}
	return nil
}

// serve synthesizes a response from a stored entry. Pure local
// operation, no side effects on the store.
func (t *Transport) serve(entry *cache.Entry, req *http.Request, key cache.Key, status string) *http.Response {
	resp := entry.Response(req, t.now())
	annotate(resp, status, key)
	return resp
}

// revalidate sends a conditional request (full when no validators
// exist) and reconciles the answer with the stored entry.
func (t *Transport) revalidate(req *http.Request, key cache.Key, entry *cache.Entry, logger zerolog.Logger) (*http.Response, string, error) {
	outReq := req
	if entry != nil && entry.Policy.HasValidator() {
		outReq = entry.Policy.ConditionalRequest(req)
	}

	resp, times, err := t.timedExchange(outReq)
	if err != nil {
		if fallback := t.staleOnError(entry, req, key, logger, err); fallback != nil {
			return fallback, StatusStale, nil
		}
		return nil, StatusMiss, err
	}

	if entry != nil && resp.StatusCode == http.StatusNotModified {
		reconciled := cache.Reconcile(entry, resp, times.request, times.response, t.opts)
		resp.Body.Close()
		t.store(req, key, reconciled, logger)
		logger.Debug().Str("key", key.String()).Msg("Revalidated stored entry via 304")
		return t.serve(reconciled, req, key, StatusRevalidated), StatusRevalidated, nil
	}

	// Any other status replaces the stored entry wholesale.
	return t.storeOrInvalidate(req, resp, key, entry != nil, times, logger), StatusMiss, nil
}

// fetchAndStore forwards the request and stores the result when
// cacheable. A transport failure may fall back to a stale stored entry
// under stale-if-error.
func (t *Transport) fetchAndStore(req *http.Request, key cache.Key, entry *cache.Entry, logger zerolog.Logger) (*http.Response, string, error) {
	resp, times, err := t.timedExchange(req)
	if err != nil {
		if fallback := t.staleOnError(entry, req, key, logger, err); fallback != nil {
			return fallback, StatusStale, nil
		}
		return nil, StatusMiss, err
	}
	return t.storeOrInvalidate(req, resp, key, entry != nil, times, logger), StatusMiss, nil
}

// storeOrInvalidate applies the storage invariant to a network
// response: cacheable and worth storing is written; a response that
// forbids caching clears any existing entry for the slot. A response
// that is merely not cacheable (a transient 5xx, say) leaves the
// stored entry in place for a later stale fallback.
func (t *Transport) storeOrInvalidate(req *http.Request, resp *http.Response, key cache.Key, hadEntry bool, times exchangeTimes, logger zerolog.Logger) *http.Response {
	if policy.IsCacheable(req.Method, resp.StatusCode, req.Header, resp.Header, t.opts) {
		entry, err := cache.NewEntry(req, resp, times.request, times.response, t.opts)
		if err != nil {
			logger.Warn().Err(err).Str("key", key.String()).Msg("Could not build cache entry")
		} else if entry.Policy.Storable() {
			t.store(req, key, entry, logger)
		}
	} else if hadEntry && policy.ForbidsStorage(resp.Header, t.opts) {
		// The resource told us not to cache it; drop what we hold.
		if err := t.manager.Delete(detach(req.Context()), key.String()); err != nil {
			cache.ManagerErrors.WithLabelValues("delete").Inc()
			logger.Warn().Err(err).Str("key", key.String()).Msg("Cache invalidation failed")
		} else {
			invalidationsTotal.Inc()
			logger.Debug().Str("key", key.String()).Msg("Invalidated stored entry")
		}
	}
	annotate(resp, StatusMiss, key)
	return resp
}

// store encodes and writes an entry. Write failures are surfaced in the
// log and metrics but never fail the request; a put already in flight
// when the caller goes away is allowed to complete.
func (t *Transport) store(req *http.Request, key cache.Key, entry *cache.Entry, logger zerolog.Logger) {
	data, err := entry.Encode()
	if err != nil {
		logger.Warn().Err(err).Str("key", key.String()).Msg("Could not encode cache entry")
		return
	}
	variant, ok := entry.VariantKey()
	if !ok {
		logger.Debug().Str("key", key.String()).Msg("Vary: * response is uncacheable, skipping store")
		return
	}
	if err := t.manager.Put(detach(req.Context()), key.String(), variant, data); err != nil {
		cache.ManagerErrors.WithLabelValues("put").Inc()
		logger.Warn().Err(err).Str("key", key.String()).Msg("Cache put failed")
		return
	}
	cache.EntriesStored.Inc()
	cache.EntryBytes.Observe(float64(len(data)))
	logger.Debug().
		Str("key", key.String()).
		Dur("ttl", entry.Policy.TimeToFresh(t.now())).
		Int("bytes", len(data)).
		Msg("Stored cache entry")
}

// staleOnError serves the stale stored entry in place of a transport
// failure when the stale-if-error policy permits.
func (t *Transport) staleOnError(entry *cache.Entry, req *http.Request, key cache.Key, logger zerolog.Logger, cause error) *http.Response {
	if entry == nil {
		return nil
	}
	now := t.now()
	allowed := entry.Policy.AllowsStaleOnError(now)
	if !allowed {
		// The client may volunteer to accept stale responses on error.
		reqCC := policy.ParseRequestCacheControl(req.Header)
		if d, ok := reqCC.Duration(policy.DirectiveStaleIfError); ok {
			allowed = entry.Policy.CurrentAge(now) < entry.Policy.FreshnessLifetime+d
		}
	}
	if !allowed {
		return nil
	}
	staleFallbacksTotal.Inc()
	logger.Warn().Err(cause).Str("key", key.String()).Msg("Transport failed, serving stale entry")
	return t.serve(entry, req, key, StatusStale)
}

// spawnRevalidation fires the background refresh for a stale entry
// served under stale-while-revalidate. The goroutine runs on its own
// context and deadline; its outcome never affects the response already
// returned, and it is not retried.
func (t *Transport) spawnRevalidation(req *http.Request, key cache.Key, entry *cache.Entry, logger zerolog.Logger) {
	bgReq := req.Clone(context.Background())
	bgReq.Body = nil

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.revalTO)
		defer cancel()
		bgReq = bgReq.WithContext(ctx)

		outReq := bgReq
		if entry.Policy.HasValidator() {
			outReq = entry.Policy.ConditionalRequest(bgReq)
		}
		resp, times, err := t.timedExchange(outReq)
		if err != nil {
			revalidationsTotal.WithLabelValues("failed").Inc()
			logger.Warn().Err(err).Str("key", key.String()).Msg("Background revalidation failed")
			return
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotModified:
			reconciled := cache.Reconcile(entry, resp, times.request, times.response, t.opts)
			t.store(bgReq, key, reconciled, logger)
			revalidationsTotal.WithLabelValues("updated").Inc()

		case policy.IsCacheable(bgReq.Method, resp.StatusCode, bgReq.Header, resp.Header, t.opts):
			fresh, err := cache.NewEntry(bgReq, resp, times.request, times.response, t.opts)
			if err != nil || !fresh.Policy.Storable() {
				revalidationsTotal.WithLabelValues("discarded").Inc()
				return
			}
			t.store(bgReq, key, fresh, logger)
			revalidationsTotal.WithLabelValues("replaced").Inc()

		default:
			if policy.ForbidsStorage(resp.Header, t.opts) {
				if err := t.manager.Delete(context.Background(), key.String()); err != nil {
					cache.ManagerErrors.WithLabelValues("delete").Inc()
				}
			}
			revalidationsTotal.WithLabelValues("discarded").Inc()
		}
	}()
}

// roundTripUnsafe forwards a non-GET/HEAD request and invalidates the
// stored GET and HEAD slots of the target URI when the origin reports
// success (2xx or 3xx).
func (t *Transport) roundTripUnsafe(req *http.Request, logger zerolog.Logger) (*http.Response, error) {
	resp, err := t.exchange(req)
	if err != nil {
		return nil, err
	}
	if policy.IsUnsafeMethod(req.Method) && resp.StatusCode < 400 {
		ctx := detach(req.Context())
		for _, method := range []string{http.MethodGet, http.MethodHead} {
			key := cache.NewKey(method, req.URL)
			if err := t.manager.Delete(ctx, key.String()); err != nil {
				cache.ManagerErrors.WithLabelValues("delete").Inc()
				logger.Warn().Err(err).Str("key", key.String()).Msg("Invalidation after unsafe method failed")
				continue
			}
			invalidationsTotal.Inc()
		}
		logger.Debug().Str("url", req.URL.String()).Msg("Invalidated slots after unsafe method")
	}
	return resp, nil
}

type exchangeTimes struct {
	request  time.Time
	response time.Time
}

// timedExchange performs the network call and records the request and
// response instants the policy engine needs for age arithmetic. A
// missing Date header is filled in with the response time.
func (t *Transport) timedExchange(req *http.Request) (*http.Response, exchangeTimes, error) {
	times := exchangeTimes{request: t.now()}
	resp, err := t.transport.RoundTrip(req)
	times.response = t.now()
	if err != nil {
		return nil, times, err
	}
	if resp.Header.Get("Date") == "" {
		resp.Header.Set("Date", times.response.UTC().Format(http.TimeFormat))
	}
	return resp, times, nil
}

func (t *Transport) exchange(req *http.Request) (*http.Response, error) {
	resp, _, err := t.timedExchange(req)
	return resp, err
}

// annotate attaches the cache status metadata to a response.
func annotate(resp *http.Response, status string, key cache.Key) {
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	resp.Header.Set(HeaderCacheStatus, status)
	resp.Header.Set(HeaderCacheKey, key.String())
}

// onlyIfCachedMiss synthesizes the 504 mandated for only-if-cached
// requests that cannot be satisfied locally.
func onlyIfCachedMiss(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode: http.StatusGatewayTimeout,
		Status:     fmt.Sprintf("%d %s", http.StatusGatewayTimeout, http.StatusText(http.StatusGatewayTimeout)),
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     http.Header{HeaderCacheStatus: []string{StatusMiss}},
		Body:       io.NopCloser(strings.NewReader(ErrOnlyIfCached.Error())),
		Request:    req,
	}
}

// detach returns a context that survives the cancellation of its
// parent, so manager writes already in progress complete instead of
// leaving partial state.
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
