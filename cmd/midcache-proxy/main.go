package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/midcache/midcache/pkg/cache"
	"github.com/midcache/midcache/pkg/cache/diskcache"
	"github.com/midcache/midcache/pkg/cache/memcache"
	"github.com/midcache/midcache/pkg/cache/rediscache"
	"github.com/midcache/midcache/pkg/cache/sqlitecache"
	"github.com/midcache/midcache/pkg/client"
	"github.com/midcache/midcache/pkg/logging"
	"github.com/midcache/midcache/pkg/policy"
	"github.com/midcache/midcache/pkg/transport"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		os.Stderr.WriteString("midcache-proxy: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		File:   cfg.Log.File,
	}).With().Str("component", "proxy").Logger()

	manager, cleanup, err := buildManager(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Backend).Msg("Failed to initialize cache backend")
	}
	defer cleanup()

	upstream, err := url.Parse(cfg.Upstream)
	if err != nil || upstream.Scheme == "" || upstream.Host == "" {
		logger.Fatal().Str("upstream", cfg.Upstream).Msg("Invalid upstream URL")
	}

	var inner http.RoundTripper = http.DefaultTransport
	if cfg.Retry.Enabled {
		retryCfg := transport.DefaultRetryConfig()
		if cfg.Retry.MaxAttempts > 0 {
			retryCfg.MaxAttempts = cfg.Retry.MaxAttempts
		}
		inner = transport.NewRetry(inner, retryCfg)
	}

	opts := policy.DefaultOptions()
	opts.Shared = cfg.Cache.Shared
	opts.Heuristic = cfg.Cache.Heuristic

	caching, err := client.New(client.Config{
		Manager:   manager,
		Transport: inner,
		Mode:      client.Mode(cfg.Cache.Mode),
		Options:   opts,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create caching transport")
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/*", proxyHandler(upstream, caching, logger))

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().
			Str("listen", cfg.Listen).
			Str("upstream", upstream.String()).
			Str("backend", cfg.Backend).
			Msg("Starting midcache proxy")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
	}
	logger.Info().Msg("Proxy stopped")
}

// buildManager constructs the cache backend named by the configuration.
// The returned cleanup releases backend resources on shutdown.
func buildManager(cfg *ProxyConfig, logger zerolog.Logger) (cache.Manager, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case BackendInMemory:
		memCfg := memcache.DefaultConfig()
		if cfg.Storage.MaxBytes > 0 {
			memCfg.MaxBytes = cfg.Storage.MaxBytes
		}
		memCfg.MaxAge = cfg.Storage.MaxAge
		return memcache.New(memCfg), noop, nil

	case BackendPersistent:
		c, err := diskcache.New(cfg.Storage.Path)
		if err != nil {
			return nil, noop, err
		}
		return c, noop, nil

	case BackendSQLite:
		c, err := sqlitecache.New(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		return c, func() {
			if err := c.Close(); err != nil {
				logger.Warn().Err(err).Msg("Failed to close sqlite cache")
			}
		}, nil

	case BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Storage.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, noop, err
		}
		logger.Info().Str("addr", cfg.Storage.RedisAddr).Msg("Connected to Redis")
		return rediscache.New(rdb, rediscache.Config{TTL: cfg.Storage.RedisTTL}), func() {
			if err := rdb.Close(); err != nil {
				logger.Warn().Err(err).Msg("Failed to close Redis client")
			}
		}, nil
	}
	return nil, noop, errors.New("unknown backend " + cfg.Backend)
}

// proxyHandler forwards every request to the upstream origin through the
// caching transport and relays the response verbatim, including the
// X-Cache diagnostic headers.
func proxyHandler(upstream *url.URL, rt http.RoundTripper, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target := *upstream
		target.Path = singleJoin(upstream.Path, r.URL.Path)
		target.RawQuery = r.URL.RawQuery

		out, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		out.Header = r.Header.Clone()
		out.Header.Del("Connection")
		out.Host = upstream.Host

		resp, err := rt.RoundTrip(out)
		if err != nil {
			logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Upstream request failed")
			http.Error(w, "upstream request failed", http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		for key, values := range resp.Header {
			for _, v := range values {
				w.Header().Add(key, v)
			}
		}
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			logger.Debug().Err(err).Msg("Response copy interrupted")
		}
	})
}

func singleJoin(a, b string) string {
	switch {
	case a == "":
		return b
	case a[len(a)-1] == '/' && len(b) > 0 && b[0] == '/':
		return a + b[1:]
	case a[len(a)-1] != '/' && (b == "" || b[0] != '/'):
		return a + "/" + b
	}
	return a + b
}
