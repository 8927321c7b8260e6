// Package transport provides network collaborators for the caching
// layer. The caching core performs no retries itself; Retry is the
// transport-side decorator that adds them.
package transport

import (
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "httpcache_transport_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "httpcache_transport_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// Common errors returned by the retrying transport.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = fmt.Errorf("retry attempts exhausted")
)

// ErrorClass classifies an exchange outcome for retry decisions.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses; never retried.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses; retried.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents transport failures; retried.
	ErrorClassNetwork ErrorClass = "network"
)

// Classify categorizes an exchange outcome.
func Classify(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}
	switch {
	case resp.StatusCode >= 500:
		return ErrorClassServer
	case resp.StatusCode >= 400:
		return ErrorClassClient
	}
	return ""
}

func shouldRetry(class ErrorClass) bool {
	return class == ErrorClassServer || class == ErrorClassNetwork
}

// RetryConfig holds the retry policy.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialBackoff is the first backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the backoff between attempts.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Retry is an http.RoundTripper decorator that retries server and
// network failures with exponential backoff and jitter. Requests with a
// body are retried only when GetBody is set.
type Retry struct {
	next http.RoundTripper
	cfg  RetryConfig
}

// NewRetry wraps a transport with retry behavior.
func NewRetry(next http.RoundTripper, cfg RetryConfig) *Retry {
	if next == nil {
		next = http.DefaultTransport
	}
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultRetryConfig()
	}
	return &Retry{next: next, cfg: cfg}
}

// RoundTrip implements http.RoundTripper.
func (r *Retry) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	backoff := r.cfg.InitialBackoff

	var resp *http.Response
	var err error
	var class ErrorClass

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if req.Body != nil {
				if req.GetBody == nil {
					return resp, err
				}
				body, bodyErr := req.GetBody()
				if bodyErr != nil {
					return resp, err
				}
				req.Body = body
			}
		}

		resp, err = r.next.RoundTrip(req)
		class = Classify(resp, err)
		if !shouldRetry(class) {
			return resp, err
		}
		if attempt >= r.cfg.MaxAttempts {
			break
		}
		if resp != nil {
			resp.Body.Close()
		}

		retriesTotal.WithLabelValues(string(class)).Inc()

		// Jitter of plus/minus 20 percent avoids synchronized retries.
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		log.Debug().
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Str("url", req.URL.String()).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
		case <-time.After(jitter):
		}

		backoff = time.Duration(float64(backoff) * r.cfg.BackoffMultiplier)
		if backoff > r.cfg.MaxBackoff {
			backoff = r.cfg.MaxBackoff
		}
	}

	retryExhaustedTotal.WithLabelValues(string(class)).Inc()
	log.Warn().
		Str("error_class", string(class)).
		Int("max_attempts", r.cfg.MaxAttempts).
		Str("url", req.URL.String()).
		Msg("Retry attempts exhausted")

	if err != nil {
		return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, r.cfg.MaxAttempts, err)
	}
	return resp, nil
}
