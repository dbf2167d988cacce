// Package resilience provides the token-bucket limiting and jittered
// exponential backoff shared by the provider clients and the Session
// Recorder's store writes: a process-local rate.Limiter in front of the
// call, and a retry loop around it that only re-attempts errors judged
// transient (network timeouts, deadline exceeded, and provider responses
// with status 429, 500, 502, 503 or 504).
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps a token-bucket rate.Limiter sized in requests per second.
// A nil *Limiter is treated as unlimited by Wait.
type Limiter struct {
	rl *rate.Limiter
}

// NewLimiter builds a Limiter allowing rps requests per second with the
// given burst. A non-positive rps disables limiting (Wait always returns
// immediately).
func NewLimiter(rps float64, burst int) *Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{rl: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.rl == nil {
		return nil
	}
	return l.rl.Wait(ctx)
}

// BackoffConfig configures Retry's exponential-backoff-with-jitter loop.
type BackoffConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	// A value of 0 or 1 disables retries.
	MaxAttempts int
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration
	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration
	// Multiplier grows the delay after each failed attempt.
	Multiplier float64
	// Jitter adds up to this fraction of randomness to each delay, to
	// avoid synchronized retries across callers.
	Jitter float64
}

// DefaultBackoff is a conservative default for provider stream opens and
// session-store appends.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.2,
	}
}

// statusCoder is the duck-typed shape both the Anthropic and OpenAI SDKs'
// API error types expose; matched structurally so this package doesn't
// need to import either SDK.
type statusCoder interface {
	StatusCode() int
}

// IsTransient reports whether err is worth retrying: network timeouts, a
// deadline that expired mid-call, or a provider response with status 429,
// 500, 502, 503 or 504 (other 5xx codes are not retried). Context cancellation is never
// retryable — the caller asked to stop.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary()
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		switch sc.StatusCode() {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	return false
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("resilience: exhausted %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// Retry runs fn, re-attempting while isRetryable(err) and attempts remain,
// sleeping a jittered exponential backoff between tries. isRetryable nil
// defaults to IsTransient. Retry returns immediately on ctx cancellation,
// a nil error from fn, or a non-retryable error.
func Retry(ctx context.Context, cfg BackoffConfig, isRetryable func(error) bool, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if isRetryable == nil {
		isRetryable = IsTransient
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) || attempt >= cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitteredBackoff(cfg, attempt)):
		}
	}

	if !isRetryable(lastErr) {
		return lastErr
	}
	return &ExhaustedError{Attempts: cfg.MaxAttempts, LastErr: lastErr}
}

func jitteredBackoff(cfg BackoffConfig, attempt int) time.Duration {
	backoff := float64(cfg.InitialBackoff) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxBackoff > 0 && backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}
	if cfg.Jitter > 0 {
		backoff += backoff * cfg.Jitter * (rand.Float64()*2 - 1) //nolint:gosec // jitter doesn't need crypto rand
	}
	if backoff < 0 {
		backoff = 0
	}
	return time.Duration(backoff)
}
