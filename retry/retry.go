// Package retry wraps a callable with bounded retries, either at a fixed
// delay or with exponential backoff, raising a timeout error once the
// budget is exhausted. Every attempt's wait time is jittered by
// (0.5+rand)*delay so concurrent callers sharing a failing dependency don't
// retry in lockstep.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"time"

	"github.com/agentscope-go/core/telemetry"
)

// ExhaustedError is raised once a retry budget is spent. It satisfies the
// timeout-exceeded error category from the error handling design.
type ExhaustedError struct {
	Attempts int
	Site     string
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts at %s: %v", e.Attempts, e.Site, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// Strategy computes the sleep duration before the next attempt, given the
// zero-based attempt index that just failed.
type Strategy interface {
	// MaxRetries is the number of retries after the initial attempt; total
	// attempts performed on perpetual failure is MaxRetries+1.
	MaxRetries() int
	// Delay returns the jittered sleep duration after the given failed
	// attempt (0-based).
	Delay(attempt int) time.Duration
}

// Fixed retries a fixed number of times with a constant base delay.
type Fixed struct {
	MaxRetriesCount int
	Delay0          time.Duration
}

// NewFixed mirrors the reference RetryFixedTimes(max_retries=10, delay=5).
func NewFixed(maxRetries int, delay time.Duration) Fixed {
	return Fixed{MaxRetriesCount: maxRetries, Delay0: delay}
}

func (f Fixed) MaxRetries() int { return f.MaxRetriesCount }

func (f Fixed) Delay(int) time.Duration {
	return jitter(f.Delay0)
}

// Exponential doubles the delay after every failed attempt, capped at
// MaxDelay.
type Exponential struct {
	MaxRetriesCount int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
}

func NewExponential(maxRetries int, baseDelay, maxDelay time.Duration) Exponential {
	return Exponential{MaxRetriesCount: maxRetries, BaseDelay: baseDelay, MaxDelay: maxDelay}
}

func (e Exponential) MaxRetries() int { return e.MaxRetriesCount }

func (e Exponential) Delay(attempt int) time.Duration {
	delay := e.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	d := jitter(delay)
	if d > e.MaxDelay {
		return e.MaxDelay
	}
	return d
}

// jitter implements the exact reference formula: (0.5 + rand()) * delay.
func jitter(delay time.Duration) time.Duration {
	return time.Duration((0.5 + rand.Float64()) * float64(delay)) //nolint:gosec // jitter, not security-sensitive
}

// Default matches agentscope's _DEAFULT_RETRY_STRATEGY: fixed, 10 retries,
// 5 second base delay.
func Default() Strategy { return NewFixed(10, 5*time.Second) }

// Do invokes fn, retrying under strategy until it succeeds, the context is
// canceled, or the retry budget is exhausted. On exhaustion it returns an
// *ExhaustedError wrapping the last error observed.
func Do(ctx context.Context, strategy Strategy, logger telemetry.Logger, fn func(ctx context.Context) error) error {
	if logger == nil {
		logger = telemetry.NopLogger{}
	}
	site := callSite()
	maxRetries := strategy.MaxRetries()
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == maxRetries {
			break
		}
		delay := strategy.Delay(attempt)
		logger.Debug(ctx, "retry attempt failed",
			telemetry.Field("attempt", attempt+1),
			telemetry.Field("site", site),
			telemetry.Field("delay", delay.String()),
			telemetry.Field("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	logger.Error(ctx, "retry budget exhausted", telemetry.Field("site", site), telemetry.Field("attempts", maxRetries+1))
	return &ExhaustedError{Attempts: maxRetries + 1, Site: site, LastErr: lastErr}
}

func callSite() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", file, line)
}
