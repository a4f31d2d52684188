package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func TestFixedSucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), NewFixed(3, time.Microsecond), nil, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestExhaustionLawFixed(t *testing.T) {
	// Property 8: with max_retries=k a perpetually failing call performs
	// exactly k+1 attempts then raises a timeout error.
	const k = 4
	calls := 0
	sentinel := errors.New("boom")
	err := Do(context.Background(), NewFixed(k, time.Microsecond), nil, func(context.Context) error {
		calls++
		return sentinel
	})
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, k+1, calls)
	require.Equal(t, k+1, exhausted.Attempts)
	require.ErrorIs(t, exhausted, sentinel)
}

func TestExhaustionLawExponential(t *testing.T) {
	const k = 3
	calls := 0
	err := Do(context.Background(), NewExponential(k, time.Microsecond, time.Millisecond), nil, func(context.Context) error {
		calls++
		return errors.New("boom")
	})
	require.Error(t, err)
	require.Equal(t, k+1, calls)
}

func TestContextCancellationStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, NewFixed(10, time.Hour), nil, func(context.Context) error {
		calls++
		return errors.New("boom")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestRetryExhaustionLawProperty(t *testing.T) {
	params := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(params)

	properties.Property("perpetual failure performs exactly maxRetries+1 attempts", prop.ForAll(
		func(maxRetries int) bool {
			calls := 0
			err := Do(context.Background(), NewFixed(maxRetries, time.Microsecond), nil, func(context.Context) error {
				calls++
				return errors.New("boom")
			})
			var exhausted *ExhaustedError
			return errors.As(err, &exhausted) && calls == maxRetries+1 && exhausted.Attempts == maxRetries+1
		},
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}
