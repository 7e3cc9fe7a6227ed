package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDoValRetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	val, err := DoVal(context.Background(), fastRetry(3), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(eris.New("429"), 429)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(3), func(ctx context.Context) error {
		calls++
		return eris.New("bad input")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(3), func(ctx context.Context) error {
		calls++
		return NewTransientError(eris.New("flaky"), 503)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoHonorsShouldRetry(t *testing.T) {
	cfg := fastRetry(3)
	cfg.ShouldRetry = func(err error) bool { return false }

	calls := 0
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return NewTransientError(eris.New("would retry by default"), 500)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Do(ctx, fastRetry(5), func(ctx context.Context) error {
		calls++
		cancel()
		return NewTransientError(eris.New("flaky"), 503)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(eris.New("validation failed")))
	assert.True(t, IsTransient(NewTransientError(eris.New("x"), 429)))
	assert.True(t, IsTransient(eris.Wrap(NewTransientError(eris.New("x"), 503), "outer")))
	assert.True(t, IsTransient(eris.New("read tcp: i/o timeout")))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 201, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}

func TestCircuitOpensAtThreshold(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     time.Minute,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	fail := func(ctx context.Context) error { return eris.New("boom") }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := cb.Execute(ctx, fail)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}

	err := cb.Execute(ctx, fail)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestCircuitSuccessResetsCounter(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, func(ctx context.Context) error { return eris.New("boom") }))
	require.NoError(t, cb.Execute(ctx, func(ctx context.Context) error { return nil }))
	require.Error(t, cb.Execute(ctx, func(ctx context.Context) error { return eris.New("boom") }))

	// Still closed: the success in between reset the streak.
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitShouldTripFiltersErrors(t *testing.T) {
	type softError struct{ error }
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		ShouldTrip: func(err error) bool {
			_, ok := err.(softError)
			return !ok
		},
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := cb.Execute(ctx, func(ctx context.Context) error { return softError{eris.New("per-unit")} })
		require.Error(t, err)
	}
	assert.Equal(t, CircuitClosed, cb.State())

	require.Error(t, cb.Execute(ctx, func(ctx context.Context) error { return eris.New("transport") }))
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitHalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, func(ctx context.Context) error { return eris.New("boom") }))
	assert.ErrorIs(t, cb.Execute(ctx, func(ctx context.Context) error { return nil }), ErrCircuitOpen)

	// Age the failure past the reset timeout; the next call is a probe.
	now := time.Now()
	cb.nowFunc = func() time.Time { return now.Add(2 * time.Minute) }
	assert.Equal(t, CircuitHalfOpen, cb.State())

	require.NoError(t, cb.Execute(ctx, func(ctx context.Context) error { return nil }))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitProbeFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, func(ctx context.Context) error { return eris.New("boom") }))

	now := time.Now()
	cb.nowFunc = func() time.Time { return now.Add(2 * time.Minute) }
	require.Error(t, cb.Execute(ctx, func(ctx context.Context) error { return eris.New("still down") }))

	cb.nowFunc = func() time.Time { return now.Add(2*time.Minute + time.Second) }
	assert.ErrorIs(t, cb.Execute(ctx, func(ctx context.Context) error { return nil }), ErrCircuitOpen)
}
