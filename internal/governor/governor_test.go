package governor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsNonPositiveRate(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)

	_, err = New(-5)
	assert.Error(t, err)
}

func TestNewFixedDelayRejectsNonPositive(t *testing.T) {
	_, err := NewFixedDelay(0)
	assert.Error(t, err)
}

func TestWaitFirstCallIsImmediate(t *testing.T) {
	g, err := New(60) // one per second
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, g.Wait(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitPacesSubsequentCalls(t *testing.T) {
	g, err := New(1200) // one per 50ms
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, g.Wait(ctx))

	// The second admission lands one interval out, within scheduler
	// slop either way: neither early nor stretched.
	start := time.Now()
	require.NoError(t, g.Wait(ctx))
	waited := time.Since(start)
	assert.GreaterOrEqual(t, waited, 40*time.Millisecond)
	assert.Less(t, waited, 90*time.Millisecond)
}

func TestWaitHonorsCancellation(t *testing.T) {
	g, err := New(0.5) // one every two minutes
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, g.Wait(ctx))

	cancel()
	err = g.Wait(ctx)
	assert.Error(t, err)
}

func TestFixedDelayWaits(t *testing.T) {
	g, err := NewFixedDelay(50 * time.Millisecond)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, g.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 45*time.Millisecond)
}

func TestFixedDelayCancellation(t *testing.T) {
	g, err := NewFixedDelay(10 * time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = g.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConcurrentGovernorsPaceIndependently(t *testing.T) {
	a, err := New(1200)
	require.NoError(t, err)
	b, err := New(1200)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, a.Wait(ctx))

	// b's first admission is not delayed by a's.
	start := time.Now()
	require.NoError(t, b.Wait(ctx))
	assert.Less(t, time.Since(start), 40*time.Millisecond)
}
