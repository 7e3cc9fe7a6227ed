// Package governor paces a run's units of work against a configured send
// or enrichment rate. The gate suspends only the calling goroutine, so
// concurrent runs pace independently.
package governor

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Governor is the scheduling gate invoked once between units of work.
type Governor struct {
	limiter *rate.Limiter
	delay   time.Duration
}

// New creates a governor that admits perMinute units per minute. The
// first call passes immediately; each subsequent call waits 60/perMinute
// seconds from the previous admission.
func New(perMinute float64) (*Governor, error) {
	if perMinute <= 0 {
		return nil, eris.Errorf("governor: rate must be positive, got %v", perMinute)
	}
	return &Governor{
		limiter: rate.NewLimiter(rate.Limit(perMinute/60), 1),
	}, nil
}

// NewFixedDelay creates a governor that waits a fixed delay between units.
func NewFixedDelay(d time.Duration) (*Governor, error) {
	if d <= 0 {
		return nil, eris.Errorf("governor: delay must be positive, got %v", d)
	}
	return &Governor{delay: d}, nil
}

// Wait blocks until the next unit may start. A cancellation observed
// during the wait aborts it immediately with ctx.Err().
func (g *Governor) Wait(ctx context.Context) error {
	if g.limiter != nil {
		return g.limiter.Wait(ctx)
	}

	timer := time.NewTimer(g.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
