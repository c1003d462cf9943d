package datafeed

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy bounds how the loop retries failed datafeed reads.
type RetryPolicy struct {
	// MaxAttempts is the number of consecutive failed reads tolerated
	// before the loop gives up.
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
}

// DefaultRetryPolicy matches the datafeed retry block of the default config.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     10,
		InitialInterval: 500 * time.Millisecond,
		Multiplier:      2,
		MaxInterval:     5 * time.Minute,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.Multiplier == 0 {
		p.Multiplier = d.Multiplier
	} else if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = d.MaxInterval
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	return p
}

// backoff returns the wait before retry number attempt (1-based):
// exponential growth with up to 50% jitter, capped at MaxInterval.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.InitialInterval) * math.Pow(p.Multiplier, float64(attempt-1))
	if d > float64(p.MaxInterval) {
		d = float64(p.MaxInterval)
	}
	base := time.Duration(d)
	jitter := time.Duration(rand.Int63n(int64(base/2 + 1)))
	if base+jitter > p.MaxInterval {
		return p.MaxInterval
	}
	return base + jitter
}

// sleep waits for d or until ctx is done, reporting whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
