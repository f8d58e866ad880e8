package picsart

import (
	"context"
	"slices"
	"time"

	"github.com/alextanhongpin/core/sync/retry"

	"github.com/me/creativeapis/pkg/apierr"
)

// RetryPolicy makes a call repeat after transport failures or server
// errors. The zero value never retries. Validation, decoding,
// authentication, rate limit and cancellation failures are never retried,
// whatever RetryOn says.
type RetryPolicy struct {
	// MaxAttempts counts the first attempt; values below 2 disable retries.
	MaxAttempts int

	// InitialBackoff bounds the delay before the second attempt. The bound
	// doubles for each further attempt up to MaxBackoff, and the actual
	// delay is drawn at random below it.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// RetryOn narrows the retried kinds. Empty means transport and server.
	RetryOn []apierr.Kind
}

// DefaultRetryPolicy returns a policy of three attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}
}

// Enabled reports whether the policy retries at all.
func (p RetryPolicy) Enabled() bool {
	return p.MaxAttempts > 1
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) retries(err error) bool {
	kind := apierr.KindOf(err)
	if kind != apierr.KindTransport && kind != apierr.KindServer {
		return false
	}
	return len(p.RetryOn) == 0 || slices.Contains(p.RetryOn, kind)
}

// backoff returns the delay before attempt+1: a random duration below
// InitialBackoff doubled per attempt and capped at MaxBackoff.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	base := p.InitialBackoff
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	limit := p.MaxBackoff
	if limit <= 0 {
		limit = maxBackoff
	}
	// The exponent is bounded so the doubled delay cannot overflow.
	n := min(max(attempt-1, 0), 16)
	return retry.NewExponentialBackOff(base, max(limit, base)).BackOff(n)
}

// maxBackoff caps the delay when MaxBackoff is unset.
const maxBackoff = time.Minute

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
