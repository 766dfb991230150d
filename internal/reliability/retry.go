package reliability

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/callsink/callsink-go/contracts"
)

// Policy decides whether a failed connect attempt should be retried and
// after what delay.
type Policy interface {
	// ShouldRetry determines if a retry should be attempted.
	ShouldRetry(attempt int, err error) (bool, time.Duration)
}

// ExponentialBackoff retries connectivity failures with exponentially
// growing, jittered delays.
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     int
	Jitter          bool
}

// NewExponentialBackoff creates an exponential backoff policy with jitter.
func NewExponentialBackoff(initial, max time.Duration, multiplier float64, maxAttempts int) *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialInterval: initial,
		MaxInterval:     max,
		Multiplier:      multiplier,
		MaxAttempts:     maxAttempts,
		Jitter:          true,
	}
}

// ShouldRetry implements Policy. Only retryable errors (connectivity) are
// re-attempted; configuration and payload errors fail immediately.
func (e *ExponentialBackoff) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	if attempt >= e.MaxAttempts {
		return false, 0
	}
	if !contracts.IsRetryable(err) {
		return false, 0
	}
	return true, e.nextDelay(attempt)
}

func (e *ExponentialBackoff) nextDelay(attempt int) time.Duration {
	delay := float64(e.InitialInterval) * math.Pow(e.Multiplier, float64(attempt))
	if delay > float64(e.MaxInterval) {
		delay = float64(e.MaxInterval)
	}
	if e.Jitter {
		// ±15% jitter
		delay = delay + (rand.Float64()-0.5)*0.3*delay
	}
	return time.Duration(delay)
}

// Retry runs op until it succeeds, the policy declines, or ctx is done.
func Retry(ctx context.Context, policy Policy, op func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		retry, delay := policy.ShouldRetry(attempt, err)
		if !retry {
			return err
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}
