package consumer

import (
	"math"
	"time"

	"policy-management-service/shared/config"
)

// RetryPolicy gates re-delivery attempts with exponential backoff. The
// delay before retry n is min(Initial * Multiplier^(n-1), Cap).
type RetryPolicy struct {
	Initial    time.Duration
	Multiplier float64
	Cap        time.Duration
	// MaxRetries is the number of re-delivery attempts after the first
	// try, so total attempts = MaxRetries + 1.
	MaxRetries int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Initial:    500 * time.Millisecond,
		Multiplier: 2.0,
		Cap:        5 * time.Second,
		MaxRetries: 3,
	}
}

func RetryPolicyFromConfig(cfg config.Config) RetryPolicy {
	return RetryPolicy{
		Initial:    time.Duration(cfg.RetryInitialMS) * time.Millisecond,
		Multiplier: cfg.RetryMultiplier,
		Cap:        time.Duration(cfg.RetryCapMS) * time.Millisecond,
		MaxRetries: cfg.RetryMaxAttempts,
	}
}

// Delay returns the backoff before retry attempt n (1-based).
func (p RetryPolicy) Delay(retry int) time.Duration {
	if retry <= 0 {
		return 0
	}
	d := float64(p.Initial) * math.Pow(p.Multiplier, float64(retry-1))
	if d > float64(p.Cap) {
		return p.Cap
	}
	return time.Duration(d)
}
