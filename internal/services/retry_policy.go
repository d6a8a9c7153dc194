package services

import (
	"math"
	"time"

	"github.com/ajramos/mailsync/internal/config"
)

// RetryPolicy gives the delay before reconnect attempt n (starting at 1).
// Policies never give up.
type RetryPolicy interface {
	Delay(attempt int) time.Duration
}

// FixedDelay waits the same time before every attempt
type FixedDelay time.Duration

// Delay implements RetryPolicy
func (f FixedDelay) Delay(int) time.Duration {
	return time.Duration(f)
}

// ExponentialBackoff grows the delay by Factor per attempt up to Max
type ExponentialBackoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
}

// Delay implements RetryPolicy
func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	initial, maxDelay, factor := b.Initial, b.Max, b.Factor
	if initial <= 0 {
		initial = time.Second
	}
	if maxDelay < initial {
		maxDelay = initial
	}
	if factor < 1 {
		factor = 2
	}
	if attempt < 1 {
		attempt = 1
	}

	d := float64(initial) * math.Pow(factor, float64(attempt-1))
	if math.IsNaN(d) || math.IsInf(d, 0) || d >= float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(d)
}

// NewRetryPolicy builds the policy named by the reconnect config
func NewRetryPolicy(cfg config.ReconnectConfig) RetryPolicy {
	if cfg.Strategy == config.StrategyExponential {
		return ExponentialBackoff{Initial: cfg.InitialDelay, Max: cfg.MaxDelay, Factor: cfg.Factor}
	}
	if cfg.InitialDelay <= 0 {
		return FixedDelay(3 * time.Second)
	}
	return FixedDelay(cfg.InitialDelay)
}
