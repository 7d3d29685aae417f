// Package retry holds the backoff policy for transient toolchain failures.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Mode selects how the delay grows between attempts.
type Mode string

const (
	Fixed       Mode = "fixed"
	Linear      Mode = "linear"
	Exponential Mode = "exponential"
)

// Valid reports whether m names a known mode.
func (m Mode) Valid() bool {
	switch m {
	case Fixed, Linear, Exponential:
		return true
	}
	return false
}

// Policy is immutable after construction.
type Policy struct {
	Mode       Mode
	Initial    time.Duration // base delay
	Max        time.Duration // cap for growth
	MaxRetries int           // attempts after the first failure
}

// DefaultPolicy is linear, 1s initial, 30s cap, 2 retries.
func DefaultPolicy() Policy {
	return Policy{Mode: Linear, Initial: time.Second, Max: 30 * time.Second, MaxRetries: 2}
}

// NewPolicy builds a policy from raw config fields; zero or unknown values fall back to defaults.
func NewPolicy(mode Mode, initial, maxDuration time.Duration, maxRetries int) Policy {
	p := DefaultPolicy()
	if maxRetries >= 0 {
		p.MaxRetries = maxRetries
	}
	if initial > 0 {
		p.Initial = initial
	}
	if maxDuration > 0 {
		p.Max = maxDuration
	}
	if mode.Valid() {
		p.Mode = mode
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// Delay returns the backoff before the given retry (1-based).
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}
	var d time.Duration
	switch p.Mode {
	case Fixed:
		return p.Initial
	case Exponential:
		if retryCount > 32 {
			return p.Max
		}
		d = p.Initial * (1 << (retryCount - 1))
	default:
		d = time.Duration(retryCount) * p.Initial
	}
	if d > p.Max || d <= 0 {
		return p.Max
	}
	return d
}

// Validate ensures the policy can be applied.
func (p Policy) Validate() error {
	if p.Initial <= 0 {
		return fmt.Errorf("initial must be >0")
	}
	if p.Max <= 0 {
		return fmt.Errorf("max must be >0")
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	return nil
}

// Do calls fn until it succeeds, the retries are used up or ctx is done.
// onRetry, when set, is told about every failure that will be retried. The
// last error from fn is returned.
func (p Policy) Do(ctx context.Context, fn func() error, onRetry func(retry int, delay time.Duration, err error)) error {
	err := fn()
	for retry := 1; err != nil && retry <= p.MaxRetries; retry++ {
		if ctx.Err() != nil {
			return err
		}
		delay := p.Delay(retry)
		if onRetry != nil {
			onRetry(retry, delay, err)
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
		err = fn()
	}
	return err
}
