package jobs

import (
	"math/rand"
	"time"

	"murmur/internal/config"
)

// RetryPolicy controls how failed jobs are requeued. The delay doubles per
// recorded failure, capped at MaxDelay, with ±25% jitter so a burst of
// failures does not retry in lockstep.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// jitter overrides randomization in tests.
	jitter func(time.Duration) time.Duration
}

// DefaultRetryPolicy mirrors the repository defaults in config.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  30 * time.Second,
		MaxDelay:   10 * time.Minute,
	}
}

// PolicyFromConfig builds the retry policy the daemon runs with.
func PolicyFromConfig(cfg *config.Config) RetryPolicy {
	return RetryPolicy{
		MaxRetries: cfg.Jobs.RetryLimit,
		BaseDelay:  time.Duration(cfg.Jobs.BackoffBaseSeconds) * time.Second,
		MaxDelay:   time.Duration(cfg.Jobs.BackoffMaxSeconds) * time.Second,
	}
}

// WithoutJitter returns a copy of the policy with deterministic delays.
// Test helper.
func (p RetryPolicy) WithoutJitter() RetryPolicy {
	p.jitter = func(d time.Duration) time.Duration { return d }
	return p
}

// Delay computes the wait before the next attempt after retryCount recorded
// failures. retryCount is 1 for the first failure.
func (p RetryPolicy) Delay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = 30 * time.Second
	}
	delay := base
	for i := 1; i < retryCount; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.jitter != nil {
		return p.jitter(delay)
	}
	return addJitter(delay)
}

// addJitter spreads a delay across ±25% of its value.
func addJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return delay
	}
	span := delay / 2
	offset := time.Duration(rand.Int63n(int64(span) + 1))
	return delay - span/2 + offset
}
