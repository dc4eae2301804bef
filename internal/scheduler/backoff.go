package scheduler

import (
	"math/rand/v2"
	"time"

	"anchord/internal/config"
)

// Backoff computes the retry delay for transient submission failures:
// min(base * 2^attempts, cap) plus uniform jitter, with the exponent clamped
// so the shift cannot overflow regardless of attempt count.
type Backoff struct {
	Base        time.Duration
	Cap         time.Duration
	MaxExponent int
	JitterMax   time.Duration
}

// NewBackoff builds a Backoff from anchor configuration.
func NewBackoff(cfg config.Anchor) Backoff {
	return Backoff{
		Base:        time.Duration(cfg.BackoffBase) * time.Second,
		Cap:         time.Duration(cfg.BackoffCap) * time.Second,
		MaxExponent: cfg.BackoffMaxExponent,
		JitterMax:   time.Duration(cfg.JitterMaxMillis) * time.Millisecond,
	}
}

// Delay returns the backoff for a job that has already failed attempts times.
func (b Backoff) Delay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	maxExp := b.MaxExponent
	if maxExp <= 0 {
		maxExp = 20
	}
	if attempts > maxExp {
		attempts = maxExp
	}

	delay := b.Base << attempts
	if delay > b.Cap || delay <= 0 {
		delay = b.Cap
	}
	if b.JitterMax > 0 {
		delay += time.Duration(rand.Int64N(int64(b.JitterMax)))
	}
	return delay
}
