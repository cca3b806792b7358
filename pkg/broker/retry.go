package broker

import (
	"time"

	"github.com/avast/retry-go"
)

// RetryPolicy controls how often a failing handler is retried before the
// message is dead-lettered
type RetryPolicy struct {
	// Retries after the first attempt
	Retries uint
	// BaseDelay scales the backoff: retry n waits BaseDelay * 2^n
	BaseDelay time.Duration
}

// DefaultRetryPolicy retries three times, waiting 2s, 4s and 8s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Retries: 3, BaseDelay: time.Second}
}

// Delay returns the wait before retry n (1-based)
func (p RetryPolicy) Delay(n uint) time.Duration {
	return p.BaseDelay * time.Duration(uint64(1)<<n)
}

func (p RetryPolicy) attempts() uint {
	return p.Retries + 1
}

// delayType adapts Delay to retry-go, which numbers attempts from zero
func (p RetryPolicy) delayType(n uint, _ error, _ *retry.Config) time.Duration {
	return p.Delay(n + 1)
}

// Permanent marks err as not worth retrying; the message goes straight to the
// dead-letter queue
func Permanent(err error) error {
	return retry.Unrecoverable(err)
}
