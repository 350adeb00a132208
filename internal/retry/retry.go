// Package retry runs remote calls with a fixed number of attempts and a
// delay that grows by a constant step after every failure.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/nciocpl/ebms/internal/config"
)

// Linear is a backoff.BackOff whose delay starts at Initial and grows by
// Step after each failure: 10s, 20s, 30s, ...
type Linear struct {
	Initial time.Duration
	Step    time.Duration

	next time.Duration
	used bool
}

// NextBackOff implements backoff.BackOff.
func (l *Linear) NextBackOff() time.Duration {
	if !l.used {
		l.next = l.Initial
		l.used = true
		return l.next
	}
	l.next += l.Step
	return l.next
}

// Reset implements backoff.BackOff.
func (l *Linear) Reset() {
	l.next = 0
	l.used = false
}

// Policy bundles the attempt count with the linear delay.
type Policy struct {
	Attempts int
	Delay    time.Duration
	Step     time.Duration

	// Notify is called before each wait with the failure and the delay.
	Notify func(err error, wait time.Duration, remaining int)
}

// FromConfig builds a Policy from the retry settings.
func FromConfig(cfg config.RetryConfig) Policy {
	return Policy{Attempts: cfg.Attempts, Delay: cfg.Delay, Step: cfg.Step}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do calls op until it succeeds, returns a Permanent error, the attempts
// are exhausted, or ctx is done. The last error is returned.
func Do[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	tries := 0
	opts := []backoff.RetryOption{
		backoff.WithBackOff(&Linear{Initial: p.Delay, Step: p.Step}),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
	}
	if p.Notify != nil {
		opts = append(opts, backoff.WithNotify(func(err error, wait time.Duration) {
			p.Notify(err, wait, attempts-tries)
		}))
	}
	return backoff.Retry(ctx, func() (T, error) {
		tries++
		return op()
	}, opts...)
}
