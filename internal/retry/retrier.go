// Package retry decides whether and when a failed step attempt is retried.
package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/petrijr/sagaflow/pkg/api"
)

const (
	defaultCoefficient = 2.0
	defaultMaxFactor   = 100
)

// Decision is the outcome of Retrier.Next.
type Decision struct {
	Retry bool
	Delay time.Duration

	// Reason explains a terminal decision.
	Reason string
}

// Retrier tracks the attempts of one step invocation. It is not safe for
// concurrent use; each step invocation owns its own Retrier.
type Retrier struct {
	policy   *api.RetryPolicy
	backoff  *backoff.ExponentialBackOff
	attempts int
}

// New returns a Retrier for policy. A nil policy never retries.
func New(policy *api.RetryPolicy) *Retrier {
	r := &Retrier{policy: policy}
	if policy == nil {
		return r
	}

	coeff := policy.BackoffCoefficient
	if coeff == 0 {
		coeff = defaultCoefficient
	}
	maxInterval := policy.MaxInterval
	if maxInterval == 0 {
		maxInterval = defaultMaxFactor * policy.InitialInterval
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.InitialInterval
	b.Multiplier = coeff
	b.MaxInterval = maxInterval
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	r.backoff = b
	return r
}

// Attempts returns the number of failed attempts seen so far.
func (r *Retrier) Attempts() int { return r.attempts }

// Next records a failed attempt and decides what happens next.
//
// The failure is terminal when the classifier marked it non-retryable, when
// the policy excludes its kind, or when MaxAttempts is reached. Otherwise the
// delay is min(initial*coefficient^(attempt-1), max).
func (r *Retrier) Next(failure *api.Error) Decision {
	r.attempts++

	switch {
	case failure == nil:
		return Decision{Reason: "no failure"}
	case r.policy == nil:
		return Decision{Reason: "no retry policy"}
	case failure.NonRetryable:
		return Decision{Reason: "non-retryable error"}
	case r.policy.Excludes(failure.Kind):
		return Decision{Reason: "error kind " + string(failure.Kind) + " excluded by retry policy"}
	case r.policy.MaxAttempts > 0 && r.attempts >= r.policy.MaxAttempts:
		return Decision{Reason: "max attempts reached"}
	}

	delay := r.backoff.NextBackOff()
	if delay == backoff.Stop {
		return Decision{Reason: "backoff stopped"}
	}
	return Decision{Retry: true, Delay: delay}
}

// Schedule returns the first n waits of policy, i.e. the delays between
// attempts 1..n+1. It ignores MaxAttempts.
func Schedule(policy api.RetryPolicy, n int) []time.Duration {
	policy.MaxAttempts = 0
	r := New(&policy)
	out := make([]time.Duration, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.backoff.NextBackOff())
	}
	return out
}
