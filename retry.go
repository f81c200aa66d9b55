package sagaflow

import "time"

// RetryBuilder provides a fluent way to construct RetryPolicy values
// for use with FlowBuilder.WithRetry.
type RetryBuilder struct {
	policy RetryPolicy
}

// Retry creates a RetryBuilder with the given maxAttempts. Zero means retry
// until the error is terminal or the run is cancelled; negative values are
// treated as 1 (no retries).
func Retry(maxAttempts int) RetryBuilder {
	if maxAttempts < 0 {
		maxAttempts = 1
	}
	return RetryBuilder{
		policy: RetryPolicy{
			MaxAttempts: maxAttempts,
		},
	}
}

// WithExponentialBackoff configures exponential backoff:
//
//   - initial is the delay before the first retry.
//   - coefficient grows the delay each attempt (2.0 if <= 0).
//   - max caps the delay; if <= 0 it defaults to 100x initial.
//
// Example:
//
//	Retry(100).WithExponentialBackoff(15*time.Second, 2.0, 160*time.Second)
func (r RetryBuilder) WithExponentialBackoff(initial time.Duration, coefficient float64, max time.Duration) RetryBuilder {
	p := r.policy
	p.InitialInterval = initial
	if max < 0 {
		max = 0
	}
	p.MaxInterval = max
	if coefficient <= 0 {
		coefficient = 2.0
	}
	p.BackoffCoefficient = coefficient
	return RetryBuilder{policy: p}
}

// WithConstantBackoff waits the same delay before every retry.
func (r RetryBuilder) WithConstantBackoff(delay time.Duration) RetryBuilder {
	p := r.policy
	p.InitialInterval = delay
	p.MaxInterval = delay
	p.BackoffCoefficient = 1.0
	return RetryBuilder{policy: p}
}

// Immediate disables any sleep between retries.
// Retries still respect MaxAttempts.
func (r RetryBuilder) Immediate() RetryBuilder {
	p := r.policy
	p.InitialInterval = 0
	p.MaxInterval = 0
	p.BackoffCoefficient = 0
	return RetryBuilder{policy: p}
}

// NonRetryable marks error kinds as terminal for this step, on top of the
// kinds that are never retried by default.
func (r RetryBuilder) NonRetryable(kinds ...ErrorKind) RetryBuilder {
	p := r.policy
	p.NonRetryableErrorKinds = append(append([]ErrorKind(nil), p.NonRetryableErrorKinds...), kinds...)
	return RetryBuilder{policy: p}
}

// Policy returns the underlying RetryPolicy.
func (r RetryBuilder) Policy() RetryPolicy {
	return r.policy
}
