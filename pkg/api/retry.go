package api

import (
	"errors"
	"slices"
	"time"
)

// RetryPolicy controls how a step is retried when it fails.
//
// The wait before attempt k+1 is min(InitialInterval*BackoffCoefficient^(k-1), MaxInterval).
//
//	MaxAttempts = 1 => no retries (just the initial call)
//	MaxAttempts = 0 => retry until the run is cancelled or the error is terminal
//
// A zero BackoffCoefficient means 2.0. A zero MaxInterval means 100x the
// InitialInterval. A zero InitialInterval retries immediately.
type RetryPolicy struct {
	InitialInterval    time.Duration
	BackoffCoefficient float64
	MaxInterval        time.Duration
	MaxAttempts        int

	// NonRetryableErrorKinds are terminal for this step even when the
	// classifier considers them retryable.
	NonRetryableErrorKinds []ErrorKind
}

// Validate reports policies that cannot be executed.
func (p RetryPolicy) Validate() error {
	if p.InitialInterval < 0 || p.MaxInterval < 0 {
		return errors.New("retry policy: intervals must not be negative")
	}
	if p.MaxAttempts < 0 {
		return errors.New("retry policy: max attempts must not be negative")
	}
	if p.BackoffCoefficient != 0 && p.BackoffCoefficient < 1 {
		return errors.New("retry policy: backoff coefficient must be >= 1")
	}
	if p.MaxInterval > 0 && p.MaxInterval < p.InitialInterval {
		return errors.New("retry policy: max interval is below the initial interval")
	}
	return nil
}

// Excludes reports whether kind is listed in NonRetryableErrorKinds.
func (p RetryPolicy) Excludes(kind ErrorKind) bool {
	return slices.Contains(p.NonRetryableErrorKinds, kind)
}
