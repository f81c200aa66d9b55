// Package api contains the core building blocks used by the sagaflow
// engine: workflow and step definitions, retry and heartbeat policies, the
// classified error type and run results, and the Observer hooks.
//
// Most users interact with the higher-level sagaflow package, which
// re-exports selected types and helpers from this package. The api package
// is intended for custom integrations and for code that runs inside steps.
//
// # Steps
//
// A step is a StepFunc plus its policies: a start-to-close Timeout, an
// optional RetryPolicy, an optional HeartbeatPolicy and an optional
// CompensationDefinition. Steps are expected to honour context
// cancellation and, when compensated, to have idempotent compensations.
//
// # Errors
//
// Every failure is mapped onto an *Error by Classify. The Kind is a stable
// tag; NonRetryable is the classifier's verdict. A RetryPolicy may add kinds
// it refuses to retry. A failed run reports a *TerminalError carrying the
// step's error and the compensations that were unwound; a canceled run
// reports ErrRunCanceled and unwinds nothing.
//
// # Heartbeats
//
// Long-running steps call RecordHeartbeat(ctx, details) to prove liveness.
// The last details of a failed attempt are available to the next attempt
// through HeartbeatDetails.
//
// # Observability
//
// Observer receives lifecycle events. LoggingObserver writes them with
// log/slog and Metrics counts them in a go-metrics registry; combine them
// with NewCompositeObserver.
package api
