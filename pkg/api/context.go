package api

import (
	"context"
	"log/slog"
)

// HeartbeatRecorder receives liveness signals from a running step.
type HeartbeatRecorder interface {
	RecordHeartbeat(details any)
}

type (
	heartbeatKey struct{}
	detailsKey   struct{}
	loggerKey    struct{}
	runInfoKey   struct{}
)

// WithHeartbeatRecorder returns a context whose heartbeats go to r.
func WithHeartbeatRecorder(ctx context.Context, r HeartbeatRecorder) context.Context {
	return context.WithValue(ctx, heartbeatKey{}, r)
}

// RecordHeartbeat reports that the step running under ctx is alive.
// details is an opaque progress token; the last one is handed to the next
// attempt via HeartbeatDetails. Steps without a heartbeat policy may call
// it freely; it is a no-op there.
func RecordHeartbeat(ctx context.Context, details any) {
	if r, ok := ctx.Value(heartbeatKey{}).(HeartbeatRecorder); ok && r != nil {
		r.RecordHeartbeat(details)
	}
}

// WithHeartbeatDetails attaches the last progress token of a previous attempt.
func WithHeartbeatDetails(ctx context.Context, details any) context.Context {
	return context.WithValue(ctx, detailsKey{}, details)
}

// HeartbeatDetails returns the last progress token recorded by a previous
// attempt of the current step.
func HeartbeatDetails(ctx context.Context) (any, bool) {
	v := ctx.Value(detailsKey{})
	return v, v != nil
}

// WithLogger attaches a logger for step code.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// Logger returns the logger attached to ctx, or slog.Default().
func Logger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// RunInfo identifies the run and attempt a step executes in.
type RunInfo struct {
	RunID    string
	Workflow string
	Step     string
	Attempt  int
}

// WithRunInfo attaches run metadata to ctx.
func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

// RunInfoFrom returns the run metadata attached by the engine.
func RunInfoFrom(ctx context.Context) (RunInfo, bool) {
	info, ok := ctx.Value(runInfoKey{}).(RunInfo)
	return info, ok
}
