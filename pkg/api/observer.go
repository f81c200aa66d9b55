package api

import (
	"context"
	"log/slog"
	"time"
)

// Observer receives callbacks from the engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay workflow execution. Runs execute
// concurrently, so implementations must be safe for concurrent use.
type Observer interface {
	// OnWorkflowStart is called once per run, before the first step.
	OnWorkflowStart(ctx context.Context, run *RunResult)

	// OnWorkflowCompleted is called when a run reaches StatusCompleted.
	OnWorkflowCompleted(ctx context.Context, run *RunResult)

	// OnWorkflowFailed is called when a run reaches StatusFailed, after its
	// compensations have been unwound.
	OnWorkflowFailed(ctx context.Context, run *RunResult, err error)

	// OnWorkflowCanceled is called when a run is stopped by cancellation.
	OnWorkflowCanceled(ctx context.Context, run *RunResult)

	// OnStepStart is called before each attempt of a step.
	// stepIndex is the 0-based index into WorkflowDefinition.Steps.
	OnStepStart(ctx context.Context, run *RunResult, stepName string, stepIndex int, attempt int)

	// OnStepCompleted is called after an attempt returns, for both
	// successes and failures (err != nil).
	OnStepCompleted(ctx context.Context, run *RunResult, stepName string, stepIndex int, err error, duration time.Duration)

	// OnStepRetry is called when a failed attempt will be retried after delay.
	OnStepRetry(ctx context.Context, run *RunResult, stepName string, attempt int, delay time.Duration, err *Error)

	// OnCompensation is called after each compensation during unwind.
	OnCompensation(ctx context.Context, run *RunResult, rec CompensationRecord)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnWorkflowStart(ctx context.Context, run *RunResult)                        {}
func (NoopObserver) OnWorkflowCompleted(ctx context.Context, run *RunResult)                    {}
func (NoopObserver) OnWorkflowFailed(ctx context.Context, run *RunResult, err error)            {}
func (NoopObserver) OnWorkflowCanceled(ctx context.Context, run *RunResult)                     {}
func (NoopObserver) OnCompensation(ctx context.Context, run *RunResult, rec CompensationRecord) {}
func (NoopObserver) OnStepStart(ctx context.Context, run *RunResult, stepName string, idx int, attempt int) {
}
func (NoopObserver) OnStepCompleted(ctx context.Context, run *RunResult, stepName string, idx int, err error, d time.Duration) {
}
func (NoopObserver) OnStepRetry(ctx context.Context, run *RunResult, stepName string, attempt int, delay time.Duration, err *Error) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnWorkflowStart(ctx context.Context, run *RunResult) {
	for _, o := range c.observers {
		o.OnWorkflowStart(ctx, run)
	}
}

func (c *CompositeObserver) OnWorkflowCompleted(ctx context.Context, run *RunResult) {
	for _, o := range c.observers {
		o.OnWorkflowCompleted(ctx, run)
	}
}

func (c *CompositeObserver) OnWorkflowFailed(ctx context.Context, run *RunResult, err error) {
	for _, o := range c.observers {
		o.OnWorkflowFailed(ctx, run, err)
	}
}

func (c *CompositeObserver) OnWorkflowCanceled(ctx context.Context, run *RunResult) {
	for _, o := range c.observers {
		o.OnWorkflowCanceled(ctx, run)
	}
}

func (c *CompositeObserver) OnStepStart(ctx context.Context, run *RunResult, stepName string, idx int, attempt int) {
	for _, o := range c.observers {
		o.OnStepStart(ctx, run, stepName, idx, attempt)
	}
}

func (c *CompositeObserver) OnStepCompleted(ctx context.Context, run *RunResult, stepName string, idx int, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnStepCompleted(ctx, run, stepName, idx, err, d)
	}
}

func (c *CompositeObserver) OnStepRetry(ctx context.Context, run *RunResult, stepName string, attempt int, delay time.Duration, err *Error) {
	for _, o := range c.observers {
		o.OnStepRetry(ctx, run, stepName, attempt, delay, err)
	}
}

func (c *CompositeObserver) OnCompensation(ctx context.Context, run *RunResult, rec CompensationRecord) {
	for _, o := range c.observers {
		o.OnCompensation(ctx, run, rec)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs run / step lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnWorkflowStart(ctx context.Context, run *RunResult) {
	o.Logger.InfoContext(ctx, "workflow_start",
		slog.String("workflow", run.Workflow),
		slog.String("run_id", run.ID),
	)
}

func (o *LoggingObserver) OnWorkflowCompleted(ctx context.Context, run *RunResult) {
	o.Logger.InfoContext(ctx, "workflow_completed",
		slog.String("workflow", run.Workflow),
		slog.String("run_id", run.ID),
		slog.Duration("duration", run.Duration()),
	)
}

func (o *LoggingObserver) OnWorkflowFailed(ctx context.Context, run *RunResult, err error) {
	o.Logger.ErrorContext(ctx, "workflow_failed",
		slog.String("workflow", run.Workflow),
		slog.String("run_id", run.ID),
		slog.String("step", run.FailedStep),
		slog.Int("compensations", len(run.Compensations)),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnWorkflowCanceled(ctx context.Context, run *RunResult) {
	o.Logger.WarnContext(ctx, "workflow_canceled",
		slog.String("workflow", run.Workflow),
		slog.String("run_id", run.ID),
		slog.String("step", run.FailedStep),
	)
}

func (o *LoggingObserver) OnStepStart(ctx context.Context, run *RunResult, stepName string, idx int, attempt int) {
	o.Logger.DebugContext(ctx, "step_start",
		slog.String("workflow", run.Workflow),
		slog.String("run_id", run.ID),
		slog.String("step", stepName),
		slog.Int("step_index", idx),
		slog.Int("attempt", attempt),
	)
}

func (o *LoggingObserver) OnStepCompleted(ctx context.Context, run *RunResult, stepName string, idx int, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelWarn
	}
	o.Logger.Log(ctx, level, "step_completed",
		slog.String("workflow", run.Workflow),
		slog.String("run_id", run.ID),
		slog.String("step", stepName),
		slog.Int("step_index", idx),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnStepRetry(ctx context.Context, run *RunResult, stepName string, attempt int, delay time.Duration, err *Error) {
	o.Logger.InfoContext(ctx, "step_retry",
		slog.String("workflow", run.Workflow),
		slog.String("run_id", run.ID),
		slog.String("step", stepName),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
		slog.String("kind", string(err.Kind)),
		slog.String("error", err.Message),
	)
}

func (o *LoggingObserver) OnCompensation(ctx context.Context, run *RunResult, rec CompensationRecord) {
	level := slog.LevelInfo
	attrs := []slog.Attr{
		slog.String("workflow", run.Workflow),
		slog.String("run_id", run.ID),
		slog.String("step", rec.Step),
		slog.String("compensation", rec.Name),
		slog.Duration("duration", rec.Elapsed),
	}
	if rec.Err != nil {
		level = slog.LevelError
		attrs = append(attrs, slog.Any("error", rec.Err))
	}
	o.Logger.LogAttrs(ctx, level, "compensation", attrs...)
}
