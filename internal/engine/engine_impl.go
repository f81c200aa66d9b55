package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/petrijr/sagaflow/internal/compensation"
	"github.com/petrijr/sagaflow/internal/heartbeat"
	"github.com/petrijr/sagaflow/internal/retry"
	"github.com/petrijr/sagaflow/pkg/api"
)

// ErrUnknownWorkflow is returned by Run for names that were never registered.
var ErrUnknownWorkflow = errors.New("unknown workflow")

var errStartToClose = errors.New("start-to-close timeout exceeded")

// engineImpl is a synchronous, in-process saga engine. Runs share nothing
// but the registry; each owns its state, step records and compensation stack.
type engineImpl struct {
	registry *workflowRegistry
	observer api.Observer
	clock    clockwork.Clock
	logger   *slog.Logger
	newRunID func() string
}

// Config describes how to construct an engine. Zero values get defaults.
type Config struct {
	Observer api.Observer
	Clock    clockwork.Clock
	Logger   *slog.Logger

	// NewRunID generates IDs for runs started without one.
	NewRunID func() string
}

// NewEngineWithConfig creates a new Engine using the given configuration.
func NewEngineWithConfig(cfg Config) api.Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newID := cfg.NewRunID
	if newID == nil {
		newID = uuid.NewString
	}
	return &engineImpl{
		registry: newWorkflowRegistry(),
		observer: obs,
		clock:    clock,
		logger:   logger,
		newRunID: newID,
	}
}

// NewEngine returns an Engine with default configuration.
func NewEngine() api.Engine {
	return NewEngineWithConfig(Config{})
}

// NewEngineWithObserver returns an Engine reporting to obs.
func NewEngineWithObserver(obs api.Observer) api.Engine {
	return NewEngineWithConfig(Config{Observer: obs})
}

func (e *engineImpl) RegisterWorkflow(def api.WorkflowDefinition) error {
	return e.registry.Register(def)
}

// sagaRun is the per-run state owned by one Run call.
type sagaRun struct {
	def    api.WorkflowDefinition
	result *api.RunResult
	state  *api.State
	stack  *compensation.Stack
	logger *slog.Logger
}

func (e *engineImpl) Run(ctx context.Context, name string, runID string, input any) (*api.RunResult, error) {
	def, err := e.registry.Get(name)
	if err != nil {
		return nil, err
	}
	if runID == "" {
		runID = e.newRunID()
	}

	r := &sagaRun{
		def: def,
		result: &api.RunResult{
			ID:        runID,
			Workflow:  def.Name,
			Status:    api.StatusRunning,
			Input:     input,
			StartedAt: e.clock.Now(),
		},
		state:  api.NewState(input),
		stack:  &compensation.Stack{Clock: e.clock},
		logger: e.logger.With(slog.String("workflow", def.Name), slog.String("run_id", runID)),
	}

	e.observer.OnWorkflowStart(ctx, r.result)
	return e.executeSteps(ctx, r)
}

func (e *engineImpl) executeSteps(ctx context.Context, r *sagaRun) (*api.RunResult, error) {
	for i, step := range r.def.Steps {
		if ctx.Err() != nil {
			return e.cancelRun(ctx, r, step.Name)
		}

		input, err := resolveInput(step, r.state)
		if err != nil {
			failure := api.Classify(fmt.Errorf("resolve input: %w", err))
			failure.NonRetryable = true
			return e.failRun(ctx, r, step.Name, failure)
		}

		if step.Precondition != nil {
			if err := step.Precondition(r.state); err != nil {
				// Business rules are never retried.
				failure := api.Classify(err)
				failure.NonRetryable = true
				r.logger.ErrorContext(ctx, "precondition failed",
					slog.String("step", step.Name),
					slog.String("kind", string(failure.Kind)),
					slog.String("error", failure.Message),
				)
				return e.failRun(ctx, r, step.Name, failure)
			}
		}

		if c := step.Compensation; c != nil && c.Register == api.RegisterBefore {
			if err := r.stack.Push(compensationEntry(step, input)); err != nil {
				return e.failRun(ctx, r, step.Name, api.Classify(err))
			}
		}

		out, rec, failure := e.invokeStep(ctx, r, i, step, input)
		r.result.Steps = append(r.result.Steps, rec)

		if failure != nil {
			if rec.Status == api.StatusCanceled {
				return e.cancelRun(ctx, r, step.Name)
			}
			return e.failRun(ctx, r, step.Name, failure)
		}

		r.state.Bind(step.Name, out)

		if c := step.Compensation; c != nil && c.Register == api.RegisterAfter {
			if err := r.stack.Push(compensationEntry(step, input)); err != nil {
				return e.failRun(ctx, r, step.Name, api.Classify(err))
			}
		}
	}

	r.result.Status = api.StatusCompleted
	r.result.Output = r.state.Last()
	r.result.FinishedAt = e.clock.Now()
	e.observer.OnWorkflowCompleted(ctx, r.result)
	return r.result, nil
}

func resolveInput(step api.StepDefinition, s *api.State) (any, error) {
	if step.Input == nil {
		return s.Last(), nil
	}
	return step.Input(s)
}

func compensationEntry(step api.StepDefinition, input any) compensation.Entry {
	return compensation.Entry{
		Step:    step.Name,
		Name:    step.CompensationName(),
		Input:   input,
		Fn:      step.Compensation.Fn,
		Timeout: step.Compensation.Timeout,
	}
}

// invokeStep runs a step through its retry policy until it succeeds, fails
// terminally or the run is cancelled.
func (e *engineImpl) invokeStep(ctx context.Context, r *sagaRun, idx int, step api.StepDefinition, input any) (any, api.StepRecord, *api.Error) {
	rec := api.StepRecord{Name: step.Name}
	retrier := retry.New(step.Retry)
	start := e.clock.Now()

	var details any
	for attempt := 1; ; attempt++ {
		rec.Attempts = attempt
		e.observer.OnStepStart(ctx, r.result, step.Name, idx, attempt)

		attemptStart := e.clock.Now()
		out, lastDetails, err := e.runAttempt(ctx, r, step, input, attempt, details)
		if lastDetails != nil {
			details = lastDetails
		}
		e.observer.OnStepCompleted(ctx, r.result, step.Name, idx, err, e.clock.Since(attemptStart))

		if err == nil {
			rec.Status = api.StatusCompleted
			rec.Elapsed = e.clock.Since(start)
			return out, rec, nil
		}

		failure := e.classify(ctx, step, err)
		rec.LastError = failure
		rec.Elapsed = e.clock.Since(start)

		if ctx.Err() != nil {
			rec.Status = api.StatusCanceled
			return nil, rec, failure
		}

		decision := retrier.Next(failure)
		if !decision.Retry {
			rec.Status = api.StatusFailed
			r.logger.DebugContext(ctx, "step failed terminally",
				slog.String("step", step.Name),
				slog.Int("attempts", attempt),
				slog.String("reason", decision.Reason),
			)
			return nil, rec, failure
		}

		e.observer.OnStepRetry(ctx, r.result, step.Name, attempt, decision.Delay, failure)
		if err := e.sleep(ctx, decision.Delay); err != nil {
			rec.Status = api.StatusCanceled
			rec.Elapsed = e.clock.Since(start)
			return nil, rec, api.WrapError(api.KindCanceled, err)
		}
	}
}

type attemptResult struct {
	out any
	err error
}

// runAttempt executes one attempt of step. The step function runs on its own
// goroutine; its heartbeat monitor and start-to-close timer run in an errgroup
// beside it. The attempt ends at the first of: the step returning, a watchdog
// firing or ctx being done. A step that ignores its context is abandoned and
// its late result discarded.
func (e *engineImpl) runAttempt(ctx context.Context, r *sagaRun, step api.StepDefinition, input any, attempt int, details any) (any, any, error) {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stepCtx := api.WithRunInfo(attemptCtx, api.RunInfo{
		RunID:    r.result.ID,
		Workflow: r.result.Workflow,
		Step:     step.Name,
		Attempt:  attempt,
	})
	stepCtx = api.WithLogger(stepCtx, r.logger.With(slog.String("step", step.Name), slog.Int("attempt", attempt)))
	if details != nil {
		stepCtx = api.WithHeartbeatDetails(stepCtx, details)
	}

	var mon *heartbeat.Monitor
	if hb := step.Heartbeat; hb != nil {
		mon = heartbeat.New(e.clock, hb.Interval, hb.Timeout)
		stepCtx = api.WithHeartbeatRecorder(stepCtx, mon)
	}

	// Buffered so an abandoned step can still deliver and exit.
	done := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- attemptResult{err: fmt.Errorf("step %s panicked: %v", step.Name, p)}
			}
		}()
		v, err := step.Fn(stepCtx, input)
		done <- attemptResult{out: v, err: err}
	}()

	var watchdogs chan error
	if mon != nil || step.Timeout > 0 {
		g, gctx := errgroup.WithContext(attemptCtx)
		if mon != nil {
			g.Go(func() error {
				return mon.Run(gctx)
			})
		}
		if step.Timeout > 0 {
			g.Go(func() error {
				timer := e.clock.NewTimer(step.Timeout)
				defer timer.Stop()
				select {
				case <-gctx.Done():
					return nil
				case <-timer.Chan():
					return errStartToClose
				}
			})
		}
		watchdogs = make(chan error, 1)
		go func() { watchdogs <- g.Wait() }()
	}

	var res attemptResult
	select {
	case res = <-done:
		cancel()
		if watchdogs != nil {
			<-watchdogs
		}
	case err := <-watchdogs:
		if err == nil {
			err = ctx.Err()
		}
		res.err = err
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	var lastDetails any
	if mon != nil {
		lastDetails = mon.Details()
	}
	return res.out, lastDetails, res.err
}

func (e *engineImpl) classify(ctx context.Context, step api.StepDefinition, err error) *api.Error {
	switch {
	case ctx.Err() != nil:
		return api.WrapError(api.KindCanceled, ctx.Err())
	case errors.Is(err, heartbeat.ErrStalled):
		f := api.WrapError(api.KindStalled, err)
		f.Message = fmt.Sprintf("step %s sent no heartbeat for %s", step.Name, step.Heartbeat.Timeout)
		return f
	case errors.Is(err, errStartToClose):
		f := api.WrapError(api.KindTimeout, err)
		f.Message = fmt.Sprintf("step %s did not finish within %s", step.Name, step.Timeout)
		return f
	default:
		return api.Classify(err)
	}
}

// sleep waits d on the engine clock or until ctx is done.
func (e *engineImpl) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := e.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}

// failRun unwinds the compensation stack and marks the run failed with the
// original failure.
func (e *engineImpl) failRun(ctx context.Context, r *sagaRun, stepName string, failure *api.Error) (*api.RunResult, error) {
	r.result.Status = api.StatusFailed
	r.result.Failure = failure
	r.result.FailedStep = stepName

	if r.stack.Len() > 0 {
		r.logger.InfoContext(ctx, "unwinding compensations",
			slog.String("step", stepName),
			slog.Int("pending", r.stack.Len()),
		)
	}

	// Unwind is detached from run cancellation; each compensation is
	// bounded by its own timeout.
	unwindCtx := context.WithoutCancel(ctx)
	outcomes := r.stack.Unwind(unwindCtx, e.compensate(r), func(o compensation.Outcome) {
		rec := o.Record()
		r.result.Compensations = append(r.result.Compensations, rec)
		e.observer.OnCompensation(unwindCtx, r.result, rec)
	})
	if err := compensation.Err(outcomes); err != nil {
		r.logger.ErrorContext(ctx, "compensation failures", slog.Any("error", err))
	}

	r.result.FinishedAt = e.clock.Now()
	runErr := r.result.Err()
	e.observer.OnWorkflowFailed(ctx, r.result, runErr)
	return r.result, runErr
}

// compensate returns the invoker used while unwinding: one attempt, bounded
// by the entry's timeout, never retried.
func (e *engineImpl) compensate(r *sagaRun) compensation.Invoker {
	return func(ctx context.Context, entry compensation.Entry) error {
		step := api.StepDefinition{
			Name:    entry.Name,
			Fn:      entry.Fn,
			Timeout: entry.Timeout,
		}
		_, _, err := e.runAttempt(ctx, r, step, entry.Input, 1, nil)
		if errors.Is(err, errStartToClose) {
			return api.NewError(api.KindTimeout, "compensation %s did not finish within %s", entry.Name, entry.Timeout)
		}
		return err
	}
}

// cancelRun stops the run without unwinding compensations.
func (e *engineImpl) cancelRun(ctx context.Context, r *sagaRun, stepName string) (*api.RunResult, error) {
	r.result.Status = api.StatusCanceled
	r.result.FailedStep = stepName
	r.result.Failure = api.WrapError(api.KindCanceled, api.ErrRunCanceled)
	r.result.FinishedAt = e.clock.Now()

	if n := r.stack.Len(); n > 0 {
		r.logger.WarnContext(ctx, "run canceled with pending compensations",
			slog.String("step", stepName),
			slog.Int("pending", n),
		)
	}

	e.observer.OnWorkflowCanceled(ctx, r.result)
	return r.result, r.result.Err()
}
