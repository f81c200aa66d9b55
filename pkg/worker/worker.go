package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	metrics "github.com/rcrowley/go-metrics"
	"golang.org/x/sync/errgroup"

	"github.com/petrijr/sagaflow/internal/persistence"
	"github.com/petrijr/sagaflow/internal/taskqueue"
	"github.com/petrijr/sagaflow/pkg/api"
)

var (
	// ErrRunInFlight is returned by Submit for a run ID that is queued or
	// executing, and by Result for a run that has not finished yet.
	ErrRunInFlight = errors.New("run already in flight")

	// ErrAlreadyStarted is returned by Start when consumers are running.
	ErrAlreadyStarted = errors.New("worker already started")
)

// Metric names registered by a Worker.
const (
	MetricInFlight       = "sagaflow.worker.inflight"
	MetricTasksProcessed = "sagaflow.worker.tasks.processed"
	MetricSaveFailures   = "sagaflow.worker.results.save_failures"
)

// Config tunes a Worker. Zero values get defaults.
type Config struct {
	// Store keeps finished results. Defaults to an in-memory store.
	Store persistence.ResultStore

	Logger *slog.Logger

	// Registry receives worker gauges and counters. Defaults to a private
	// registry.
	Registry metrics.Registry
}

// Worker pulls run submissions from a Queue and executes them on an Engine.
// Many sagas run at once, one per consumer goroutine; each run is still
// strictly sequential inside the engine.
type Worker struct {
	engine api.Engine
	queue  taskqueue.Queue
	store  persistence.ResultStore
	logger *slog.Logger

	inflightGauge metrics.Gauge
	processed     metrics.Counter
	saveFailures  metrics.Counter

	mu       sync.Mutex
	inflight map[string]*Handle

	runMu   sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	running bool
}

// New creates a Worker with default configuration.
func New(engine api.Engine, queue taskqueue.Queue) *Worker {
	return NewWithConfig(engine, queue, Config{})
}

// NewWithConfig creates a Worker using cfg.
func NewWithConfig(engine api.Engine, queue taskqueue.Queue, cfg Config) *Worker {
	store := cfg.Store
	if store == nil {
		store = persistence.NewInMemoryStore()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := cfg.Registry
	if reg == nil {
		reg = metrics.NewRegistry()
	}

	return &Worker{
		engine:        engine,
		queue:         queue,
		store:         store,
		logger:        logger.With(slog.String("component", "worker")),
		inflightGauge: metrics.GetOrRegisterGauge(MetricInFlight, reg),
		processed:     metrics.GetOrRegisterCounter(MetricTasksProcessed, reg),
		saveFailures:  metrics.GetOrRegisterCounter(MetricSaveFailures, reg),
		inflight:      make(map[string]*Handle),
	}
}

// Submit enqueues a run of workflow and returns its handle. An empty runID
// gets a generated UUID. At most one run per ID may be in flight.
func (w *Worker) Submit(ctx context.Context, workflow, runID string, input any) (*Handle, error) {
	if runID == "" {
		runID = uuid.NewString()
	}

	h, err := w.track(runID)
	if err != nil {
		return nil, err
	}

	task := taskqueue.Task{
		ID:           uuid.NewString(),
		RunID:        runID,
		WorkflowName: workflow,
		Payload:      input,
		EnqueuedAt:   time.Now(),
	}
	if err := w.queue.Enqueue(ctx, task); err != nil {
		w.untrack(runID)
		return nil, fmt.Errorf("enqueue run %s: %w", runID, err)
	}

	w.logger.DebugContext(ctx, "run submitted",
		slog.String("workflow", workflow),
		slog.String("run_id", runID),
		slog.String("task_id", task.ID),
	)
	return h, nil
}

// track registers a handle for runID.
func (w *Worker) track(runID string) (*Handle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.inflight[runID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrRunInFlight, runID)
	}
	h := newHandle(runID)
	w.inflight[runID] = h
	w.inflightGauge.Update(int64(len(w.inflight)))
	return h, nil
}

func (w *Worker) untrack(runID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inflight, runID)
	w.inflightGauge.Update(int64(len(w.inflight)))
}

// handleFor returns the handle of a dequeued task, creating one for tasks
// submitted by another process sharing the queue.
func (w *Worker) handleFor(runID string) *Handle {
	w.mu.Lock()
	defer w.mu.Unlock()

	if h, ok := w.inflight[runID]; ok {
		return h
	}
	h := newHandle(runID)
	w.inflight[runID] = h
	w.inflightGauge.Update(int64(len(w.inflight)))
	return h
}

// Cancel requests cancellation of an in-flight run. Runs that have not
// started yet finish as canceled without executing any step. It reports
// whether the run was in flight.
func (w *Worker) Cancel(runID string) bool {
	w.mu.Lock()
	h, ok := w.inflight[runID]
	w.mu.Unlock()

	if ok {
		h.Cancel()
	}
	return ok
}

// InFlight returns the number of queued or executing runs known to this worker.
func (w *Worker) InFlight() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.inflight)
}

// ProcessOne pulls a single task from the queue and executes it.
// Returns (processed, error):
//   - processed == false: no task was obtained; err is the dequeue error
//     (context errors once ctx is done).
//   - processed == true: a run was executed; err is the run's error, or a
//     failure to save its result.
//
// Cancelling ctx stops waiting for a task but never cancels a run that
// already started; use Handle.Cancel or Worker.Cancel for that.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	h := w.handleFor(task.RunID)
	res, runErr := w.engine.Run(h.ctx, task.WorkflowName, task.RunID, task.Payload)
	w.processed.Inc(1)

	var saveErr error
	if res != nil {
		// The result must be stored even when the worker is shutting down.
		if err := w.store.SaveResult(context.WithoutCancel(ctx), res); err != nil {
			w.saveFailures.Inc(1)
			saveErr = fmt.Errorf("save result of run %s: %w", task.RunID, err)
			w.logger.ErrorContext(ctx, "saving run result failed",
				slog.String("run_id", task.RunID),
				slog.Any("error", err),
			)
		}
	}

	w.untrack(task.RunID)
	h.resolve(res, runErr)

	if saveErr != nil {
		return true, errors.Join(runErr, saveErr)
	}
	return true, runErr
}

// Start launches n consumer goroutines that call ProcessOne until Stop is
// called or ctx is cancelled. A non-positive n means 1.
func (w *Worker) Start(ctx context.Context, n int) error {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	if w.running {
		return ErrAlreadyStarted
	}
	if n <= 0 {
		n = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		consumer := i
		g.Go(func() error {
			w.consume(gctx, consumer)
			return nil
		})
	}

	w.cancel = cancel
	w.group = g
	w.running = true
	w.logger.InfoContext(ctx, "worker started", slog.Int("consumers", n))
	return nil
}

func (w *Worker) consume(ctx context.Context, consumer int) {
	logger := w.logger.With(slog.Int("consumer", consumer))
	for {
		processed, err := w.ProcessOne(ctx)
		if err == nil {
			continue
		}
		if !processed {
			if ctx.Err() != nil {
				return
			}
			logger.ErrorContext(ctx, "dequeue failed", slog.Any("error", err))
			// Avoid spinning on a broken queue.
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		// Saga failures are reported by the engine's observer.
		var te *api.TerminalError
		if errors.As(err, &te) || errors.Is(err, api.ErrRunCanceled) {
			logger.DebugContext(ctx, "run finished unsuccessfully", slog.Any("error", err))
			continue
		}
		logger.ErrorContext(ctx, "run failed", slog.Any("error", err))
	}
}

// Stop stops the consumers started by Start and waits for them. Runs that
// are executing finish first; queued runs stay queued.
func (w *Worker) Stop() {
	w.runMu.Lock()
	if !w.running {
		w.runMu.Unlock()
		return
	}
	cancel, g := w.cancel, w.group
	w.running = false
	w.cancel, w.group = nil, nil
	w.runMu.Unlock()

	cancel()
	_ = g.Wait()
	w.logger.Info("worker stopped")
}

// Result returns the stored result of a finished run. A run that is still
// queued or executing yields ErrRunInFlight.
func (w *Worker) Result(ctx context.Context, runID string) (*api.RunResult, error) {
	res, err := w.store.GetResult(ctx, runID)
	if errors.Is(err, persistence.ErrResultNotFound) {
		w.mu.Lock()
		_, pending := w.inflight[runID]
		w.mu.Unlock()
		if pending {
			return nil, fmt.Errorf("%w: %s", ErrRunInFlight, runID)
		}
	}
	return res, err
}

// Results lists stored results of finished runs.
func (w *Worker) Results(ctx context.Context, filter persistence.ResultFilter) ([]*api.RunResult, error) {
	return w.store.ListResults(ctx, filter)
}
