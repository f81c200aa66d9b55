package api

import (
	"context"
	"time"

	metrics "github.com/rcrowley/go-metrics"
)

// Metric names registered by Metrics.
const (
	MetricRunsStarted          = "sagaflow.runs.started"
	MetricRunsCompleted        = "sagaflow.runs.completed"
	MetricRunsFailed           = "sagaflow.runs.failed"
	MetricRunsCanceled         = "sagaflow.runs.canceled"
	MetricStepRetries          = "sagaflow.steps.retries"
	MetricStepDuration         = "sagaflow.steps.duration"
	MetricCompensations        = "sagaflow.compensations"
	MetricCompensationFailures = "sagaflow.compensations.failed"
)

// Metrics collects run counters and step timings in a go-metrics registry.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type Metrics struct {
	NoopObserver

	registry metrics.Registry

	runsStarted          metrics.Counter
	runsCompleted        metrics.Counter
	runsFailed           metrics.Counter
	runsCanceled         metrics.Counter
	retries              metrics.Counter
	compensations        metrics.Counter
	compensationFailures metrics.Counter
	stepDuration         metrics.Timer
}

// MetricsSnapshot is an immutable snapshot of Metrics.
type MetricsSnapshot struct {
	RunsStarted   int64
	RunsCompleted int64
	RunsFailed    int64
	RunsCanceled  int64
	PendingRuns   int64

	StepRetries          int64
	Compensations        int64
	CompensationFailures int64

	StepsCompleted  int64
	AvgStepDuration time.Duration
}

// NewMetrics registers the run metrics in r. A nil registry gets a fresh one.
func NewMetrics(r metrics.Registry) *Metrics {
	if r == nil {
		r = metrics.NewRegistry()
	}
	return &Metrics{
		registry:             r,
		runsStarted:          metrics.GetOrRegisterCounter(MetricRunsStarted, r),
		runsCompleted:        metrics.GetOrRegisterCounter(MetricRunsCompleted, r),
		runsFailed:           metrics.GetOrRegisterCounter(MetricRunsFailed, r),
		runsCanceled:         metrics.GetOrRegisterCounter(MetricRunsCanceled, r),
		retries:              metrics.GetOrRegisterCounter(MetricStepRetries, r),
		compensations:        metrics.GetOrRegisterCounter(MetricCompensations, r),
		compensationFailures: metrics.GetOrRegisterCounter(MetricCompensationFailures, r),
		stepDuration:         metrics.GetOrRegisterTimer(MetricStepDuration, r),
	}
}

// Registry exposes the underlying registry, e.g. for metrics.Log.
func (m *Metrics) Registry() metrics.Registry { return m.registry }

func (m *Metrics) OnWorkflowStart(ctx context.Context, run *RunResult) {
	m.runsStarted.Inc(1)
}

func (m *Metrics) OnWorkflowCompleted(ctx context.Context, run *RunResult) {
	m.runsCompleted.Inc(1)
}

func (m *Metrics) OnWorkflowFailed(ctx context.Context, run *RunResult, err error) {
	m.runsFailed.Inc(1)
}

func (m *Metrics) OnWorkflowCanceled(ctx context.Context, run *RunResult) {
	m.runsCanceled.Inc(1)
}

func (m *Metrics) OnStepCompleted(ctx context.Context, run *RunResult, stepName string, idx int, err error, d time.Duration) {
	// Only successful attempts feed the duration timer.
	if err == nil {
		m.stepDuration.Update(d)
	}
}

func (m *Metrics) OnStepRetry(ctx context.Context, run *RunResult, stepName string, attempt int, delay time.Duration, err *Error) {
	m.retries.Inc(1)
}

func (m *Metrics) OnCompensation(ctx context.Context, run *RunResult, rec CompensationRecord) {
	m.compensations.Inc(1)
	if rec.Err != nil {
		m.compensationFailures.Inc(1)
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	started := m.runsStarted.Count()
	completed := m.runsCompleted.Count()
	failed := m.runsFailed.Count()
	canceled := m.runsCanceled.Count()

	timer := m.stepDuration.Snapshot()

	return MetricsSnapshot{
		RunsStarted:          started,
		RunsCompleted:        completed,
		RunsFailed:           failed,
		RunsCanceled:         canceled,
		PendingRuns:          started - completed - failed - canceled,
		StepRetries:          m.retries.Count(),
		Compensations:        m.compensations.Count(),
		CompensationFailures: m.compensationFailures.Count(),
		StepsCompleted:       timer.Count(),
		AvgStepDuration:      time.Duration(timer.Mean()),
	}
}
