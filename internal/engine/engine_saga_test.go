package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/sagaflow/pkg/api"
)

// callLog records step and compensation calls in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *callLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) step(name string, err error) api.StepFunc {
	return func(ctx context.Context, input any) (any, error) {
		l.add(name)
		if err != nil {
			return nil, err
		}
		return name + "-out", nil
	}
}

func compensated(name string, log *callLog, policy api.RegisterPolicy, compErr error) api.StepDefinition {
	return api.StepDefinition{
		Name: name,
		Fn:   log.step(name, nil),
		Compensation: &api.CompensationDefinition{
			Name: "undo-" + name,
			Fn: func(ctx context.Context, input any) (any, error) {
				log.add("undo-" + name)
				return nil, compErr
			},
			Register: policy,
			Timeout:  time.Second,
		},
	}
}

func TestSaga_CompensationsRunInReverseAndOriginalErrorWins(t *testing.T) {
	log := &callLog{}
	engine := NewEngine()

	cErr := api.NewNonRetryableError(api.KindCreditCardProcessingError, "card declined")
	wf := api.WorkflowDefinition{
		Name: "abc",
		Steps: []api.StepDefinition{
			compensated("a", log, api.RegisterAfter, nil),
			compensated("b", log, api.RegisterAfter, nil),
			{Name: "c", Fn: log.step("c", cErr)},
		},
	}
	require.NoError(t, engine.RegisterWorkflow(wf))

	res, err := engine.Run(context.Background(), "abc", "r1", nil)

	require.Equal(t, []string{"a", "b", "c", "undo-b", "undo-a"}, log.get())

	var te *api.TerminalError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "c", te.Step)
	assert.Equal(t, api.KindCreditCardProcessingError, te.Err.Kind)
	assert.Equal(t, "card declined", te.Err.Message)

	require.Len(t, res.Compensations, 2)
	assert.Equal(t, "undo-b", res.Compensations[0].Name)
	assert.Equal(t, "b", res.Compensations[0].Step)
	assert.Equal(t, "undo-a", res.Compensations[1].Name)
	assert.True(t, res.Compensations[0].Succeeded())
	assert.True(t, res.Compensations[1].Succeeded())
}

func TestSaga_CompensationReceivesForwardInput(t *testing.T) {
	engine := NewEngine()

	var got any
	wf := api.WorkflowDefinition{
		Name: "snapshot",
		Steps: []api.StepDefinition{
			{
				Name: "reserve",
				Fn:   func(ctx context.Context, input any) (any, error) { return "reservation-1", nil },
				Compensation: &api.CompensationDefinition{
					Fn: func(ctx context.Context, input any) (any, error) {
						got = input
						return nil, nil
					},
					Register: api.RegisterAfter,
				},
			},
			{Name: "fail", Fn: func(ctx context.Context, input any) (any, error) { return nil, errors.New("boom") }},
		},
	}
	require.NoError(t, engine.RegisterWorkflow(wf))

	_, err := engine.Run(context.Background(), wf.Name, "r", "order-7")
	require.Error(t, err)
	assert.Equal(t, "order-7", got)
}

func TestSaga_RegisterBeforeCompensatesFailingStep(t *testing.T) {
	log := &callLog{}
	engine := NewEngine()

	charge := compensated("charge", log, api.RegisterBefore, nil)
	charge.Fn = log.step("charge", api.NewError(api.KindCreditCardProcessingError, "gateway timeout after capture"))

	wf := api.WorkflowDefinition{
		Name: "before",
		Steps: []api.StepDefinition{
			compensated("reserve", log, api.RegisterAfter, nil),
			charge,
		},
	}
	require.NoError(t, engine.RegisterWorkflow(wf))

	res, err := engine.Run(context.Background(), wf.Name, "r", nil)
	require.Error(t, err)
	assert.Equal(t, []string{"reserve", "charge", "undo-charge", "undo-reserve"}, log.get())
	assert.Len(t, res.Compensations, 2)
}

func TestSaga_RegisterAfterSkipsFailingStep(t *testing.T) {
	log := &callLog{}
	engine := NewEngine()

	reserve := compensated("reserve", log, api.RegisterAfter, nil)
	reserve.Fn = log.step("reserve", api.NewNonRetryableError(api.KindUnknown, "out of dough"))

	wf := api.WorkflowDefinition{
		Name:  "after",
		Steps: []api.StepDefinition{compensated("quote", log, api.RegisterAfter, nil), reserve},
	}
	require.NoError(t, engine.RegisterWorkflow(wf))

	res, err := engine.Run(context.Background(), wf.Name, "r", nil)
	require.Error(t, err)
	assert.Equal(t, []string{"quote", "reserve", "undo-quote"}, log.get())
	require.Len(t, res.Compensations, 1)
}

func TestSaga_FailedCompensationDoesNotHaltUnwindOrMaskError(t *testing.T) {
	log := &callLog{}
	engine := NewEngine()

	wf := api.WorkflowDefinition{
		Name: "comp-fail",
		Steps: []api.StepDefinition{
			compensated("a", log, api.RegisterAfter, nil),
			compensated("b", log, api.RegisterAfter, errors.New("inventory service down")),
			{Name: "c", Fn: log.step("c", api.NewError(api.KindInvalidChargeAmount, "negative"))},
		},
	}
	require.NoError(t, engine.RegisterWorkflow(wf))

	res, err := engine.Run(context.Background(), wf.Name, "r", nil)

	assert.Equal(t, []string{"a", "b", "c", "undo-b", "undo-a"}, log.get())
	assert.Equal(t, api.KindInvalidChargeAmount, api.KindOf(err))
	require.Len(t, res.Compensations, 2)
	require.NotNil(t, res.Compensations[0].Err)
	assert.Contains(t, res.Compensations[0].Err.Message, "inventory service down")
	assert.Nil(t, res.Compensations[1].Err)
	assert.Contains(t, err.Error(), "2 compensations, 1 failed")
}

func TestSaga_CompensationTimeoutIsRecorded(t *testing.T) {
	engine := NewEngine()

	wf := api.WorkflowDefinition{
		Name: "slow-undo",
		Steps: []api.StepDefinition{
			{
				Name: "a",
				Fn:   passThrough,
				Compensation: &api.CompensationDefinition{
					Name: "slow",
					Fn: func(ctx context.Context, input any) (any, error) {
						<-ctx.Done()
						return nil, ctx.Err()
					},
					Register: api.RegisterAfter,
					Timeout:  20 * time.Millisecond,
				},
			},
			{Name: "b", Fn: func(ctx context.Context, input any) (any, error) { return nil, api.NewError(api.KindOutOfServiceArea, "x") }},
		},
	}
	require.NoError(t, engine.RegisterWorkflow(wf))

	start := time.Now()
	res, err := engine.Run(context.Background(), wf.Name, "r", nil)
	require.Error(t, err)
	require.Less(t, time.Since(start), time.Second)
	require.Len(t, res.Compensations, 1)
	require.NotNil(t, res.Compensations[0].Err)
	assert.Equal(t, api.KindTimeout, res.Compensations[0].Err.Kind)
	assert.Equal(t, api.KindOutOfServiceArea, res.Failure.Kind)
}

func TestSaga_CompensationsAreNotRetried(t *testing.T) {
	engine := NewEngine()

	var calls int
	wf := api.WorkflowDefinition{
		Name: "no-comp-retry",
		Steps: []api.StepDefinition{
			{
				Name: "a",
				Fn:   passThrough,
				Retry: &api.RetryPolicy{
					MaxAttempts: 5,
				},
				Compensation: &api.CompensationDefinition{
					Fn: func(ctx context.Context, input any) (any, error) {
						calls++
						return nil, errors.New("transient")
					},
					Register: api.RegisterAfter,
				},
			},
			{Name: "b", Fn: func(ctx context.Context, input any) (any, error) { return nil, api.NewError(api.KindInvalidChargeAmount, "x") }},
		},
	}
	require.NoError(t, engine.RegisterWorkflow(wf))

	_, err := engine.Run(context.Background(), wf.Name, "r", nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestSaga_SuccessfulRunDoesNotCompensate(t *testing.T) {
	log := &callLog{}
	engine := NewEngine()

	wf := api.WorkflowDefinition{
		Name: "happy",
		Steps: []api.StepDefinition{
			compensated("a", log, api.RegisterBefore, nil),
			compensated("b", log, api.RegisterAfter, nil),
		},
	}
	require.NoError(t, engine.RegisterWorkflow(wf))

	res, err := engine.Run(context.Background(), wf.Name, "r", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, log.get())
	assert.Empty(t, res.Compensations)
	assert.Equal(t, "b-out", res.Output)
}

func TestSaga_ConcurrentRunsDoNotShareStacks(t *testing.T) {
	engine := NewEngine()

	var mu sync.Mutex
	undone := map[string]int{}

	wf := api.WorkflowDefinition{
		Name: "concurrent",
		Steps: []api.StepDefinition{
			{
				Name: "reserve",
				Fn:   passThrough,
				Compensation: &api.CompensationDefinition{
					Fn: func(ctx context.Context, input any) (any, error) {
						mu.Lock()
						undone[input.(string)]++
						mu.Unlock()
						return nil, nil
					},
					Register: api.RegisterAfter,
				},
			},
			{
				Name: "maybe-fail",
				Fn: func(ctx context.Context, input any) (any, error) {
					time.Sleep(5 * time.Millisecond)
					if input.(string)[0] == 'f' {
						return nil, api.NewError(api.KindInvalidChargeAmount, "fail")
					}
					return input, nil
				},
			},
		},
	}
	require.NoError(t, engine.RegisterWorkflow(wf))

	var wg sync.WaitGroup
	inputs := []string{"f1", "ok1", "f2", "ok2", "f3", "ok3"}
	for _, in := range inputs {
		wg.Add(1)
		go func(in string) {
			defer wg.Done()
			_, _ = engine.Run(context.Background(), wf.Name, in, in)
		}(in)
	}
	wg.Wait()

	assert.Equal(t, map[string]int{"f1": 1, "f2": 1, "f3": 1}, undone)
}

func TestSaga_CompensationElapsedUsesEngineClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	engine := NewEngineWithConfig(Config{Clock: clock})

	wf := api.WorkflowDefinition{
		Name: "timed-undo",
		Steps: []api.StepDefinition{
			{
				Name: "reserve",
				Fn: func(ctx context.Context, input any) (any, error) {
					clock.Advance(time.Second)
					return input, nil
				},
				Compensation: &api.CompensationDefinition{
					Name: "release",
					Fn: func(ctx context.Context, input any) (any, error) {
						clock.Advance(2 * time.Minute)
						return nil, nil
					},
					Register: api.RegisterAfter,
				},
			},
			{
				Name: "charge",
				Fn: func(ctx context.Context, input any) (any, error) {
					return nil, api.NewError(api.KindCreditCardProcessingError, "declined")
				},
			},
		},
	}
	require.NoError(t, engine.RegisterWorkflow(wf))

	res, err := engine.Run(context.Background(), wf.Name, "r", nil)
	require.Error(t, err)

	rec, ok := res.Step("reserve")
	require.True(t, ok)
	assert.Equal(t, time.Second, rec.Elapsed)

	require.Len(t, res.Compensations, 1)
	assert.Equal(t, 2*time.Minute, res.Compensations[0].Elapsed)
}
