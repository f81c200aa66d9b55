package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/sagaflow/pkg/api"
)

func TestRunSimpleWorkflowChainsOutputs(t *testing.T) {
	engine := NewEngine()

	wf := api.WorkflowDefinition{
		Name: "upper-then-exclaim",
		Steps: []api.StepDefinition{
			{
				Name: "upper",
				Fn: func(ctx context.Context, input any) (any, error) {
					return strings.ToUpper(input.(string)), nil
				},
			},
			{
				Name: "exclaim",
				Fn: func(ctx context.Context, input any) (any, error) {
					return input.(string) + "!", nil
				},
			},
		},
	}

	if err := engine.RegisterWorkflow(wf); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}

	res, err := engine.Run(context.Background(), "upper-then-exclaim", "run-1", "hello")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.Status != api.StatusCompleted {
		t.Fatalf("expected status COMPLETED, got %q", res.Status)
	}
	if res.Output != "HELLO!" {
		t.Fatalf("expected output HELLO!, got %v", res.Output)
	}
	if res.ID != "run-1" || res.Workflow != "upper-then-exclaim" {
		t.Fatalf("unexpected identity: %s/%s", res.Workflow, res.ID)
	}
	if len(res.Steps) != 2 || res.Steps[0].Attempts != 1 || res.Steps[1].Status != api.StatusCompleted {
		t.Fatalf("unexpected step records: %+v", res.Steps)
	}
	if res.FinishedAt.Before(res.StartedAt) {
		t.Fatalf("FinishedAt before StartedAt")
	}
}

func TestRunGeneratesRunIDWhenEmpty(t *testing.T) {
	engine := NewEngineWithConfig(Config{NewRunID: func() string { return "generated" }})
	require.NoError(t, engine.RegisterWorkflow(api.WorkflowDefinition{
		Name:  "id",
		Steps: []api.StepDefinition{{Name: "noop", Fn: passThrough}},
	}))

	res, err := engine.Run(context.Background(), "id", "", nil)
	require.NoError(t, err)
	require.Equal(t, "generated", res.ID)

	// Default generator produces UUIDs.
	engine = NewEngine()
	require.NoError(t, engine.RegisterWorkflow(api.WorkflowDefinition{
		Name:  "id",
		Steps: []api.StepDefinition{{Name: "noop", Fn: passThrough}},
	}))
	res, err = engine.Run(context.Background(), "id", "", nil)
	require.NoError(t, err)
	require.Len(t, res.ID, 36)
}

func TestRunUnknownWorkflow(t *testing.T) {
	engine := NewEngine()

	res, err := engine.Run(context.Background(), "does-not-exist", "r", nil)
	if !errors.Is(err, ErrUnknownWorkflow) {
		t.Fatalf("expected ErrUnknownWorkflow, got %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil result, got %+v", res)
	}
}

func TestRegisterWorkflowValidation(t *testing.T) {
	engine := NewEngine()

	if err := engine.RegisterWorkflow(api.WorkflowDefinition{Name: "empty"}); err == nil {
		t.Fatalf("expected error for workflow without steps")
	}

	noPolicy := api.WorkflowDefinition{
		Name: "no-policy",
		Steps: []api.StepDefinition{{
			Name:         "charge",
			Fn:           passThrough,
			Compensation: &api.CompensationDefinition{Name: "refund", Fn: passThrough},
		}},
	}
	if err := engine.RegisterWorkflow(noPolicy); err == nil {
		t.Fatalf("expected error for compensation without register policy")
	}

	ok := api.WorkflowDefinition{Name: "ok", Steps: []api.StepDefinition{{Name: "a", Fn: passThrough}}}
	if err := engine.RegisterWorkflow(ok); err != nil {
		t.Fatalf("RegisterWorkflow failed: %v", err)
	}
	if err := engine.RegisterWorkflow(ok); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestRunNonRetryableFailureStopsWorkflow(t *testing.T) {
	engine := NewEngine()

	var thirdCalled bool
	wf := api.WorkflowDefinition{
		Name: "fail-in-middle",
		Steps: []api.StepDefinition{
			{Name: "ok", Fn: passThrough},
			{
				Name: "bill",
				Fn: func(ctx context.Context, input any) (any, error) {
					return nil, api.NewError(api.KindInvalidChargeAmount, "invalid charge amount: -100")
				},
				Retry: &api.RetryPolicy{MaxAttempts: 5},
			},
			{
				Name: "never",
				Fn: func(ctx context.Context, input any) (any, error) {
					thirdCalled = true
					return nil, nil
				},
			},
		},
	}
	require.NoError(t, engine.RegisterWorkflow(wf))

	res, err := engine.Run(context.Background(), wf.Name, "r1", 1)

	var te *api.TerminalError
	require.ErrorAs(t, err, &te)
	require.Equal(t, "bill", te.Step)
	require.Equal(t, api.KindInvalidChargeAmount, te.Err.Kind)
	require.Equal(t, api.StatusFailed, res.Status)
	require.Equal(t, "bill", res.FailedStep)
	require.False(t, thirdCalled, "steps after the failure must not run")

	rec, ok := res.Step("bill")
	require.True(t, ok)
	require.Equal(t, 1, rec.Attempts, "non-retryable errors are not retried")
	require.Equal(t, api.StatusFailed, rec.Status)
	require.Equal(t, api.KindInvalidChargeAmount, rec.LastError.Kind)
}

func TestRunPreconditionFailsWithoutInvokingStep(t *testing.T) {
	engine := NewEngine()

	var invoked bool
	wf := api.WorkflowDefinition{
		Name: "gated",
		Steps: []api.StepDefinition{
			{
				Name: "distance",
				Fn: func(ctx context.Context, input any) (any, error) {
					return 40, nil
				},
			},
			{
				Name: "reserve",
				Fn: func(ctx context.Context, input any) (any, error) {
					invoked = true
					return nil, nil
				},
				Compensation: &api.CompensationDefinition{Fn: passThrough, Register: api.RegisterBefore},
				Precondition: func(s *api.State) error {
					km, err := api.OutputAs[int](s, "distance")
					if err != nil {
						return err
					}
					if km > 25 {
						// Plain errors from rules are still terminal.
						return fmt.Errorf("distance %d exceeds radius", km)
					}
					return nil
				},
			},
		},
	}
	require.NoError(t, engine.RegisterWorkflow(wf))

	res, err := engine.Run(context.Background(), wf.Name, "r", nil)
	require.Error(t, err)
	require.False(t, invoked)
	require.Equal(t, "reserve", res.FailedStep)
	require.True(t, res.Failure.NonRetryable)
	require.Empty(t, res.Compensations, "the gated step never registered its compensation")
	require.Len(t, res.Steps, 1)
}

func TestRunInputResolverReadsEarlierOutputs(t *testing.T) {
	engine := NewEngine()

	wf := api.WorkflowDefinition{
		Name: "resolver",
		Steps: []api.StepDefinition{
			{Name: "a", Fn: func(ctx context.Context, input any) (any, error) { return 2, nil }},
			{Name: "b", Fn: func(ctx context.Context, input any) (any, error) { return input.(int) * 10, nil }},
			{
				Name: "sum",
				Input: func(s *api.State) (any, error) {
					a, _ := api.OutputAs[int](s, "a")
					b, _ := api.OutputAs[int](s, "b")
					base, _ := api.InputAs[int](s)
					return a + b + base, nil
				},
				Fn: passThrough,
			},
		},
	}
	require.NoError(t, engine.RegisterWorkflow(wf))

	res, err := engine.Run(context.Background(), wf.Name, "r", 100)
	require.NoError(t, err)
	require.Equal(t, 122, res.Output)
}

func TestRunResolverErrorIsTerminal(t *testing.T) {
	engine := NewEngine()
	wf := api.WorkflowDefinition{
		Name: "bad-resolver",
		Steps: []api.StepDefinition{{
			Name:  "a",
			Fn:    passThrough,
			Input: func(s *api.State) (any, error) { return api.InputAs[string](s) },
			Retry: &api.RetryPolicy{MaxAttempts: 3},
		}},
	}
	require.NoError(t, engine.RegisterWorkflow(wf))

	res, err := engine.Run(context.Background(), wf.Name, "r", 42)
	require.Error(t, err)
	require.Equal(t, api.StatusFailed, res.Status)
	require.Empty(t, res.Steps)
}

func TestRunRecoversPanickingStep(t *testing.T) {
	engine := NewEngine()
	wf := api.WorkflowDefinition{
		Name: "panics",
		Steps: []api.StepDefinition{{
			Name: "boom",
			Fn: func(ctx context.Context, input any) (any, error) {
				panic("nil map")
			},
		}},
	}
	require.NoError(t, engine.RegisterWorkflow(wf))

	res, err := engine.Run(context.Background(), wf.Name, "r", nil)
	require.Error(t, err)
	require.Equal(t, api.KindUnknown, res.Failure.Kind)
	require.Contains(t, res.Failure.Message, "panicked")
}

func TestStepReceivesRunInfoAndLogger(t *testing.T) {
	engine := NewEngine()

	var got api.RunInfo
	wf := api.WorkflowDefinition{
		Name: "info",
		Steps: []api.StepDefinition{{
			Name: "inspect",
			Fn: func(ctx context.Context, input any) (any, error) {
				got, _ = api.RunInfoFrom(ctx)
				api.Logger(ctx).Debug("inspecting")
				return nil, nil
			},
		}},
	}
	require.NoError(t, engine.RegisterWorkflow(wf))

	_, err := engine.Run(context.Background(), wf.Name, "r-9", nil)
	require.NoError(t, err)
	require.Equal(t, api.RunInfo{RunID: "r-9", Workflow: "info", Step: "inspect", Attempt: 1}, got)
}

func passThrough(ctx context.Context, input any) (any, error) { return input, nil }
