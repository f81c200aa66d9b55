package persistence

import (
	"context"
	"encoding/gob"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/sagaflow/pkg/api"
)

type samplePayload struct {
	Msg string
	N   int
}

func init() {
	gob.Register(samplePayload{})
}

var baseTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func sampleResult(id, workflow string, status api.Status, offset time.Duration) *api.RunResult {
	r := &api.RunResult{
		ID:         id,
		Workflow:   workflow,
		Status:     status,
		Input:      samplePayload{Msg: "in-" + id, N: 1},
		StartedAt:  baseTime.Add(offset),
		FinishedAt: baseTime.Add(offset + 2*time.Second),
		Steps: []api.StepRecord{
			{Name: "reserve", Status: api.StatusCompleted, Attempts: 1, Elapsed: time.Second},
		},
	}
	switch status {
	case api.StatusCompleted:
		r.Output = samplePayload{Msg: "out-" + id, N: 2}
	case api.StatusFailed:
		r.FailedStep = "charge"
		r.Failure = api.NewError(api.KindCreditCardProcessingError, "card declined")
		r.Steps = append(r.Steps, api.StepRecord{
			Name:      "charge",
			Status:    api.StatusFailed,
			Attempts:  3,
			Elapsed:   5 * time.Second,
			LastError: r.Failure,
		})
		r.Compensations = []api.CompensationRecord{
			{Step: "reserve", Name: "release", Elapsed: time.Millisecond},
			{Step: "quote", Name: "void", Err: api.NewError(api.KindUnknown, "void failed")},
		}
	case api.StatusCanceled:
		r.FailedStep = "deliver"
		r.Failure = api.WrapError(api.KindCanceled, api.ErrRunCanceled)
	}
	return r
}

// exerciseResultStore checks the behaviour every ResultStore shares.
// The store must be empty.
func exerciseResultStore(t *testing.T, store ResultStore) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		_, err := store.GetResult(ctx, "does-not-exist")
		require.ErrorIs(t, err, ErrResultNotFound)
	})

	t.Run("save and get completed", func(t *testing.T) {
		want := sampleResult("c-1", "pizza", api.StatusCompleted, 0)
		require.NoError(t, store.SaveResult(ctx, want))

		got, err := store.GetResult(ctx, "c-1")
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Workflow, got.Workflow)
		assert.Equal(t, api.StatusCompleted, got.Status)
		assert.Equal(t, want.Input, got.Input)
		assert.Equal(t, want.Output, got.Output)
		assert.Nil(t, got.Failure)
		assert.True(t, want.StartedAt.Equal(got.StartedAt))
		assert.True(t, want.FinishedAt.Equal(got.FinishedAt))
		assert.Equal(t, want.Steps, got.Steps)
	})

	t.Run("save and get failed", func(t *testing.T) {
		want := sampleResult("f-1", "pizza", api.StatusFailed, time.Second)
		require.NoError(t, store.SaveResult(ctx, want))

		got, err := store.GetResult(ctx, "f-1")
		require.NoError(t, err)
		assert.Equal(t, api.StatusFailed, got.Status)
		assert.Equal(t, "charge", got.FailedStep)
		require.NotNil(t, got.Failure)
		assert.Equal(t, api.KindCreditCardProcessingError, got.Failure.Kind)
		assert.Equal(t, "card declined", got.Failure.Message)
		assert.True(t, got.Failure.NonRetryable)
		require.Len(t, got.Compensations, 2)
		assert.True(t, got.Compensations[0].Succeeded())
		assert.Equal(t, "void failed", got.Compensations[1].Err.Message)

		var te *api.TerminalError
		require.ErrorAs(t, got.Err(), &te)
		assert.Equal(t, "charge", te.Step)
	})

	t.Run("save replaces", func(t *testing.T) {
		r := sampleResult("r-1", "refund", api.StatusCanceled, 2*time.Second)
		require.NoError(t, store.SaveResult(ctx, r))

		r = sampleResult("r-1", "refund", api.StatusCompleted, 2*time.Second)
		require.NoError(t, store.SaveResult(ctx, r))

		got, err := store.GetResult(ctx, "r-1")
		require.NoError(t, err)
		assert.Equal(t, api.StatusCompleted, got.Status)

		canceled, err := store.ListResults(ctx, ResultFilter{Status: api.StatusCanceled})
		require.NoError(t, err)
		assert.Empty(t, canceled)
	})

	t.Run("list filters and order", func(t *testing.T) {
		require.NoError(t, store.SaveResult(ctx, sampleResult("c-2", "pizza", api.StatusCompleted, 3*time.Second)))
		require.NoError(t, store.SaveResult(ctx, sampleResult("x-1", "refund", api.StatusFailed, 4*time.Second)))

		all, err := store.ListResults(ctx, ResultFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"c-1", "f-1", "r-1", "c-2", "x-1"}, ids(all))

		pizza, err := store.ListResults(ctx, ResultFilter{Workflow: "pizza"})
		require.NoError(t, err)
		assert.Equal(t, []string{"c-1", "f-1", "c-2"}, ids(pizza))

		failed, err := store.ListResults(ctx, ResultFilter{Status: api.StatusFailed})
		require.NoError(t, err)
		assert.Equal(t, []string{"f-1", "x-1"}, ids(failed))

		both, err := store.ListResults(ctx, ResultFilter{Workflow: "pizza", Status: api.StatusCompleted})
		require.NoError(t, err)
		assert.Equal(t, []string{"c-1", "c-2"}, ids(both))

		none, err := store.ListResults(ctx, ResultFilter{Workflow: "unknown"})
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func ids(rs []*api.RunResult) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}
