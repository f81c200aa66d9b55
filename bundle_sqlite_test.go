package sagaflow

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	workerpkg "github.com/petrijr/sagaflow/pkg/worker"
)

func addOneFlow() *FlowBuilder {
	return New("async-add-one").
		Step("add-one", func(ctx context.Context, input any) (any, error) {
			n, _ := input.(int)
			return n + 1, nil
		})
}

// TestSQLiteBundle_QueuedRunSurvivesRestart demonstrates that a run submitted
// via the worker/queue combination survives a simulated process restart,
// assuming workflows are re-registered on startup.
func TestSQLiteBundle_QueuedRunSurvivesRestart(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbPath := filepath.Join(t.TempDir(), "sagaflow_bundle.db")
	dsn := "file:" + dbPath + "?_journal=WAL"

	// --- Phase 1: submit, no processing yet.

	db1, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db1.SetMaxOpenConns(1)

	bundle1, err := NewSQLiteBundle(db1, workerpkg.Config{})
	require.NoError(t, err)
	require.NoError(t, addOneFlow().Register(bundle1.Engine))

	_, err = bundle1.Worker.Submit(ctx, "async-add-one", "run-41", 41)
	require.NoError(t, err)
	require.Equal(t, 1, bundle1.Pending())

	_, err = bundle1.Worker.Result(ctx, "run-41")
	require.ErrorIs(t, err, workerpkg.ErrRunInFlight)

	require.NoError(t, db1.Close())

	// --- Phase 2: new process, same database.

	db2, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db2.SetMaxOpenConns(1)
	defer db2.Close()

	bundle2, err := NewSQLiteBundle(db2, workerpkg.Config{})
	require.NoError(t, err)
	require.NoError(t, addOneFlow().Register(bundle2.Engine))
	require.Equal(t, 1, bundle2.Pending())

	processed, err := bundle2.Worker.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	res, err := bundle2.Worker.Result(ctx, "run-41")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)
	require.Equal(t, 42, res.Output)
	require.Equal(t, 0, bundle2.Pending())

	// The result is in the database, not only in the worker.
	stored, err := bundle2.Store.GetResult(ctx, "run-41")
	require.NoError(t, err)
	require.Equal(t, 42, stored.Output)
}
