package sagaflow

import (
	"database/sql"

	"github.com/petrijr/sagaflow/internal/persistence"
	"github.com/petrijr/sagaflow/internal/taskqueue"
	workerpkg "github.com/petrijr/sagaflow/pkg/worker"
)

// WorkerBundle wires together an Engine, a durable task queue, and a Worker
// that consumes tasks from that queue.
type WorkerBundle struct {
	Engine Engine
	Worker *workerpkg.Worker
	Store  ResultStore

	// queue is kept unexported; the public API focuses on Engine and Worker.
	queue taskqueue.Queue
}

// NewSQLiteBundle constructs an Engine + Queue + Worker combo sharing the
// same SQLite database. Submitted runs and finished results are persisted
// in db, so runs that were queued but not started survive a restart.
// Runs that were executing when the process died are not resumed.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:sagaflow.db?_journal=WAL")
//	bundle, err := sagaflow.NewSQLiteBundle(db, worker.Config{})
//	// register workflows on bundle.Engine
//	// submit work via bundle.Worker
//
// cfg.Store is ignored; results always go to db.
func NewSQLiteBundle(db *sql.DB, cfg workerpkg.Config) (*WorkerBundle, error) {
	return NewSQLiteBundleWithEngine(db, NewEngine(), cfg)
}

// NewSQLiteBundleWithEngine is NewSQLiteBundle for a preconfigured engine.
func NewSQLiteBundleWithEngine(db *sql.DB, eng Engine, cfg workerpkg.Config) (*WorkerBundle, error) {
	store, err := persistence.NewSQLiteResultStore(db)
	if err != nil {
		return nil, err
	}

	q, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}

	cfg.Store = store
	w := workerpkg.NewWithConfig(eng, q, cfg)

	return &WorkerBundle{
		Engine: eng,
		Worker: w,
		Store:  store,
		queue:  q,
	}, nil
}

// Pending returns the number of submitted runs no worker has picked up.
func (b *WorkerBundle) Pending() int {
	return b.queue.Len()
}
