package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/petrijr/sagaflow/pkg/api"
)

// SQLiteResultStore is a ResultStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteResultStore struct {
	db *sql.DB
}

var _ ResultStore = (*SQLiteResultStore)(nil)

// NewSQLiteResultStore initializes the required schema in the given
// database and returns a new SQLiteResultStore.
func NewSQLiteResultStore(db *sql.DB) (*SQLiteResultStore, error) {
	s := &SQLiteResultStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteResultStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS run_results (
			id TEXT PRIMARY KEY,
			workflow_name TEXT NOT NULL,
			status TEXT NOT NULL,
			failed_step TEXT NOT NULL DEFAULT '',
			error_kind TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS run_results_workflow_status
			ON run_results (workflow_name, status);`,
	)
	return err
}

func (s *SQLiteResultStore) SaveResult(ctx context.Context, r *api.RunResult) error {
	payload, err := EncodeResult(r)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_results (id, workflow_name, status, failed_step, error_kind, started_at, finished_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			workflow_name = excluded.workflow_name,
			status = excluded.status,
			failed_step = excluded.failed_step,
			error_kind = excluded.error_kind,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			payload = excluded.payload`,
		r.ID,
		r.Workflow,
		string(r.Status),
		r.FailedStep,
		errorKind(r),
		r.StartedAt.UnixNano(),
		r.FinishedAt.UnixNano(),
		payload,
	)
	return err
}

func (s *SQLiteResultStore) GetResult(ctx context.Context, id string) (*api.RunResult, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM run_results WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, err
	}
	return DecodeResult(payload)
}

func (s *SQLiteResultStore) ListResults(ctx context.Context, filter ResultFilter) ([]*api.RunResult, error) {
	query := `SELECT payload FROM run_results`
	var args []any
	var clauses []string

	if filter.Workflow != "" {
		clauses = append(clauses, "workflow_name = ?")
		args = append(args, filter.Workflow)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}

	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY started_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanResults(rows)
}

// scanResults decodes rows holding a single payload column.
func scanResults(rows *sql.Rows) ([]*api.RunResult, error) {
	var results []*api.RunResult
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		r, err := DecodeResult(payload)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func errorKind(r *api.RunResult) string {
	if r.Failure == nil {
		return ""
	}
	return string(r.Failure.Kind)
}
