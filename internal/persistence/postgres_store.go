package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/petrijr/sagaflow/pkg/api"
)

// PostgresResultStore is a ResultStore backed by PostgreSQL.
//
// It expects an *sql.DB that uses the pgx stdlib driver ("pgx"). OpenPostgres
// returns one for a DSN.
type PostgresResultStore struct {
	db *sql.DB
}

var _ ResultStore = (*PostgresResultStore)(nil)

// OpenPostgres opens and pings a pgx-backed database handle.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewPostgresResultStore initializes the required schema in the given
// database and returns a new PostgresResultStore.
func NewPostgresResultStore(db *sql.DB) (*PostgresResultStore, error) {
	s := &PostgresResultStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *PostgresResultStore) initSchema() error {
	_, err := p.db.Exec(`
		CREATE TABLE IF NOT EXISTS run_results (
			id TEXT PRIMARY KEY,
			workflow_name TEXT NOT NULL,
			status TEXT NOT NULL,
			failed_step TEXT NOT NULL DEFAULT '',
			error_kind TEXT NOT NULL DEFAULT '',
			started_at BIGINT NOT NULL,
			finished_at BIGINT NOT NULL,
			payload BYTEA NOT NULL
		);
		CREATE INDEX IF NOT EXISTS run_results_workflow_status
			ON run_results (workflow_name, status);
	`)
	return err
}

func (p *PostgresResultStore) SaveResult(ctx context.Context, r *api.RunResult) error {
	payload, err := EncodeResult(r)
	if err != nil {
		return err
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO run_results (id, workflow_name, status, failed_step, error_kind, started_at, finished_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			workflow_name = EXCLUDED.workflow_name,
			status        = EXCLUDED.status,
			failed_step   = EXCLUDED.failed_step,
			error_kind    = EXCLUDED.error_kind,
			started_at    = EXCLUDED.started_at,
			finished_at   = EXCLUDED.finished_at,
			payload       = EXCLUDED.payload
	`,
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

func (p *PostgresResultStore) GetResult(ctx context.Context, id string) (*api.RunResult, error) {
	var payload []byte
	err := p.db.QueryRowContext(ctx, `SELECT payload FROM run_results WHERE id = $1`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, err
	}
	return DecodeResult(payload)
}

func (p *PostgresResultStore) ListResults(ctx context.Context, filter ResultFilter) ([]*api.RunResult, error) {
	query := `SELECT payload FROM run_results`
	var args []any
	var clauses []string

	if filter.Workflow != "" {
		clauses = append(clauses, fmt.Sprintf("workflow_name = $%d", len(args)+1))
		args = append(args, filter.Workflow)
	}
	if filter.Status != "" {
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, string(filter.Status))
	}

	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY started_at, id"

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanResults(rows)
}
