package sagaflow

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite"

	"github.com/petrijr/sagaflow/pkg/config"
	"github.com/petrijr/sagaflow/internal/persistence"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

var nopCloser = closerFunc(func() error { return nil })

// OpenResultStore connects the result store selected by cfg. The returned
// closer releases the connection.
func OpenResultStore(ctx context.Context, cfg config.Store) (ResultStore, io.Closer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	switch cfg.Backend {
	case config.BackendMemory:
		return persistence.NewInMemoryStore(), nopCloser, nil

	case config.BackendSQLite:
		db, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		// SQLite serializes writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		store, err := persistence.NewSQLiteResultStore(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, db, nil

	case config.BackendPostgres:
		db, err := persistence.OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		store, err := persistence.NewPostgresResultStore(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, db, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Address})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		return persistence.NewRedisResultStore(client, cfg.Prefix), client, nil

	case config.BackendMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Address))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(context.WithoutCancel(ctx))
			return nil, nil, fmt.Errorf("ping mongo: %w", err)
		}
		closer := closerFunc(func() error {
			return client.Disconnect(context.Background())
		})
		return persistence.NewMongoResultStore(client, cfg.Database, cfg.Collection), closer, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// NewLocalRunnerFromConfig builds a LocalRunner whose result store and queue
// follow cfg. Fields set in base are kept, except Store and QueueCapacity.
// Close the returned closer after stopping the runner.
func NewLocalRunnerFromConfig(ctx context.Context, cfg config.Config, base LocalRunnerConfig) (*LocalRunner, io.Closer, error) {
	store, closer, err := OpenResultStore(ctx, cfg.Store)
	if err != nil {
		return nil, nil, err
	}
	base.Store = store
	base.QueueCapacity = cfg.Worker.QueueCapacity
	return NewLocalRunnerWithConfig(base), closer, nil
}
