package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	pgUser     = "sagaflow"
	pgPassword = "sagaflow"
	pgDatabase = "sagaflow_test"
)

var postgresContainer = &sharedContainer{name: "PostgreSQL", start: startPostgres}

// GetPostgresEndpoint returns a pgx DSN for a shared PostgreSQL container.
func GetPostgresEndpoint(t *testing.T) string {
	t.Helper()
	return postgresContainer.get(t)
}

func postgresDSN(addr string) string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", pgUser, pgPassword, addr, pgDatabase)
}

func startPostgres(ctx context.Context) (string, error) {
	postgresC, err := testcontainers.Run(
		ctx, "postgres:16",
		testcontainers.WithExposedPorts("5432/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForLog("ready to accept connections"),
				// The log line appears once during init too; only a query proves readiness.
				wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
					return postgresDSN(host + ":" + port.Port())
				}).WithQuery("SELECT 1"),
			).WithDeadline(2*time.Minute),
		),
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_USER":     pgUser,
			"POSTGRES_PASSWORD": pgPassword,
			"POSTGRES_DB":       pgDatabase,
		}),
	)
	if err != nil {
		return "", fmt.Errorf("failed to start PostgreSQL testcontainer: %w", err)
	}

	addr, err := hostPort(ctx, postgresC, "5432/tcp")
	if err != nil {
		return "", err
	}
	return postgresDSN(addr), nil
}
