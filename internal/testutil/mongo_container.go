package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var mongoContainer = &sharedContainer{name: "MongoDB", start: startMongo}

// GetMongoURI returns the URI of a shared MongoDB container.
func GetMongoURI(t *testing.T) string {
	t.Helper()
	return mongoContainer.get(t)
}

func startMongo(ctx context.Context) (string, error) {
	mongoC, err := testcontainers.Run(
		ctx, "mongo:7",
		testcontainers.WithExposedPorts("27017/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("27017/tcp").
				WithStartupTimeout(2*time.Minute),
		),
	)
	if err != nil {
		return "", fmt.Errorf("failed to start MongoDB testcontainer: %w", err)
	}

	addr, err := hostPort(ctx, mongoC, "27017/tcp")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("mongodb://%s", addr), nil
}
