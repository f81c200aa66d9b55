// Package testutil starts shared Testcontainers instances for integration
// tests. Every helper skips the calling test under -short or when Docker is
// not available.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
)

const startupTimeout = 3 * time.Minute

// sharedContainer starts a container once per test binary and remembers the
// outcome, so later tests skip quickly when the first start failed.
type sharedContainer struct {
	name  string
	once  sync.Once
	start func(ctx context.Context) (string, error)

	endpoint string
	err      error
}

func (c *sharedContainer) get(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skipf("skipping %s integration test in short mode", c.name)
	}

	c.once.Do(func() {
		c.endpoint, c.err = c.run()
	})

	if c.err != nil {
		t.Skipf("skipping %s integration test: %v", c.name, c.err)
	}
	return c.endpoint
}

func (c *sharedContainer) run() (endpoint string, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	// Testcontainers panics when no Docker host can be found.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("starting %s testcontainer panicked: %v", c.name, r)
		}
	}()

	// Cleanup is not tied to a test: the container outlives the test that
	// started it and is reaped by Testcontainers when the process exits.
	return c.start(ctx)
}

// hostPort resolves the mapped address of port, forcing IPv4 loopback.
func hostPort(ctx context.Context, ctr testcontainers.Container, port nat.Port) (string, error) {
	host, err := ctr.Host(ctx)
	if err != nil {
		_ = ctr.Terminate(context.Background())
		return "", fmt.Errorf("container host: %w", err)
	}

	mapped, err := ctr.MappedPort(ctx, port)
	if err != nil {
		_ = ctr.Terminate(context.Background())
		return "", fmt.Errorf("mapped port %s: %w", port, err)
	}

	if host == "" || host == "localhost" || host == "::1" {
		host = "127.0.0.1"
	}
	return host + ":" + mapped.Port(), nil
}
