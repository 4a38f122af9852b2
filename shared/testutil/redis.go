package testutil

import (
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// TestRedis provides a disposable Redis instance
type TestRedis struct {
	Container testcontainers.Container
	Host      string
	Port      int
	URL       string
}

// SetupTestRedis starts a Redis container. The test is skipped in -short
// mode or when no container runtime is reachable.
func SetupTestRedis(t *testing.T) *TestRedis {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	container, err := startRedis(ctx)
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}

	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	mapped, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}
	port, err := strconv.Atoi(mapped.Port())
	if err != nil {
		t.Fatalf("invalid mapped port %q: %v", mapped.Port(), err)
	}

	url, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	return &TestRedis{
		Container: container,
		Host:      host,
		Port:      port,
		URL:       url,
	}
}

func startRedis(ctx context.Context) (c *tcredis.RedisContainer, err error) {
	// testcontainers panics when no docker host can be resolved
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("start redis container: %v", r)
		}
	}()
	return tcredis.Run(ctx, "redis:7-alpine")
}
