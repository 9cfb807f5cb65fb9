// Package testutil starts throwaway database containers for integration
// tests. Each container is started at most once per test binary and is
// reaped by testcontainers when the process exits.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver used by wait.ForSQL
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const startTimeout = 3 * time.Minute

type sharedContainer struct {
	once     sync.Once
	endpoint string
	err      error
}

// get starts the container on first use and returns its endpoint, or skips
// the test when no container runtime is available.
func (s *sharedContainer) get(t *testing.T, image string, format func(endpoint string) string, opts ...testcontainers.ContainerCustomizer) string {
	t.Helper()

	s.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()

		c, err := testcontainers.Run(ctx, image, opts...)
		if err != nil {
			s.err = err
			return
		}
		endpoint, err := c.Endpoint(ctx, "")
		if err != nil {
			_ = c.Terminate(context.Background())
			s.err = err
			return
		}
		s.endpoint = format(endpoint)
	})

	if s.err != nil {
		t.Skipf("%s container unavailable: %v", image, s.err)
	}
	return s.endpoint
}

var (
	postgres sharedContainer
	redis    sharedContainer
	mongo    sharedContainer
)

const (
	pgUser     = "envroute"
	pgPassword = "envroute"
	pgDatabase = "envroute_test"
)

// GetPostgresEndpoint returns a postgres:// DSN for a PostgreSQL 16 server.
func GetPostgresEndpoint(t *testing.T) string {
	t.Helper()
	return postgres.get(t, "postgres:16",
		func(endpoint string) string {
			return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", pgUser, pgPassword, endpoint, pgDatabase)
		},
		testcontainers.WithExposedPorts("5432/tcp"),
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_USER":     pgUser,
			"POSTGRES_PASSWORD": pgPassword,
			"POSTGRES_DB":       pgDatabase,
		}),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
					return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", pgUser, pgPassword, host, port.Port(), pgDatabase)
				}).WithQuery("SELECT 1"),
			).WithDeadline(2*time.Minute),
		),
	)
}

// GetRedisAddress returns host:port of a Redis server.
func GetRedisAddress(t *testing.T) string {
	t.Helper()
	return redis.get(t, "redis:7",
		func(endpoint string) string { return endpoint },
		testcontainers.WithExposedPorts("6379/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("6379/tcp"),
			wait.ForLog("Ready to accept connections"),
		),
	)
}

// GetMongoURI returns a mongodb:// URI for a standalone MongoDB server.
func GetMongoURI(t *testing.T) string {
	t.Helper()
	return mongo.get(t, "mongo:7",
		func(endpoint string) string { return "mongodb://" + endpoint },
		testcontainers.WithExposedPorts("27017/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("27017/tcp"),
			wait.ForLog("Waiting for connections"),
		),
	)
}
