// Package testpg starts a throwaway Postgres for repository tests.
package testpg

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/vedran77/parley/internal/database"
)

// StartPostgres starts a disposable Postgres container and returns its DSN.
// It skips the test in -short mode.
func StartPostgres(tb testing.TB) string {
	tb.Helper()
	if testing.Short() {
		tb.Skip("skipping postgres container in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(
		ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("parley"),
		postgres.WithUsername("parley"),
		postgres.WithPassword("parley"),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2),
			).WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		tb.Fatalf("start postgres container: %v", err)
	}

	tb.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			tb.Errorf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		tb.Fatalf("build postgres connection string: %v", err)
	}
	return dsn
}

// NewPool starts Postgres, applies the schema and returns a pool closed at
// cleanup.
func NewPool(tb testing.TB) *pgxpool.Pool {
	tb.Helper()
	dsn := StartPostgres(tb)

	ctx := context.Background()
	var pool *pgxpool.Pool
	var err error
	deadline := time.Now().Add(20 * time.Second)
	for {
		pool, err = database.Connect(ctx, dsn, 4)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(250 * time.Millisecond)
	}
	if err != nil {
		tb.Fatalf("postgres is not ready for connections: %v", err)
	}
	tb.Cleanup(pool.Close)

	if err := database.Migrate(ctx, pool); err != nil {
		tb.Fatalf("apply schema: %v", err)
	}
	return pool
}
