// Package testutil opens a migrated Postgres pool for integration tests.
package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/Overland-East-Bay/itinerary-planner-api/internal/adapters/postgres"
)

// EnvDatabaseURL names the variable that enables Postgres-backed tests.
const EnvDatabaseURL = "TEST_DATABASE_URL"

const advisoryLockID int64 = 7401

// OpenMigratedPool connects to TEST_DATABASE_URL, applies migrations and holds an
// advisory lock for the lifetime of the test so packages sharing the database do not
// interleave. The test is skipped when the variable is unset.
func OpenMigratedPool(t testing.TB) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(EnvDatabaseURL)
	if dsn == "" {
		t.Skipf("%s not set", EnvDatabaseURL)
	}
	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, dsn, postgres.PoolOptions{MaxConns: 16})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(pool.Close)

	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire lock connection: %v", err)
	}
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		t.Fatalf("advisory lock: %v", err)
	}
	t.Cleanup(func() {
		_, _ = conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", advisoryLockID)
		conn.Release()
	})

	if _, err := postgres.Migrate(ctx, pool); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return pool
}

// Truncate empties every table.
func Truncate(t testing.TB, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		TRUNCATE idempotency_keys, authenticators, verification_tokens, sessions, accounts, days, travels, users
	`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}
