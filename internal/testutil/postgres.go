// README: Shared helpers for DB- and Redis-backed tests; both skip when their env var is unset.
package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"freshcart/internal/infra"
)

// Postgres connects to FRESH_TEST_DSN, applies the migrations and empties every table.
func Postgres(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("FRESH_TEST_DSN")
	if dsn == "" {
		t.Skip("FRESH_TEST_DSN not set; skipping DB-backed tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	dir, err := infra.MigrationsDir()
	if err != nil {
		t.Fatalf("locate migrations: %v", err)
	}
	if err := infra.ApplyMigrations(ctx, db, dir); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	if _, err := db.Exec(ctx, `TRUNCATE TABLE order_state_events, order_items, orders,
		delivery_partners, location_snapshots, geofence_settings`); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return db
}

// Redis connects to FRESH_REDIS_ADDR and flushes the selected database.
func Redis(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("FRESH_REDIS_ADDR")
	if addr == "" {
		t.Skip("FRESH_REDIS_ADDR not set; skipping Redis-backed tests")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })
	if err := rdb.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	return rdb
}
