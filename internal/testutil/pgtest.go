// Package testutil provides shared test infrastructure for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PGTest opens a test database, runs all goose migrations from the
// migrations/ directory, and returns the *sql.DB plus a cleanup function.
//
// Tests should call this at the top:
//
//	db, cleanup := testutil.PGTest(t)
//	defer cleanup()
//
// If POSTGRES_URL is set it is used directly; otherwise a disposable
// PostgreSQL container is started via testcontainers. When neither a URL nor
// a Docker daemon is available the test is skipped.
func PGTest(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	ctx := context.Background()
	dsn := os.Getenv("POSTGRES_URL")
	var terminate func()

	if dsn == "" {
		// testcontainers panics instead of returning an error when no Docker
		// daemon can be discovered; recover so the documented skip path works.
		ctr, err := func() (ctr *tcpostgres.PostgresContainer, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("docker not available: %v", r)
				}
			}()
			return tcpostgres.Run(ctx, "postgres:16-alpine",
				tcpostgres.WithDatabase("payments_test"),
				tcpostgres.WithUsername("postgres"),
				tcpostgres.WithPassword("postgres"),
				testcontainers.WithWaitStrategy(
					wait.ForLog("database system is ready to accept connections").
						WithOccurrence(2).
						WithStartupTimeout(60*time.Second)),
			)
		}()
		if err != nil {
			t.Skipf("pgtest: no POSTGRES_URL and no Docker (%v), skipping integration test", err)
		}
		terminate = func() { _ = ctr.Terminate(ctx) }

		dsn, err = ctr.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			terminate()
			t.Fatalf("pgtest: container connection string: %v", err)
		}
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("pgtest: open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		t.Fatalf("pgtest: connect to database: %v", err)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		t.Fatalf("pgtest: set goose dialect: %v", err)
	}
	if err := goose.UpContext(ctx, db, findMigrationsDir(t)); err != nil {
		_ = db.Close()
		t.Fatalf("pgtest: run migrations: %v", err)
	}

	cleanup := func() {
		truncateAll(ctx, db)
		_ = db.Close()
		if terminate != nil {
			terminate()
		}
	}
	return db, cleanup
}

// findMigrationsDir walks up from the test working directory to find
// the project-level migrations/ directory.
func findMigrationsDir(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("pgtest: getwd: %v", err)
	}

	for {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("pgtest: could not find migrations/ directory walking up from cwd")
		}
		dir = parent
	}
}

func truncateAll(ctx context.Context, db *sql.DB) {
	_, _ = db.ExecContext(ctx, `
		TRUNCATE plans, orders, credit_accounts, credit_transactions, webhook_subscriptions
	`)
}
