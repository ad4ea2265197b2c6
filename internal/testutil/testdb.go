package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
)

// recordTables are emptied by Reset, children first.
var recordTables = []string{"images", "settings"}

// TestDB is a Postgres connection for record store tests. It is closed when
// the test ends.
type TestDB struct {
	*sql.DB
	t *testing.T
}

// TestDSN returns ORBITSAFE_TEST_DSN when set, else a DSN built from the
// backend's DB_* variables pointing at orbitsafe_test.
func TestDSN() string {
	if dsn := os.Getenv("ORBITSAFE_TEST_DSN"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		envOr("DB_HOST", "localhost"),
		envOr("DB_PORT", "5432"),
		envOr("DB_USER", "postgres"),
		envOr("DB_PASSWORD", "postgres"),
		envOr("DB_NAME", "orbitsafe_test"),
		envOr("DB_SSLMODE", "disable"),
	)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewTestDB connects to the test database or skips the test when Postgres is
// not reachable. Callers run their own migrations.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	db, err := sql.Open("postgres", TestDSN())
	if err != nil {
		t.Skipf("Skipping test: unable to open database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		t.Skipf("Skipping test: postgres not reachable: %v", err)
	}

	tdb := &TestDB{DB: db, t: t}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	})
	return tdb
}

// Reset empties the record and settings tables that exist.
func (tdb *TestDB) Reset(ctx context.Context) {
	tdb.t.Helper()

	for _, table := range recordTables {
		var present sql.NullString
		if err := tdb.QueryRowContext(ctx, `SELECT to_regclass($1)::text`, table).Scan(&present); err != nil {
			tdb.t.Fatalf("Failed to look up table %s: %v", table, err)
		}
		if !present.Valid {
			continue
		}
		if _, err := tdb.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			tdb.t.Fatalf("Failed to reset table %s: %v", table, err)
		}
	}
}

// CountImages returns the number of stored image records.
func (tdb *TestDB) CountImages(ctx context.Context) int {
	tdb.t.Helper()

	var n int
	if err := tdb.QueryRowContext(ctx, `SELECT COUNT(*) FROM images`).Scan(&n); err != nil {
		tdb.t.Fatalf("Failed to count images: %v", err)
	}
	return n
}
