package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

// openRawPostgresStoreForIntegrationTest подключается к базе из HRM_POSTGRES_TEST_DSN
// без миграций; без переменной или при недоступной базе тест пропускается.
func openRawPostgresStoreForIntegrationTest(t *testing.T) *Store {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("HRM_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("HRM_POSTGRES_TEST_DSN is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	store, err := Open(ctx, dsn)
	if err != nil {
		t.Skipf("postgres is not available for integration tests: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// openPostgresStoreForIntegrationTest возвращает store с актуальной схемой и пустой kv_slots.
func openPostgresStoreForIntegrationTest(t *testing.T) *Store {
	t.Helper()

	store := openRawPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if _, err := store.DB().ExecContext(ctx, `TRUNCATE TABLE kv_slots`); err != nil {
		t.Fatalf("truncate kv_slots: %v", err)
	}
	return store
}
