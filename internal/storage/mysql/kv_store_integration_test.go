package mysql

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/hrm/internal/domain"
)

const defaultLocalIntegrationDSN = "hrm:hrm@tcp(localhost:3306)/hrm"

func openMySQLStoreForIntegrationTest(t *testing.T) *KVStore {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("HRM_MYSQL_TEST_DSN"))
	if dsn == "" {
		dsn = defaultLocalIntegrationDSN
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	store, err := Open(ctx, dsn)
	if err != nil {
		t.Skipf("mysql is not available for integration tests: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.db.ExecContext(context.Background(), `DELETE FROM kv_slots`)
	require.NoError(t, err)
	return store
}

func TestKVStore_MySQLReadWrite(t *testing.T) {
	store := openMySQLStoreForIntegrationTest(t)
	ctx := context.Background()

	_, found, err := store.Read(ctx, "reservations")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, store.Write(ctx, "reservations", `[{"id":"1"}]`))
	require.NoError(t, store.Write(ctx, "reservations", `[]`))

	value, found, err := store.Read(ctx, "reservations")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, `[]`, value)
}

func TestKVStore_MySQLGuards(t *testing.T) {
	var store *KVStore
	ctx := context.Background()

	_, _, err := store.Read(ctx, "")
	require.ErrorIs(t, err, domain.ErrStorageKeyRequired)
	require.ErrorIs(t, store.Write(ctx, "reservations", "[]"), errStoreNotInitialized)
	require.ErrorIs(t, store.Ping(ctx), errStoreNotInitialized)
	require.NoError(t, store.Close())

	_, err = Open(ctx, " ")
	require.Error(t, err)
}
