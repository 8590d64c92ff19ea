package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/hrm/internal/domain"
)

const opTimeout = 5 * time.Second

type kvStore struct {
	store *Store
}

// NewKeyValueStore создаёт PostgreSQL-реализацию KeyValueStore поверх таблицы kv_slots.
func NewKeyValueStore(store *Store) domain.KeyValueStore {
	return &kvStore{store: store}
}

func (r *kvStore) Read(ctx context.Context, key string) (string, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, domain.ErrStorageKeyRequired
	}
	if r.store == nil || r.store.db == nil {
		return "", false, errStoreNotInitialized
	}

	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var value string
	err := r.store.db.QueryRowContext(queryCtx,
		`SELECT slot_value FROM kv_slots WHERE slot_key = $1`, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("select slot %s: %w", key, err)
	}
	return value, true, nil
}

func (r *kvStore) Write(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrStorageKeyRequired
	}
	if r.store == nil || r.store.db == nil {
		return errStoreNotInitialized
	}

	execCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.store.db.ExecContext(execCtx, `
		INSERT INTO kv_slots (slot_key, slot_value, updated_at, revision)
		VALUES ($1, $2, NOW(), 1)
		ON CONFLICT (slot_key) DO UPDATE
		SET slot_value = EXCLUDED.slot_value,
		    updated_at = NOW(),
		    revision = kv_slots.revision + 1
	`, key, value)
	if err != nil {
		return fmt.Errorf("upsert slot %s: %w", key, err)
	}
	return nil
}

func (r *kvStore) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

// Revision возвращает счётчик перезаписей слота; 0, если слота нет.
func (r *kvStore) Revision(ctx context.Context, key string) (int64, error) {
	if r.store == nil || r.store.db == nil {
		return 0, errStoreNotInitialized
	}

	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var revision int64
	err := r.store.db.QueryRowContext(queryCtx,
		`SELECT revision FROM kv_slots WHERE slot_key = $1`, strings.TrimSpace(key),
	).Scan(&revision)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select slot revision %s: %w", key, err)
	}
	return revision, nil
}

var (
	_ domain.KeyValueStore  = (*kvStore)(nil)
	_ domain.SlotRevisioner = (*kvStore)(nil)
)
