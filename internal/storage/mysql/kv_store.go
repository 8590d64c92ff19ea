// Package mysql реализует KeyValueStore поверх таблицы MySQL.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/vladislavdragonenkov/hrm/internal/domain"
)

const (
	defaultConnTimeout     = 5 * time.Second
	opTimeout              = 5 * time.Second
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute

	schemaDDL = `
CREATE TABLE IF NOT EXISTS kv_slots (
    slot_key   VARCHAR(191) NOT NULL PRIMARY KEY,
    slot_value LONGTEXT NOT NULL,
    updated_at DATETIME(6) NOT NULL
) CHARACTER SET utf8mb4`
)

var errStoreNotInitialized = errors.New("mysql store is not initialized")

// KVStore хранит слоты в таблице kv_slots.
type KVStore struct {
	db *sql.DB
}

// Open подключается к MySQL по DSN драйвера go-sql-driver и создаёт таблицу слотов.
// parseTime=true добавляется, если не задан явно.
func Open(ctx context.Context, dsn string) (*KVStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("mysql dsn is required")
	}
	if !strings.Contains(dsn, "parseTime=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "parseTime=true&loc=UTC"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	store := &KVStore{db: db}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	schemaCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if _, err := db.ExecContext(schemaCtx, schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure kv_slots table: %w", err)
	}
	return store, nil
}

func (s *KVStore) Read(ctx context.Context, key string) (string, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, domain.ErrStorageKeyRequired
	}
	if s == nil || s.db == nil {
		return "", false, errStoreNotInitialized
	}

	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var value string
	err := s.db.QueryRowContext(queryCtx, `SELECT slot_value FROM kv_slots WHERE slot_key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select slot %s: %w", key, err)
	}
	return value, true, nil
}

func (s *KVStore) Write(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrStorageKeyRequired
	}
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	execCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := s.db.ExecContext(execCtx, `
		INSERT INTO kv_slots (slot_key, slot_value, updated_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE slot_value = VALUES(slot_value), updated_at = VALUES(updated_at)
	`, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert slot %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// Close закрывает пул соединений.
func (s *KVStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ domain.KeyValueStore = (*KVStore)(nil)
