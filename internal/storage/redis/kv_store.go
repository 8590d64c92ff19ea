// Package redis хранит слоты коллекции бронирований в Redis-строках.
package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/hrm/internal/domain"
)

const (
	defaultAddr        = "localhost:6379"
	defaultPingTimeout = 2 * time.Second
)

// Options задаёт параметры подключения к Redis.
type Options struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
	// Prefix добавляется к ключу слота, чтобы несколько инсталляций делили один Redis.
	Prefix string
}

// KVStore: реализация domain.KeyValueStore поверх Redis.
type KVStore struct {
	client goredis.UniversalClient
	prefix string
}

// Open создаёт клиента и проверяет подключение коротким ping.
func Open(ctx context.Context, opts Options) (*KVStore, error) {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		addr = defaultAddr
	}

	var tlsConf *tls.Config
	if opts.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:      addr,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: tlsConf,
	})

	store := NewKVStore(client, opts.Prefix)
	if err := store.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return store, nil
}

// NewKVStore оборачивает уже созданного клиента.
func NewKVStore(client goredis.UniversalClient, prefix string) *KVStore {
	return &KVStore{client: client, prefix: prefix}
}

// Read возвращает строку по ключу слота; redis.Nil трактуется как отсутствие.
func (s *KVStore) Read(ctx context.Context, key string) (string, bool, error) {
	fullKey, err := s.key(key)
	if err != nil {
		return "", false, err
	}

	value, err := s.client.Get(ctx, fullKey).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get %s: %w", fullKey, err)
	}
	return value, true, nil
}

// Write заменяет значение слота без TTL.
func (s *KVStore) Write(ctx context.Context, key, value string) error {
	fullKey, err := s.key(key)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, fullKey, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", fullKey, err)
	}
	return nil
}

// Ping проверяет доступность сервера.
func (s *KVStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return domain.ErrStorageUnavailable
	}
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	return s.client.Ping(pingCtx).Err()
}

// Close закрывает клиента.
func (s *KVStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *KVStore) key(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", domain.ErrStorageKeyRequired
	}
	if s.prefix == "" {
		return key, nil
	}
	return s.prefix + ":" + key, nil
}

var _ domain.KeyValueStore = (*KVStore)(nil)
