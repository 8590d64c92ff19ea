// Package file хранит слоты key-value хранилища в отдельных файлах каталога.
// Это серверный аналог localStorage браузера: каждый слот хранится в отдельном файле.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/vladislavdragonenkov/hrm/internal/domain"
)

const (
	slotFileExt  = ".json"
	dirFileMode  = 0o755
	slotFileMode = 0o644
)

// KVStore: файловая реализация domain.KeyValueStore.
type KVStore struct {
	dir string
}

// NewKVStore создаёт каталог (если его нет) и возвращает хранилище поверх него.
func NewKVStore(dir string) (*KVStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("file storage directory is required")
	}
	if err := os.MkdirAll(dir, dirFileMode); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &KVStore{dir: dir}, nil
}

// Dir возвращает каталог хранилища.
func (s *KVStore) Dir() string {
	return s.dir
}

// Read читает файл слота; отсутствие файла не считается ошибкой.
func (s *KVStore) Read(ctx context.Context, key string) (string, bool, error) {
	path, err := s.slotPath(key)
	if err != nil {
		return "", false, err
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read slot %s: %w", key, err)
	}
	return string(data), true, nil
}

// Write атомарно заменяет файл слота через временный файл и rename.
func (s *KVStore) Write(ctx context.Context, key, value string) error {
	path, err := s.slotPath(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp slot file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.WriteString(value); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write slot %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync slot %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close slot %s: %w", key, err)
	}
	if err := os.Chmod(tmpName, slotFileMode); err != nil {
		return fmt.Errorf("chmod slot %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace slot %s: %w", key, err)
	}
	return nil
}

// Ping проверяет, что каталог существует и доступен.
func (s *KVStore) Ping(ctx context.Context) error {
	if s == nil || s.dir == "" {
		return domain.ErrStorageUnavailable
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", domain.ErrStorageUnavailable, s.dir)
	}
	return nil
}

func (s *KVStore) slotPath(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", domain.ErrStorageKeyRequired
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.dir, key+slotFileExt), nil
}

var _ domain.KeyValueStore = (*KVStore)(nil)
