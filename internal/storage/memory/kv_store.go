package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/hrm/internal/domain"
)

// kvStoreInMemory: in-memory реализация KeyValueStore для локальной разработки и тестов.
type kvStoreInMemory struct {
	mu        sync.RWMutex
	slots     map[string]string
	revisions map[string]int64
}

// NewKeyValueStore возвращает пустое in-memory хранилище.
func NewKeyValueStore() domain.KeyValueStore {
	return &kvStoreInMemory{
		slots:     make(map[string]string),
		revisions: make(map[string]int64),
	}
}

// Read возвращает значение слота, если он был записан.
func (s *kvStoreInMemory) Read(_ context.Context, key string) (string, bool, error) {
	if strings.TrimSpace(key) == "" {
		return "", false, domain.ErrStorageKeyRequired
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.slots[key]
	return value, ok, nil
}

// Write перезаписывает слот целиком.
func (s *kvStoreInMemory) Write(_ context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return domain.ErrStorageKeyRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.slots[key] = value
	s.revisions[key]++
	return nil
}

// Revision возвращает число записей в слот.
func (s *kvStoreInMemory) Revision(_ context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revisions[key], nil
}

// Ping всегда успешен.
func (s *kvStoreInMemory) Ping(context.Context) error {
	return nil
}

var (
	_ domain.KeyValueStore  = (*kvStoreInMemory)(nil)
	_ domain.SlotRevisioner = (*kvStoreInMemory)(nil)
)
