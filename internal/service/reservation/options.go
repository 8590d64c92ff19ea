package reservation

import (
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hrm/internal/metrics"
)

const (
	// DefaultKey: имя слота, в котором хранится вся коллекция.
	DefaultKey = "reservations"

	defaultPersistTimeout = 5 * time.Second
)

// StoreOptions задаёт параметры хранилища бронирований.
type StoreOptions struct {
	Logger         *log.Entry
	Metrics        *metrics.StoreMetrics
	Key            string
	IDGenerator    func() string
	Clock          func() time.Time
	PersistTimeout time.Duration
}

// Option настраивает Store.
type Option func(*StoreOptions)

// WithLogger задаёт logger хранилища.
func WithLogger(logger *log.Entry) Option {
	return func(opts *StoreOptions) {
		opts.Logger = logger
	}
}

// WithMetrics подключает prometheus-метрики.
func WithMetrics(m *metrics.StoreMetrics) Option {
	return func(opts *StoreOptions) {
		opts.Metrics = m
	}
}

// WithKey задаёт имя слота в key-value хранилище.
func WithKey(key string) Option {
	return func(opts *StoreOptions) {
		opts.Key = key
	}
}

// WithIDGenerator подменяет генератор идентификаторов (например, в тестах).
func WithIDGenerator(gen func() string) Option {
	return func(opts *StoreOptions) {
		opts.IDGenerator = gen
	}
}

// WithClock подменяет источник времени для меток событий.
func WithClock(clock func() time.Time) Option {
	return func(opts *StoreOptions) {
		opts.Clock = clock
	}
}

// WithPersistTimeout ограничивает длительность одного чтения или записи слота.
func WithPersistTimeout(timeout time.Duration) Option {
	return func(opts *StoreOptions) {
		opts.PersistTimeout = timeout
	}
}

// NewTimeOrderedID возвращает UUIDv7: идентификаторы растут вместе со временем создания.
func NewTimeOrderedID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
