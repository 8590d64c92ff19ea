// Package reservation содержит единственного владельца коллекции бронирований.
//
// Store держит коллекцию в памяти и после каждой мутации целиком
// перезаписывает её JSON-представление в один слот key-value хранилища.
// Ошибки хранилища не возвращаются вызывающему: они логируются, считаются
// в метриках и доступны через PersistError для health-check.
package reservation

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hrm/internal/domain"
	"github.com/vladislavdragonenkov/hrm/internal/metrics"
)

// Subscriber получает уведомления об изменениях коллекции.
type Subscriber func(event domain.ReservationEvent)

// Store: хранилище бронирований с синхронизацией в key-value слот.
type Store struct {
	mu    sync.Mutex
	items []domain.Reservation

	kv             domain.KeyValueStore
	key            string
	newID          func() string
	now            func() time.Time
	persistTimeout time.Duration
	logger         *log.Entry
	metrics        *metrics.StoreMetrics

	subMu       sync.RWMutex
	subscribers map[uint64]Subscriber
	nextSubID   uint64

	errMu      sync.RWMutex
	persistErr error
}

// NewStore создаёт хранилище и загружает коллекцию из слота.
// Отсутствующий, пустой или повреждённый слот даёт пустую коллекцию.
func NewStore(ctx context.Context, kv domain.KeyValueStore, options ...Option) *Store {
	opts := StoreOptions{
		Key:            DefaultKey,
		IDGenerator:    NewTimeOrderedID,
		Clock:          time.Now,
		PersistTimeout: defaultPersistTimeout,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "reservation-store")
	}
	if strings.TrimSpace(opts.Key) == "" {
		opts.Key = DefaultKey
	}
	if opts.IDGenerator == nil {
		opts.IDGenerator = NewTimeOrderedID
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = defaultPersistTimeout
	}

	s := &Store{
		items:          []domain.Reservation{},
		kv:             kv,
		key:            opts.Key,
		newID:          opts.IDGenerator,
		now:            opts.Clock,
		persistTimeout: opts.PersistTimeout,
		logger:         logger.WithField("slot", opts.Key),
		metrics:        opts.Metrics,
		subscribers:    make(map[uint64]Subscriber),
	}

	items, err := s.load(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("не удалось загрузить бронирования, начинаем с пустой коллекции")
		s.metrics.RecordPersistFailure(metrics.OpLoad)
		s.setPersistErr(err)
	} else {
		s.items = items
	}
	s.metrics.SetReservations(len(s.items))
	s.logger.WithField("count", len(s.items)).Info("reservation store initialized")

	return s
}

// GetAll возвращает копию коллекции в порядке добавления.
func (s *Store) GetAll() []domain.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.items)
}

// GetByID ищет бронирование линейным проходом; found=false, если его нет.
func (s *Store) GetByID(id string) (domain.Reservation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return domain.Reservation{}, false
	}
	return s.items[idx], true
}

// Add назначает новый ID (перезаписывая переданный), добавляет бронирование
// в конец коллекции и перезаписывает слот. Валидация здесь не выполняется.
func (s *Store) Add(ctx context.Context, r domain.Reservation) domain.Reservation {
	s.mu.Lock()
	r.ID = s.newID()
	s.items = append(s.items, r)
	s.persistLocked(ctx, metrics.OpAdd)
	s.mu.Unlock()

	s.metrics.RecordOperation(metrics.OpAdd, true)
	s.logger.WithField("reservation_id", r.ID).Debug("reservation added")
	s.notify(domain.EventReservationCreated, r)
	return r
}

// Update целиком заменяет бронирование с тем же ID. Если его нет, ничего не меняется.
// Слот перезаписывается при каждом вызове, независимо от результата поиска.
func (s *Store) Update(ctx context.Context, r domain.Reservation) bool {
	s.mu.Lock()
	idx := s.indexOf(r.ID)
	if idx >= 0 {
		s.items[idx] = r
	}
	s.persistLocked(ctx, metrics.OpUpdate)
	s.mu.Unlock()

	found := idx >= 0
	s.metrics.RecordOperation(metrics.OpUpdate, found)
	if !found {
		s.logger.WithField("reservation_id", r.ID).Debug("update skipped: reservation not found")
		return false
	}
	s.notify(domain.EventReservationUpdated, r)
	return true
}

// Delete удаляет первое бронирование с указанным ID; если его нет, ничего не меняется.
// Слот перезаписывается при каждом вызове.
func (s *Store) Delete(ctx context.Context, id string) bool {
	s.mu.Lock()
	var removed domain.Reservation
	idx := s.indexOf(id)
	if idx >= 0 {
		removed = s.items[idx]
		s.items = slices.Delete(s.items, idx, idx+1)
	}
	s.persistLocked(ctx, metrics.OpDelete)
	s.mu.Unlock()

	found := idx >= 0
	s.metrics.RecordOperation(metrics.OpDelete, found)
	if !found {
		s.logger.WithField("reservation_id", id).Debug("delete skipped: reservation not found")
		return false
	}
	s.notify(domain.EventReservationDeleted, removed)
	return true
}

// Reload перечитывает слот и заменяет коллекцию в памяти.
// При ошибке текущая коллекция сохраняется, а ошибка возвращается.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load(ctx)
	if err != nil {
		s.metrics.RecordPersistFailure(metrics.OpLoad)
		return err
	}
	s.items = items
	s.metrics.SetReservations(len(s.items))
	return nil
}

// Subscribe регистрирует подписчика; возвращаемая функция отменяет подписку.
// Подписчики вызываются синхронно после применения мутации, вне блокировки коллекции.
func (s *Store) Subscribe(fn Subscriber) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subscribers, id)
			s.subMu.Unlock()
		})
	}
}

// PersistError возвращает последнюю ошибку чтения/записи слота или nil,
// если последняя операция с хранилищем прошла успешно.
func (s *Store) PersistError() error {
	s.errMu.RLock()
	defer s.errMu.RUnlock()
	return s.persistErr
}

// Key возвращает имя слота.
func (s *Store) Key() string {
	return s.key
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.items, func(r domain.Reservation) bool {
		return r.ID == id
	})
}

func (s *Store) load(ctx context.Context) ([]domain.Reservation, error) {
	if s.kv == nil {
		return nil, domain.ErrStorageUnavailable
	}

	readCtx, cancel := context.WithTimeout(ctx, s.persistTimeout)
	defer cancel()

	raw, found, err := s.kv.Read(readCtx, s.key)
	if err != nil {
		return nil, fmt.Errorf("read slot %s: %w", s.key, err)
	}
	if !found || strings.TrimSpace(raw) == "" {
		s.setPersistErr(nil)
		return []domain.Reservation{}, nil
	}

	items, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	s.setPersistErr(nil)
	return items, nil
}

// persistLocked сериализует коллекцию и перезаписывает слот. Вызывается под s.mu,
// поэтому порядок записей в хранилище совпадает с порядком мутаций.
func (s *Store) persistLocked(ctx context.Context, op string) {
	s.metrics.SetReservations(len(s.items))

	payload, err := Encode(s.items)
	if err != nil {
		s.persistFailed(op, err)
		return
	}
	if s.kv == nil {
		s.persistFailed(op, domain.ErrStorageUnavailable)
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.persistTimeout)
	defer cancel()

	start := time.Now()
	err = s.kv.Write(writeCtx, s.key, payload)
	s.metrics.RecordPersistDuration(time.Since(start))
	if err != nil {
		s.persistFailed(op, fmt.Errorf("write slot %s: %w", s.key, err))
		return
	}
	s.setPersistErr(nil)
}

func (s *Store) persistFailed(op string, err error) {
	s.logger.WithError(err).WithField("op", op).Warn("failed to persist reservations, keeping in-memory state")
	s.metrics.RecordPersistFailure(op)
	s.setPersistErr(err)
}

func (s *Store) setPersistErr(err error) {
	s.errMu.Lock()
	s.persistErr = err
	s.errMu.Unlock()
}

func (s *Store) notify(eventType domain.EventType, r domain.Reservation) {
	s.subMu.RLock()
	subscribers := make([]Subscriber, 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subscribers = append(subscribers, fn)
	}
	s.subMu.RUnlock()

	if len(subscribers) == 0 {
		return
	}

	event := domain.ReservationEvent{
		Type:        eventType,
		Reservation: r,
		Timestamp:   s.now().UTC(),
	}
	for _, fn := range subscribers {
		fn(event)
	}
}

// Encode сериализует коллекцию в формат слота: JSON-массив записей.
func Encode(items []domain.Reservation) (string, error) {
	if items == nil {
		items = []domain.Reservation{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("marshal reservations: %w", err)
	}
	return string(data), nil
}

// Decode разбирает содержимое слота. Ошибка оборачивает domain.ErrSlotCorrupted.
func Decode(raw string) ([]domain.Reservation, error) {
	var items []domain.Reservation
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSlotCorrupted, err)
	}
	if items == nil {
		items = []domain.Reservation{}
	}
	return items, nil
}
