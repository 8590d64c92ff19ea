// Package outbox доставляет события об изменениях бронирований во внешние брокеры.
//
// Хранилище уведомляет подписчиков синхронно; Worker принимает события в
// ограниченную очередь и публикует их в фоне, чтобы недоступный брокер
// не замедлял HTTP-запросы.
package outbox

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hrm/internal/domain"
	"github.com/vladislavdragonenkov/hrm/internal/metrics"
)

const (
	defaultQueueSize      = 256
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	defaultFlushTimeout   = 2 * time.Second
)

// Sink: именованный получатель событий.
type Sink struct {
	Name      string
	Publisher domain.EventPublisher
}

// WorkerOptions задаёт параметры outbox worker.
type WorkerOptions struct {
	Logger         *log.Entry
	Metrics        *metrics.StoreMetrics
	QueueSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	FlushTimeout   time.Duration
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) {
		opts.Logger = logger
	}
}

// WithMetrics подключает счётчики публикаций.
func WithMetrics(m *metrics.StoreMetrics) Option {
	return func(opts *WorkerOptions) {
		opts.Metrics = m
	}
}

// WithQueueSize задаёт ёмкость очереди событий.
func WithQueueSize(size int) Option {
	return func(opts *WorkerOptions) {
		opts.QueueSize = size
	}
}

// WithMaxAttempts задаёт число попыток публикации в один sink.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *WorkerOptions) {
		opts.MaxAttempts = maxAttempts
	}
}

// WithRetryBaseDelay задаёт базовый delay для exponential backoff.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.RetryBaseDelay = delay
	}
}

// WithFlushTimeout ограничивает время дожидания очереди при остановке.
func WithFlushTimeout(timeout time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.FlushTimeout = timeout
	}
}

// Worker публикует события из очереди во все sinks.
type Worker struct {
	queue          chan domain.ReservationEvent
	sinks          []Sink
	logger         *log.Entry
	metrics        *metrics.StoreMetrics
	maxAttempts    int
	retryBaseDelay time.Duration
	flushTimeout   time.Duration
}

// NewWorker создаёт outbox worker.
func NewWorker(sinks []Sink, options ...Option) *Worker {
	opts := WorkerOptions{
		QueueSize:      defaultQueueSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
		FlushTimeout:   defaultFlushTimeout,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "outbox-worker")
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = defaultFlushTimeout
	}

	active := make([]Sink, 0, len(sinks))
	for _, sink := range sinks {
		if sink.Publisher != nil {
			active = append(active, sink)
		}
	}

	return &Worker{
		queue:          make(chan domain.ReservationEvent, opts.QueueSize),
		sinks:          active,
		logger:         logger,
		metrics:        opts.Metrics,
		maxAttempts:    opts.MaxAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
		flushTimeout:   opts.FlushTimeout,
	}
}

// Enabled сообщает, есть ли хотя бы один sink.
func (w *Worker) Enabled() bool {
	return len(w.sinks) > 0
}

// Handle ставит событие в очередь; сигнатура совместима с reservation.Subscriber.
// При переполнении очереди событие отбрасывается с предупреждением.
func (w *Worker) Handle(event domain.ReservationEvent) {
	if !w.Enabled() {
		return
	}
	select {
	case w.queue <- event:
	default:
		w.logger.WithFields(log.Fields{
			"event_type":     event.Type,
			"reservation_id": event.Reservation.ID,
		}).Warn("outbox queue is full, dropping event")
		for _, sink := range w.sinks {
			w.metrics.RecordEventPublished(sink.Name, domain.ErrEventPublish)
		}
	}
}

// Pending возвращает количество событий в очереди.
func (w *Worker) Pending() int {
	return len(w.queue)
}

// Run публикует события до отмены ctx, затем дожидается очереди не дольше FlushTimeout.
func (w *Worker) Run(ctx context.Context) {
	if !w.Enabled() {
		w.logger.Info("outbox worker is disabled: no sinks configured")
		return
	}

	for {
		select {
		case <-ctx.Done():
			w.flush()
			return
		case event := <-w.queue:
			w.publish(ctx, event)
		}
	}
}

// ProcessOnce публикует все события, накопленные в очереди на момент вызова.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	processed := 0
	for n := len(w.queue); n > 0; n-- {
		if ctx.Err() != nil {
			return processed
		}
		select {
		case event := <-w.queue:
			w.publish(ctx, event)
			processed++
		default:
			return processed
		}
	}
	return processed
}

func (w *Worker) flush() {
	if len(w.queue) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.flushTimeout)
	defer cancel()

	w.ProcessOnce(ctx)
	if left := len(w.queue); left > 0 {
		w.logger.WithField("pending", left).Warn("outbox worker stopped with undelivered events")
	}
}

func (w *Worker) publish(ctx context.Context, event domain.ReservationEvent) {
	for _, sink := range w.sinks {
		err := w.publishWithRetry(ctx, sink, event)
		w.metrics.RecordEventPublished(sink.Name, err)
		if err != nil {
			w.logger.WithError(err).WithFields(log.Fields{
				"sink":           sink.Name,
				"event_type":     event.Type,
				"reservation_id": event.Reservation.ID,
			}).Error("event publish failed after retries")
		}
	}
}

func (w *Worker) publishWithRetry(ctx context.Context, sink Sink, event domain.ReservationEvent) error {
	var lastErr error

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		err := sink.Publisher.Publish(ctx, event)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt >= w.maxAttempts {
			break
		}

		delay := w.retryBackoff(attempt)
		if delay <= 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%w: %s after %d attempts: %v", domain.ErrEventPublish, sink.Name, w.maxAttempts, lastErr)
}

func (w *Worker) retryBackoff(attempt int) time.Duration {
	if w.retryBaseDelay <= 0 {
		return 0
	}

	const maxDuration = time.Duration(1<<63 - 1)
	delay := w.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay > maxDuration/2 {
			return maxDuration
		}
		delay *= 2
	}
	return delay
}
