package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Операции хранилища бронирований для label "op".
const (
	OpAdd    = "add"
	OpUpdate = "update"
	OpDelete = "delete"
	OpLoad   = "load"
)

// Результаты операции для label "result".
const (
	ResultApplied = "applied"
	ResultNoop    = "noop"
)

// StoreMetrics содержит метрики хранилища бронирований и публикации событий.
// Все методы безопасны для nil-получателя: хранилище можно собрать без метрик.
type StoreMetrics struct {
	operations      *prometheus.CounterVec
	persistFailures *prometheus.CounterVec
	persistDuration prometheus.Histogram
	reservations    prometheus.Gauge
	eventsPublished *prometheus.CounterVec
}

// NewStoreMetrics регистрирует метрики в DefaultRegisterer.
func NewStoreMetrics() *StoreMetrics {
	return NewStoreMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewStoreMetricsWithRegisterer регистрирует метрики в переданном реестре;
// повторная регистрация возвращает уже существующие коллекторы.
func NewStoreMetricsWithRegisterer(registerer prometheus.Registerer) *StoreMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &StoreMetrics{
		operations: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hrm_reservation_operations_total",
			Help: "Total number of reservation store operations grouped by operation and result",
		}, []string{"op", "result"})),
		persistFailures: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hrm_reservation_persist_failures_total",
			Help: "Total number of failed reads/writes of the reservation slot",
		}, []string{"op"})),
		persistDuration: register(registerer, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hrm_reservation_persist_duration_seconds",
			Help:    "Duration of full reservation slot rewrites in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		})),
		reservations: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hrm_reservations",
			Help: "Number of reservations currently held by the store",
		})),
		eventsPublished: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hrm_reservation_events_published_total",
			Help: "Total number of reservation change events published grouped by sink and result",
		}, []string{"sink", "result"})),
	}
}

// register регистрирует коллектор или возвращает ранее зарегистрированный того же типа.
func register[T prometheus.Collector](registerer prometheus.Registerer, collector T) T {
	if err := registerer.Register(collector); err != nil {
		var alreadyRegistered prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegistered) {
			existing, ok := alreadyRegistered.ExistingCollector.(T)
			if !ok {
				panic(fmt.Sprintf("collector already registered with unexpected type %T", alreadyRegistered.ExistingCollector))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector: %v", err))
	}
	return collector
}

// RecordOperation учитывает вызов операции хранилища.
func (m *StoreMetrics) RecordOperation(op string, applied bool) {
	if m == nil {
		return
	}
	result := ResultNoop
	if applied {
		result = ResultApplied
	}
	m.operations.WithLabelValues(op, result).Inc()
}

// RecordPersistFailure учитывает ошибку чтения или записи слота.
func (m *StoreMetrics) RecordPersistFailure(op string) {
	if m == nil {
		return
	}
	m.persistFailures.WithLabelValues(op).Inc()
}

// RecordPersistDuration записывает длительность перезаписи слота.
func (m *StoreMetrics) RecordPersistDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.persistDuration.Observe(duration.Seconds())
}

// SetReservations фиксирует текущий размер коллекции.
func (m *StoreMetrics) SetReservations(n int) {
	if m == nil {
		return
	}
	m.reservations.Set(float64(n))
}

// RecordEventPublished учитывает попытку публикации события в sink (kafka, rabbitmq).
func (m *StoreMetrics) RecordEventPublished(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.eventsPublished.WithLabelValues(sink, result).Inc()
}
