package domain

import (
	"context"
	"time"
)

// KeyValueStore описывает внешнее key-value хранилище, в одном слоте которого
// лежит вся коллекция бронирований.
type KeyValueStore interface {
	// Read возвращает значение слота; found=false, если слот ещё не записывался.
	Read(ctx context.Context, key string) (value string, found bool, err error)
	// Write целиком перезаписывает слот.
	Write(ctx context.Context, key, value string) error
	// Ping проверяет доступность хранилища.
	Ping(ctx context.Context) error
}

// SlotRevisioner реализуют хранилища, которые считают перезаписи слота.
type SlotRevisioner interface {
	// Revision возвращает число перезаписей слота; 0, если слот не записывался.
	Revision(ctx context.Context, key string) (int64, error)
}

// EventType определяет тип изменения коллекции.
type EventType string

const (
	EventReservationCreated EventType = "reservation.created"
	EventReservationUpdated EventType = "reservation.updated"
	EventReservationDeleted EventType = "reservation.deleted"
)

// ReservationEvent: уведомление об изменении коллекции, доставляемое подписчикам хранилища.
type ReservationEvent struct {
	Type        EventType   `json:"event_type"`
	Reservation Reservation `json:"reservation"`
	Timestamp   time.Time   `json:"timestamp"`
}

// EventPublisher передаёт события об изменениях наружу (Kafka, RabbitMQ).
type EventPublisher interface {
	Publish(ctx context.Context, event ReservationEvent) error
	Close() error
}
