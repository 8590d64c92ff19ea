package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/hrm/internal/domain"
)

// Topics для Kafka
const (
	TopicReservationEvents = "hrm.reservation.events"
)

// HeaderEventType дублирует тип события в заголовке, чтобы его можно было
// фильтровать без разбора payload.
const HeaderEventType = "x-event-type"

// EncodeEvent сериализует событие бронирования в JSON.
func EncodeEvent(event domain.ReservationEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reservation event: %w", err)
	}
	return data, nil
}

// ParseReservationEvent парсит событие бронирования из сообщения
func ParseReservationEvent(message *sarama.ConsumerMessage) (domain.ReservationEvent, error) {
	var event domain.ReservationEvent
	if message == nil {
		return event, fmt.Errorf("nil kafka message")
	}
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return event, fmt.Errorf("failed to unmarshal reservation event: %w", err)
	}
	if event.Type == "" {
		return event, fmt.Errorf("reservation event without event_type")
	}
	return event, nil
}
