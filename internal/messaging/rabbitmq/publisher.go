// Package rabbitmq публикует события бронирований в durable-очередь RabbitMQ.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hrm/internal/domain"
)

// DefaultQueue: очередь событий по умолчанию.
const DefaultQueue = "hrm.reservation.events"

// channel: подмножество *amqp.Channel, которое использует Publisher.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type dialFunc func() (closer, channel, error)

type closer interface {
	Close() error
}

// Publisher держит одно соединение и канал; при закрытом канале
// переподключается один раз на вызов Publish.
type Publisher struct {
	queue  string
	dial   dialFunc
	logger *log.Entry

	mu   sync.Mutex
	conn closer
	ch   channel
}

// NewPublisher подключается к брокеру и объявляет очередь.
func NewPublisher(url, queue string) (*Publisher, error) {
	if url == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}
	dial := func() (closer, channel, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("open rabbitmq channel: %w", err)
		}
		return conn, ch, nil
	}

	p := newPublisher(dial, queue)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

func newPublisher(dial dialFunc, queue string) *Publisher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &Publisher{
		queue:  queue,
		dial:   dial,
		logger: log.WithField("component", "rabbitmq-publisher"),
	}
}

// Queue возвращает имя очереди.
func (p *Publisher) Queue() string {
	return p.queue
}

// Publish отправляет событие как persistent-сообщение в очередь через default exchange.
func (p *Publisher) Publish(ctx context.Context, event domain.ReservationEvent) error {
	if p == nil {
		return fmt.Errorf("rabbitmq publisher is not initialized")
	}

	msg, err := buildPublishing(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		if err := p.connectLocked(); err != nil {
			return err
		}
	}

	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg)
	if errors.Is(err, amqp.ErrClosed) {
		p.logger.Warn("rabbitmq channel closed, reconnecting")
		p.resetLocked()
		if err := p.connectLocked(); err != nil {
			return err
		}
		err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg)
	}
	if err != nil {
		p.logger.WithError(err).WithFields(log.Fields{
			"queue":          p.queue,
			"reservation_id": event.Reservation.ID,
		}).Error("failed to publish message to rabbitmq")
		return fmt.Errorf("rabbitmq publish: %w", err)
	}

	p.logger.WithFields(log.Fields{
		"queue":          p.queue,
		"event_type":     event.Type,
		"reservation_id": event.Reservation.ID,
	}).Debug("message published to rabbitmq")
	return nil
}

// Close закрывает канал и соединение.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	p.ch, p.conn = nil, nil
	return errors.Join(errs...)
}

func (p *Publisher) connectLocked() error {
	conn, ch, err := p.dial()
	if err != nil {
		return err
	}
	// durable: очередь переживает рестарт брокера
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		if conn != nil {
			_ = conn.Close()
		}
		return fmt.Errorf("declare rabbitmq queue %s: %w", p.queue, err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *Publisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

func buildPublishing(event domain.ReservationEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal reservation event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.Reservation.ID,
		Type:         string(event.Type),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}, nil
}

var _ domain.EventPublisher = (*Publisher)(nil)
