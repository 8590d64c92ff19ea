package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hrm/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/hrm/internal/messaging/rabbitmq"
	"github.com/vladislavdragonenkov/hrm/internal/service/outbox"
)

const (
	sinkKafka    = "kafka"
	sinkRabbitMQ = "rabbitmq"
)

// initEventSinks создаёт publishers для настроенных брокеров.
// Недоступный брокер не мешает запуску: сервис продолжает работу без него.
func initEventSinks(cfg Config, logger *log.Entry) []outbox.Sink {
	var sinks []outbox.Sink

	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 {
		producer, err := kafka.NewProducer(brokers, cfg.KafkaTopic)
		if err != nil {
			logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		} else {
			logger.WithFields(log.Fields{
				"brokers": brokers,
				"topic":   producer.Topic(),
			}).Info("kafka producer initialized")
			sinks = append(sinks, outbox.Sink{Name: sinkKafka, Publisher: producer})
		}
	}

	if cfg.RabbitMQURL != "" {
		publisher, err := rabbitmq.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQQueue)
		if err != nil {
			logger.WithError(err).Warn("failed to connect to rabbitmq, continuing without rabbitmq")
		} else {
			logger.WithField("queue", publisher.Queue()).Info("rabbitmq publisher initialized")
			sinks = append(sinks, outbox.Sink{Name: sinkRabbitMQ, Publisher: publisher})
		}
	}

	return sinks
}

// closeEventSinks закрывает publishers всех sinks.
func closeEventSinks(sinks []outbox.Sink, logger *log.Entry) {
	for _, sink := range sinks {
		if sink.Publisher == nil {
			continue
		}
		if err := sink.Publisher.Close(); err != nil {
			logger.WithError(err).WithField("sink", sink.Name).Warn("failed to close event publisher")
		} else {
			logger.WithField("sink", sink.Name).Info("event publisher closed")
		}
	}
}
