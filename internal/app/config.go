package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/hrm/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/hrm/internal/messaging/rabbitmq"
	"github.com/vladislavdragonenkov/hrm/internal/service/reservation"
)

// Драйверы key-value хранилища, в слоте которого лежит коллекция.
const (
	StorageDriverMemory   = "memory"
	StorageDriverFile     = "file"
	StorageDriverRedis    = "redis"
	StorageDriverPostgres = "postgres"
	StorageDriverMySQL    = "mysql"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	StorageDriver  string
	StorageKey     string
	PersistTimeout time.Duration

	FileDir string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool
	RedisPrefix   string

	PostgresDSN         string
	PostgresAutoMigrate bool

	MySQLDSN string

	// KafkaBrokers содержит список брокеров через запятую; пустая строка отключает Kafka.
	KafkaBrokers string
	KafkaTopic   string

	// Пустой RabbitMQURL отключает публикацию в RabbitMQ.
	RabbitMQURL   string
	RabbitMQQueue string

	OutboxQueueSize   int
	OutboxMaxAttempts int
	OutboxRetryDelay  time.Duration

	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		StorageKey:          reservation.DefaultKey,
		PersistTimeout:      5 * time.Second,
		FileDir:             "./data",
		RedisAddr:           "localhost:6379",
		RedisPrefix:         "hrm",
		PostgresAutoMigrate: true,
		KafkaTopic:          kafka.TopicReservationEvents,
		RabbitMQQueue:       rabbitmq.DefaultQueue,
		OutboxQueueSize:     256,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    50 * time.Millisecond,
		ShutdownTimeout:     5 * time.Second,
	}
}

// Validate проверяет согласованность настроек до открытия подключений.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http address is required"))
	}
	if strings.TrimSpace(c.MetricsAddr) == "" {
		errs = append(errs, errors.New("metrics address is required"))
	}

	switch c.normalizedDriver() {
	case StorageDriverMemory, StorageDriverRedis:
	case StorageDriverFile:
		if strings.TrimSpace(c.FileDir) == "" {
			errs = append(errs, errors.New("file storage requires a directory"))
		}
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres storage requires a DSN"))
		}
	case StorageDriverMySQL:
		if strings.TrimSpace(c.MySQLDSN) == "" {
			errs = append(errs, errors.New("mysql storage requires a DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	if c.PersistTimeout < 0 {
		errs = append(errs, errors.New("persist timeout must be >= 0"))
	}
	if c.OutboxQueueSize < 0 || c.OutboxMaxAttempts < 0 || c.OutboxRetryDelay < 0 {
		errs = append(errs, errors.New("outbox settings must be >= 0"))
	}

	return errors.Join(errs...)
}

// KafkaBrokerList разбивает KafkaBrokers, отбрасывая пустые элементы.
func (c Config) KafkaBrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func (c Config) normalizedDriver() string {
	driver := strings.ToLower(strings.TrimSpace(c.StorageDriver))
	if driver == "" {
		return StorageDriverMemory
	}
	return driver
}
