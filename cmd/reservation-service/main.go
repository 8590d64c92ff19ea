package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hrm/internal/app"
	"github.com/vladislavdragonenkov/hrm/internal/version"
)

const (
	envHTTPAddr            = "HRM_HTTP_ADDR"
	envMetricsAddr         = "HRM_METRICS_ADDR"
	envStorageDriver       = "HRM_STORAGE_DRIVER"
	envStorageKey          = "HRM_STORAGE_KEY"
	envPersistTimeout      = "HRM_PERSIST_TIMEOUT"
	envFileDir             = "HRM_FILE_DIR"
	envRedisAddr           = "HRM_REDIS_ADDR"
	envRedisPassword       = "HRM_REDIS_PASSWORD"
	envRedisDB             = "HRM_REDIS_DB"
	envRedisTLS            = "HRM_REDIS_TLS"
	envRedisPrefix         = "HRM_REDIS_PREFIX"
	envPostgresDSN         = "HRM_POSTGRES_DSN"
	envPostgresAutoMigrate = "HRM_POSTGRES_AUTO_MIGRATE"
	envMySQLDSN            = "HRM_MYSQL_DSN"
	envKafkaBrokers        = "KAFKA_BROKERS"
	envKafkaTopic          = "HRM_KAFKA_TOPIC"
	envRabbitMQURL         = "HRM_RABBITMQ_URL"
	envRabbitMQQueue       = "HRM_RABBITMQ_QUEUE"
	envOutboxQueueSize     = "HRM_OUTBOX_QUEUE_SIZE"
	envOutboxMaxAttempts   = "HRM_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay    = "HRM_OUTBOX_RETRY_DELAY"
	envShutdownTimeout     = "HRM_SHUTDOWN_TIMEOUT"
	envLogLevel            = "HRM_LOG_LEVEL"
	envLogFormat           = "HRM_LOG_FORMAT"
)

type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) {
	if format, _ := lookup(envLogFormat); strings.EqualFold(strings.TrimSpace(format), "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level := log.InfoLevel
	if raw, ok := lookup(envLogLevel); ok && strings.TrimSpace(raw) != "" {
		parsed, err := log.ParseLevel(strings.TrimSpace(raw))
		if err != nil {
			log.WithError(err).Warn("invalid log level, using info")
		} else {
			level = parsed
		}
	}
	log.SetLevel(level)
}

// readConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректное значение не прерывает запуск: остаётся значение по умолчанию, а ошибка
// возвращается как предупреждение.
func readConfigFromEnv(lookup envLookup) (app.Config, []error) {
	cfg := app.DefaultConfig()
	var warnings []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	integer := func(key string, dst *int, valid func(int) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseInt(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	duration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseDuration(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}

	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }

	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	str(envStorageDriver, &cfg.StorageDriver)
	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	str(envStorageKey, &cfg.StorageKey)
	duration(envPersistTimeout, &cfg.PersistTimeout, positiveDuration, "must be > 0")
	str(envFileDir, &cfg.FileDir)

	str(envRedisAddr, &cfg.RedisAddr)
	str(envRedisPassword, &cfg.RedisPassword)
	integer(envRedisDB, &cfg.RedisDB, nonNegative, "must be >= 0")
	boolean(envRedisTLS, &cfg.RedisTLS)
	str(envRedisPrefix, &cfg.RedisPrefix)

	str(envPostgresDSN, &cfg.PostgresDSN)
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	str(envMySQLDSN, &cfg.MySQLDSN)

	str(envKafkaBrokers, &cfg.KafkaBrokers)
	str(envKafkaTopic, &cfg.KafkaTopic)
	str(envRabbitMQURL, &cfg.RabbitMQURL)
	str(envRabbitMQQueue, &cfg.RabbitMQQueue)

	integer(envOutboxQueueSize, &cfg.OutboxQueueSize, positive, "must be > 0")
	integer(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")
	duration(envShutdownTimeout, &cfg.ShutdownTimeout, positiveDuration, "must be > 0")

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("invalid value %d: %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("invalid duration %s: %s", value, rule)
	}
	return value, nil
}

func main() {
	// .env необязателен; уже заданные переменные окружения не перезаписываются.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("failed to load .env")
	}

	setupLogger(os.LookupEnv)
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, w := range warnings {
		log.WithError(w).Warn("invalid environment value, using default")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":      cfg.HTTPAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"version":        version.String(),
	}).Info("запускаем ReservationService")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("ReservationService остановлен")
}
