package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hrm/internal/domain"
	"github.com/vladislavdragonenkov/hrm/internal/storage/file"
	"github.com/vladislavdragonenkov/hrm/internal/storage/memory"
	"github.com/vladislavdragonenkov/hrm/internal/storage/mysql"
	"github.com/vladislavdragonenkov/hrm/internal/storage/postgres"
	"github.com/vladislavdragonenkov/hrm/internal/storage/redis"
)

// runtimeDependencies: key-value хранилище выбранного драйвера и функция его закрытия.
type runtimeDependencies struct {
	driver  string
	kv      domain.KeyValueStore
	closeFn func() error
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).WithField("driver", d.driver).Warn("failed to close storage")
		return
	}
	logger.WithField("driver", d.driver).Info("storage closed")
}

// OpenKeyValueStore открывает хранилище выбранного драйвера для утилит вне сервиса.
// Возвращаемая функция закрытия не бывает nil.
func OpenKeyValueStore(ctx context.Context, cfg Config, logger *log.Entry) (domain.KeyValueStore, func() error, error) {
	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	closeFn := deps.closeFn
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return deps.kv, closeFn, nil
}

// initRuntimeDependencies открывает хранилище по cfg.StorageDriver.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	driver := cfg.normalizedDriver()
	deps := &runtimeDependencies{driver: driver}

	switch driver {
	case StorageDriverMemory:
		deps.kv = memory.NewKeyValueStore()

	case StorageDriverFile:
		store, err := file.NewKVStore(cfg.FileDir)
		if err != nil {
			return nil, err
		}
		deps.kv = store

	case StorageDriverRedis:
		store, err := redis.Open(ctx, redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TLS:      cfg.RedisTLS,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("init redis storage: %w", err)
		}
		deps.kv = store
		deps.closeFn = store.Close

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage requires a DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("init postgres storage: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}
		deps.kv = postgres.NewKeyValueStore(store)
		deps.closeFn = store.Close

	case StorageDriverMySQL:
		if cfg.MySQLDSN == "" {
			return nil, fmt.Errorf("mysql storage requires a DSN")
		}
		store, err := mysql.Open(ctx, cfg.MySQLDSN)
		if err != nil {
			return nil, fmt.Errorf("init mysql storage: %w", err)
		}
		deps.kv = store
		deps.closeFn = store.Close

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	logger.WithField("driver", driver).Info("storage initialized")
	return deps, nil
}
