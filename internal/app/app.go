package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/hrm/internal/health"
	"github.com/vladislavdragonenkov/hrm/internal/httpapi"
	"github.com/vladislavdragonenkov/hrm/internal/metrics"
	"github.com/vladislavdragonenkov/hrm/internal/service/outbox"
	"github.com/vladislavdragonenkov/hrm/internal/service/reservation"
	"github.com/vladislavdragonenkov/hrm/internal/version"
)

// Run поднимает хранилище, HTTP API и сервер метрик; блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	store := reservation.NewStore(ctx, deps.kv,
		reservation.WithLogger(logger.WithField("layer", "store")),
		reservation.WithMetrics(metrics.NewStoreMetrics()),
		reservation.WithKey(cfg.StorageKey),
		reservation.WithPersistTimeout(cfg.PersistTimeout),
	)

	sinks := initEventSinks(cfg, logger)
	defer closeEventSinks(sinks, logger)

	worker := outbox.NewWorker(sinks,
		outbox.WithLogger(logger.WithField("layer", "outbox")),
		outbox.WithMetrics(metrics.NewStoreMetrics()),
		outbox.WithQueueSize(cfg.OutboxQueueSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
	cancelWorker, workerDone := startOutboxWorker(worker, store)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", healthcheck.NewStorageChecker(deps.driver, deps.kv, store.PersistError))

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	router := httpapi.NewRouter(
		httpapi.NewHandler(store, logger.WithField("layer", "http")),
		metrics.NewHTTPMetricsWithRegisterer(prometheus.DefaultRegisterer),
	)
	apiSrv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		shutdownOutboxWorker(cancelWorker, workerDone, logger)
		return fmt.Errorf("listen %s: %w", cfg.HTTPAddr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", lis.Addr())
		errCh <- apiSrv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP API")
		shutdownHTTPWithTimeout(apiSrv, cfg.ShutdownTimeout, logger)
		shutdownHTTP(metricsSrv, logger)
		shutdownOutboxWorker(cancelWorker, workerDone, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		shutdownOutboxWorker(cancelWorker, workerDone, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startOutboxWorker подписывает worker на изменения хранилища и запускает его.
// Worker останавливается только после HTTP API, чтобы последние события ушли в брокеры.
func startOutboxWorker(worker *outbox.Worker, store *reservation.Store) (context.CancelFunc, <-chan struct{}) {
	done := make(chan struct{})
	if !worker.Enabled() {
		close(done)
		return func() {}, done
	}

	unsubscribe := store.Subscribe(worker.Handle)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer close(done)
		defer unsubscribe()
		worker.Run(ctx)
	}()
	return cancel, done
}

func shutdownOutboxWorker(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel == nil {
		return
	}
	cancel()
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn("outbox worker stop timeout")
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus и health probes.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	shutdownHTTPWithTimeout(srv, 5*time.Second, logger)
}

func shutdownHTTPWithTimeout(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
