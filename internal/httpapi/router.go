package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hrm/internal/metrics"
)

// NewRouter собирает echo-приложение с маршрутами формы и списка.
func NewRouter(h *Handler, httpMetrics *metrics.HTTPMetrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(h.logger)

	e.Use(requestLogger(h.logger, httpMetrics), recoverMiddleware(h.logger))

	RegisterRoutes(e, h)
	return e
}

// RegisterRoutes регистрирует маршруты бронирований.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	g := e.Group(ListPath)
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

// requestLogger пишет access-лог и метрики запроса. Ошибку обработчика
// сразу отдаёт в HTTPErrorHandler, чтобы в лог попал итоговый статус.
func requestLogger(logger *log.Entry, httpMetrics *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		HandleError:  true,
		LogMethod:    true,
		LogURIPath:   true,
		LogRoutePath: true,
		LogStatus:    true,
		LogLatency:   true,
		LogError:     true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			route := v.RoutePath
			if route == "" {
				route = "unmatched"
			}
			httpMetrics.Observe(v.Method, route, v.Status, v.Latency)

			entry := logger.WithFields(log.Fields{
				"method":      v.Method,
				"path":        v.URIPath,
				"status":      v.Status,
				"duration_ms": v.Latency.Milliseconds(),
			})
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			if v.Status >= http.StatusInternalServerError {
				entry.Warn("http request failed")
			} else {
				entry.Debug("http request")
			}
			return nil
		},
	})
}

// recoverMiddleware переводит панику обработчика в 500 и пишет стек в logrus.
func recoverMiddleware(logger *log.Entry) echo.MiddlewareFunc {
	return middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.WithError(err).WithFields(log.Fields{
				"path":  c.Request().URL.Path,
				"stack": string(stack),
			}).Error("panic in http handler")
			return err
		},
	})
}
