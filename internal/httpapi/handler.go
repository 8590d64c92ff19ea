// Package httpapi реализует HTTP-интерфейс формы бронирования и списка бронирований.
//
// Форма (POST /reservations) валидирует ввод и передаёт его в хранилище;
// список (GET/PUT/DELETE /reservations...) читает и изменяет коллекцию.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/hrm/internal/domain"
)

// ListPath: путь списка бронирований, на который форма перенаправляет после создания.
const ListPath = "/reservations"

// ReservationStore: операции хранилища, которые использует HTTP-слой.
type ReservationStore interface {
	GetAll() []domain.Reservation
	GetByID(id string) (domain.Reservation, bool)
	Add(ctx context.Context, r domain.Reservation) domain.Reservation
	Update(ctx context.Context, r domain.Reservation) bool
	Delete(ctx context.Context, id string) bool
}

// ErrorResponse: тело ответа об ошибке. Fields заполняется только для ошибок формы.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Handler обслуживает форму и список бронирований.
type Handler struct {
	store  ReservationStore
	logger *log.Entry
}

// NewHandler создаёт HTTP-обработчики поверх хранилища.
func NewHandler(store ReservationStore, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "httpapi")
	}
	return &Handler{store: store, logger: logger}
}

// Create обрабатывает отправку формы. Невалидная форма не доходит до хранилища.
// Форма из браузера перенаправляется на список, JSON-клиент получает созданную запись.
func (h *Handler) Create(c echo.Context) error {
	var form domain.ReservationForm
	if err := c.Bind(&form); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	if fieldErrs := form.Validate(); len(fieldErrs) > 0 {
		return invalidForm(c, fieldErrs)
	}

	created := h.store.Add(c.Request().Context(), form.Reservation())
	h.logger.WithFields(log.Fields{
		"reservation_id": created.ID,
		"room_number":    created.RoomNumber,
	}).Info("reservation created")

	if isFormPost(c.Request()) {
		return c.Redirect(http.StatusSeeOther, ListPath)
	}
	c.Response().Header().Set(echo.HeaderLocation, ListPath+"/"+created.ID)
	return c.JSON(http.StatusCreated, created)
}

// List возвращает всю коллекцию в порядке добавления.
func (h *Handler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, h.store.GetAll())
}

// Get возвращает одно бронирование.
func (h *Handler) Get(c echo.Context) error {
	r, ok := h.store.GetByID(c.Param("id"))
	if !ok {
		return notFound(c)
	}
	return c.JSON(http.StatusOK, r)
}

// Update целиком заменяет бронирование; ID берётся из пути.
func (h *Handler) Update(c echo.Context) error {
	id := c.Param("id")

	var form domain.ReservationForm
	if err := c.Bind(&form); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if fieldErrs := form.Validate(); len(fieldErrs) > 0 {
		return invalidForm(c, fieldErrs)
	}

	r := form.Reservation()
	r.ID = id
	if !h.store.Update(c.Request().Context(), r) {
		return notFound(c)
	}
	h.logger.WithField("reservation_id", id).Info("reservation updated")
	return c.JSON(http.StatusOK, r)
}

// Delete удаляет бронирование и возвращает обновлённый список.
// Удаление отсутствующего ID не считается ошибкой.
func (h *Handler) Delete(c echo.Context) error {
	id := c.Param("id")
	if h.store.Delete(c.Request().Context(), id) {
		h.logger.WithField("reservation_id", id).Info("reservation deleted")
	}
	return c.JSON(http.StatusOK, h.store.GetAll())
}

func invalidForm(c echo.Context, fieldErrs []domain.FieldError) error {
	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		if _, seen := fields[fe.Field]; !seen {
			fields[fe.Field] = fe.Err.Error()
		}
	}
	return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
		Error:  domain.ErrFormInvalid.Error(),
		Fields: fields,
	})
}

func notFound(c echo.Context) error {
	return c.JSON(http.StatusNotFound, ErrorResponse{Error: domain.ErrReservationNotFound.Error()})
}

func isFormPost(r *http.Request) bool {
	ct := r.Header.Get(echo.HeaderContentType)
	return strings.HasPrefix(ct, echo.MIMEApplicationForm) || strings.HasPrefix(ct, echo.MIMEMultipartForm)
}

// errorHandler приводит ошибки echo (404 маршрута, 405 и т.п.) к формату ErrorResponse.
func errorHandler(logger *log.Entry) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		message := http.StatusText(code)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if msg, ok := he.Message.(string); ok {
				message = msg
			} else {
				message = http.StatusText(code)
			}
		} else {
			logger.WithError(err).WithField("path", c.Path()).Error("unhandled http error")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, ErrorResponse{Error: message})
	}
}
