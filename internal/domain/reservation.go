package domain

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// formValidator проверяет теги validate; имена полей в ошибках берутся из тега json.
var formValidator = newFormValidator()

func newFormValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// Reservation описывает бронирование номера в отеле.
// Все поля строковые: даты хранятся в том виде, в каком их ввёл пользователь.
type Reservation struct {
	// ID назначается хранилищем при создании и не приходит от клиента.
	ID           string `json:"id" yaml:"id"`
	CheckInDate  string `json:"checkInDate" yaml:"checkInDate"`
	CheckOutDate string `json:"checkOutDate" yaml:"checkOutDate"`
	GuestName    string `json:"guestName" yaml:"guestName"`
	GuestEmail   string `json:"guestEmail" yaml:"guestEmail"`
	RoomNumber   string `json:"roomNumber" yaml:"roomNumber"`
}

// ReservationForm: пользовательский ввод формы бронирования до передачи в хранилище.
// Теги form позволяют принимать как JSON, так и application/x-www-form-urlencoded.
type ReservationForm struct {
	CheckInDate  string `json:"checkInDate" form:"checkInDate" yaml:"checkInDate" validate:"required"`
	CheckOutDate string `json:"checkOutDate" form:"checkOutDate" yaml:"checkOutDate" validate:"required"`
	GuestName    string `json:"guestName" form:"guestName" yaml:"guestName" validate:"required"`
	GuestEmail   string `json:"guestEmail" form:"guestEmail" yaml:"guestEmail" validate:"required,email"`
	RoomNumber   string `json:"roomNumber" form:"roomNumber" yaml:"roomNumber" validate:"required"`
}

// FieldError связывает ошибку валидации с полем формы.
type FieldError struct {
	Field string
	Err   error
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e FieldError) Unwrap() error {
	return e.Err
}

// Validate проверяет заполненность обязательных полей и формат email.
// Значения проверяются после обрезки пробелов; порядок ошибок совпадает с порядком полей формы.
func (f ReservationForm) Validate() []FieldError {
	trimmed := f.trimmed()
	err := formValidator.Struct(trimmed)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return []FieldError{{Field: "form", Err: ErrFormInvalid}}
	}

	errs := make([]FieldError, 0, len(validationErrs))
	for _, fe := range validationErrs {
		errs = append(errs, FieldError{Field: fe.Field(), Err: fieldErrorCause(fe.Tag())})
	}
	return errs
}

func fieldErrorCause(tag string) error {
	switch tag {
	case "required":
		return ErrFieldRequired
	case "email":
		return ErrEmailInvalid
	default:
		return ErrFormInvalid
	}
}

func (f ReservationForm) trimmed() ReservationForm {
	return ReservationForm{
		CheckInDate:  strings.TrimSpace(f.CheckInDate),
		CheckOutDate: strings.TrimSpace(f.CheckOutDate),
		GuestName:    strings.TrimSpace(f.GuestName),
		GuestEmail:   strings.TrimSpace(f.GuestEmail),
		RoomNumber:   strings.TrimSpace(f.RoomNumber),
	}
}

// Reservation переносит значения формы в сущность без идентификатора.
func (f ReservationForm) Reservation() Reservation {
	t := f.trimmed()
	return Reservation{
		CheckInDate:  t.CheckInDate,
		CheckOutDate: t.CheckOutDate,
		GuestName:    t.GuestName,
		GuestEmail:   t.GuestEmail,
		RoomNumber:   t.RoomNumber,
	}
}

// IsEmail проверяет адрес тем же правилом email, что и форма.
func IsEmail(s string) bool {
	return formValidator.Var(s, "email") == nil
}
