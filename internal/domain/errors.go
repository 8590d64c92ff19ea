package domain

import "errors"

var (
	// Ошибка незаполненного обязательного поля формы.
	ErrFieldRequired = errors.New("field is required")
	// Ошибка некорректного адреса электронной почты.
	ErrEmailInvalid = errors.New("email is invalid")
	// ErrFormInvalid: сводная ошибка формы; текст показывается пользователю.
	ErrFormInvalid = errors.New("Form is invalid")
	// ErrReservationNotFound возвращается HTTP-слоем, когда бронирование отсутствует.
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrSlotCorrupted: содержимое слота хранилища не удалось разобрать.
	ErrSlotCorrupted = errors.New("storage slot is corrupted")
	// ErrStorageUnavailable: хранилище не отвечает или не инициализировано.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrStorageKeyRequired: пустой ключ слота.
	ErrStorageKeyRequired = errors.New("storage key is required")
	// ErrEventPublish: ошибка публикации события об изменении бронирования.
	ErrEventPublish = errors.New("event publish failed")
)

// IsValidationError проверяет, относится ли ошибка к ошибкам пользовательского ввода.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrFieldRequired) || errors.Is(err, ErrEmailInvalid) || errors.Is(err, ErrFormInvalid)
}
