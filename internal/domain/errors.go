package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// Ошибка отсутствующего SKU в запросе перехода.
	ErrSKURequired = errors.New("sku is required")
	// Ошибка отрицательного количества единиц в запросе.
	ErrItemQtyInvalid = errors.New("item qty must be non-negative")
	// Ошибка неизвестного состояния единицы инвентаря.
	ErrUnitStateInvalid = errors.New("unit state is invalid")
	// Ошибка перехода из состояния в то же самое состояние.
	ErrSameState = errors.New("from and to states must differ")
	// ErrInvalidTransitionRequest объединяет ошибки валидации запроса перехода.
	ErrInvalidTransitionRequest = errors.New("invalid transition request")

	// ErrNoMatchingUnit возвращается хранилищем, если под фильтр не попала ни одна единица.
	ErrNoMatchingUnit = errors.New("no matching inventory unit")
	// ErrUnitNotFound возвращается, если единица с указанным ID отсутствует.
	ErrUnitNotFound = errors.New("inventory unit not found")
	// ErrUnitAlreadyExists возвращается при повторном добавлении единицы с тем же ID.
	ErrUnitAlreadyExists = errors.New("inventory unit already exists")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")

	// ErrOutOfStock: для SKU не нашлось доступной единицы в исходном состоянии.
	ErrOutOfStock = errors.New("inventory out of stock")
	// ErrStoreUnavailable: сбой самого хранилища (сеть, конфликт, таймаут).
	ErrStoreUnavailable = errors.New("inventory store unavailable")
	// ErrTransitionFailed: единственная ошибка, которую видит вызывающий после компенсации.
	ErrTransitionFailed = errors.New("inventory transition failed")
	// ErrCompensationIncomplete: часть компенсации не удалась, нужна ручная сверка.
	ErrCompensationIncomplete = errors.New("inventory compensation incomplete")

	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// TransitionError описывает проваленный переход вместе с итогом компенсации.
type TransitionError struct {
	OrderID  string
	SKU      string
	Cause    error
	Rollback RollbackReport
}

func (e *TransitionError) Error() string {
	var b strings.Builder
	b.WriteString(ErrTransitionFailed.Error())
	if e.OrderID != "" {
		fmt.Fprintf(&b, ": order %s", e.OrderID)
	}
	if e.SKU != "" {
		fmt.Fprintf(&b, ", sku %s", e.SKU)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	if !e.Rollback.Clean() {
		fmt.Fprintf(&b, " (%v: %d units need reconciliation)", ErrCompensationIncomplete, len(e.Rollback.Failed))
	}
	return b.String()
}

// Unwrap позволяет проверять через errors.Is как общий провал, так и его причину.
func (e *TransitionError) Unwrap() []error {
	errs := []error{ErrTransitionFailed}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	if !e.Rollback.Clean() {
		errs = append(errs, ErrCompensationIncomplete)
	}
	return errs
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsOutOfStock проверяет, провалился ли переход из-за нехватки единиц.
func IsOutOfStock(err error) bool {
	return errors.Is(err, ErrOutOfStock)
}
