package domain

import (
	"errors"
	"iter"
)

// ItemRequest: запрос на Qty взаимозаменяемых единиц одного SKU.
type ItemRequest struct {
	SKU string
	Qty int32
}

// TransitionRequest описывает перевод набора единиц из From в To под заказ OrderID.
type TransitionRequest struct {
	OrderID string
	Items   []ItemRequest
	From    UnitState
	To      UnitState
}

// Validate проверяет запрос и возвращает список замечаний.
func (r TransitionRequest) Validate() []error {
	var errs []error

	if r.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if !r.From.Valid() || !r.To.Valid() {
		errs = append(errs, ErrUnitStateInvalid)
	} else if r.From == r.To {
		errs = append(errs, ErrSameState)
	}
	for _, item := range r.Items {
		if item.SKU == "" {
			errs = append(errs, ErrSKURequired)
		}
		if item.Qty < 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
	}

	return errs
}

// Err сворачивает ошибки Validate в одну, пригодную для errors.Is.
func (r TransitionRequest) Err() error {
	errs := r.Validate()
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(append([]error{ErrInvalidTransitionRequest}, errs...)...)
}

// Total возвращает суммарное число запрошенных единиц.
func (r TransitionRequest) Total() int64 {
	var total int64
	for _, item := range r.Items {
		if item.Qty > 0 {
			total += int64(item.Qty)
		}
	}
	return total
}

// Units лениво перечисляет по одному фильтру на каждую физическую единицу
// в порядке позиций запроса. Число шагов ограничено только запрошенным Qty,
// поэтому вызывающий должен прерывать обход на первой ошибке.
func (r TransitionRequest) Units() iter.Seq[UnitFilter] {
	return func(yield func(UnitFilter) bool) {
		for _, item := range r.Items {
			filter := UnitFilter{SKU: item.SKU, State: r.From}
			for i := int32(0); i < item.Qty; i++ {
				if !yield(filter) {
					return
				}
			}
		}
	}
}

// RollbackReport: итог компенсации по каждой ранее захваченной единице.
type RollbackReport struct {
	OrderID string
	// Reverted: единицы, возвращённые в исходное состояние.
	Reverted []string
	// Skipped: единицы, которые уже ушли из целевого состояния; их не трогаем.
	Skipped []string
	// Failed: единицы, откат которых не удался; требуют сверки.
	Failed []string
	// DetachErr: ошибка отвязки единиц от заказа, если она была.
	DetachErr error
}

// Clean сообщает, что компенсация прошла без расхождений.
func (r RollbackReport) Clean() bool {
	return len(r.Failed) == 0 && r.DetachErr == nil
}
