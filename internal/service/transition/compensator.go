package transition

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/invfetch/internal/domain"
)

// Compensator откатывает уже захваченные единицы и отвязывает их от заказа.
type Compensator struct {
	units  domain.UnitStore
	orders domain.OrderItemStore
	retry  RetryConfig
	logger *log.Entry
}

// NewCompensator создаёт компенсатор поверх тех же хранилищ, что и Service.
func NewCompensator(units domain.UnitStore, orders domain.OrderItemStore, cfg RetryConfig, logger *log.Entry) *Compensator {
	if logger == nil {
		logger = log.New().WithField("component", "compensator")
	}
	return &Compensator{
		units:  units,
		orders: orders,
		retry:  cfg.normalized(),
		logger: logger,
	}
}

// Rollback отвязывает unitIDs от заказа одним RemoveItemIDs и затем откатывает
// каждую единицу из to в from. Ошибки не возвращаются, а попадают в отчёт.
func (c *Compensator) Rollback(ctx context.Context, orderID string, unitIDs []string, from, to domain.UnitState) domain.RollbackReport {
	report := domain.RollbackReport{OrderID: orderID}
	logger := c.logger.WithField("order_id", orderID)

	if len(unitIDs) > 0 && c.orders != nil {
		err := retry(ctx, c.retry, func() error {
			return c.orders.RemoveItemIDs(ctx, orderID, unitIDs)
		})
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrOrderNotFound):
			// Заказа нет, значит и отвязывать нечего.
			logger.Debug("order missing, detach skipped")
		default:
			report.DetachErr = err
			logger.WithError(err).WithField("units", len(unitIDs)).Error("detach units from order failed")
		}
	}

	c.revertAll(ctx, unitIDs, from, to, &report)
	return report
}

// RevertUnits откатывает единицы без изменения заказа.
func (c *Compensator) RevertUnits(ctx context.Context, unitIDs []string, from, to domain.UnitState) domain.RollbackReport {
	var report domain.RollbackReport
	c.revertAll(ctx, unitIDs, from, to, &report)
	return report
}

func (c *Compensator) revertAll(ctx context.Context, unitIDs []string, from, to domain.UnitState, report *domain.RollbackReport) {
	for _, id := range unitIDs {
		var reverted bool
		err := retry(ctx, c.retry, func() error {
			var revertErr error
			reverted, revertErr = c.units.Revert(ctx, id, to, from)
			return revertErr
		})

		logger := c.logger.WithFields(log.Fields{
			"unit_id": id,
			"from":    to,
			"to":      from,
		})
		switch {
		case err != nil:
			report.Failed = append(report.Failed, id)
			logger.WithError(err).Error("revert unit failed")
		case reverted:
			report.Reverted = append(report.Reverted, id)
		default:
			// Единица уже ушла из to: её судьбой распоряжается кто-то другой.
			report.Skipped = append(report.Skipped, id)
			logger.Debug("unit no longer in target state, revert skipped")
		}
	}
}
