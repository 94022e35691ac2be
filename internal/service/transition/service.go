package transition

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/invfetch/internal/domain"
	"github.com/vladislavdragonenkov/invfetch/internal/metrics"
)

const (
	tracerName                 = "github.com/vladislavdragonenkov/invfetch/internal/service/transition"
	defaultCompensationTimeout = 10 * time.Second
)

// ServiceOptions задаёт необязательные зависимости Service.
type ServiceOptions struct {
	Logger              *log.Entry
	Metrics             *metrics.TransitionMetrics
	Outbox              domain.OutboxRepository
	Timeline            domain.TimelineRepository
	Tracer              trace.Tracer
	Retry               RetryConfig
	CompensationTimeout time.Duration
}

// Option настраивает Service.
type Option func(*ServiceOptions)

// WithLogger задаёт logger сервиса и компенсатора.
func WithLogger(logger *log.Entry) Option {
	return func(opts *ServiceOptions) {
		opts.Logger = logger
	}
}

// WithMetrics включает prometheus-метрики переходов.
func WithMetrics(m *metrics.TransitionMetrics) Option {
	return func(opts *ServiceOptions) {
		opts.Metrics = m
	}
}

// WithOutbox задаёт outbox для событий перехода.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(opts *ServiceOptions) {
		opts.Outbox = outbox
	}
}

// WithTimeline задаёт timeline заказа.
func WithTimeline(timeline domain.TimelineRepository) Option {
	return func(opts *ServiceOptions) {
		opts.Timeline = timeline
	}
}

// WithTracer задаёт tracer; по умолчанию берётся глобальный provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(opts *ServiceOptions) {
		opts.Tracer = tracer
	}
}

// WithRetryConfig задаёт политику повторов откатов.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(opts *ServiceOptions) {
		opts.Retry = cfg
	}
}

// WithCompensationTimeout ограничивает время компенсации.
func WithCompensationTimeout(timeout time.Duration) Option {
	return func(opts *ServiceOptions) {
		opts.CompensationTimeout = timeout
	}
}

// Service переводит единицы инвентаря между состояниями и привязывает их к заказу.
// Либо переходят все запрошенные единицы, либо состояние откатывается компенсацией.
type Service struct {
	units               domain.UnitStore
	orders              domain.OrderItemStore
	compensator         *Compensator
	outbox              domain.OutboxRepository
	timeline            domain.TimelineRepository
	metrics             *metrics.TransitionMetrics
	tracer              trace.Tracer
	logger              *log.Entry
	compensationTimeout time.Duration
	now                 func() time.Time
}

// Запрос может превышать остаток на порядки, память под захваченные ID растёт по факту.
const maxClaimPrealloc = 64

// NewService создаёт сервис переходов.
func NewService(units domain.UnitStore, orders domain.OrderItemStore, options ...Option) *Service {
	opts := ServiceOptions{
		Retry:               DefaultRetryConfig(),
		CompensationTimeout: defaultCompensationTimeout,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New().WithField("component", "transition")
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	if opts.CompensationTimeout <= 0 {
		opts.CompensationTimeout = defaultCompensationTimeout
	}

	return &Service{
		units:               units,
		orders:              orders,
		compensator:         NewCompensator(units, orders, opts.Retry, logger.WithField("component", "compensator")),
		outbox:              opts.Outbox,
		timeline:            opts.Timeline,
		metrics:             opts.Metrics,
		tracer:              tracer,
		logger:              logger,
		compensationTimeout: opts.CompensationTimeout,
		now:                 func() time.Time { return time.Now().UTC() },
	}
}

// AddToCart переводит единицы из available в cart.
func (s *Service) AddToCart(ctx context.Context, orderID string, items ...domain.ItemRequest) (int, error) {
	return s.Transition(ctx, domain.TransitionRequest{
		OrderID: orderID,
		Items:   items,
		From:    domain.UnitStateAvailable,
		To:      domain.UnitStateCart,
	})
}

// Transition захватывает по одной единице на каждую запрошенную штуку, затем одним
// вызовом привязывает их к заказу. Возвращает число переведённых единиц.
// При любой ошибке уже захваченные единицы откатываются, а вызывающий получает *domain.TransitionError.
func (s *Service) Transition(ctx context.Context, req domain.TransitionRequest) (int, error) {
	if err := req.Err(); err != nil {
		return 0, err
	}
	total := req.Total()
	if total == 0 {
		return 0, nil
	}

	ctx, span := s.tracer.Start(ctx, "transition.Transition", trace.WithAttributes(
		attribute.String("order.id", req.OrderID),
		attribute.String("inventory.from", string(req.From)),
		attribute.String("inventory.to", string(req.To)),
		attribute.Int64("inventory.units", total),
	))
	defer span.End()

	started := s.now()
	if s.metrics != nil {
		s.metrics.RecordTransitionStarted()
	}
	logger := s.logger.WithFields(log.Fields{
		"order_id": req.OrderID,
		"from":     req.From,
		"to":       req.To,
	})

	claimed := make([]string, 0, min(total, maxClaimPrealloc))
	for filter := range req.Units() {
		id, err := s.claim(ctx, filter, req.To)
		if err != nil {
			cause := claimCause(err)
			logger.WithError(err).WithFields(log.Fields{
				"sku":     filter.SKU,
				"claimed": len(claimed),
			}).Warn("claim failed, reverting claimed units")

			report := s.compensate(ctx, req.OrderID, func(cctx context.Context) domain.RollbackReport {
				return s.compensator.RevertUnits(cctx, claimed, req.From, req.To)
			})
			return 0, s.fail(span, req, filter.SKU, cause, report, started)
		}
		claimed = append(claimed, id)
	}

	if err := s.attach(ctx, req.OrderID, claimed); err != nil {
		cause := fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		if errors.Is(err, domain.ErrOrderNotFound) {
			cause = err
		}
		logger.WithError(err).WithField("units", len(claimed)).Warn("attach units to order failed, rolling back")

		report := s.compensate(ctx, req.OrderID, func(cctx context.Context) domain.RollbackReport {
			return s.compensator.Rollback(cctx, req.OrderID, claimed, req.From, req.To)
		})
		return 0, s.fail(span, req, "", cause, report, started)
	}

	if s.metrics != nil {
		s.metrics.RecordTransitionCompleted(len(claimed), s.now().Sub(started))
	}
	s.emitEvent(req.OrderID, EventInventoryTransitioned, map[string]interface{}{
		"from":     string(req.From),
		"to":       string(req.To),
		"unit_ids": claimed,
	})
	logger.WithField("units", len(claimed)).Info("inventory transition completed")
	span.SetStatus(codes.Ok, "")
	return len(claimed), nil
}

func (s *Service) claim(ctx context.Context, filter domain.UnitFilter, to domain.UnitState) (string, error) {
	ctx, span := s.tracer.Start(ctx, "transition.Claim", trace.WithAttributes(
		attribute.String("inventory.sku", filter.SKU),
		attribute.String("inventory.state", string(filter.State)),
	))
	defer span.End()

	id, err := s.units.Advance(ctx, filter, to)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.String("inventory.unit_id", id))
	return id, nil
}

func (s *Service) attach(ctx context.Context, orderID string, ids []string) error {
	ctx, span := s.tracer.Start(ctx, "transition.Attach", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.Int("inventory.units", len(ids)),
	))
	defer span.End()

	if err := s.orders.AppendItemIDs(ctx, orderID, ids); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// compensate выполняет откат вне отмены вызывающего, но с собственным таймаутом.
func (s *Service) compensate(ctx context.Context, orderID string, fn func(context.Context) domain.RollbackReport) domain.RollbackReport {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.compensationTimeout)
	defer cancel()

	cctx, span := s.tracer.Start(cctx, "transition.Rollback", trace.WithAttributes(
		attribute.String("order.id", orderID),
	))
	defer span.End()

	report := fn(cctx)
	report.OrderID = orderID

	span.SetAttributes(
		attribute.Int("rollback.reverted", len(report.Reverted)),
		attribute.Int("rollback.skipped", len(report.Skipped)),
		attribute.Int("rollback.failed", len(report.Failed)),
	)
	if !report.Clean() {
		span.SetStatus(codes.Error, domain.ErrCompensationIncomplete.Error())
	}
	if s.metrics != nil {
		s.metrics.RecordRollback(len(report.Reverted), len(report.Skipped), len(report.Failed), report.Clean())
	}
	return report
}

func (s *Service) fail(span trace.Span, req domain.TransitionRequest, sku string, cause error, report domain.RollbackReport, started time.Time) error {
	terr := &domain.TransitionError{
		OrderID:  req.OrderID,
		SKU:      sku,
		Cause:    cause,
		Rollback: report,
	}
	span.RecordError(terr)
	span.SetStatus(codes.Error, terr.Error())

	if s.metrics != nil {
		s.metrics.RecordTransitionFailed(failureLabel(cause), s.now().Sub(started))
	}

	s.emitEvent(req.OrderID, EventInventoryTransitionFailed, map[string]interface{}{
		"from":     string(req.From),
		"to":       string(req.To),
		"sku":      sku,
		"reason":   cause.Error(),
		"reverted": len(report.Reverted),
		"skipped":  len(report.Skipped),
	})

	if !report.Clean() {
		payload := map[string]interface{}{
			"reason":          domain.ErrCompensationIncomplete.Error(),
			"failed_unit_ids": report.Failed,
		}
		if report.DetachErr != nil {
			payload["detach_error"] = report.DetachErr.Error()
		}
		s.emitEvent(req.OrderID, EventCompensationIncomplete, payload)
		s.logger.WithFields(log.Fields{
			"order_id":     req.OrderID,
			"failed_units": report.Failed,
			"detach_error": report.DetachErr,
		}).Error("inventory compensation incomplete, manual reconciliation required")
	}
	return terr
}

// claimCause отделяет нехватку единиц от сбоев хранилища.
func claimCause(err error) error {
	if errors.Is(err, domain.ErrNoMatchingUnit) {
		return fmt.Errorf("%w: %w", domain.ErrOutOfStock, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}

func failureLabel(cause error) string {
	switch {
	case errors.Is(cause, domain.ErrOutOfStock):
		return metrics.CauseOutOfStock
	case errors.Is(cause, domain.ErrOrderNotFound):
		return metrics.CauseOrderNotFound
	default:
		return metrics.CauseStoreUnavailable
	}
}
