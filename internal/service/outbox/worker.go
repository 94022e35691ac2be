package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/invfetch/internal/domain"
	"github.com/vladislavdragonenkov/invfetch/internal/metrics"
)

const (
	defaultPollInterval  = time.Second
	defaultBatchSize     = 100
	defaultMaxAttempts   = 3
	defaultRetryDelay    = 50 * time.Millisecond
	defaultMaxRetryDelay = 2 * time.Second
)

// WorkerOptions задаёт параметры relay.
type WorkerOptions struct {
	Logger        *log.Entry
	Metrics       *metrics.OutboxMetrics
	DLQPublisher  domain.OutboxPublisher
	PollInterval  time.Duration
	BatchSize     int
	MaxAttempts   int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) {
		opts.Logger = logger
	}
}

// WithMetrics задаёт метрики; без опции используются метрики из DefaultRegisterer.
func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(opts *WorkerOptions) {
		opts.Metrics = m
	}
}

// WithDLQPublisher задаёт publisher для сообщений, исчерпавших попытки.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(opts *WorkerOptions) {
		opts.DLQPublisher = publisher
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.PollInterval = interval
	}
}

func WithBatchSize(batchSize int) Option {
	return func(opts *WorkerOptions) {
		opts.BatchSize = batchSize
	}
}

func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *WorkerOptions) {
		opts.MaxAttempts = maxAttempts
	}
}

// WithRetryDelay задаёт первую паузу между попытками; дальше она удваивается до MaxRetryDelay.
func WithRetryDelay(delay, maxDelay time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.RetryDelay = delay
		opts.MaxRetryDelay = maxDelay
	}
}

// BatchResult: итог одного прохода по outbox.
type BatchResult struct {
	Pulled int
	Sent   int
	Failed int
}

// Worker переносит события переходов инвентаря из outbox в брокер.
type Worker struct {
	repo          domain.OutboxRepository
	publisher     domain.OutboxPublisher
	dlqPublisher  domain.OutboxPublisher
	metrics       *metrics.OutboxMetrics
	logger        *log.Entry
	pollInterval  time.Duration
	batchSize     int
	maxAttempts   int
	retryDelay    time.Duration
	maxRetryDelay time.Duration
	now           func() time.Time
}

// NewWorker создаёт relay.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval:  defaultPollInterval,
		BatchSize:     defaultBatchSize,
		MaxAttempts:   defaultMaxAttempts,
		RetryDelay:    defaultRetryDelay,
		MaxRetryDelay: defaultMaxRetryDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = log.New().WithField("component", "outbox-worker")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewOutboxMetrics()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if opts.MaxRetryDelay < opts.RetryDelay {
		opts.MaxRetryDelay = opts.RetryDelay
	}

	return &Worker{
		repo:          repo,
		publisher:     publisher,
		dlqPublisher:  opts.DLQPublisher,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		pollInterval:  opts.PollInterval,
		batchSize:     opts.BatchSize,
		maxAttempts:   opts.MaxAttempts,
		retryDelay:    opts.RetryDelay,
		maxRetryDelay: opts.MaxRetryDelay,
		now:           time.Now,
	}
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		res := w.ProcessOnce(ctx)
		if res.Pulled > 0 {
			w.logger.WithFields(log.Fields{
				"pulled": res.Pulled,
				"sent":   res.Sent,
				"failed": res.Failed,
			}).Debug("outbox batch relayed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce переносит один батч pending-сообщений.
func (w *Worker) ProcessOnce(ctx context.Context) BatchResult {
	var res BatchResult
	if ctx.Err() != nil {
		return res
	}

	started := w.now()
	defer func() {
		w.metrics.ObserveBatch(w.now().Sub(started))
		w.refreshBacklog()
	}()

	events, err := w.repo.PullPending(w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return res
	}
	res.Pulled = len(events)

	for _, event := range events {
		if ctx.Err() != nil {
			return res
		}

		logger := w.logger.WithFields(log.Fields{
			"outbox_id":  event.ID,
			"order_id":   event.AggregateID,
			"event_type": event.EventType,
		})

		if err := w.publishWithRetry(ctx, event); err != nil {
			if ctx.Err() != nil {
				// Остановка: сообщение останется pending до следующего запуска.
				return res
			}
			res.Failed++
			logger.WithError(err).Error("outbox publish failed after retries")
			w.metrics.RecordPublish(metrics.PublishFailed)
			w.deadLetter(logger, event, err)
			if markErr := w.repo.MarkFailed(event.ID); markErr != nil {
				logger.WithError(markErr).Warn("failed to mark outbox as failed")
			}
			continue
		}

		res.Sent++
		if err := w.repo.MarkSent(event.ID); err != nil {
			logger.WithError(err).Warn("failed to mark outbox as sent")
		}
	}
	return res
}

func (w *Worker) publishWithRetry(ctx context.Context, event domain.OutboxMessage) error {
	var lastErr error
	delay := w.retryDelay

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		err := w.publisher.Publish(event)
		if err == nil {
			w.metrics.RecordPublish(metrics.PublishSent)
			return nil
		}
		lastErr = err
		w.metrics.RecordPublish(metrics.PublishRetryError)

		if attempt == w.maxAttempts || delay <= 0 {
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = w.nextDelay(delay)
	}

	return fmt.Errorf("%w after %d attempts: %w", domain.ErrOutboxPublish, w.maxAttempts, lastErr)
}

func (w *Worker) nextDelay(delay time.Duration) time.Duration {
	if delay >= w.maxRetryDelay/2 {
		return w.maxRetryDelay
	}
	return delay * 2
}

func (w *Worker) refreshBacklog() {
	stats, err := w.repo.Stats()
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	var age time.Duration
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = w.now().Sub(stats.OldestPendingAt)
	}
	w.metrics.SetBacklog(stats.PendingCount, age)
}

// deadLetter отправляет в DLQ исходное событие вместе с последней ошибкой доставки.
func (w *Worker) deadLetter(logger *log.Entry, event domain.OutboxMessage, publishErr error) {
	if w.dlqPublisher == nil {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"outbox_id":     event.ID,
		"payload":       json.RawMessage(nonEmpty(event.Payload)),
		"publish_error": publishErr.Error(),
		"attempts":      w.maxAttempts,
	})
	if err != nil {
		logger.WithError(err).Warn("failed to marshal dlq payload")
		w.metrics.RecordPublish(metrics.PublishDLQFailed)
		return
	}

	dead := event
	dead.Payload = payload
	if err := w.dlqPublisher.Publish(dead); err != nil {
		logger.WithError(err).Warn("failed to publish to DLQ")
		w.metrics.RecordPublish(metrics.PublishDLQFailed)
		return
	}
	w.metrics.RecordPublish(metrics.PublishDLQ)
}

func nonEmpty(payload []byte) []byte {
	if len(payload) == 0 {
		return []byte("null")
	}
	return payload
}
