package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/invfetch/internal/domain"
	"github.com/vladislavdragonenkov/invfetch/internal/metrics"
)

func newTestWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, opts ...Option) *Worker {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)

	base := []Option{
		WithLogger(logger.WithField("component", "outbox-worker-test")),
		WithMetrics(metrics.NewOutboxMetricsWithRegisterer(prometheus.NewRegistry())),
		WithRetryDelay(0, 0),
	}
	return NewWorker(repo, publisher, append(base, opts...)...)
}

func transitionedEvent(id string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: "order",
		AggregateID:   "order-" + id,
		EventType:     "InventoryTransitioned",
		Payload:       []byte(`{"units":2}`),
	}
}

func TestWorker_ProcessOnce_MarkSent(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{transitionedEvent("msg-1")}}
	publisher := &stubPublisher{}

	res := newTestWorker(repo, publisher, WithMaxAttempts(3)).ProcessOnce(context.Background())

	if res != (BatchResult{Pulled: 1, Sent: 1}) {
		t.Fatalf("unexpected batch result: %+v", res)
	}
	if got := repo.sent(); len(got) != 1 || got[0] != "msg-1" {
		t.Fatalf("expected msg-1 to be marked sent, got %v", got)
	}
	if got := publisher.calls(); got != 1 {
		t.Fatalf("expected 1 publish call, got %d", got)
	}
}

func TestWorker_ProcessOnce_MarkFailedAndDLQAfterRetries(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{transitionedEvent("msg-2")}}
	publisher := &stubPublisher{err: errors.New("broker down")}
	dlq := &stubPublisher{}

	res := newTestWorker(repo, publisher, WithDLQPublisher(dlq), WithMaxAttempts(3)).ProcessOnce(context.Background())

	if res != (BatchResult{Pulled: 1, Failed: 1}) {
		t.Fatalf("unexpected batch result: %+v", res)
	}
	if got := publisher.calls(); got != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", got)
	}
	if got := repo.failed(); len(got) != 1 || got[0] != "msg-2" {
		t.Fatalf("expected msg-2 to be marked failed, got %v", got)
	}
	if got := dlq.calls(); got != 1 {
		t.Fatalf("expected 1 DLQ publish, got %d", got)
	}

	dead := dlq.last()
	if dead.ID != "msg-2" || dead.EventType != "InventoryTransitioned" {
		t.Fatalf("DLQ message must keep identity of the event, got %+v", dead)
	}
	var body map[string]any
	if err := json.Unmarshal(dead.Payload, &body); err != nil {
		t.Fatalf("DLQ payload is not json: %v", err)
	}
	if body["publish_error"] == "" || body["attempts"] != float64(3) {
		t.Fatalf("DLQ payload misses delivery details: %v", body)
	}
}

func TestWorker_ProcessOnce_SuccessAfterRetry(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{transitionedEvent("msg-3")}}
	publisher := &stubPublisher{sequenceErrors: []error{errors.New("attempt 1"), errors.New("attempt 2"), nil}}

	res := newTestWorker(repo, publisher, WithMaxAttempts(3)).ProcessOnce(context.Background())

	if res.Sent != 1 || res.Failed != 0 {
		t.Fatalf("unexpected batch result: %+v", res)
	}
	if got := publisher.calls(); got != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", got)
	}
}

func TestWorker_ProcessOnce_PullError(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pullErr: errors.New("db down")}
	publisher := &stubPublisher{}

	res := newTestWorker(repo, publisher).ProcessOnce(context.Background())
	if res != (BatchResult{}) {
		t.Fatalf("expected empty result, got %+v", res)
	}
	if publisher.calls() != 0 {
		t.Fatal("nothing must be published when pull fails")
	}
}

func TestWorker_ProcessOnce_CanceledContext(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{transitionedEvent("msg-4")}}
	publisher := &stubPublisher{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newTestWorker(repo, publisher).ProcessOnce(ctx)
	if res.Pulled != 0 || publisher.calls() != 0 {
		t.Fatalf("canceled worker must not touch outbox, got %+v", res)
	}
}

func TestWorker_NextDelay(t *testing.T) {
	t.Parallel()

	w := newTestWorker(&stubOutboxRepo{}, &stubPublisher{}, WithRetryDelay(10*time.Millisecond, 35*time.Millisecond))

	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{in: 10 * time.Millisecond, want: 20 * time.Millisecond},
		{in: 20 * time.Millisecond, want: 35 * time.Millisecond},
		{in: 35 * time.Millisecond, want: 35 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := w.nextDelay(tt.in); got != tt.want {
			t.Errorf("nextDelay(%s): want %s, got %s", tt.in, tt.want, got)
		}
	}
}

func TestNewWorker_NormalizesOptions(t *testing.T) {
	t.Parallel()

	w := newTestWorker(&stubOutboxRepo{}, &stubPublisher{},
		WithPollInterval(-1),
		WithBatchSize(0),
		WithMaxAttempts(-5),
		WithRetryDelay(time.Second, time.Millisecond),
	)

	if w.pollInterval != defaultPollInterval || w.batchSize != defaultBatchSize || w.maxAttempts != defaultMaxAttempts {
		t.Fatalf("defaults were not applied: %+v", w)
	}
	if w.maxRetryDelay != time.Second {
		t.Fatalf("max retry delay must not be below the initial delay, got %s", w.maxRetryDelay)
	}
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	worker := newTestWorker(&stubOutboxRepo{}, &stubPublisher{}, WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestWorker_Run_DisabledWithoutPublisher(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		newTestWorker(&stubOutboxRepo{}, nil).Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker without publisher must return immediately")
	}
}

type stubOutboxRepo struct {
	mu        sync.Mutex
	pending   []domain.OutboxMessage
	pullErr   error
	sentIDs   []string
	failedIDs []string
}

func (s *stubOutboxRepo) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	return msg, nil
}

func (s *stubOutboxRepo) PullPending(limit int) ([]domain.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pullErr != nil {
		return nil, s.pullErr
	}
	if limit <= 0 || limit >= len(s.pending) {
		return append([]domain.OutboxMessage(nil), s.pending...), nil
	}
	return append([]domain.OutboxMessage(nil), s.pending[:limit]...), nil
}

func (s *stubOutboxRepo) Stats() (domain.OutboxStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := domain.OutboxStats{PendingCount: len(s.pending)}
	if len(s.pending) > 0 {
		stats.OldestPendingAt = time.Now().UTC().Add(-time.Second)
	}
	return stats, nil
}

func (s *stubOutboxRepo) MarkSent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sentIDs = append(s.sentIDs, id)
	return nil
}

func (s *stubOutboxRepo) MarkFailed(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedIDs = append(s.failedIDs, id)
	return nil
}

func (s *stubOutboxRepo) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sentIDs...)
}

func (s *stubOutboxRepo) failed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.failedIDs...)
}

type stubPublisher struct {
	mu             sync.Mutex
	err            error
	sequenceErrors []error
	published      []domain.OutboxMessage
}

func (s *stubPublisher) Publish(event domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.published = append(s.published, event)
	if len(s.sequenceErrors) > 0 {
		err := s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
		return err
	}
	return s.err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}

func (s *stubPublisher) last() domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published[len(s.published)-1]
}

var _ domain.OutboxRepository = (*stubOutboxRepo)(nil)
var _ domain.OutboxPublisher = (*stubPublisher)(nil)
