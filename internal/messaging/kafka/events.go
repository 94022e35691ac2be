package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/invfetch/internal/domain"
)

// Topics для событий инвентаря.
const (
	TopicInventoryEvents = "invfetch.inventory.events"
	TopicDeadLetterQueue = "invfetch.inventory.dlq"
)

// Kafka headers, которые проставляет паблишер.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOriginalTopic = "x-original-topic"
	HeaderFailedAt      = "x-failed-at"
)

// Envelope: value сообщения, в которое заворачивается outbox-запись.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope строит конверт из outbox-сообщения.
func NewEnvelope(msg domain.OutboxMessage, publishedAt time.Time) Envelope {
	env := Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		PublishedAt:   publishedAt.UTC(),
	}
	if len(msg.Payload) > 0 {
		env.Payload = json.RawMessage(msg.Payload)
	}
	return env
}

// ParseEnvelope разбирает value сообщения из topic событий или DLQ.
func ParseEnvelope(value []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return env, nil
}

// messageKey: ключ партиционирования: все события заказа попадают в одну партицию.
func messageKey(msg domain.OutboxMessage) string {
	if msg.AggregateID != "" {
		return msg.AggregateID
	}
	return msg.ID
}
