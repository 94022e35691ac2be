package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/invfetch/internal/domain"
)

var errPublisherNotInitialized = errors.New("kafka outbox publisher is not initialized")

// OutboxTopicPublisher публикует outbox-сообщения в заданный topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	// source != "" означает DLQ: в заголовки пишется исходный topic.
	source string
}

// NewOutboxPublisher создаёт паблишер событий инвентаря.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicInventoryEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic}
}

// NewDLQPublisher создаёт паблишер для сообщений, исчерпавших попытки доставки в source.
func NewDLQPublisher(producer *Producer, topic, source string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicDeadLetterQueue
	}
	if source == "" {
		source = TopicInventoryEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic, source: source}
}

// Topic возвращает topic назначения.
func (p *OutboxTopicPublisher) Topic() string {
	return p.topic
}

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotInitialized
	}

	now := p.producer.now().UTC()
	value, err := json.Marshal(NewEnvelope(event, now))
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	headers := map[string]string{
		HeaderEventType:     event.EventType,
		HeaderAggregateType: event.AggregateType,
	}
	if p.source != "" {
		headers[HeaderOriginalTopic] = p.source
		headers[HeaderFailedAt] = now.Format(time.RFC3339Nano)
	}

	return p.producer.Publish(p.topic, messageKey(event), value, headers)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
