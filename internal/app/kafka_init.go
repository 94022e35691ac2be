package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/invfetch/internal/domain"
	"github.com/vladislavdragonenkov/invfetch/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/invfetch/internal/version"
)

// relayPublishers: куда outbox worker отправляет события.
type relayPublishers struct {
	producer *kafka.Producer
	events   domain.OutboxPublisher
	dlq      domain.OutboxPublisher
}

// initRelay подключает Kafka, если заданы брокеры. Без брокеров или при ошибке
// подключения события пишутся в лог, чтобы outbox не рос бесконечно.
func initRelay(cfg Config, logger *log.Entry) relayPublishers {
	fallback := relayPublishers{events: newLogPublisher(logger)}
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("kafka brokers are not configured, outbox events go to log")
		return fallback
	}

	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:  cfg.KafkaBrokers,
		ClientID: version.ClientID(cfg.TracingServiceName),
	}, logger.WithField("component", "kafka-producer"))
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return fallback
	}

	logger.WithFields(log.Fields{
		"brokers": cfg.KafkaBrokers,
		"topic":   cfg.KafkaTopic,
	}).Info("kafka producer initialized")

	relay := relayPublishers{
		producer: producer,
		events:   kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
	}
	if cfg.KafkaDLQTopic != "" {
		relay.dlq = kafka.NewDLQPublisher(producer, cfg.KafkaDLQTopic, cfg.KafkaTopic)
	}
	return relay
}

func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}

// logPublisher: publisher по умолчанию без брокера.
type logPublisher struct {
	logger *log.Entry
}

func newLogPublisher(logger *log.Entry) *logPublisher {
	return &logPublisher{logger: logger.WithField("component", "outbox-log-publisher")}
}

func (p *logPublisher) Publish(event domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"outbox_id":  event.ID,
		"order_id":   event.AggregateID,
		"event_type": event.EventType,
		"payload":    string(event.Payload),
	}).Info("outbox event")
	return nil
}

var _ domain.OutboxPublisher = (*logPublisher)(nil)
