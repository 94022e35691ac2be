package transition

import (
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/invfetch/internal/domain"
)

// Типы событий, которые сервис пишет в outbox и timeline заказа.
const (
	EventInventoryTransitioned     = "InventoryTransitioned"
	EventInventoryTransitionFailed = "InventoryTransitionFailed"
	EventCompensationIncomplete    = "CompensationIncomplete"
)

func (s *Service) emitEvent(orderID, eventType string, payload map[string]interface{}) {
	if s.outbox == nil && s.timeline == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]interface{})
	}
	occurred := s.now()
	payload["order_id"] = orderID
	payload["ts"] = occurred.Format(time.RFC3339Nano)

	logger := s.logger.WithFields(log.Fields{
		"order_id": orderID,
		"event":    eventType,
	})

	if s.outbox != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			logger.WithError(err).Error("marshal event failed")
		} else {
			msg := domain.OutboxMessage{
				AggregateType: "order",
				AggregateID:   orderID,
				EventType:     eventType,
				Payload:       data,
			}
			if _, err := s.outbox.Enqueue(msg); err != nil {
				logger.WithError(err).Error("enqueue event failed")
			}
		}
	}

	if s.timeline != nil {
		var reason string
		if r, ok := payload["reason"].(string); ok {
			reason = r
		}
		event := domain.TimelineEvent{
			OrderID:  orderID,
			Type:     eventType,
			Reason:   reason,
			Occurred: occurred,
		}
		if err := s.timeline.Append(event); err != nil {
			logger.WithError(err).Warn("append timeline event failed")
		}
	}
}
