package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/domain"
	"github.com/quangdang46/shipment-tracker/shared/contracts"
	"github.com/quangdang46/shipment-tracker/shared/logging"
)

const serviceName = "tracking-service"

// EventPublisher publishes tracking domain events to AMQP
type EventPublisher struct {
	amqp   contracts.AMQPClient
	logger *logging.Logger
}

func NewEventPublisher(amqp contracts.AMQPClient, logger *logging.Logger) *EventPublisher {
	if logger == nil {
		logger = logging.Nop()
	}
	return &EventPublisher{amqp: amqp, logger: logger.WithField("component", "event_publisher")}
}

func (p *EventPublisher) publish(ctx context.Context, routingKey, eventType, schema string, payload map[string]interface{}) error {
	if p.amqp == nil {
		// AMQP is optional in development
		p.logger.WithField("event_type", eventType).Debug("AMQP not available, skipping event")
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	return p.amqp.Publish(ctx, contracts.AMQPMessage{
		Exchange:   contracts.ShipmentsExchange,
		RoutingKey: routingKey,
		Body:       body,
		Headers: map[string]interface{}{
			"event_type":   eventType,
			"schema":       schema,
			"published_at": time.Now().Format(time.RFC3339),
			"service":      serviceName,
		},
	})
}

// PublishSessionChanged publishes a shipments.session.changed event on every session transition
func (p *EventPublisher) PublishSessionChanged(ctx context.Context, event *domain.SessionChangedEvent) error {
	payload := map[string]interface{}{
		"account":    event.Account,
		"state":      event.State,
		"chain_id":   event.ChainID,
		"changed_at": event.ChangedAt.Format(time.RFC3339),
	}
	if event.Error != "" {
		payload["error"] = event.Error
	}
	return p.publish(ctx, contracts.SessionChangedKey, "session.changed", "shipments.session_changed.v1", payload)
}

// PublishStatusUpdateSubmitted publishes a shipments.status.submitted event after a write is accepted
func (p *EventPublisher) PublishStatusUpdateSubmitted(ctx context.Context, event *domain.StatusUpdateSubmittedEvent) error {
	payload := map[string]interface{}{
		"account":      event.Account,
		"shipment_id":  event.ShipmentID,
		"status":       event.Status.String(),
		"status_code":  uint8(event.Status),
		"tx_hash":      event.TxHash,
		"submitted_at": event.SubmittedAt.Format(time.RFC3339),
	}
	return p.publish(ctx, contracts.StatusUpdateSubmittedKey, "status.submitted", "shipments.status_submitted.v1", payload)
}

// PublishShipmentsRefreshed publishes a shipments.store.refreshed event after a refresh commits
func (p *EventPublisher) PublishShipmentsRefreshed(ctx context.Context, event *domain.ShipmentsRefreshedEvent) error {
	payload := map[string]interface{}{
		"account":      event.Account,
		"count":        event.Count,
		"alerts":       event.Alerts,
		"refreshed_at": event.RefreshedAt.Format(time.RFC3339),
	}
	return p.publish(ctx, contracts.ShipmentsRefreshedKey, "store.refreshed", "shipments.store_refreshed.v1", payload)
}
