package contracts

import (
	"context"
)

// AMQPMessage represents a message to be published to AMQP
type AMQPMessage struct {
	Exchange   string                 `json:"exchange"`
	RoutingKey string                 `json:"routing_key"`
	Body       []byte                 `json:"body"`
	Headers    map[string]interface{} `json:"headers,omitempty"`
}

// AMQPClient defines the interface for AMQP operations
type AMQPClient interface {
	// Publish publishes a message to the specified exchange
	Publish(ctx context.Context, message AMQPMessage) error

	// Close closes the AMQP connection
	Close() error
}

// Exchange names
const (
	ShipmentsExchange = "shipments.events"
)

// Routing keys
const (
	SessionChangedKey        = "shipments.session.changed"
	StatusUpdateSubmittedKey = "shipments.status.submitted"
	ShipmentsRefreshedKey    = "shipments.store.refreshed"
)
