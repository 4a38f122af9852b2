package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/quangdang46/shipment-tracker/shared/contracts"
)

// RabbitMQConfig holds the configuration for RabbitMQ
type RabbitMQConfig struct {
	RabbitMQHost     string `json:"rabbitmq_host"`
	RabbitMQPort     int    `json:"rabbitmq_port"`
	RabbitMQUser     string `json:"rabbitmq_user"`
	RabbitMQPassword string `json:"-"`
	RabbitMQExchange string `json:"rabbitmq_exchange"`
}

// Enabled reports whether a broker is configured
func (c RabbitMQConfig) Enabled() bool {
	return c.RabbitMQHost != ""
}

// RabbitMQ wraps the AMQP connection and provides publishing
type RabbitMQ struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	config  RabbitMQConfig
	closed  bool
}

// NewRabbitMQ connects and declares the configured topic exchange
func NewRabbitMQ(config RabbitMQConfig) (*RabbitMQ, error) {
	if config.RabbitMQExchange == "" {
		config.RabbitMQExchange = contracts.ShipmentsExchange
	}

	rmq := &RabbitMQ{config: config}
	if err := rmq.connect(); err != nil {
		return nil, err
	}
	return rmq, nil
}

// buildURL builds AMQP URL from config components
func (r *RabbitMQ) buildURL() string {
	scheme := "amqp"
	if r.config.RabbitMQPort == 5671 {
		scheme = "amqps"
	}
	return fmt.Sprintf("%s://%s:%s@%s:%d",
		scheme,
		r.config.RabbitMQUser,
		r.config.RabbitMQPassword,
		r.config.RabbitMQHost,
		r.config.RabbitMQPort,
	)
}

func (r *RabbitMQ) connect() error {
	conn, err := amqp.DialConfig(r.buildURL(), amqp.Config{
		Heartbeat: 10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	if err := ch.ExchangeDeclare(r.config.RabbitMQExchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", r.config.RabbitMQExchange, err)
	}

	r.conn = conn
	r.channel = ch
	r.closed = false
	return nil
}

// Publish publishes a message using the contracts.AMQPMessage interface
func (r *RabbitMQ) Publish(ctx context.Context, message contracts.AMQPMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("rabbitmq client is closed")
	}
	if r.conn == nil || r.conn.IsClosed() {
		if err := r.connect(); err != nil {
			return err
		}
	}

	exchange := message.Exchange
	if exchange == "" {
		exchange = r.config.RabbitMQExchange
	}

	return r.channel.PublishWithContext(
		ctx,
		exchange,
		message.RoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Headers:      amqp.Table(message.Headers),
			Body:         message.Body,
		},
	)
}

// Close closes the channel and connection
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
