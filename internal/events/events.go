// Package events publishes storefront domain events to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"storefront/internal/metrics"
)

const (
	OrderCreated       = "order.created"
	OrderStatusChanged = "order.status_changed"
	ReceiptSubmitted   = "receipt.submitted"
	ReceiptReviewed    = "receipt.reviewed"
)

// Event is the JSON envelope written to the exchange.
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurredAt"`
	Data       interface{} `json:"data"`
}

type Publisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
	Close() error
}

// Noop drops every event. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(_ context.Context, eventType string, _ interface{}) error {
	log.Printf("[EVENTS] [DEBUG] broker disabled, dropping %s", eventType)
	return nil
}

func (Noop) Close() error { return nil }

// Rabbit publishes persistent JSON messages to a topic exchange, routed by event type.
type Rabbit struct {
	conn     *amqp.Connection
	mu       sync.Mutex
	channel  *amqp.Channel
	exchange string
}

func NewRabbit(url, exchange string) (*Rabbit, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &Rabbit{conn: conn, channel: ch, exchange: exchange}, nil
}

// newMessage wraps data in an Event envelope ready for the exchange.
func newMessage(eventType string, data interface{}) (amqp.Publishing, error) {
	evt := Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return amqp.Publishing{}, err
	}

	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Timestamp:    evt.OccurredAt,
		ContentType:  "application/json",
		MessageId:    evt.ID,
		Type:         eventType,
		Body:         body,
	}, nil
}

func (r *Rabbit) Publish(ctx context.Context, eventType string, data interface{}) error {
	msg, err := newMessage(eventType, data)
	if err != nil {
		return err
	}

	// amqp channels are not safe for concurrent publishes.
	r.mu.Lock()
	err = r.channel.PublishWithContext(ctx, r.exchange, eventType, false, false, msg)
	r.mu.Unlock()

	metrics.RecordEventPublished(eventType, err == nil)
	if err != nil {
		log.Printf("[EVENTS] [ERROR] publish %s failed: %v", eventType, err)
		return err
	}
	log.Printf("[EVENTS] [INFO] published %s id=%s", eventType, msg.MessageId)
	return nil
}

func (r *Rabbit) Close() error {
	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			return err
		}
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
