// Package events publishes item lifecycle notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Routing keys.
const (
	ItemCreated  = "item.created"
	ItemUpdated  = "item.updated"
	ItemArchived = "item.archived"
	ItemRestored = "item.restored"
)

// ItemEvent is the message body for every item routing key.
type ItemEvent struct {
	ItemID           int64     `json:"item_id"`
	OfficeID         int64     `json:"office_id"`
	Quantity         int       `json:"quantity"`
	ArchivedQuantity int       `json:"archived_quantity"`
	Images           []string  `json:"images,omitempty"`
	At               time.Time `json:"at"`
}

// Publisher sends an event under a routing key.
type Publisher interface {
	Publish(ctx context.Context, key string, event ItemEvent) error
}

// Nop discards every event.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, string, ItemEvent) error { return nil }

// Rabbit publishes events as JSON to a topic exchange.
type Rabbit struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewRabbit connects and declares the exchange. An empty url yields a nil
// *Rabbit, which is a valid Publisher that drops events.
func NewRabbit(url, exchange string) (*Rabbit, error) {
	if url == "" {
		return nil, nil
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dialing rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring exchange %s: %w", exchange, err)
	}
	return &Rabbit{conn: conn, ch: ch, exchange: exchange}, nil
}

// Publish sends event under key.
func (r *Rabbit) Publish(ctx context.Context, key string, event ItemEvent) error {
	if r == nil || r.ch == nil {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", key, err)
	}
	err = r.ch.PublishWithContext(ctx, r.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    event.At,
	})
	if err != nil {
		return fmt.Errorf("publishing %s event: %w", key, err)
	}
	return nil
}

// Close closes the channel and connection.
func (r *Rabbit) Close() error {
	if r == nil {
		return nil
	}
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
