// Package events publishes queue lifecycle events to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Event types, also used as routing keys
const (
	TypeDispatched = "queue.dispatched"
	TypeForwarded  = "queue.forwarded"
	TypeRolledBack = "queue.rolled_back"
	TypeCallback   = "queue.callback"
)

// Event is a queue state change worth telling other services about
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	BatchID    string    `json:"batchId,omitempty"`
	QueueID    int64     `json:"queueId,omitempty"`
	ProcessID  string    `json:"processId"`
	Technology string    `json:"technology,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// New stamps an event of type typ with an id and the current time
func New(typ, processID string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		ProcessID:  processID,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher sends events somewhere
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// RabbitMQ publishes events as JSON to a topic exchange
type RabbitMQ struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// Dial connects to url and declares the exchange. Idempotent.
func Dial(url, exchange string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &RabbitMQ{conn: conn, ch: ch, exchange: exchange}, nil
}

// Publish sends e with its type as routing key
func (r *RabbitMQ) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return r.ch.PublishWithContext(ctx,
		r.exchange,
		e.Type,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    e.ID,
			Timestamp:    e.OccurredAt,
			Body:         body,
		})
}

// Close closes the channel and connection
func (r *RabbitMQ) Close() error {
	r.ch.Close()
	return r.conn.Close()
}

// Nop discards events
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Recorder keeps published events in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Publisher
func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Close implements Publisher
func (r *Recorder) Close() error { return nil }

// Events returns a copy of what was published
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the published events of type typ
func (r *Recorder) OfType(typ string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
