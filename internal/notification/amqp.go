package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// publisher is the part of an AMQP channel the sink uses.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// brokerChannel owns the connection behind a channel so both close together.
type brokerChannel struct {
	*amqp.Channel
	conn *amqp.Connection
}

func (b *brokerChannel) Close() error {
	_ = b.Channel.Close()
	return b.conn.Close()
}

// dialQueue connects, opens a channel and declares the durable queue.
func dialQueue(url, queue string) (publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	return &brokerChannel{Channel: ch, conn: conn}, nil
}

// AMQPSink publishes every event as JSON to a durable queue so that other
// services (mailers, dashboards) can react to club changes. One channel is
// kept open and replaced after a failed publish.
type AMQPSink struct {
	url   string
	queue string
	dial  func(url, queue string) (publisher, error)

	mu  sync.Mutex
	pub publisher
}

// NewAMQPSink creates a sink publishing to queue on the broker at url.
// Nothing is dialled until the first event.
func NewAMQPSink(url, queue string) *AMQPSink {
	return &AMQPSink{url: url, queue: queue, dial: dialQueue}
}

// Name implements Sink.
func (s *AMQPSink) Name() string { return "amqp" }

// Deliver implements Sink.
func (s *AMQPSink) Deliver(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pub == nil {
		pub, err := s.dial(s.url, s.queue)
		if err != nil {
			return err
		}
		s.pub = pub
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Type:         string(ev.Kind),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := s.pub.PublishWithContext(ctx, "", s.queue, false, false, msg); err != nil {
		_ = s.pub.Close()
		s.pub = nil
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Close releases the broker connection, if one is open.
func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pub == nil {
		return nil
	}
	err := s.pub.Close()
	s.pub = nil
	return err
}
