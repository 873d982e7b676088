package events

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPChannel is the subset of *amqp.Channel used by AMQPSink.
type AMQPChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes events as JSON to a topic exchange, routed by topic.
type AMQPSink struct {
	ch       AMQPChannel
	exchange string
}

// NewAMQPSink returns a sink publishing on ch to exchange.
func NewAMQPSink(ch AMQPChannel, exchange string) *AMQPSink {
	return &AMQPSink{ch: ch, exchange: exchange}
}

// Deliver implements Sink.
func (s *AMQPSink) Deliver(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return s.ch.PublishWithContext(ctx, s.exchange, ev.Topic(), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.OccurredAt,
		Type:         ev.Topic(),
		Body:         body,
	})
}

// DialAMQP connects to url, declares a durable topic exchange, and returns
// a sink on it. The returned close function releases the channel and the
// connection.
func DialAMQP(url, exchange string) (*AMQPSink, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	closeFn := func() error {
		if err := ch.Close(); err != nil {
			conn.Close()
			return err
		}
		return conn.Close()
	}
	return NewAMQPSink(ch, exchange), closeFn, nil
}
