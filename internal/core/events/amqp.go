package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

type AMQPConfig struct {
	URL        string
	Exchange   string
	MaxRetries int
	RetryDelay time.Duration
}

// publishChannel is the part of *amqp.Channel the forwarder uses.
type publishChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPForwarder republishes bus events to a topic exchange so other services
// (provisioning, invoicing) can react to payments without polling.
type AMQPForwarder struct {
	exchange string
	conn     *amqp.Connection
	channel  publishChannel
	logger   *slog.Logger
	mu       sync.Mutex
}

// DialAMQPForwarder connects with retries and declares a durable topic exchange.
func DialAMQPForwarder(cfg AMQPConfig, logger *slog.Logger) (*AMQPForwarder, error) {
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 1
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 2 * time.Second
	}

	var conn *amqp.Connection
	var err error
	for i := 0; i < retries; i++ {
		conn, err = amqp.Dial(cfg.URL)
		if err == nil {
			break
		}
		logger.Warn("amqp connection failed", "attempt", i+1, "max_retries", retries, "error", err)
		if i < retries-1 {
			time.Sleep(delay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to amqp broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}

	logger.Info("amqp forwarder connected", "exchange", cfg.Exchange)

	f := newAMQPForwarder(cfg.Exchange, ch, logger)
	f.conn = conn
	return f, nil
}

func newAMQPForwarder(exchange string, ch publishChannel, logger *slog.Logger) *AMQPForwarder {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPForwarder{
		exchange: exchange,
		channel:  ch,
		logger:   logger,
	}
}

// Attach subscribes the forwarder to eventTypes on bus.
func (f *AMQPForwarder) Attach(bus *EventBus, eventTypes ...string) {
	for _, t := range eventTypes {
		bus.Subscribe(t, f.Forward)
	}
}

// Forward is an events.Handler publishing event as a persistent JSON message.
func (f *AMQPForwarder) Forward(ctx context.Context, event Event) error {
	msg, err := BuildPublishing(event)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.channel.Publish(f.exchange, RoutingKey(event), false, false, msg); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event.EventType(), f.exchange, err)
	}

	f.logger.Debug("event forwarded to amqp",
		"exchange", f.exchange,
		"routing_key", RoutingKey(event),
		"event_id", event.EventID())
	return nil
}

func (f *AMQPForwarder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var closeErr error
	if f.channel != nil {
		if err := f.channel.Close(); err != nil {
			closeErr = fmt.Errorf("close amqp channel: %w", err)
		}
	}
	if f.conn != nil {
		if err := f.conn.Close(); err != nil && closeErr == nil {
			closeErr = fmt.Errorf("close amqp connection: %w", err)
		}
	}
	return closeErr
}

// RoutingKey namespaces event types under "billing.", e.g. billing.payment.paid.
func RoutingKey(event Event) string {
	return "billing." + event.EventType()
}

func BuildPublishing(event Event) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event %s: %w", event.EventID(), err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    event.EventID(),
		Timestamp:    event.OccurredAt(),
		Type:         event.EventType(),
		Headers: amqp.Table{
			"event_type": event.EventType(),
			"source":     "receptionist-billing",
		},
	}, nil
}
