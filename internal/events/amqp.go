package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fleethire/internal/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// ErrBrokerClosed is returned by Publish after Close.
var ErrBrokerClosed = errors.New("amqp broker closed")

// AMQPBroker publishes event payloads to a durable topic exchange.
// The connection is dialled lazily and re-dialled on the next publish after a failure.
type AMQPBroker struct {
	url      string
	exchange string
	logger   *zerolog.Logger

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

func NewAMQPBroker(cfg config.EventsConfig, logger *zerolog.Logger) *AMQPBroker {
	l := logger.With().Str("component", "amqp").Str("exchange", cfg.Exchange).Logger()
	return &AMQPBroker{url: cfg.AMQPURL, exchange: cfg.Exchange, logger: &l}
}

func (b *AMQPBroker) Publish(ctx context.Context, routingKey string, messageID int64, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBrokerClosed
	}
	if err := b.ensureChannel(); err != nil {
		return err
	}

	err := b.ch.PublishWithContext(ctx, b.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    fmt.Sprintf("%d", messageID),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		b.resetLocked()
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

func (b *AMQPBroker) ensureChannel() error {
	if b.conn != nil && !b.conn.IsClosed() && b.ch != nil && !b.ch.IsClosed() {
		return nil
	}
	b.resetLocked()

	conn, err := amqp.Dial(b.url)
	if err != nil {
		return fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(b.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", b.exchange, err)
	}

	b.conn = conn
	b.ch = ch
	b.logger.Info().Msg("Connected to rabbitmq")
	return nil
}

func (b *AMQPBroker) resetLocked() {
	if b.ch != nil && !b.ch.IsClosed() {
		_ = b.ch.Close()
	}
	if b.conn != nil && !b.conn.IsClosed() {
		_ = b.conn.Close()
	}
	b.ch = nil
	b.conn = nil
}

func (b *AMQPBroker) IsAlive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil || b.conn.IsClosed() {
		return false
	}
	return b.ch != nil && !b.ch.IsClosed()
}

func (b *AMQPBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.resetLocked()
	return nil
}

// LogBroker stands in for the message broker when no AMQP URL is configured.
type LogBroker struct {
	logger *zerolog.Logger
}

func NewLogBroker(logger *zerolog.Logger) *LogBroker {
	return &LogBroker{logger: logger}
}

func (b *LogBroker) Publish(_ context.Context, routingKey string, messageID int64, body []byte) error {
	b.logger.Info().Str("routing_key", routingKey).Int64("message_id", messageID).RawJSON("body", body).Msg("Event published")
	return nil
}
