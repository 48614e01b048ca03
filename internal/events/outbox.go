package events

import (
	"context"
	"fmt"
	"time"

	"fleethire/internal/models"

	"github.com/rs/zerolog"
)

// OutboxStore persists events before delivery.
type OutboxStore interface {
	CreateOutboxEvent(ctx context.Context, ev *models.OutboxEvent) error
}

// Outbox records every published event in the store and then fans it out on the bus.
// Delivery to the broker happens asynchronously from the stored row. The row is written
// after the caller's booking transaction has committed, in its own statement.
type Outbox struct {
	store   OutboxStore
	bus     *EventBus
	logger  *zerolog.Logger
	timeout time.Duration
}

func NewOutbox(store OutboxStore, bus *EventBus, logger *zerolog.Logger) *Outbox {
	return &Outbox{store: store, bus: bus, logger: logger, timeout: 5 * time.Second}
}

func (o *Outbox) PublishJSON(eventType string, payload interface{}) error {
	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	record := models.OutboxEvent{
		EventType: eventType,
		BookingID: event.BookingID,
		Payload:   string(event.Payload),
	}
	if err := o.store.CreateOutboxEvent(ctx, &record); err != nil {
		o.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", event.BookingID).Msg("Failed to persist event")
		return fmt.Errorf("failed to persist %s event: %w", eventType, err)
	}

	event.ID = record.ID
	event.CreatedAt = record.CreatedAt
	o.bus.Publish(&event)
	return nil
}
