package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Event types double as AMQP routing keys.
const (
	EventBookingCreated         = "booking.created"
	EventBookingUpdated         = "booking.updated"
	EventBookingSubmitted       = "booking.submitted"
	EventBookingQuotationSent   = "booking.quotation_sent"
	EventBookingConfirmed       = "booking.confirmed"
	EventBookingAssigned        = "booking.assigned"
	EventBookingStarted         = "booking.started"
	EventBookingCompleted       = "booking.completed"
	EventBookingCanceled        = "booking.cancelled"
	EventBookingPaymentRecorded = "booking.payment_recorded"
	EventBookingOverrideCleared = "booking.override_cleared"
)

// BookingEventPayload describes the minimal booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID       int64     `json:"booking_id"`
	BranchID        int64     `json:"branch_id"`
	Status          string    `json:"status"`
	EffectiveStatus string    `json:"effective_status,omitempty"`
	PreviousStatus  string    `json:"previous_status,omitempty"`
	CustomerName    string    `json:"customer_name"`
	CustomerPhone   string    `json:"customer_phone"`
	TotalCost       int64     `json:"total_cost"`
	PaidAmount      int64     `json:"paid_amount"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	ChangedAt       time.Time `json:"changed_at"`
}

func (p BookingEventPayload) BookingRef() int64 { return p.BookingID }

// CancellationEventPayload adds the deposit split to the booking snapshot.
type CancellationEventPayload struct {
	BookingEventPayload
	Policy        string  `json:"policy"`
	DepositAmount int64   `json:"deposit_amount"`
	Retained      int64   `json:"retained"`
	Refunded      int64   `json:"refunded"`
	HoursBefore   float64 `json:"hours_before_start"`
}

type AssignmentEventPayload struct {
	BookingEventPayload
	TripIDs   []int64 `json:"trip_ids"`
	DriverID  *int64  `json:"driver_id,omitempty"`
	VehicleID *int64  `json:"vehicle_id,omitempty"`
}

type PaymentEventPayload struct {
	BookingEventPayload
	Amount int64 `json:"amount"`
}

// Event represents a lightweight domain event.
// ID is the outbox row id when the event was persisted first.
type Event struct {
	ID        int64
	Type      string
	BookingID int64
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	wildcard    []EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler that sees every event type.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wildcard = append(b.wildcard, handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.wildcard...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}

	b.Publish(&event)
	return nil
}

type bookingScoped interface {
	BookingRef() int64
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	event := Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}
	if scoped, ok := payload.(bookingScoped); ok {
		event.BookingID = scoped.BookingRef()
	}
	return event, nil
}
