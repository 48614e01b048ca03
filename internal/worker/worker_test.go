package worker

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fleethire/internal/config"
	"fleethire/internal/database"
	"fleethire/internal/events"
	"fleethire/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestProcessEventSuccess(t *testing.T) {
	db := newTestDB(t)
	broker := &fakeBroker{}
	worker := NewOutboxWorker(db, broker, nil, RetryPolicy{}, nil)

	ctx := context.Background()
	id := enqueue(t, db, events.EventBookingConfirmed, `{"booking_id":1}`)

	n, err := worker.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 event processed, got %d", n)
	}

	status, retryCount, nextRetry := loadEventStatus(t, db, id)
	if status != models.OutboxCompleted {
		t.Fatalf("expected status=completed, got %s", status)
	}
	if retryCount != 0 {
		t.Fatalf("expected retry_count=0, got %d", retryCount)
	}
	if nextRetry.Valid {
		t.Fatalf("expected next_retry_at NULL on success")
	}
	if len(broker.published) != 1 || broker.published[0] != events.EventBookingConfirmed {
		t.Fatalf("expected one publish to %s, got %v", events.EventBookingConfirmed, broker.published)
	}
}

func TestProcessEventRetry(t *testing.T) {
	db := newTestDB(t)
	broker := &fakeBroker{err: errors.New("connection refused")}
	worker := NewOutboxWorker(db, broker, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Second}, nil)

	ctx := context.Background()
	id := enqueue(t, db, events.EventBookingCreated, `{"booking_id":2}`)

	if _, err := worker.ProcessPending(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}

	status, retryCount, nextRetry := loadEventStatus(t, db, id)
	if status != models.OutboxRetry {
		t.Fatalf("expected status=retry, got %s", status)
	}
	if retryCount != 1 {
		t.Fatalf("expected retry_count=1, got %d", retryCount)
	}
	if !nextRetry.Valid || nextRetry.Time.Before(time.Now()) {
		t.Fatalf("expected next_retry_at in future, got %v", nextRetry)
	}

	// not due yet
	n, err := worker.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected retrying event to wait, got %d processed", n)
	}
}

func TestProcessEventFailGoesToDeadLetter(t *testing.T) {
	db := newTestDB(t)
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer s.Close()
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	broker := &fakeBroker{err: errors.New("fatal")}
	worker := NewOutboxWorker(db, broker, client, RetryPolicy{MaxRetries: 1}, nil)

	ctx := context.Background()
	id := enqueue(t, db, events.EventBookingCanceled, `{"booking_id":3}`)
	if _, err := worker.ProcessPending(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}

	status, _, _ := loadEventStatus(t, db, id)
	if status != models.OutboxFailed {
		t.Fatalf("expected status=failed, got %s", status)
	}
	items, err := s.List("outbox:deadletter")
	if err != nil {
		t.Fatalf("dead letter list: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(items))
	}
}

func TestProcessEventInvalidPayload(t *testing.T) {
	db := newTestDB(t)
	broker := &fakeBroker{}
	worker := NewOutboxWorker(db, broker, nil, RetryPolicy{MaxRetries: 5}, nil)

	id := enqueue(t, db, events.EventBookingCreated, `not json`)
	if _, err := worker.ProcessPending(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}

	status, _, _ := loadEventStatus(t, db, id)
	if status != models.OutboxFailed {
		t.Fatalf("expected status=failed, got %s", status)
	}
	if len(broker.published) != 0 {
		t.Fatalf("broker must not see invalid payloads")
	}
}

func TestOutboxWorker_StartDeliversOnWake(t *testing.T) {
	db := newTestDB(t)
	broker := &fakeBroker{delivered: make(chan string, 4)}
	worker := NewOutboxWorker(db, broker, nil, RetryPolicy{}, nil)
	worker.pollInterval = time.Hour

	bus := events.NewEventBus()
	bus.SubscribeAll(worker.HandleEvent)
	logger := zerolog.Nop()
	outbox := events.NewOutbox(db, bus, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	if err := outbox.PublishJSON(events.EventBookingSubmitted, events.BookingEventPayload{BookingID: 5}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case key := <-broker.delivered:
		if key != events.EventBookingSubmitted {
			t.Fatalf("unexpected routing key %s", key)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered after wake-up")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	d1 := policy.NextDelay(1)
	d2 := policy.NextDelay(2)
	d3 := policy.NextDelay(5)

	if d1 != time.Second {
		t.Fatalf("attempt1 expected 1s, got %s", d1)
	}
	if d2 != 2*time.Second {
		t.Fatalf("attempt2 expected 2s, got %s", d2)
	}
	if d3 != 5*time.Second {
		t.Fatalf("attempt5 expected capped 5s, got %s", d3)
	}
	if d0 := (RetryPolicy{}).NextDelay(0); d0 != time.Second {
		t.Fatalf("zero policy expected 1s, got %s", d0)
	}
}

func TestRetryPolicyExhaustion(t *testing.T) {
	policy := RetryPolicyFromConfig(config.EventsConfig{MaxRetries: 3, RetryInitialDelay: 2 * time.Second, RetryMaxDelay: time.Minute})
	if policy.Exhausted(2) || !policy.Exhausted(3) {
		t.Fatalf("expected exhaustion exactly at attempt 3")
	}
	if (RetryPolicy{}).Exhausted(100) {
		t.Fatalf("zero policy must never exhaust on its own")
	}

	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := policy.NextAttemptAt(now, 2); !got.Equal(now.Add(4 * time.Second)) {
		t.Fatalf("attempt2 expected +4s, got %s", got.Sub(now))
	}
	if got := policy.NextAttemptAt(now, 20); !got.Equal(now.Add(time.Minute)) {
		t.Fatalf("attempt20 expected capped +1m, got %s", got.Sub(now))
	}
}

// Helpers

type fakeBroker struct {
	err       error
	published []string
	delivered chan string
}

func (f *fakeBroker) Publish(_ context.Context, routingKey string, _ int64, _ []byte) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, routingKey)
	if f.delivered != nil {
		f.delivered <- routingKey
	}
	return nil
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.db")
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	db, err := database.NewDB(path, &logger)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func enqueue(t *testing.T, db *database.DB, eventType, payload string) int64 {
	t.Helper()
	ev := &models.OutboxEvent{EventType: eventType, BookingID: 1, Payload: payload}
	if err := db.CreateOutboxEvent(context.Background(), ev); err != nil {
		t.Fatalf("create outbox event: %v", err)
	}
	return ev.ID
}

func loadEventStatus(t *testing.T, db *database.DB, id int64) (status string, retryCount int, nextRetry sql.NullTime) {
	t.Helper()
	row := db.QueryRowContext(context.Background(), `SELECT status, retry_count, next_retry_at FROM event_outbox WHERE id = ?`, id)
	if err := row.Scan(&status, &retryCount, &nextRetry); err != nil {
		t.Fatalf("scan event: %v", err)
	}
	return status, retryCount, nextRetry
}
