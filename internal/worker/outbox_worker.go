package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"fleethire/internal/database"
	"fleethire/internal/events"
	"fleethire/internal/metrics"
	"fleethire/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Broker delivers one outbox row to the message bus.
type Broker interface {
	Publish(ctx context.Context, routingKey string, messageID int64, body []byte) error
}

// OutboxWorker drains event_outbox into the broker, retrying with backoff and
// parking exhausted events in a Redis dead-letter list.
type OutboxWorker struct {
	db            *database.DB
	broker        Broker
	redis         *redis.Client
	retryPolicy   RetryPolicy
	wake          chan struct{}
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// NewOutboxWorker builds a worker with sane defaults.
func NewOutboxWorker(db *database.DB, broker Broker, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *OutboxWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "outbox_worker").Logger()

	return &OutboxWorker{
		db:            db,
		broker:        broker,
		redis:         redisClient,
		retryPolicy:   retry,
		wake:          make(chan struct{}, 1),
		deadLetterKey: "outbox:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        &l,
	}
}

// HandleEvent is subscribed to the event bus so that fresh rows are delivered without waiting for the next poll.
func (w *OutboxWorker) HandleEvent(_ *events.Event) error {
	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

// Start launches main loop; stops when ctx is done.
func (w *OutboxWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("Outbox worker started")
	defer w.logger.Info().Msg("Outbox worker stopped")

	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()

	for {
		n, err := w.ProcessPending(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("Failed to fetch pending events")
		}
		if n == w.batchSize {
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(w.pollInterval)

		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		case <-timer.C:
		}
	}
}

// ProcessPending delivers one batch and reports how many rows it handled.
func (w *OutboxWorker) ProcessPending(ctx context.Context) (int, error) {
	pending, err := w.db.GetPendingOutboxEvents(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	for i := range pending {
		if ctx.Err() != nil {
			return i, ctx.Err()
		}
		w.processEvent(ctx, &pending[i])
	}
	return len(pending), nil
}

func (w *OutboxWorker) processEvent(ctx context.Context, ev *models.OutboxEvent) {
	if !json.Valid([]byte(ev.Payload)) {
		w.failEvent(ctx, ev, errors.New("payload is not valid JSON"))
		return
	}

	if err := w.broker.Publish(ctx, ev.EventType, ev.ID, []byte(ev.Payload)); err != nil {
		metrics.IncEventDelivery("error")
		w.retryOrFail(ctx, ev, err)
		return
	}

	metrics.IncEventDelivery("ok")
	if err := w.db.UpdateOutboxStatus(ctx, ev.ID, models.OutboxCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("event_id", ev.ID).Msg("Failed to mark event completed")
	}
}

func (w *OutboxWorker) retryOrFail(ctx context.Context, ev *models.OutboxEvent, cause error) {
	attempt := ev.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failEvent(ctx, ev, cause)
		return
	}

	nextTime := w.retryPolicy.NextAttemptAt(time.Now(), attempt)
	w.logger.Warn().Err(cause).Int64("event_id", ev.ID).Int("attempt", attempt).Time("next_retry_at", nextTime).Msg("Event delivery failed, will retry")
	if err := w.db.UpdateOutboxStatus(ctx, ev.ID, models.OutboxRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("event_id", ev.ID).Msg("Failed to schedule event retry")
	}
}

func (w *OutboxWorker) failEvent(ctx context.Context, ev *models.OutboxEvent, cause error) {
	w.logger.Error().Err(cause).Int64("event_id", ev.ID).Str("event_type", ev.EventType).Msg("Event delivery failed permanently")
	if err := w.db.UpdateOutboxStatus(ctx, ev.ID, models.OutboxFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("event_id", ev.ID).Msg("Failed to mark event failed")
	}
	w.pushDeadLetter(ctx, ev)
}

func (w *OutboxWorker) pushDeadLetter(ctx context.Context, ev *models.OutboxEvent) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		w.logger.Error().Err(err).Int64("event_id", ev.ID).Msg("Failed to encode dead letter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("event_id", ev.ID).Msg("Failed to push dead letter")
	}
}
