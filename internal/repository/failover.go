package repository

import (
	"context"
	"sync/atomic"
	"time"

	"fleethire/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverCooldownStore prefers the shared store and degrades to the local one while it is down.
// Writes during an outage go to the fallback only.
type FailoverCooldownStore struct {
	primary   domain.CooldownStore
	fallback  domain.CooldownStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverCooldownStore(primary, fallback domain.CooldownStore, logger *zerolog.Logger) *FailoverCooldownStore {
	return &FailoverCooldownStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverCooldownStore) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary cooldown store failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverCooldownStore) shouldRetryPrimary() bool {
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverCooldownStore) GetLastAssignment(ctx context.Context, bookingID int64) (time.Time, bool, error) {
	if !r.isDown.Load() {
		at, ok, err := r.primary.GetLastAssignment(ctx, bookingID)
		if err == nil {
			return at, ok, nil
		}
		r.markDown(err)
	} else if r.shouldRetryPrimary() {
		at, ok, err := r.primary.GetLastAssignment(ctx, bookingID)
		if err == nil {
			r.isDown.Store(false)
			r.logger.Info().Msg("Primary cooldown store recovered")
			return at, ok, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.GetLastAssignment(ctx, bookingID)
}

func (r *FailoverCooldownStore) SetLastAssignment(ctx context.Context, bookingID int64, at time.Time) error {
	// fallback mirrors every write
	_ = r.fallback.SetLastAssignment(ctx, bookingID, at)

	if !r.isDown.Load() {
		err := r.primary.SetLastAssignment(ctx, bookingID, at)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}
	return nil
}
