package repository

import (
	"context"
	"sync"
	"time"
)

type cooldownEntry struct {
	at        time.Time
	expiresAt time.Time
}

// MemoryCooldownStore is the single-process fallback used when Redis is unreachable.
type MemoryCooldownStore struct {
	entries sync.Map
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryCooldownStore(ttl time.Duration) *MemoryCooldownStore {
	return &MemoryCooldownStore{
		ttl: ttl,
		now: time.Now,
	}
}

func (r *MemoryCooldownStore) GetLastAssignment(_ context.Context, bookingID int64) (time.Time, bool, error) {
	val, ok := r.entries.Load(bookingID)
	if !ok {
		return time.Time{}, false, nil
	}
	entry := val.(cooldownEntry)
	if r.ttl > 0 && r.now().After(entry.expiresAt) {
		r.entries.Delete(bookingID)
		return time.Time{}, false, nil
	}
	return entry.at, true, nil
}

func (r *MemoryCooldownStore) SetLastAssignment(_ context.Context, bookingID int64, at time.Time) error {
	r.entries.Store(bookingID, cooldownEntry{at: at, expiresAt: r.now().Add(r.ttl)})
	return nil
}
