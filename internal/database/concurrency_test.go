package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"fleethire/internal/availability"
	"fleethire/internal/domain"
	"fleethire/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentSubmissionsNeverOversubscribe(t *testing.T) {
	logger := zerolog.Nop()
	dbPath := filepath.Join(t.TempDir(), "concurrency.db")
	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.SyncFleet(ctx, testFleet()))

	checker := availability.NewChecker(db, availability.Options{}, &logger)
	start := day.Add(9 * time.Hour)

	// category 2 has two vans at branch 1
	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			b := newBooking(models.StatusPending, start, 3, models.VehicleSelection{CategoryID: 2, Quantity: 1})
			results <- db.CreateBooking(ctx, b, func(ctx context.Context, fleet domain.FleetReader) error {
				res, err := checker.CheckWith(ctx, fleet, models.AvailabilityRequest{
					BranchID: 1, CategoryID: 2, Start: start, End: start.Add(3 * time.Hour), Quantity: 1,
				})
				if err != nil {
					return err
				}
				if !res.OK {
					return domain.CapacityError{Result: res}
				}
				return nil
			})
		}()
	}

	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		if err == nil {
			successCount++
			continue
		}
		assert.True(t, domain.IsCapacity(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 2, successCount, "only as many bookings as vans may commit")

	res, err := checker.Check(ctx, models.AvailabilityRequest{BranchID: 1, CategoryID: 2, Start: start, End: start.Add(time.Hour), Quantity: 1})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, 2, res.BusyCount)
}
