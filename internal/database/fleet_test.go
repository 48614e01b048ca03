package database

import (
	"context"
	"testing"
	"time"

	"fleethire/internal/domain"
	"fleethire/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncFleet_Directory(t *testing.T) {
	db := seededDB(t)
	ctx := context.Background()

	branch, err := db.GetBranch(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Hanoi", branch.Name)

	_, err = db.GetBranch(ctx, 99)
	assert.True(t, domain.IsNotFound(err))

	vehicle, err := db.GetVehicle(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, models.VehicleAvailable, vehicle.Status, "empty status defaults to available")

	driver, err := db.GetDriver(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Nguyen Van A", driver.FullName)

	_, err = db.GetDriver(ctx, 42)
	assert.True(t, domain.IsNotFound(err))
}

func TestSyncFleet_Upserts(t *testing.T) {
	db := seededDB(t)
	ctx := context.Background()

	cat, err := db.GetCategoryByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(12000), cat.PricePerKm)

	fleet := testFleet()
	fleet.Categories[0].PricePerKm = 13000
	require.NoError(t, db.SyncFleet(ctx, fleet))

	cat, err = db.GetCategoryByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(13000), cat.PricePerKm, "cache is refreshed after sync")
}

func TestGetCategoryByID_CacheReturnsCopies(t *testing.T) {
	db := seededDB(t)
	ctx := context.Background()

	first, err := db.GetCategoryByID(ctx, 2)
	require.NoError(t, err)
	first.Name = "mutated"

	second, err := db.GetCategoryByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Van 16", second.Name)

	inactive, err := db.GetCategoryByID(ctx, 3)
	require.NoError(t, err)
	assert.False(t, inactive.IsActive)

	_, err = db.GetCategoryByID(ctx, 77)
	assert.True(t, domain.IsNotFound(err))
}

func TestFleetReader(t *testing.T) {
	db := seededDB(t)
	ctx := context.Background()

	cats, err := db.GetActiveCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, int64(1), cats[0].ID)

	vehicles, err := db.GetCandidateVehicles(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, vehicles, 2, "maintenance and other-branch vehicles are excluded")

	start := day.Add(8 * time.Hour)
	assigned := newBooking(models.StatusAssigned, start, 3, models.VehicleSelection{CategoryID: 1, Quantity: 1})
	vehicleID := int64(1)
	assigned.Trips[0].VehicleID = &vehicleID
	require.NoError(t, db.CreateBooking(ctx, assigned, nil))

	reserved := newBooking(models.StatusConfirmed, start.Add(time.Hour), 2, models.VehicleSelection{CategoryID: 2, Quantity: 2})
	require.NoError(t, db.CreateBooking(ctx, reserved, nil))

	draft := newBooking(models.StatusDraft, start, 2, models.VehicleSelection{CategoryID: 2, Quantity: 1})
	require.NoError(t, db.CreateBooking(ctx, draft, nil))

	occ, err := db.GetVehicleOccupancy(ctx, 1, start, start.Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, occ, 1)
	assert.Equal(t, int64(1), occ[0].VehicleID)
	assert.True(t, occ[0].End.Equal(start.Add(3*time.Hour)))

	occ, err = db.GetVehicleOccupancy(ctx, 1, start, start.Add(time.Hour), assigned.ID)
	require.NoError(t, err)
	assert.Empty(t, occ)

	occ, err = db.GetVehicleOccupancy(ctx, 1, start.Add(3*time.Hour), start.Add(5*time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, occ, "touching windows do not overlap")

	res, err := db.GetReservations(ctx, 1, start, start.Add(4*time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, res, 1, "assigned bookings and drafts hold no reservation")
	assert.Equal(t, reserved.ID, res[0].BookingID)
	assert.Equal(t, 2, res[0].Quantity)

	res, err = db.GetReservations(ctx, 1, start.Add(5*time.Hour), start.Add(6*time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, res)
}
