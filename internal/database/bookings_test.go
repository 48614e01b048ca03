package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"fleethire/internal/domain"
	"fleethire/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetBooking(t *testing.T) {
	db := seededDB(t)
	ctx := context.Background()

	start := day.Add(9 * time.Hour)
	b := newBooking(models.StatusPending, start, 2,
		models.VehicleSelection{CategoryID: 1, Quantity: 1},
		models.VehicleSelection{CategoryID: 2, Quantity: 2},
	)
	b.PriceOverridden = true
	b.DepositAmount = 100000
	require.NoError(t, db.CreateBooking(ctx, b, nil))
	assert.NotZero(t, b.ID)
	assert.Equal(t, int64(1), b.Version)
	require.Len(t, b.Trips, 1)
	assert.NotZero(t, b.Trips[0].ID)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Customer, got.Customer)
	assert.Equal(t, models.HireOneWay, got.HireType)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.True(t, got.PriceOverridden)
	assert.Equal(t, int64(100000), got.DepositAmount)
	assert.Nil(t, got.LastAssignedAt)
	require.Len(t, got.Trips, 1)
	assert.True(t, got.Trips[0].StartTime.Equal(start))
	assert.Equal(t, b.Vehicles, got.Vehicles)

	_, err = db.GetBooking(ctx, 999)
	assert.True(t, domain.IsNotFound(err))
}

func TestCreateBooking_CheckAbortsWrite(t *testing.T) {
	db := seededDB(t)
	ctx := context.Background()

	rejected := errors.New("no capacity")
	b := newBooking(models.StatusPending, day.Add(9*time.Hour), 2, models.VehicleSelection{CategoryID: 1, Quantity: 1})
	err := db.CreateBooking(ctx, b, func(ctx context.Context, fleet domain.FleetReader) error {
		vehicles, err := fleet.GetCandidateVehicles(ctx, 1, 1)
		require.NoError(t, err)
		assert.Len(t, vehicles, 2)
		return rejected
	})
	assert.ErrorIs(t, err, rejected)
	assert.Zero(t, b.ID)

	page, err := db.ListBookings(ctx, models.BookingFilter{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestUpdateBooking_Versioning(t *testing.T) {
	db := seededDB(t)
	ctx := context.Background()

	b := newBooking(models.StatusDraft, day.Add(9*time.Hour), 2, models.VehicleSelection{CategoryID: 1, Quantity: 1})
	require.NoError(t, db.CreateBooking(ctx, b, nil))

	stale := *b
	b.Note = "child seat"
	b.Vehicles = []models.VehicleSelection{{CategoryID: 2, Quantity: 1}}
	b.Trips = append(b.Trips, models.Trip{
		StartLocation: "Noi Bai", EndLocation: "Hoan Kiem",
		StartTime: day.Add(11 * time.Hour), EndTime: day.Add(13 * time.Hour),
	})
	require.NoError(t, db.UpdateBooking(ctx, b, nil))
	assert.Equal(t, int64(2), b.Version)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "child seat", got.Note)
	assert.Len(t, got.Trips, 2)
	assert.Equal(t, []models.VehicleSelection{{CategoryID: 2, Quantity: 1}}, got.Vehicles)

	stale.Note = "lost update"
	err = db.UpdateBooking(ctx, &stale, nil)
	assert.ErrorIs(t, err, ErrConcurrentModification)

	got, err = db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "child seat", got.Note)
	assert.Len(t, got.Trips, 2, "failed update leaves trips untouched")
}

func TestUpdateBookingStatusWithVersion(t *testing.T) {
	db := seededDB(t)
	ctx := context.Background()

	b := newBooking(models.StatusPending, day.Add(9*time.Hour), 2, models.VehicleSelection{CategoryID: 1, Quantity: 1})
	require.NoError(t, db.CreateBooking(ctx, b, nil))

	require.NoError(t, db.UpdateBookingStatusWithVersion(ctx, b.ID, 1, models.StatusConfirmed))
	err := db.UpdateBookingStatusWithVersion(ctx, b.ID, 1, models.StatusCancelled)
	assert.ErrorIs(t, err, ErrConcurrentModification)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)
	assert.Equal(t, int64(2), got.Version)
}

func TestAddPayment(t *testing.T) {
	db := seededDB(t)
	ctx := context.Background()

	b := newBooking(models.StatusConfirmed, day.Add(9*time.Hour), 2, models.VehicleSelection{CategoryID: 1, Quantity: 1})
	require.NoError(t, db.CreateBooking(ctx, b, nil))

	require.NoError(t, db.AddPayment(ctx, b.ID, 1, 100000))
	require.NoError(t, db.AddPayment(ctx, b.ID, 2, 50000))
	assert.ErrorIs(t, db.AddPayment(ctx, b.ID, 2, 1), ErrConcurrentModification)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(150000), got.PaidAmount)
}

func TestAssignTrips(t *testing.T) {
	db := seededDB(t)
	ctx := context.Background()

	b := newBooking(models.StatusConfirmed, day.Add(9*time.Hour), 2, models.VehicleSelection{CategoryID: 1, Quantity: 1})
	require.NoError(t, db.CreateBooking(ctx, b, nil))
	tripID := b.Trips[0].ID

	driverID := int64(1)
	at := day.Add(-24 * time.Hour)
	require.NoError(t, db.AssignTrips(ctx, b.ID, 1, []int64{tripID}, &driverID, nil, models.StatusAssigned, at))

	vehicleID := int64(2)
	require.NoError(t, db.AssignTrips(ctx, b.ID, 2, []int64{tripID}, nil, &vehicleID, models.StatusAssigned, at.Add(time.Hour)))

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, got.Status)
	require.NotNil(t, got.Trips[0].DriverID)
	assert.Equal(t, driverID, *got.Trips[0].DriverID, "nil driver keeps the earlier assignment")
	require.NotNil(t, got.Trips[0].VehicleID)
	assert.Equal(t, vehicleID, *got.Trips[0].VehicleID)
	require.NotNil(t, got.LastAssignedAt)
	assert.True(t, got.LastAssignedAt.Equal(at.Add(time.Hour)))

	err = db.AssignTrips(ctx, b.ID, 3, []int64{tripID + 100}, &driverID, nil, models.StatusAssigned, at)
	assert.True(t, domain.IsNotFound(err))

	got, err = db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version, "failed assignment is rolled back")
}

func TestListBookings_Filters(t *testing.T) {
	db := seededDB(t)
	ctx := context.Background()

	first := newBooking(models.StatusPending, day.Add(9*time.Hour), 2, models.VehicleSelection{CategoryID: 1, Quantity: 1})
	second := newBooking(models.StatusConfirmed, day.Add(33*time.Hour), 2, models.VehicleSelection{CategoryID: 1, Quantity: 1})
	second.Customer = models.Customer{FullName: "Le Van C", Phone: "0987654321"}
	third := newBooking(models.StatusPending, day.Add(57*time.Hour), 2, models.VehicleSelection{CategoryID: 2, Quantity: 1})
	third.BranchID = 2
	for _, b := range []*models.Booking{first, second, third} {
		require.NoError(t, db.CreateBooking(ctx, b, nil))
	}

	page, err := db.ListBookings(ctx, models.BookingFilter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 2)

	page, err = db.ListBookings(ctx, models.BookingFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)

	page, err = db.ListBookings(ctx, models.BookingFilter{Status: models.StatusPending, BranchID: 1, Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, first.ID, page.Items[0].ID)
	assert.Len(t, page.Items[0].Trips, 1)

	page, err = db.ListBookings(ctx, models.BookingFilter{Keyword: "  LE VAN ", Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, second.ID, page.Items[0].ID)

	page, err = db.ListBookings(ctx, models.BookingFilter{From: day.Add(24 * time.Hour), To: day.Add(48 * time.Hour), Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, second.ID, page.Items[0].ID)
}

func TestGetCustomerByPhone(t *testing.T) {
	db := seededDB(t)
	ctx := context.Background()

	older := newBooking(models.StatusCompleted, day.Add(9*time.Hour), 2, models.VehicleSelection{CategoryID: 1, Quantity: 1})
	require.NoError(t, db.CreateBooking(ctx, older, nil))
	newer := newBooking(models.StatusDraft, day.Add(30*time.Hour), 2, models.VehicleSelection{CategoryID: 1, Quantity: 1})
	newer.Customer.Email = "new@example.com"
	require.NoError(t, db.CreateBooking(ctx, newer, nil))

	profile, err := db.GetCustomerByPhone(ctx, "0912345678")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, profile.LastBookingID)
	assert.Equal(t, "new@example.com", profile.Email)

	_, err = db.GetCustomerByPhone(ctx, "000")
	assert.True(t, domain.IsNotFound(err))
}
