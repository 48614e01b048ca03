package service

import (
	"context"
	"testing"
	"time"

	"fleethire/internal/availability"
	"fleethire/internal/config"
	"fleethire/internal/database"
	"fleethire/internal/models"
	"fleethire/internal/pricing"
	"fleethire/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p interface{}) error {
	return m.Called(et, p).Error(0)
}

type stubEstimator struct {
	km    float64
	err   error
	calls int
}

func (s *stubEstimator) EstimateKm(_ context.Context, _, _ string) (float64, error) {
	s.calls++
	return s.km, s.err
}

var testNow = time.Date(2030, 5, 1, 8, 0, 0, 0, time.UTC)

// serviceFleet: branch 1 with two sedans and one van, branch 2 closed.
func serviceFleet() config.FleetConfig {
	return config.FleetConfig{
		Branches: []models.Branch{
			{ID: 1, Name: "Hanoi", IsActive: true},
			{ID: 2, Name: "Hue", IsActive: false},
		},
		Categories: []models.VehicleCategory{
			{ID: 1, Name: "Sedan 4", Seats: 4, PricePerKm: 10000, HighwayFee: 50000, IsActive: true},
			{ID: 2, Name: "Van 16", Seats: 16, BaseFee: 200000, PricePerKm: 15000, IsActive: true},
		},
		Vehicles: []models.Vehicle{
			{ID: 1, BranchID: 1, CategoryID: 1, LicensePlate: "30A-101", Status: models.VehicleAvailable},
			{ID: 2, BranchID: 1, CategoryID: 1, LicensePlate: "30A-102", Status: models.VehicleAvailable},
			{ID: 3, BranchID: 1, CategoryID: 2, LicensePlate: "30B-201", Status: models.VehicleAvailable},
			{ID: 4, BranchID: 1, CategoryID: 1, LicensePlate: "30A-103", Status: models.VehicleMaintenance},
			{ID: 5, BranchID: 2, CategoryID: 1, LicensePlate: "75A-501", Status: models.VehicleAvailable},
		},
		Drivers: []models.Driver{
			{ID: 1, BranchID: 1, FullName: "Pham Van D", Phone: "0901000001", IsActive: true},
			{ID: 2, BranchID: 1, FullName: "Hoang Van E", Phone: "0901000002", IsActive: false},
			{ID: 3, BranchID: 2, FullName: "Vo Thi F", Phone: "0901000003", IsActive: true},
		},
	}
}

type fixture struct {
	db          *database.DB
	bus         *mockEventBus
	catalog     *CatalogService
	bookings    *BookingService
	assignments *AssignmentService
	cooldowns   *repository.MemoryCooldownStore
	now         time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.SyncFleet(context.Background(), serviceFleet()))

	f := &fixture{
		db:        db,
		bus:       &mockEventBus{},
		cooldowns: repository.NewMemoryCooldownStore(time.Hour),
		now:       testNow,
	}
	f.bus.On("PublishJSON", mock.Anything, mock.Anything).Return(nil)
	clock := func() time.Time { return f.now }

	f.catalog = NewCatalogService(db, time.Minute, &logger)
	calc := pricing.NewCalculator(f.catalog, pricing.Rates{Holiday: 0.25, Weekend: 0.20})
	checker := availability.NewChecker(db, availability.Options{}, &logger)

	f.bookings = NewBookingService(db, calc, checker, nil, f.bus, BookingOptions{}, &logger)
	f.bookings.now = clock
	f.assignments = NewAssignmentService(db, f.cooldowns, f.bus, AssignmentOptions{RequireDeposit: true}, &logger)
	f.assignments.now = clock
	return f
}

// draft is a ONE_WAY booking for 100 km at branch 1; one sedan unless selections are given.
func draft(start time.Time, selections ...models.VehicleSelection) *models.BookingDraft {
	if len(selections) == 0 {
		selections = []models.VehicleSelection{{CategoryID: 1, Quantity: 1}}
	}
	return &models.BookingDraft{
		Customer: models.Customer{FullName: "Le Van C", Phone: "0987654321", Email: "c@example.com"},
		BranchID: 1,
		HireType: models.HireOneWay,
		Trips: []models.Trip{{
			StartLocation: "Hoan Kiem",
			EndLocation:   "Ha Long",
			StartTime:     start,
			EndTime:       start.Add(4 * time.Hour),
		}},
		Vehicles:   selections,
		DistanceKm: 100,
		Submit:     true,
	}
}

// confirmed creates and confirms a booking starting at start.
func (f *fixture) confirmed(t *testing.T, start time.Time, mutate func(d *models.BookingDraft)) *models.Booking {
	t.Helper()
	d := draft(start)
	if mutate != nil {
		mutate(d)
	}
	b, err := f.bookings.Create(context.Background(), d)
	require.NoError(t, err)
	b, err = f.bookings.Confirm(context.Background(), b.ID)
	require.NoError(t, err)
	return b
}

func ptr[T any](v T) *T { return &v }
