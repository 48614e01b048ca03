package domain

import (
	"context"
	"time"

	"fleethire/internal/models"
)

// FleetReader is the read side used to compute availability.
// Implementations bound to a transaction observe the same snapshot as the commit.
type FleetReader interface {
	GetActiveCategories(ctx context.Context) ([]*models.VehicleCategory, error)
	GetCandidateVehicles(ctx context.Context, branchID, categoryID int64) ([]*models.Vehicle, error)
	GetVehicleOccupancy(ctx context.Context, branchID int64, from, to time.Time, excludeBookingID int64) ([]models.VehicleOccupancy, error)
	GetReservations(ctx context.Context, branchID int64, from, to time.Time, excludeBookingID int64) ([]models.Reservation, error)
}

// CapacityCheck runs inside the commit transaction; a non-nil error aborts the write.
type CapacityCheck func(ctx context.Context, fleet FleetReader) error

type Directory interface {
	GetBranch(ctx context.Context, id int64) (*models.Branch, error)
	GetCategoryByID(ctx context.Context, id int64) (*models.VehicleCategory, error)
	GetVehicle(ctx context.Context, id int64) (*models.Vehicle, error)
	GetDriver(ctx context.Context, id int64) (*models.Driver, error)
}

type CustomerDirectory interface {
	GetCustomerByPhone(ctx context.Context, phone string) (*models.CustomerProfile, error)
}

type Repository interface {
	FleetReader
	Directory
	CustomerDirectory

	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) (*models.BookingPage, error)
	CreateBooking(ctx context.Context, booking *models.Booking, check CapacityCheck) error
	UpdateBooking(ctx context.Context, booking *models.Booking, check CapacityCheck) error
	UpdateBookingStatusWithVersion(ctx context.Context, id, version int64, status models.BookingStatus) error
	AddPayment(ctx context.Context, id, version, amount int64) error
	AssignTrips(ctx context.Context, id, version int64, tripIDs []int64, driverID, vehicleID *int64, status models.BookingStatus, at time.Time) error
}

// CooldownStore keeps the time of the last successful assignment per booking.
type CooldownStore interface {
	GetLastAssignment(ctx context.Context, bookingID int64) (time.Time, bool, error)
	SetLastAssignment(ctx context.Context, bookingID int64, at time.Time) error
}

type DistanceEstimator interface {
	EstimateKm(ctx context.Context, origin, destination string) (float64, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type PriceCalculator interface {
	Calculate(ctx context.Context, in models.PriceInput) (*models.Quote, error)
}

type AvailabilityChecker interface {
	Check(ctx context.Context, req models.AvailabilityRequest) (*models.AvailabilityResult, error)
	CheckWith(ctx context.Context, fleet FleetReader, req models.AvailabilityRequest) (*models.AvailabilityResult, error)
}

type BookingService interface {
	Create(ctx context.Context, draft *models.BookingDraft) (*models.Booking, error)
	Update(ctx context.Context, id int64, patch *models.BookingPatch) (*models.Booking, error)
	Submit(ctx context.Context, id int64) (*models.Booking, error)
	SendQuotation(ctx context.Context, id int64) (*models.Booking, error)
	Confirm(ctx context.Context, id int64) (*models.Booking, error)
	Start(ctx context.Context, id int64) (*models.Booking, error)
	Complete(ctx context.Context, id int64) (*models.Booking, error)
	Cancel(ctx context.Context, id int64) (*models.CancellationOutcome, error)
	RecordPayment(ctx context.Context, id int64, amount int64) (*models.Booking, error)
	ClearOverride(ctx context.Context, id int64) (*models.Booking, error)
	Get(ctx context.Context, id int64) (*models.Booking, error)
	List(ctx context.Context, filter models.BookingFilter) (*models.BookingPage, error)
	Quote(ctx context.Context, in models.PriceInput) (*models.Quote, error)
	CheckAvailability(ctx context.Context, req models.AvailabilityRequest) (*models.AvailabilityResult, error)
	CustomerPrefill(ctx context.Context, phone string) (*models.CustomerProfile, error)
}

type AssignmentService interface {
	Assign(ctx context.Context, req models.AssignmentRequest) (*models.AssignmentResult, error)
}

type CatalogService interface {
	GetActiveCategories(ctx context.Context) ([]*models.VehicleCategory, error)
	GetCategoryByID(ctx context.Context, id int64) (*models.VehicleCategory, error)
	Invalidate()
}
