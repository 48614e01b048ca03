package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fleethire/internal/config"
	"fleethire/internal/domain"
	"fleethire/internal/events"
	"fleethire/internal/metrics"
	"fleethire/internal/models"

	"github.com/rs/zerolog"
)

type AssignmentOptions struct {
	Cooldown       time.Duration
	RequireDeposit bool
}

func AssignmentOptionsFromConfig(cfg config.BookingConfig) AssignmentOptions {
	return AssignmentOptions{
		Cooldown:       cfg.AssignmentCooldown,
		RequireDeposit: cfg.RequireDepositBeforeAssign,
	}
}

type AssignmentService struct {
	repo      domain.Repository
	cooldowns domain.CooldownStore
	eventBus  domain.EventPublisher
	opts      AssignmentOptions
	logger    *zerolog.Logger
	now       func() time.Time
}

func NewAssignmentService(
	repo domain.Repository,
	cooldowns domain.CooldownStore,
	eventBus domain.EventPublisher,
	opts AssignmentOptions,
	logger *zerolog.Logger,
) *AssignmentService {
	if opts.Cooldown <= 0 {
		opts.Cooldown = 5 * time.Minute
	}
	return &AssignmentService{
		repo:      repo,
		cooldowns: cooldowns,
		eventBus:  eventBus,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// Assign attaches a driver and/or vehicle to trips of a confirmed booking.
// Successive assignments on the same booking are throttled by the cooldown window.
func (s *AssignmentService) Assign(ctx context.Context, req models.AssignmentRequest) (*models.AssignmentResult, error) {
	if req.DriverID == nil && req.VehicleID == nil {
		return nil, domain.ValidationError{Field: "driver_id", Rule: domain.RuleRequired, Msg: "driver or vehicle is required"}
	}

	booking, err := s.repo.GetBooking(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if !booking.Status.Assignable() {
		return nil, domain.StateError{
			Rule:   domain.RuleStatus,
			Status: booking.Status,
			Msg:    fmt.Sprintf("booking %d cannot be assigned in status %s", booking.ID, booking.Status),
		}
	}
	if s.opts.RequireDeposit && booking.DepositAmount > 0 && booking.PaidAmount < booking.DepositAmount {
		return nil, domain.StateError{
			Rule:   domain.RuleDepositMissing,
			Status: booking.Status,
			Msg:    fmt.Sprintf("booking %d has %d of %d deposit paid", booking.ID, booking.PaidAmount, booking.DepositAmount),
		}
	}

	tripIDs, err := resolveTrips(booking, req.TripIDs)
	if err != nil {
		return nil, err
	}
	if req.DriverID != nil {
		if err := s.validateDriver(ctx, booking, *req.DriverID); err != nil {
			return nil, err
		}
	}
	if req.VehicleID != nil {
		if err := s.validateVehicle(ctx, booking, *req.VehicleID); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	if err := s.checkCooldown(ctx, booking, now); err != nil {
		return nil, err
	}

	previous := booking.Status
	err = s.repo.AssignTrips(ctx, booking.ID, booking.Version, tripIDs, req.DriverID, req.VehicleID, models.StatusAssigned, now)
	if err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("Failed to assign trips")
		return nil, err
	}

	if err := s.cooldowns.SetLastAssignment(ctx, booking.ID, now); err != nil {
		s.logger.Warn().Err(err).Int64("booking_id", booking.ID).Msg("Failed to record assignment cooldown")
	}

	updated, err := s.repo.GetBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}

	if previous != models.StatusAssigned {
		metrics.IncTransition(string(models.StatusAssigned))
	}
	s.publishAssigned(updated, previous, tripIDs, req, now)

	s.logger.Info().
		Int64("booking_id", booking.ID).
		Ints64("trip_ids", tripIDs).
		Msg("Trips assigned")

	return &models.AssignmentResult{Booking: updated, AssignedTrips: tripIDs, AssignedAt: now}, nil
}

func (s *AssignmentService) checkCooldown(ctx context.Context, b *models.Booking, now time.Time) error {
	var last time.Time
	if b.LastAssignedAt != nil {
		last = *b.LastAssignedAt
	}

	stored, ok, err := s.cooldowns.GetLastAssignment(ctx, b.ID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("booking_id", b.ID).Msg("Cooldown store lookup failed, using booking record")
	} else if ok && stored.After(last) {
		last = stored
	}

	if last.IsZero() {
		return nil
	}
	elapsed := now.Sub(last)
	if elapsed < s.opts.Cooldown {
		metrics.IncCooldownRejection()
		return domain.CooldownError{Remaining: s.opts.Cooldown - elapsed}
	}
	return nil
}

func (s *AssignmentService) validateDriver(ctx context.Context, b *models.Booking, id int64) error {
	driver, err := s.repo.GetDriver(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ValidationError{Field: "driver_id", Rule: domain.RuleUnknown, Msg: fmt.Sprintf("driver %d not found", id)}
		}
		return err
	}
	if !driver.IsActive {
		return domain.ValidationError{Field: "driver_id", Rule: domain.RuleInvalid, Msg: fmt.Sprintf("driver %d is inactive", id)}
	}
	if driver.BranchID != b.BranchID {
		return domain.ValidationError{Field: "driver_id", Rule: domain.RuleInvalid, Msg: fmt.Sprintf("driver %d belongs to another branch", id)}
	}
	return nil
}

func (s *AssignmentService) validateVehicle(ctx context.Context, b *models.Booking, id int64) error {
	vehicle, err := s.repo.GetVehicle(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ValidationError{Field: "vehicle_id", Rule: domain.RuleUnknown, Msg: fmt.Sprintf("vehicle %d not found", id)}
		}
		return err
	}
	if vehicle.BranchID != b.BranchID {
		return domain.ValidationError{Field: "vehicle_id", Rule: domain.RuleInvalid, Msg: fmt.Sprintf("vehicle %d belongs to another branch", id)}
	}
	if vehicle.Status != models.VehicleAvailable {
		return domain.ValidationError{Field: "vehicle_id", Rule: domain.RuleInvalid, Msg: fmt.Sprintf("vehicle %d is %s", id, vehicle.Status)}
	}
	for _, sel := range b.Vehicles {
		if sel.CategoryID == vehicle.CategoryID {
			return nil
		}
	}
	return domain.ValidationError{Field: "vehicle_id", Rule: domain.RuleInvalid, Msg: fmt.Sprintf("vehicle %d is not of a booked category", id)}
}

// resolveTrips defaults to every trip of the booking.
func resolveTrips(b *models.Booking, requested []int64) ([]int64, error) {
	if len(b.Trips) == 0 {
		return nil, domain.ValidationError{Field: "trip_ids", Rule: domain.RuleRequired, Msg: "booking has no trips"}
	}
	if len(requested) == 0 {
		ids := make([]int64, 0, len(b.Trips))
		for _, t := range b.Trips {
			ids = append(ids, t.ID)
		}
		return ids, nil
	}

	seen := make(map[int64]struct{}, len(requested))
	for _, id := range requested {
		if _, ok := b.TripByID(id); !ok {
			return nil, domain.ValidationError{Field: "trip_ids", Rule: domain.RuleUnknown, Msg: fmt.Sprintf("trip %d is not part of booking %d", id, b.ID)}
		}
		if _, dup := seen[id]; dup {
			return nil, domain.ValidationError{Field: "trip_ids", Rule: domain.RuleDuplicate, Msg: fmt.Sprintf("trip %d listed twice", id)}
		}
		seen[id] = struct{}{}
	}
	return requested, nil
}

func (s *AssignmentService) publishAssigned(b *models.Booking, previous models.BookingStatus, tripIDs []int64, req models.AssignmentRequest, at time.Time) {
	if s.eventBus == nil {
		return
	}
	payload := events.AssignmentEventPayload{
		BookingEventPayload: events.BookingEventPayload{
			BookingID:       b.ID,
			BranchID:        b.BranchID,
			Status:          string(b.Status),
			EffectiveStatus: string(EffectiveStatus(b)),
			PreviousStatus:  string(previous),
			CustomerName:    b.Customer.FullName,
			CustomerPhone:   b.Customer.Phone,
			TotalCost:       b.TotalCost,
			PaidAmount:      b.PaidAmount,
			StartTime:       b.EarliestStart(),
			EndTime:         b.LatestEnd(),
			ChangedAt:       at,
		},
		TripIDs:   tripIDs,
		DriverID:  req.DriverID,
		VehicleID: req.VehicleID,
	}
	if err := s.eventBus.PublishJSON(events.EventBookingAssigned, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", events.EventBookingAssigned).Msg("publish event error")
	}
}
