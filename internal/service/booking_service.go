package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"fleethire/internal/config"
	"fleethire/internal/domain"
	"fleethire/internal/events"
	"fleethire/internal/metrics"
	"fleethire/internal/models"
	"fleethire/internal/pricing"

	"github.com/rs/zerolog"
)

type BookingOptions struct {
	EditLeadTime           time.Duration
	OneWayDefaultDuration  time.Duration
	FullRetentionWithin    time.Duration
	PartialRetentionWithin time.Duration
	PartialRetentionRate   float64
	DefaultPageSize        int
	MaxPageSize            int
}

func BookingOptionsFromConfig(cfg config.BookingConfig) BookingOptions {
	return BookingOptions{
		EditLeadTime:           cfg.EditLeadTime,
		OneWayDefaultDuration:  cfg.OneWayDefaultDuration,
		FullRetentionWithin:    cfg.FullRetentionWithin,
		PartialRetentionWithin: cfg.PartialRetentionWithin,
		PartialRetentionRate:   cfg.PartialRetentionRate,
		DefaultPageSize:        cfg.DefaultPageSize,
		MaxPageSize:            cfg.MaxPageSize,
	}
}

type BookingService struct {
	repo     domain.Repository
	pricing  domain.PriceCalculator
	checker  domain.AvailabilityChecker
	distance domain.DistanceEstimator
	eventBus domain.EventPublisher
	opts     BookingOptions
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewBookingService(
	repo domain.Repository,
	calculator domain.PriceCalculator,
	checker domain.AvailabilityChecker,
	distance domain.DistanceEstimator,
	eventBus domain.EventPublisher,
	opts BookingOptions,
	logger *zerolog.Logger,
) *BookingService {
	if opts.EditLeadTime <= 0 {
		opts.EditLeadTime = 12 * time.Hour
	}
	if opts.OneWayDefaultDuration <= 0 {
		opts.OneWayDefaultDuration = 2 * time.Hour
	}
	if opts.FullRetentionWithin <= 0 {
		opts.FullRetentionWithin = 24 * time.Hour
	}
	if opts.PartialRetentionWithin <= 0 {
		opts.PartialRetentionWithin = 48 * time.Hour
	}
	if opts.PartialRetentionRate <= 0 {
		opts.PartialRetentionRate = 0.3
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 20
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 100
	}
	return &BookingService{
		repo:     repo,
		pricing:  calculator,
		checker:  checker,
		distance: distance,
		eventBus: eventBus,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// EffectiveStatus is the status shown to users: a completed booking that is not fully paid still counts as in progress.
func EffectiveStatus(b *models.Booking) models.BookingStatus {
	if b.Status == models.StatusCompleted && b.PaidAmount < b.TotalCost {
		return models.StatusInProgress
	}
	return b.Status
}

func (s *BookingService) Create(ctx context.Context, draft *models.BookingDraft) (*models.Booking, error) {
	if draft == nil {
		return nil, domain.ValidationError{Field: "booking", Rule: domain.RuleRequired, Msg: "booking is required"}
	}
	if !draft.HireType.Valid() {
		return nil, domain.ValidationError{Field: "hire_type", Rule: domain.RuleInvalid, Msg: fmt.Sprintf("unknown hire type %q", draft.HireType)}
	}

	booking := &models.Booking{
		Customer:        normalizeCustomer(draft.Customer),
		BranchID:        draft.BranchID,
		HireType:        draft.HireType,
		Vehicles:        models.MergeSelections(draft.Vehicles),
		DistanceKm:      draft.DistanceKm,
		UseHighway:      draft.UseHighway,
		IsHoliday:       draft.IsHoliday,
		IsWeekend:       draft.IsWeekend,
		DiscountPercent: draft.DiscountPercent,
		DepositAmount:   draft.DepositAmount,
		Note:            strings.TrimSpace(draft.Note),
		Status:          models.StatusDraft,
	}

	trips, err := s.normalizeTrips(booking.HireType, draft.Trips)
	if err != nil {
		return nil, err
	}
	booking.Trips = trips

	if err := validateAmounts(booking, draft.TotalOverride); err != nil {
		return nil, err
	}
	s.prefillCustomer(ctx, booking)

	if err := s.resolveDistance(ctx, booking, draft.Submit); err != nil {
		return nil, err
	}
	if err := s.reprice(ctx, booking); err != nil {
		return nil, err
	}
	if draft.TotalOverride != nil {
		booking.TotalCost = *draft.TotalOverride
		booking.PriceOverridden = true
	}

	var check domain.CapacityCheck
	if draft.Submit {
		if err := s.validateForSubmission(ctx, booking); err != nil {
			return nil, err
		}
		if err := s.precheckCapacity(ctx, booking); err != nil {
			return nil, err
		}
		booking.Status = models.StatusPending
		check = s.capacityCheck(booking)
	}

	if err := s.repo.CreateBooking(ctx, booking, check); err != nil {
		s.logger.Error().Err(err).Str("status", string(booking.Status)).Msg("Failed to create booking")
		return nil, err
	}

	metrics.IncTransition(string(booking.Status))
	s.publishEvent(events.EventBookingCreated, booking, "")
	if booking.Status == models.StatusPending {
		s.publishEvent(events.EventBookingSubmitted, booking, models.StatusDraft)
	}

	s.logger.Info().
		Int64("booking_id", booking.ID).
		Str("status", string(booking.Status)).
		Int64("total_cost", booking.TotalCost).
		Msg("Booking created")

	return booking, nil
}

func (s *BookingService) Submit(ctx context.Context, id int64) (*models.Booking, error) {
	var lastErr error
	// one retry covers a concurrent edit between read and write
	for attempt := 0; attempt < 2; attempt++ {
		booking, err := s.submitOnce(ctx, id)
		if err == nil {
			return booking, nil
		}
		if !errors.Is(err, domain.ErrConcurrentModification) {
			return nil, err
		}
		lastErr = err
		s.logger.Warn().Int64("booking_id", id).Msg("Submit raced with another update, retrying")
	}
	return nil, lastErr
}

func (s *BookingService) submitOnce(ctx context.Context, id int64) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status == models.StatusPending {
		return booking, nil
	}
	if booking.Status != models.StatusDraft {
		return nil, statusError(booking, models.StatusPending)
	}

	if err := s.resolveDistance(ctx, booking, true); err != nil {
		return nil, err
	}
	if err := s.reprice(ctx, booking); err != nil {
		return nil, err
	}
	if err := s.validateForSubmission(ctx, booking); err != nil {
		return nil, err
	}
	if err := s.precheckCapacity(ctx, booking); err != nil {
		return nil, err
	}

	booking.Status = models.StatusPending
	if err := s.repo.UpdateBooking(ctx, booking, s.capacityCheck(booking)); err != nil {
		return nil, err
	}

	metrics.IncTransition(string(booking.Status))
	s.publishEvent(events.EventBookingSubmitted, booking, models.StatusDraft)
	return booking, nil
}

func (s *BookingService) Update(ctx context.Context, id int64, patch *models.BookingPatch) (*models.Booking, error) {
	if patch == nil {
		return nil, domain.ValidationError{Field: "patch", Rule: domain.RuleRequired, Msg: "nothing to update"}
	}

	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !booking.Status.Editable() {
		return nil, domain.StateError{
			Rule:   domain.RuleStatus,
			Status: booking.Status,
			Msg:    fmt.Sprintf("booking %d cannot be edited in status %s", booking.ID, booking.Status),
		}
	}
	if err := s.checkLeadTime(booking); err != nil {
		return nil, err
	}

	previous := booking.Status
	prevFrom, prevTo := firstLegRoute(booking)
	if err := s.applyPatch(booking, patch); err != nil {
		return nil, err
	}
	if patch.Trips != nil {
		if err := s.checkLeadTime(booking); err != nil {
			return nil, err
		}
	}

	strict := booking.Status != models.StatusDraft
	if patch.DistanceKm == nil && patch.Trips != nil {
		// a new route or a per-leg distance replaces the stored figure
		from, to := firstLegRoute(booking)
		if from != prevFrom || to != prevTo || (len(booking.Trips) > 0 && booking.Trips[0].DistanceKm > 0) {
			booking.DistanceKm = 0
		}
	}
	if err := s.resolveDistance(ctx, booking, strict); err != nil {
		return nil, err
	}
	if err := s.reprice(ctx, booking); err != nil {
		return nil, err
	}
	if patch.TotalOverride != nil {
		booking.TotalCost = *patch.TotalOverride
		booking.PriceOverridden = true
	}

	var check domain.CapacityCheck
	if strict {
		if err := s.validateForSubmission(ctx, booking); err != nil {
			return nil, err
		}
		if patch.TouchesFleet() && booking.Status.HoldsCapacity() {
			check = s.capacityCheck(booking)
		}
	}

	if err := s.repo.UpdateBooking(ctx, booking, check); err != nil {
		return nil, err
	}

	if booking.Status != previous {
		metrics.IncTransition(string(booking.Status))
	}
	s.publishEvent(events.EventBookingUpdated, booking, previous)
	return booking, nil
}

func (s *BookingService) applyPatch(booking *models.Booking, patch *models.BookingPatch) error {
	if patch.Customer != nil {
		booking.Customer = normalizeCustomer(*patch.Customer)
	}
	if patch.Note != nil {
		booking.Note = strings.TrimSpace(*patch.Note)
	}
	if patch.DistanceKm != nil {
		booking.DistanceKm = *patch.DistanceKm
	}
	if patch.UseHighway != nil {
		booking.UseHighway = *patch.UseHighway
	}
	if patch.IsHoliday != nil {
		booking.IsHoliday = *patch.IsHoliday
	}
	if patch.IsWeekend != nil {
		booking.IsWeekend = *patch.IsWeekend
	}
	if patch.DiscountPercent != nil {
		booking.DiscountPercent = *patch.DiscountPercent
	}
	if patch.DepositAmount != nil {
		booking.DepositAmount = *patch.DepositAmount
	}

	if patch.HireType != nil {
		if !patch.HireType.Valid() {
			return domain.ValidationError{Field: "hire_type", Rule: domain.RuleInvalid, Msg: fmt.Sprintf("unknown hire type %q", *patch.HireType)}
		}
		booking.HireType = *patch.HireType
	}
	if patch.Trips != nil || patch.HireType != nil {
		source := patch.Trips
		if source == nil {
			// re-derive from the outbound leg when only the hire type changes
			source = booking.Trips
			if len(source) > 1 {
				source = source[:1]
			}
		}
		trips, err := s.normalizeTrips(booking.HireType, source)
		if err != nil {
			return err
		}
		booking.Trips = trips
		if booking.Status == models.StatusAssigned {
			booking.Status = models.StatusConfirmed
		}
	}
	if patch.Vehicles != nil {
		booking.Vehicles = models.MergeSelections(patch.Vehicles)
	}

	// route or fleet changes invalidate a manual price
	if patch.TouchesFleet() {
		booking.PriceOverridden = false
	}

	return validateAmounts(booking, patch.TotalOverride)
}

func (s *BookingService) SendQuotation(ctx context.Context, id int64) (*models.Booking, error) {
	return s.transition(ctx, id, models.StatusQuotationSent, events.EventBookingQuotationSent, models.StatusPending)
}

func (s *BookingService) Confirm(ctx context.Context, id int64) (*models.Booking, error) {
	return s.transition(ctx, id, models.StatusConfirmed, events.EventBookingConfirmed, models.StatusPending, models.StatusQuotationSent)
}

func (s *BookingService) Start(ctx context.Context, id int64) (*models.Booking, error) {
	return s.transition(ctx, id, models.StatusInProgress, events.EventBookingStarted, models.StatusAssigned)
}

func (s *BookingService) Complete(ctx context.Context, id int64) (*models.Booking, error) {
	return s.transition(ctx, id, models.StatusCompleted, events.EventBookingCompleted, models.StatusInProgress)
}

// transition moves the booking to target when its current status is one of from.
// Re-issuing a transition to the current status is a no-op.
func (s *BookingService) transition(ctx context.Context, id int64, target models.BookingStatus, eventType string, from ...models.BookingStatus) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status == target {
		return booking, nil
	}

	allowed := false
	for _, st := range from {
		if booking.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, statusError(booking, target)
	}

	previous := booking.Status
	if err := s.repo.UpdateBookingStatusWithVersion(ctx, booking.ID, booking.Version, target); err != nil {
		return nil, err
	}

	updated, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	metrics.IncTransition(string(target))
	s.publishEvent(eventType, updated, previous)
	s.logger.Info().
		Int64("booking_id", id).
		Str("from", string(previous)).
		Str("to", string(target)).
		Msg("Booking status changed")
	return updated, nil
}

func (s *BookingService) Cancel(ctx context.Context, id int64) (*models.CancellationOutcome, error) {
	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status == models.StatusCancelled {
		return &models.CancellationOutcome{BookingID: booking.ID, Policy: models.RetentionNone, AlreadyCancelled: true}, nil
	}
	if booking.Status == models.StatusCompleted {
		return nil, statusError(booking, models.StatusCancelled)
	}

	now := s.now()
	start := booking.EarliestStart()
	departed := !start.IsZero() && !now.Before(start)
	if departed && booking.Status == models.StatusInProgress {
		return nil, domain.StateError{
			Rule:   domain.RuleDeparted,
			Status: booking.Status,
			Msg:    fmt.Sprintf("booking %d is already under way", booking.ID),
		}
	}

	outcome := s.retention(booking, start, now)
	previous := booking.Status
	if err := s.repo.UpdateBookingStatusWithVersion(ctx, booking.ID, booking.Version, models.StatusCancelled); err != nil {
		return nil, err
	}
	booking.Status = models.StatusCancelled
	booking.Version++

	metrics.IncTransition(string(models.StatusCancelled))
	s.publish(events.EventBookingCanceled, events.CancellationEventPayload{
		BookingEventPayload: s.payload(booking, previous),
		Policy:              string(outcome.Policy),
		DepositAmount:       outcome.DepositAmount,
		Retained:            outcome.Retained,
		Refunded:            outcome.Refunded,
		HoursBefore:         outcome.HoursBeforeStart,
	})
	s.logger.Info().
		Int64("booking_id", booking.ID).
		Str("policy", string(outcome.Policy)).
		Int64("retained", outcome.Retained).
		Msg("Booking cancelled")

	return outcome, nil
}

// retention splits the deposit by how long before departure the cancellation happens.
func (s *BookingService) retention(booking *models.Booking, start, now time.Time) *models.CancellationOutcome {
	outcome := &models.CancellationOutcome{
		BookingID:     booking.ID,
		DepositAmount: booking.DepositAmount,
		Policy:        models.RetentionNone,
	}
	if start.IsZero() {
		outcome.Refunded = booking.DepositAmount
		return outcome
	}

	until := start.Sub(now)
	outcome.HoursBeforeStart = math.Round(until.Hours()*100) / 100

	var rate float64
	switch {
	case until < s.opts.FullRetentionWithin:
		outcome.Policy = models.RetentionFull
		rate = 1
	case until < s.opts.PartialRetentionWithin:
		outcome.Policy = models.RetentionPartial
		rate = s.opts.PartialRetentionRate
	}

	outcome.Retained = int64(math.Round(float64(booking.DepositAmount) * rate))
	outcome.Refunded = booking.DepositAmount - outcome.Retained
	return outcome
}

func (s *BookingService) RecordPayment(ctx context.Context, id int64, amount int64) (*models.Booking, error) {
	if amount <= 0 {
		return nil, domain.ValidationError{Field: "amount", Rule: domain.RuleNonPositive, Msg: "payment must be positive"}
	}

	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status == models.StatusCancelled {
		return nil, domain.StateError{
			Rule:   domain.RuleStatus,
			Status: booking.Status,
			Msg:    fmt.Sprintf("booking %d is cancelled", booking.ID),
		}
	}

	if err := s.repo.AddPayment(ctx, booking.ID, booking.Version, amount); err != nil {
		return nil, err
	}
	updated, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publish(events.EventBookingPaymentRecorded, events.PaymentEventPayload{
		BookingEventPayload: s.payload(updated, ""),
		Amount:              amount,
	})
	return updated, nil
}

func (s *BookingService) ClearOverride(ctx context.Context, id int64) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !booking.PriceOverridden {
		return booking, nil
	}
	if booking.Status.Terminal() {
		return nil, domain.StateError{
			Rule:   domain.RuleStatus,
			Status: booking.Status,
			Msg:    fmt.Sprintf("booking %d is closed", booking.ID),
		}
	}

	booking.PriceOverridden = false
	if err := s.reprice(ctx, booking); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateBooking(ctx, booking, nil); err != nil {
		return nil, err
	}

	s.publishEvent(events.EventBookingOverrideCleared, booking, "")
	return booking, nil
}

func (s *BookingService) Get(ctx context.Context, id int64) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

func (s *BookingService) List(ctx context.Context, filter models.BookingFilter) (*models.BookingPage, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.ValidationError{Field: "status", Rule: domain.RuleInvalid, Msg: fmt.Sprintf("unknown status %q", filter.Status)}
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, domain.ValidationError{Field: "to", Rule: domain.RuleEndBeforeStart, Msg: "must not be before from"}
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = s.opts.DefaultPageSize
	}
	if filter.PageSize > s.opts.MaxPageSize {
		filter.PageSize = s.opts.MaxPageSize
	}
	return s.repo.ListBookings(ctx, filter)
}

func (s *BookingService) Quote(ctx context.Context, in models.PriceInput) (*models.Quote, error) {
	return s.pricing.Calculate(ctx, in)
}

func (s *BookingService) CheckAvailability(ctx context.Context, req models.AvailabilityRequest) (*models.AvailabilityResult, error) {
	return s.checker.Check(ctx, req)
}

func (s *BookingService) CustomerPrefill(ctx context.Context, phone string) (*models.CustomerProfile, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, domain.ValidationError{Field: "phone", Rule: domain.RuleRequired, Msg: "phone is required"}
	}
	return s.repo.GetCustomerByPhone(ctx, phone)
}

// normalizeTrips fills ONE_WAY end times and derives the ROUND_TRIP return leg.
// Assignments never travel through edits; they are set by the assignment flow only.
func (s *BookingService) normalizeTrips(hire models.HireType, in []models.Trip) ([]models.Trip, error) {
	trips := make([]models.Trip, 0, len(in)+1)
	for _, t := range in {
		trips = append(trips, models.Trip{
			StartLocation: strings.TrimSpace(t.StartLocation),
			EndLocation:   strings.TrimSpace(t.EndLocation),
			StartTime:     t.StartTime.UTC(),
			EndTime:       t.EndTime.UTC(),
			DistanceKm:    t.DistanceKm,
		})
	}

	switch hire {
	case models.HireOneWay:
		for i := range trips {
			t := &trips[i]
			if !t.StartTime.IsZero() && !t.EndTime.After(t.StartTime) {
				t.EndTime = t.StartTime.Add(s.opts.OneWayDefaultDuration)
			}
		}
	case models.HireRoundTrip:
		if len(trips) > 2 {
			return nil, domain.ValidationError{Field: "trips", Rule: domain.RuleInvalid, Msg: "a round trip has exactly two legs"}
		}
		// the return leg always mirrors the outbound one; a client-sent second leg is discarded
		trips = append([]models.Trip(nil), trips[:min(len(trips), 1)]...)
		if len(trips) == 1 && trips[0].Duration() > 0 {
			out := trips[0]
			trips = append(trips, models.Trip{
				StartLocation: out.EndLocation,
				EndLocation:   out.StartLocation,
				StartTime:     out.EndTime,
				EndTime:       out.EndTime.Add(out.Duration()),
				DistanceKm:    out.DistanceKm,
			})
		}
	}
	return trips, nil
}

// validateForSubmission enforces the rules a booking must meet to leave DRAFT.
func (s *BookingService) validateForSubmission(ctx context.Context, b *models.Booking) error {
	if b.Customer.FullName == "" {
		return domain.ValidationError{Field: "customer.full_name", Rule: domain.RuleRequired, Msg: "customer name is required"}
	}
	if b.Customer.Phone == "" {
		return domain.ValidationError{Field: "customer.phone", Rule: domain.RuleRequired, Msg: "customer phone is required"}
	}
	if len(b.Trips) == 0 {
		return domain.ValidationError{Field: "trips", Rule: domain.RuleRequired, Msg: "at least one trip is required"}
	}

	now := s.now()
	for i, t := range b.Trips {
		field := fmt.Sprintf("trips[%d]", i)
		if t.StartLocation == "" {
			return domain.ValidationError{Field: field + ".start_location", Rule: domain.RuleRequired, Msg: "pickup is required"}
		}
		if t.EndLocation == "" {
			return domain.ValidationError{Field: field + ".end_location", Rule: domain.RuleRequired, Msg: "drop-off is required"}
		}
		if t.StartTime.IsZero() {
			return domain.ValidationError{Field: field + ".start_time", Rule: domain.RuleRequired, Msg: "start time is required"}
		}
		if t.StartTime.Before(now) {
			return domain.ValidationError{Field: field + ".start_time", Rule: domain.RulePastStart, Msg: "start time is in the past"}
		}
		if b.HireType != models.HireOneWay && !t.EndTime.After(t.StartTime) {
			return domain.ValidationError{Field: field + ".end_time", Rule: domain.RuleEndBeforeStart, Msg: "end time must be after start time"}
		}
	}

	if len(b.Vehicles) == 0 {
		return domain.ValidationError{Field: "vehicles", Rule: domain.RuleRequired, Msg: "at least one vehicle category is required"}
	}
	for i, v := range b.Vehicles {
		if v.Quantity <= 0 {
			return domain.ValidationError{Field: fmt.Sprintf("vehicles[%d].quantity", i), Rule: domain.RuleNonPositive, Msg: "must be at least 1"}
		}
	}

	if b.EstimatedCost <= 0 {
		return domain.ValidationError{Field: "estimated_cost", Rule: domain.RuleNonPositive, Msg: "price must be positive"}
	}

	branch, err := s.repo.GetBranch(ctx, b.BranchID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ValidationError{Field: "branch_id", Rule: domain.RuleUnknown, Msg: fmt.Sprintf("branch %d not found", b.BranchID)}
		}
		return err
	}
	if !branch.IsActive {
		return domain.ValidationError{Field: "branch_id", Rule: domain.RuleInvalid, Msg: fmt.Sprintf("branch %d is inactive", b.BranchID)}
	}
	return nil
}

// precheckCapacity fails fast with suggestions before opening the write transaction.
func (s *BookingService) precheckCapacity(ctx context.Context, b *models.Booking) error {
	for _, req := range availabilityRequests(b) {
		res, err := s.checker.Check(ctx, req)
		if err != nil {
			return err
		}
		if !res.OK {
			return domain.CapacityError{Result: res}
		}
	}
	return nil
}

// capacityCheck re-runs availability against the transaction snapshot.
func (s *BookingService) capacityCheck(b *models.Booking) domain.CapacityCheck {
	requests := availabilityRequests(b)
	return func(ctx context.Context, fleet domain.FleetReader) error {
		for _, req := range requests {
			req.ExcludeBookingID = b.ID
			res, err := s.checker.CheckWith(ctx, fleet, req)
			if err != nil {
				return err
			}
			if !res.OK {
				return domain.CapacityError{Result: res}
			}
		}
		return nil
	}
}

func availabilityRequests(b *models.Booking) []models.AvailabilityRequest {
	start, end := b.EarliestStart(), b.LatestEnd()
	out := make([]models.AvailabilityRequest, 0, len(b.Vehicles))
	for _, v := range b.Vehicles {
		out = append(out, models.AvailabilityRequest{
			BranchID:         b.BranchID,
			CategoryID:       v.CategoryID,
			Start:            start,
			End:              end,
			Quantity:         v.Quantity,
			ExcludeBookingID: b.ID,
		})
	}
	return out
}

// checkLeadTime applies to every editable status, drafts included.
func (s *BookingService) checkLeadTime(b *models.Booking) error {
	start := b.EarliestStart()
	if start.IsZero() {
		return nil
	}
	if deadline := s.now().Add(s.opts.EditLeadTime); start.Before(deadline) {
		return domain.StateError{
			Rule:   domain.RuleLeadTime,
			Status: b.Status,
			Msg:    fmt.Sprintf("booking %d can only be edited until %s before departure", b.ID, s.opts.EditLeadTime),
		}
	}
	return nil
}

// reprice refreshes the estimate and discount; an overridden total is left as is.
func (s *BookingService) reprice(ctx context.Context, b *models.Booking) error {
	if len(b.Vehicles) == 0 {
		b.EstimatedCost = 0
		if !b.PriceOverridden {
			b.DiscountAmount, b.TotalCost = 0, 0
		}
		return nil
	}

	quote, err := s.pricing.Calculate(ctx, models.PriceInput{
		Vehicles:   b.Vehicles,
		DistanceKm: b.DistanceKm,
		HireType:   b.HireType,
		UseHighway: b.UseHighway,
		IsHoliday:  b.IsHoliday,
		IsWeekend:  b.IsWeekend,
		StartTime:  b.EarliestStart(),
		EndTime:    b.LatestEnd(),
	})
	if err != nil {
		return err
	}

	b.EstimatedCost = quote.Total
	discount, total := pricing.ApplyDiscount(b.EstimatedCost, b.DiscountPercent)
	b.DiscountAmount = discount
	if !b.PriceOverridden {
		b.TotalCost = total
	}
	return nil
}

// resolveDistance asks the estimator for the first leg when no distance was given.
// Drafts tolerate an unavailable estimator; submissions do not.
func (s *BookingService) resolveDistance(ctx context.Context, b *models.Booking, strict bool) error {
	if b.DistanceKm > 0 || len(b.Trips) == 0 {
		return nil
	}
	first := b.Trips[0]
	if first.DistanceKm > 0 {
		b.DistanceKm = first.DistanceKm
		return nil
	}
	if s.distance == nil {
		return nil
	}
	if first.StartLocation == "" || first.EndLocation == "" {
		return nil
	}

	km, err := s.distance.EstimateKm(ctx, first.StartLocation, first.EndLocation)
	if err != nil {
		if !strict || domain.IsValidation(err) {
			s.logger.Warn().Err(err).Str("from", first.StartLocation).Str("to", first.EndLocation).Msg("Distance lookup failed")
		}
		if strict {
			return err
		}
		return nil
	}

	b.DistanceKm = km
	if b.Trips[0].DistanceKm == 0 {
		b.Trips[0].DistanceKm = km
	}
	return nil
}

func firstLegRoute(b *models.Booking) (from, to string) {
	if len(b.Trips) == 0 {
		return "", ""
	}
	return b.Trips[0].StartLocation, b.Trips[0].EndLocation
}

// prefillCustomer completes name and email from the last booking with the same phone.
func (s *BookingService) prefillCustomer(ctx context.Context, b *models.Booking) {
	if b.Customer.Phone == "" || (b.Customer.FullName != "" && b.Customer.Email != "") {
		return
	}
	profile, err := s.repo.GetCustomerByPhone(ctx, b.Customer.Phone)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("Customer lookup failed")
		}
		return
	}
	if b.Customer.FullName == "" {
		b.Customer.FullName = profile.FullName
	}
	if b.Customer.Email == "" {
		b.Customer.Email = profile.Email
	}
}

func validateAmounts(b *models.Booking, override *int64) error {
	if b.DiscountPercent < 0 || b.DiscountPercent > 100 || math.IsNaN(b.DiscountPercent) {
		return domain.ValidationError{Field: "discount_percent", Rule: domain.RuleInvalid, Msg: "must be between 0 and 100"}
	}
	if b.DepositAmount < 0 {
		return domain.ValidationError{Field: "deposit_amount", Rule: domain.RuleInvalid, Msg: "must not be negative"}
	}
	if b.DistanceKm < 0 {
		return domain.ValidationError{Field: "distance_km", Rule: domain.RuleInvalid, Msg: "must not be negative"}
	}
	if override != nil && *override < 0 {
		return domain.ValidationError{Field: "total_override", Rule: domain.RuleInvalid, Msg: "must not be negative"}
	}
	return nil
}

func normalizeCustomer(c models.Customer) models.Customer {
	return models.Customer{
		FullName: strings.TrimSpace(c.FullName),
		Phone:    strings.TrimSpace(c.Phone),
		Email:    strings.TrimSpace(c.Email),
	}
}

func statusError(b *models.Booking, target models.BookingStatus) error {
	return domain.StateError{
		Rule:   domain.RuleStatus,
		Status: b.Status,
		Msg:    fmt.Sprintf("booking %d cannot move from %s to %s", b.ID, b.Status, target),
	}
}

func (s *BookingService) payload(b *models.Booking, previous models.BookingStatus) events.BookingEventPayload {
	return events.BookingEventPayload{
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
		ChangedAt:       s.now().UTC(),
	}
}

func (s *BookingService) publishEvent(eventType string, b *models.Booking, previous models.BookingStatus) {
	s.publish(eventType, s.payload(b, previous))
}

func (s *BookingService) publish(eventType string, payload interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}
