package availability

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"fleethire/internal/config"
	"fleethire/internal/domain"
	"fleethire/internal/metrics"
	"fleethire/internal/models"

	"github.com/rs/zerolog"
)

// slotMergeWindow collapses suggestions that start within this distance of the previous one.
const slotMergeWindow = 30 * time.Minute

type Options struct {
	MaxAlternatives int
	MaxSlots        int
	FullDayHire     time.Duration
	SlotHorizon     time.Duration
}

func OptionsFromConfig(cfg config.AvailabilityConfig) Options {
	return Options{
		MaxAlternatives: cfg.MaxAlternatives,
		MaxSlots:        cfg.MaxSlots,
		FullDayHire:     cfg.FullDayHire,
		SlotHorizon:     cfg.SlotHorizon,
	}
}

// Checker answers whether a branch can supply vehicles of a category for a window.
// It never writes; callers close the check-then-act gap by re-running CheckWith inside their commit.
type Checker struct {
	fleet  domain.FleetReader
	opts   Options
	logger *zerolog.Logger
}

func NewChecker(fleet domain.FleetReader, opts Options, logger *zerolog.Logger) *Checker {
	if opts.MaxAlternatives <= 0 {
		opts.MaxAlternatives = models.DefaultAlternativesLimit
	}
	if opts.MaxSlots <= 0 {
		opts.MaxSlots = models.DefaultSlotsLimit
	}
	if opts.FullDayHire <= 0 {
		opts.FullDayHire = 20 * time.Hour
	}
	if opts.SlotHorizon <= 0 {
		opts.SlotHorizon = 7 * 24 * time.Hour
	}
	l := logger.With().Str("component", "availability").Logger()
	return &Checker{fleet: fleet, opts: opts, logger: &l}
}

func (c *Checker) Check(ctx context.Context, req models.AvailabilityRequest) (*models.AvailabilityResult, error) {
	return c.CheckWith(ctx, c.fleet, req)
}

// fleetSnapshot is everything known about one branch over the search horizon.
type fleetSnapshot struct {
	occupancy    map[int64][]models.VehicleOccupancy
	reservations []models.Reservation
}

func (c *Checker) CheckWith(ctx context.Context, fleet domain.FleetReader, req models.AvailabilityRequest) (*models.AvailabilityResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	categories, err := fleet.GetActiveCategories(ctx)
	if err != nil {
		metrics.IncAvailability("error")
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	var requested *models.VehicleCategory
	for _, cat := range categories {
		if cat.ID == req.CategoryID {
			requested = cat
			break
		}
	}
	if requested == nil {
		return nil, domain.ValidationError{
			Field: "category_id",
			Rule:  domain.RuleUnknown,
			Msg:   fmt.Sprintf("category %d is unknown or inactive", req.CategoryID),
		}
	}

	duration := req.End.Sub(req.Start)
	horizonEnd := req.End.Add(c.opts.SlotHorizon)
	// a slot starting at the horizon still needs its whole duration checked
	loadEnd := horizonEnd.Add(duration)

	occupancy, err := fleet.GetVehicleOccupancy(ctx, req.BranchID, req.Start, loadEnd, req.ExcludeBookingID)
	if err != nil {
		metrics.IncAvailability("error")
		return nil, fmt.Errorf("failed to load vehicle occupancy: %w", err)
	}
	reservations, err := fleet.GetReservations(ctx, req.BranchID, req.Start, loadEnd, req.ExcludeBookingID)
	if err != nil {
		metrics.IncAvailability("error")
		return nil, fmt.Errorf("failed to load reservations: %w", err)
	}

	snap := fleetSnapshot{occupancy: make(map[int64][]models.VehicleOccupancy), reservations: reservations}
	for _, o := range occupancy {
		snap.occupancy[o.VehicleID] = append(snap.occupancy[o.VehicleID], o)
	}

	candidates, err := fleet.GetCandidateVehicles(ctx, req.BranchID, req.CategoryID)
	if err != nil {
		metrics.IncAvailability("error")
		return nil, fmt.Errorf("failed to load candidate vehicles: %w", err)
	}

	free, busyVehicles := snap.freeVehicles(candidates, req.Start, req.End)
	reserved := snap.reservedQuantity(req.CategoryID, req.Start, req.End)

	result := &models.AvailabilityResult{
		CategoryID:      req.CategoryID,
		NeededCount:     req.Quantity,
		TotalCandidates: len(candidates),
		BusyCount:       busyVehicles + reserved,
		Alternatives:    []models.AlternativeCategory{},
		NextSlots:       []models.NextAvailableSlot{},
	}
	result.AvailableCount = max(0, len(free)-reserved)
	result.OK = result.AvailableCount >= req.Quantity

	if result.OK {
		metrics.IncAvailability("ok")
		return result, nil
	}
	metrics.IncAvailability("insufficient")

	alternatives, err := c.alternatives(ctx, fleet, snap, categories, requested, req)
	if err != nil {
		return nil, err
	}
	result.Alternatives = alternatives

	if len(candidates) > 0 && duration < c.opts.FullDayHire {
		result.NextSlots = c.nextSlots(snap, candidates, req, duration, horizonEnd)
	}

	c.logger.Debug().
		Int64("branch_id", req.BranchID).
		Int64("category_id", req.CategoryID).
		Int("needed", req.Quantity).
		Int("available", result.AvailableCount).
		Int("alternatives", len(result.Alternatives)).
		Int("slots", len(result.NextSlots)).
		Msg("insufficient availability")

	return result, nil
}

func validateRequest(req models.AvailabilityRequest) error {
	if req.Quantity <= 0 {
		return domain.ValidationError{Field: "quantity", Rule: domain.RuleNonPositive, Msg: "must be at least 1"}
	}
	if req.CategoryID == 0 {
		return domain.ValidationError{Field: "category_id", Rule: domain.RuleRequired, Msg: "is required"}
	}
	if req.Start.IsZero() || req.End.IsZero() {
		return domain.ValidationError{Field: "start", Rule: domain.RuleRequired, Msg: "start and end are required"}
	}
	if !req.End.After(req.Start) {
		return domain.ValidationError{Field: "end", Rule: domain.RuleEndBeforeStart, Msg: "must be after start"}
	}
	return nil
}

func (c *Checker) alternatives(
	ctx context.Context,
	fleet domain.FleetReader,
	snap fleetSnapshot,
	categories []*models.VehicleCategory,
	requested *models.VehicleCategory,
	req models.AvailabilityRequest,
) ([]models.AlternativeCategory, error) {
	out := []models.AlternativeCategory{}
	for _, cat := range categories {
		if cat.ID == requested.ID {
			continue
		}
		vehicles, err := fleet.GetCandidateVehicles(ctx, req.BranchID, cat.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load candidates for category %d: %w", cat.ID, err)
		}
		free, _ := snap.freeVehicles(vehicles, req.Start, req.End)
		available := len(free) - snap.reservedQuantity(cat.ID, req.Start, req.End)
		if available < req.Quantity {
			continue
		}
		out = append(out, models.AlternativeCategory{
			CategoryID:     cat.ID,
			Name:           cat.Name,
			Seats:          cat.Seats,
			PricePerKm:     cat.PricePerKm,
			AvailableCount: available,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		di := math.Abs(float64(out[i].Seats - requested.Seats))
		dj := math.Abs(float64(out[j].Seats - requested.Seats))
		if di != dj {
			return di < dj
		}
		if out[i].Seats != out[j].Seats {
			return out[i].Seats < out[j].Seats
		}
		return out[i].CategoryID < out[j].CategoryID
	})
	if len(out) > c.opts.MaxAlternatives {
		out = out[:c.opts.MaxAlternatives]
	}
	return out, nil
}

// nextSlots tries every moment a blocking assignment ends up to horizonEnd, earliest first.
func (c *Checker) nextSlots(snap fleetSnapshot, candidates []*models.Vehicle, req models.AvailabilityRequest, duration time.Duration, horizonEnd time.Time) []models.NextAvailableSlot {
	candidateIDs := make(map[int64]bool, len(candidates))
	for _, v := range candidates {
		candidateIDs[v.ID] = true
	}

	seen := make(map[int64]bool)
	var starts []time.Time
	addStart := func(t time.Time) {
		if !t.After(req.Start) || t.After(horizonEnd) || seen[t.UnixNano()] {
			return
		}
		seen[t.UnixNano()] = true
		starts = append(starts, t)
	}
	for vehicleID, occ := range snap.occupancy {
		if !candidateIDs[vehicleID] {
			continue
		}
		for _, o := range occ {
			addStart(o.End)
		}
	}
	for _, r := range snap.reservations {
		if r.CategoryID == req.CategoryID {
			addStart(r.End)
		}
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	slots := []models.NextAvailableSlot{}
	var last time.Time
	for _, start := range starts {
		if len(slots) >= c.opts.MaxSlots {
			break
		}
		if !last.IsZero() && start.Sub(last) < slotMergeWindow {
			continue
		}
		end := start.Add(duration)
		free, _ := snap.freeVehicles(candidates, start, end)
		count := len(free) - snap.reservedQuantity(req.CategoryID, start, end)
		if count < req.Quantity {
			continue
		}

		slot := models.NextAvailableSlot{AvailableFrom: start, AvailableCount: count}
		if count == 1 && len(free) == 1 {
			id := free[0].ID
			slot.VehicleID = &id
			slot.LicensePlate = free[0].LicensePlate
		}
		slots = append(slots, slot)
		last = start
	}
	return slots
}

// freeVehicles splits vehicles into those free over [start,end) and a busy count.
func (s fleetSnapshot) freeVehicles(vehicles []*models.Vehicle, start, end time.Time) ([]*models.Vehicle, int) {
	free := make([]*models.Vehicle, 0, len(vehicles))
	busy := 0
	for _, v := range vehicles {
		blocked := false
		for _, o := range s.occupancy[v.ID] {
			if models.Overlaps(start, end, o.Start, o.End) {
				blocked = true
				break
			}
		}
		if blocked {
			busy++
			continue
		}
		free = append(free, v)
	}
	return free, busy
}

func (s fleetSnapshot) reservedQuantity(categoryID int64, start, end time.Time) int {
	total := 0
	for _, r := range s.reservations {
		if r.CategoryID == categoryID && models.Overlaps(start, end, r.Start, r.End) {
			total += r.Quantity
		}
	}
	return total
}
