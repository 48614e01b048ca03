package models

import (
	"strings"
	"time"
)

type Customer struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Email    string `json:"email,omitempty"`
}

type Trip struct {
	ID            int64     `json:"id"`
	BookingID     int64     `json:"booking_id"`
	StartLocation string    `json:"start_location"`
	EndLocation   string    `json:"end_location"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	DistanceKm    float64   `json:"distance_km"`
	DriverID      *int64    `json:"driver_id,omitempty"`
	VehicleID     *int64    `json:"vehicle_id,omitempty"`
}

// Duration returns zero for trips without an end time.
func (t Trip) Duration() time.Duration {
	if t.EndTime.IsZero() || !t.EndTime.After(t.StartTime) {
		return 0
	}
	return t.EndTime.Sub(t.StartTime)
}

type VehicleSelection struct {
	CategoryID int64 `json:"category_id"`
	Quantity   int   `json:"quantity"`
}

type Booking struct {
	ID              int64              `json:"id"`
	Customer        Customer           `json:"customer"`
	BranchID        int64              `json:"branch_id"`
	HireType        HireType           `json:"hire_type"`
	Trips           []Trip             `json:"trips"`
	Vehicles        []VehicleSelection `json:"vehicles"`
	DistanceKm      float64            `json:"distance_km"`
	UseHighway      bool               `json:"use_highway"`
	IsHoliday       bool               `json:"is_holiday"`
	IsWeekend       bool               `json:"is_weekend"`
	EstimatedCost   int64              `json:"estimated_cost"`
	DiscountPercent float64            `json:"discount_percent"`
	DiscountAmount  int64              `json:"discount_amount"`
	TotalCost       int64              `json:"total_cost"`
	PriceOverridden bool               `json:"price_overridden"`
	DepositAmount   int64              `json:"deposit_amount"`
	PaidAmount      int64              `json:"paid_amount"`
	Note            string             `json:"note,omitempty"`
	Status          BookingStatus      `json:"status"`
	LastAssignedAt  *time.Time         `json:"last_assigned_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	Version         int64              `json:"version"`
}

// EarliestStart returns the start of the first trip, or zero time without trips.
func (b *Booking) EarliestStart() time.Time {
	var earliest time.Time
	for _, t := range b.Trips {
		if t.StartTime.IsZero() {
			continue
		}
		if earliest.IsZero() || t.StartTime.Before(earliest) {
			earliest = t.StartTime
		}
	}
	return earliest
}

// LatestEnd returns the end of the last trip.
func (b *Booking) LatestEnd() time.Time {
	var latest time.Time
	for _, t := range b.Trips {
		end := t.EndTime
		if end.IsZero() {
			end = t.StartTime
		}
		if end.After(latest) {
			latest = end
		}
	}
	return latest
}

func (b *Booking) HasAssignments() bool {
	for _, t := range b.Trips {
		if t.DriverID != nil || t.VehicleID != nil {
			return true
		}
	}
	return false
}

func (b *Booking) TripByID(id int64) (*Trip, bool) {
	for i := range b.Trips {
		if b.Trips[i].ID == id {
			return &b.Trips[i], true
		}
	}
	return nil, false
}

// MergeSelections folds repeated category ids into one selection, keeping first-seen order.
func MergeSelections(in []VehicleSelection) []VehicleSelection {
	if len(in) == 0 {
		return nil
	}
	idx := make(map[int64]int, len(in))
	out := make([]VehicleSelection, 0, len(in))
	for _, s := range in {
		if i, ok := idx[s.CategoryID]; ok {
			out[i].Quantity += s.Quantity
			continue
		}
		idx[s.CategoryID] = len(out)
		out = append(out, s)
	}
	return out
}

// CustomerProfile is the prefill data returned for a known phone number.
type CustomerProfile struct {
	Customer
	LastBookingID int64     `json:"last_booking_id"`
	LastBranchID  int64     `json:"last_branch_id"`
	LastBookedAt  time.Time `json:"last_booked_at"`
}

type BookingFilter struct {
	BranchID int64
	Status   BookingStatus
	From     time.Time
	To       time.Time
	Keyword  string
	Page     int
	PageSize int
}

// NormalizedKeyword is the lower-cased trimmed keyword.
func (f BookingFilter) NormalizedKeyword() string {
	return strings.ToLower(strings.TrimSpace(f.Keyword))
}

type BookingPage struct {
	Items    []Booking `json:"items"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}

type RetentionPolicy string

const (
	RetentionFull    RetentionPolicy = "FULL"
	RetentionPartial RetentionPolicy = "PARTIAL"
	RetentionNone    RetentionPolicy = "NONE"
)

type CancellationOutcome struct {
	BookingID        int64           `json:"booking_id"`
	Policy           RetentionPolicy `json:"policy"`
	DepositAmount    int64           `json:"deposit_amount"`
	Retained         int64           `json:"retained"`
	Refunded         int64           `json:"refunded"`
	HoursBeforeStart float64         `json:"hours_before_start"`
	AlreadyCancelled bool            `json:"already_cancelled,omitempty"`
}

// BookingDraft is the intake form for a new booking.
type BookingDraft struct {
	Customer        Customer           `json:"customer"`
	BranchID        int64              `json:"branch_id"`
	HireType        HireType           `json:"hire_type"`
	Trips           []Trip             `json:"trips"`
	Vehicles        []VehicleSelection `json:"vehicles"`
	DistanceKm      float64            `json:"distance_km"`
	UseHighway      bool               `json:"use_highway"`
	IsHoliday       bool               `json:"is_holiday"`
	IsWeekend       bool               `json:"is_weekend"`
	DiscountPercent float64            `json:"discount_percent"`
	DepositAmount   int64              `json:"deposit_amount"`
	TotalOverride   *int64             `json:"total_override,omitempty"`
	Note            string             `json:"note,omitempty"`
	Submit          bool               `json:"submit"`
}

// BookingPatch carries the fields to change; nil means unchanged.
type BookingPatch struct {
	Customer        *Customer          `json:"customer,omitempty"`
	HireType        *HireType          `json:"hire_type,omitempty"`
	Trips           []Trip             `json:"trips,omitempty"`
	Vehicles        []VehicleSelection `json:"vehicles,omitempty"`
	DistanceKm      *float64           `json:"distance_km,omitempty"`
	UseHighway      *bool              `json:"use_highway,omitempty"`
	IsHoliday       *bool              `json:"is_holiday,omitempty"`
	IsWeekend       *bool              `json:"is_weekend,omitempty"`
	DiscountPercent *float64           `json:"discount_percent,omitempty"`
	DepositAmount   *int64             `json:"deposit_amount,omitempty"`
	TotalOverride   *int64             `json:"total_override,omitempty"`
	Note            *string            `json:"note,omitempty"`
}

// TouchesFleet reports whether the patch changes anything availability depends on.
func (p *BookingPatch) TouchesFleet() bool {
	return p.Trips != nil || p.Vehicles != nil || p.HireType != nil
}

type AssignmentRequest struct {
	BookingID int64   `json:"booking_id"`
	DriverID  *int64  `json:"driver_id,omitempty"`
	VehicleID *int64  `json:"vehicle_id,omitempty"`
	TripIDs   []int64 `json:"trip_ids,omitempty"`
}

type AssignmentResult struct {
	Booking       *Booking  `json:"booking"`
	AssignedTrips []int64   `json:"assigned_trips"`
	AssignedAt    time.Time `json:"assigned_at"`
}
