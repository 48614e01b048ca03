package models

import "time"

type AvailabilityRequest struct {
	BranchID         int64     `json:"branch_id"`
	CategoryID       int64     `json:"category_id"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	Quantity         int       `json:"quantity"`
	ExcludeBookingID int64     `json:"exclude_booking_id,omitempty"`
}

type AlternativeCategory struct {
	CategoryID     int64  `json:"category_id"`
	Name           string `json:"name"`
	Seats          int    `json:"seats"`
	PricePerKm     int64  `json:"price_per_km"`
	AvailableCount int    `json:"available_count"`
}

type NextAvailableSlot struct {
	AvailableFrom  time.Time `json:"available_from"`
	AvailableCount int       `json:"available_count"`
	VehicleID      *int64    `json:"vehicle_id,omitempty"`
	LicensePlate   string    `json:"license_plate,omitempty"`
}

type AvailabilityResult struct {
	CategoryID      int64                 `json:"category_id"`
	OK              bool                  `json:"ok"`
	AvailableCount  int                   `json:"available_count"`
	NeededCount     int                   `json:"needed_count"`
	TotalCandidates int                   `json:"total_candidate_vehicles"`
	BusyCount       int                   `json:"busy_count"`
	Alternatives    []AlternativeCategory `json:"alternative_categories"`
	NextSlots       []NextAvailableSlot   `json:"next_available_slots"`
}

// VehicleOccupancy is one trip that keeps a specific vehicle busy.
type VehicleOccupancy struct {
	VehicleID int64
	BookingID int64
	Start     time.Time
	End       time.Time
}

// Reservation is category capacity held by a booking that has no vehicle assigned yet.
type Reservation struct {
	BookingID  int64
	CategoryID int64
	Quantity   int
	Start      time.Time
	End        time.Time
}

// Overlaps reports whether [start,end) intersects [s,e).
func Overlaps(start, end, s, e time.Time) bool {
	return s.Before(end) && e.After(start)
}
