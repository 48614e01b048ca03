package models

import "fmt"

type BookingStatus string

const (
	StatusDraft         BookingStatus = "DRAFT"
	StatusPending       BookingStatus = "PENDING"
	StatusQuotationSent BookingStatus = "QUOTATION_SENT"
	StatusConfirmed     BookingStatus = "CONFIRMED"
	StatusAssigned      BookingStatus = "ASSIGNED"
	StatusInProgress    BookingStatus = "INPROGRESS"
	StatusCompleted     BookingStatus = "COMPLETED"
	StatusCancelled     BookingStatus = "CANCELLED"
)

var AllStatuses = []BookingStatus{
	StatusDraft, StatusPending, StatusQuotationSent, StatusConfirmed,
	StatusAssigned, StatusInProgress, StatusCompleted, StatusCancelled,
}

func (s BookingStatus) Valid() bool {
	for _, st := range AllStatuses {
		if st == s {
			return true
		}
	}
	return false
}

func (s BookingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Editable reports whether bookings in this status accept changes to trips, vehicles and price.
func (s BookingStatus) Editable() bool {
	switch s {
	case StatusDraft, StatusPending, StatusQuotationSent, StatusConfirmed, StatusAssigned:
		return true
	}
	return false
}

// HoldsCapacity reports whether bookings in this status count against fleet capacity.
func (s BookingStatus) HoldsCapacity() bool {
	switch s {
	case StatusPending, StatusQuotationSent, StatusConfirmed, StatusAssigned, StatusInProgress:
		return true
	}
	return false
}

func (s BookingStatus) Assignable() bool {
	return s == StatusConfirmed || s == StatusAssigned
}

type HireType string

const (
	HireOneWay     HireType = "ONE_WAY"
	HireRoundTrip  HireType = "ROUND_TRIP"
	HireDaily      HireType = "DAILY"
	HireMultiDay   HireType = "MULTI_DAY"
	HireFixedRoute HireType = "FIXED_ROUTE"
)

var hireTypeIDs = map[HireType]int64{
	HireOneWay:     1,
	HireRoundTrip:  2,
	HireDaily:      3,
	HireMultiDay:   4,
	HireFixedRoute: 5,
}

func (h HireType) Valid() bool {
	_, ok := hireTypeIDs[h]
	return ok
}

// ID is the numeric hire type id used by the persistence layer.
func (h HireType) ID() int64 {
	return hireTypeIDs[h]
}

func HireTypeByID(id int64) (HireType, error) {
	for h, hid := range hireTypeIDs {
		if hid == id {
			return h, nil
		}
	}
	return "", fmt.Errorf("unknown hire type id %d", id)
}

// PerDay reports whether the hire is charged per calendar day.
func (h HireType) PerDay() bool {
	return h == HireDaily || h == HireMultiDay
}

type VehicleStatus string

const (
	VehicleAvailable   VehicleStatus = "AVAILABLE"
	VehicleMaintenance VehicleStatus = "MAINTENANCE"
	VehicleInactive    VehicleStatus = "INACTIVE"
)

const (
	// DefaultCooldownKeyTTL keeps cooldown markers a little longer than any sane cooldown
	DefaultCooldownKeyTTL = 60 * 60 // seconds

	// CategoriesCacheTTL is how long the in-memory category list is cached
	CategoriesCacheTTL = 10 * 60 // seconds

	// DefaultAlternativesLimit and DefaultSlotsLimit bound suggestion lists
	DefaultAlternativesLimit = 5
	DefaultSlotsLimit        = 3
)
