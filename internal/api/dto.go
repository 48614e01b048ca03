package api

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"fleethire/internal/domain"
	"fleethire/internal/models"
	"fleethire/internal/service"

	"github.com/go-playground/validator/v10"
)

type errorResponse struct {
	Error        string                     `json:"error"`
	Field        string                     `json:"field,omitempty"`
	Rule         string                     `json:"rule,omitempty"`
	RetryAfter   int                        `json:"retry_after_seconds,omitempty"`
	Availability *models.AvailabilityResult `json:"availability,omitempty"`
}

type customerDTO struct {
	FullName string `json:"full_name" validate:"max=200"`
	Phone    string `json:"phone" validate:"max=32"`
	Email    string `json:"email" validate:"omitempty,email"`
}

func (c customerDTO) model() models.Customer {
	return models.Customer{FullName: c.FullName, Phone: c.Phone, Email: c.Email}
}

type tripDTO struct {
	StartLocation string    `json:"start_location" validate:"max=300"`
	EndLocation   string    `json:"end_location" validate:"max=300"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	DistanceKm    float64   `json:"distance_km" validate:"gte=0"`
}

type selectionDTO struct {
	CategoryID int64 `json:"category_id" validate:"required,gt=0"`
	Quantity   int   `json:"quantity" validate:"required,gt=0,lte=100"`
}

func trips(in []tripDTO) []models.Trip {
	if in == nil {
		return nil
	}
	out := make([]models.Trip, 0, len(in))
	for _, t := range in {
		out = append(out, models.Trip{
			StartLocation: t.StartLocation,
			EndLocation:   t.EndLocation,
			StartTime:     t.StartTime,
			EndTime:       t.EndTime,
			DistanceKm:    t.DistanceKm,
		})
	}
	return out
}

func selections(in []selectionDTO) []models.VehicleSelection {
	if in == nil {
		return nil
	}
	out := make([]models.VehicleSelection, 0, len(in))
	for _, s := range in {
		out = append(out, models.VehicleSelection{CategoryID: s.CategoryID, Quantity: s.Quantity})
	}
	return out
}

type createBookingRequest struct {
	Customer        customerDTO    `json:"customer"`
	BranchID        int64          `json:"branch_id" validate:"required,gt=0"`
	HireType        string         `json:"hire_type" validate:"required,hiretype"`
	Trips           []tripDTO      `json:"trips" validate:"max=10,dive"`
	Vehicles        []selectionDTO `json:"vehicles" validate:"max=20,dive"`
	DistanceKm      float64        `json:"distance_km" validate:"gte=0"`
	UseHighway      bool           `json:"use_highway"`
	IsHoliday       bool           `json:"is_holiday"`
	IsWeekend       bool           `json:"is_weekend"`
	DiscountPercent float64        `json:"discount_percent" validate:"gte=0,lte=100"`
	DepositAmount   int64          `json:"deposit_amount" validate:"gte=0"`
	TotalOverride   *int64         `json:"total_override" validate:"omitempty,gte=0"`
	Note            string         `json:"note" validate:"max=2000"`
	Submit          bool           `json:"submit"`
}

func (r createBookingRequest) draft() *models.BookingDraft {
	return &models.BookingDraft{
		Customer:        r.Customer.model(),
		BranchID:        r.BranchID,
		HireType:        models.HireType(r.HireType),
		Trips:           trips(r.Trips),
		Vehicles:        selections(r.Vehicles),
		DistanceKm:      r.DistanceKm,
		UseHighway:      r.UseHighway,
		IsHoliday:       r.IsHoliday,
		IsWeekend:       r.IsWeekend,
		DiscountPercent: r.DiscountPercent,
		DepositAmount:   r.DepositAmount,
		TotalOverride:   r.TotalOverride,
		Note:            r.Note,
		Submit:          r.Submit,
	}
}

type updateBookingRequest struct {
	Customer        *customerDTO   `json:"customer"`
	HireType        *string        `json:"hire_type" validate:"omitempty,hiretype"`
	Trips           []tripDTO      `json:"trips" validate:"omitempty,max=10,dive"`
	Vehicles        []selectionDTO `json:"vehicles" validate:"omitempty,max=20,dive"`
	DistanceKm      *float64       `json:"distance_km" validate:"omitempty,gte=0"`
	UseHighway      *bool          `json:"use_highway"`
	IsHoliday       *bool          `json:"is_holiday"`
	IsWeekend       *bool          `json:"is_weekend"`
	DiscountPercent *float64       `json:"discount_percent" validate:"omitempty,gte=0,lte=100"`
	DepositAmount   *int64         `json:"deposit_amount" validate:"omitempty,gte=0"`
	TotalOverride   *int64         `json:"total_override" validate:"omitempty,gte=0"`
	Note            *string        `json:"note" validate:"omitempty,max=2000"`
}

func (r updateBookingRequest) patch() *models.BookingPatch {
	p := &models.BookingPatch{
		Trips:           trips(r.Trips),
		Vehicles:        selections(r.Vehicles),
		DistanceKm:      r.DistanceKm,
		UseHighway:      r.UseHighway,
		IsHoliday:       r.IsHoliday,
		IsWeekend:       r.IsWeekend,
		DiscountPercent: r.DiscountPercent,
		DepositAmount:   r.DepositAmount,
		TotalOverride:   r.TotalOverride,
		Note:            r.Note,
	}
	if r.Customer != nil {
		c := r.Customer.model()
		p.Customer = &c
	}
	if r.HireType != nil {
		h := models.HireType(*r.HireType)
		p.HireType = &h
	}
	return p
}

type quoteRequest struct {
	Vehicles   []selectionDTO `json:"vehicles" validate:"required,min=1,max=20,dive"`
	DistanceKm float64        `json:"distance_km" validate:"gte=0"`
	HireType   string         `json:"hire_type" validate:"required,hiretype"`
	UseHighway bool           `json:"use_highway"`
	IsHoliday  bool           `json:"is_holiday"`
	IsWeekend  bool           `json:"is_weekend"`
	StartTime  time.Time      `json:"start_time"`
	EndTime    time.Time      `json:"end_time"`
}

func (r quoteRequest) input() models.PriceInput {
	return models.PriceInput{
		Vehicles:   selections(r.Vehicles),
		DistanceKm: r.DistanceKm,
		HireType:   models.HireType(r.HireType),
		UseHighway: r.UseHighway,
		IsHoliday:  r.IsHoliday,
		IsWeekend:  r.IsWeekend,
		StartTime:  r.StartTime,
		EndTime:    r.EndTime,
	}
}

type availabilityRequest struct {
	BranchID         int64     `json:"branch_id" validate:"required,gt=0"`
	CategoryID       int64     `json:"category_id" validate:"required,gt=0"`
	Start            time.Time `json:"start" validate:"required"`
	End              time.Time `json:"end" validate:"required"`
	Quantity         int       `json:"quantity" validate:"required,gt=0,lte=100"`
	ExcludeBookingID int64     `json:"exclude_booking_id" validate:"gte=0"`
}

type paymentRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

type assignRequest struct {
	DriverID  *int64  `json:"driver_id" validate:"omitempty,gt=0"`
	VehicleID *int64  `json:"vehicle_id" validate:"omitempty,gt=0"`
	TripIDs   []int64 `json:"trip_ids" validate:"omitempty,max=10,dive,gt=0"`
}

// bookingResponse adds the derived status shown to users.
type bookingResponse struct {
	models.Booking
	EffectiveStatus models.BookingStatus `json:"effective_status"`
}

func newBookingResponse(b *models.Booking) bookingResponse {
	return bookingResponse{Booking: *b, EffectiveStatus: service.EffectiveStatus(b)}
}

type bookingPageResponse struct {
	Items    []bookingResponse `json:"items"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

type distanceResponse struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	DistanceKm float64 `json:"distance_km"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("hiretype", func(fl validator.FieldLevel) bool {
		return models.HireType(fl.Field().String()).Valid()
	})
	return v
}

// validateStruct converts the first failed rule into a ValidationError.
func (s *HTTPServer) validateStruct(dst any) error {
	err := s.validate.Struct(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.ValidationError{Field: "body", Rule: domain.RuleInvalid, Msg: err.Error(), Err: err}
	}

	fe := verrs[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	return domain.ValidationError{
		Field: field,
		Rule:  fe.Tag(),
		Msg:   validationMessage(fe),
		Err:   err,
	}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "hiretype":
		return "unknown hire type"
	case "email":
		return "must be a valid email"
	case "gt", "gte", "lt", "lte", "min", "max":
		return "must be " + fe.Tag() + " " + fe.Param()
	}
	return "is invalid"
}
