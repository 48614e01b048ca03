package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"fleethire/internal/config"
	"fleethire/internal/domain"
	"fleethire/internal/models"
)

// CategoryResolver looks up vehicle categories; inactive or unknown ids return domain.ErrNotFound.
type CategoryResolver interface {
	GetCategoryByID(ctx context.Context, id int64) (*models.VehicleCategory, error)
}

type Rates struct {
	Holiday             float64
	Weekend             float64
	RoundTripMultiplier float64
}

func RatesFromConfig(cfg config.PricingConfig) Rates {
	return Rates{
		Holiday:             cfg.HolidayRate,
		Weekend:             cfg.WeekendRate,
		RoundTripMultiplier: cfg.RoundTripMultiplier,
	}
}

// Calculator is the single source of truth for booking prices.
type Calculator struct {
	categories CategoryResolver
	rates      Rates
}

func NewCalculator(categories CategoryResolver, rates Rates) *Calculator {
	if rates.RoundTripMultiplier <= 0 {
		rates.RoundTripMultiplier = 1.5
	}
	return &Calculator{categories: categories, rates: rates}
}

func (c *Calculator) Calculate(ctx context.Context, in models.PriceInput) (*models.Quote, error) {
	if len(in.Vehicles) == 0 {
		return nil, domain.ValidationError{Field: "vehicles", Rule: domain.RuleRequired, Msg: "at least one vehicle category is required"}
	}
	if in.DistanceKm < 0 || math.IsNaN(in.DistanceKm) {
		return nil, domain.ValidationError{Field: "distance_km", Rule: domain.RuleInvalid, Msg: "must be non-negative"}
	}
	if !in.HireType.Valid() {
		return nil, domain.ValidationError{Field: "hire_type", Rule: domain.RuleInvalid, Msg: fmt.Sprintf("unknown hire type %q", in.HireType)}
	}

	quote := &models.Quote{}
	for i, sel := range models.MergeSelections(in.Vehicles) {
		if sel.Quantity <= 0 {
			return nil, domain.ValidationError{
				Field: fmt.Sprintf("vehicles[%d].quantity", i),
				Rule:  domain.RuleNonPositive,
				Msg:   "must be at least 1",
			}
		}

		cat, err := c.categories.GetCategoryByID(ctx, sel.CategoryID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, invalidCategory(i, sel.CategoryID)
			}
			return nil, fmt.Errorf("failed to resolve category %d: %w", sel.CategoryID, err)
		}
		if !cat.IsActive {
			return nil, invalidCategory(i, sel.CategoryID)
		}

		unit := c.unitPrice(cat, in)
		// rounded once per line, not per vehicle
		amount := roundUnit(unit * float64(sel.Quantity))
		quote.Lines = append(quote.Lines, models.QuoteLine{
			CategoryID:   cat.ID,
			CategoryName: cat.Name,
			Quantity:     sel.Quantity,
			UnitPrice:    roundUnit(unit),
			Amount:       amount,
		})
		quote.Subtotal += amount
	}

	if in.IsHoliday {
		quote.HolidaySurcharge = roundUnit(float64(quote.Subtotal) * c.rates.Holiday)
	}
	if in.IsWeekend {
		quote.WeekendSurcharge = roundUnit(float64(quote.Subtotal) * c.rates.Weekend)
	}
	quote.Total = quote.Subtotal + quote.HolidaySurcharge + quote.WeekendSurcharge
	if quote.Total < 0 {
		quote.Total = 0
	}
	return quote, nil
}

// unitPrice is the price of one vehicle of the category before surcharges.
func (c *Calculator) unitPrice(cat *models.VehicleCategory, in models.PriceInput) float64 {
	distance := float64(cat.PricePerKm) * in.DistanceKm
	base := float64(cat.BaseFee)

	var price float64
	switch {
	case in.HireType.PerDay() && cat.SameDayFixedPrice > 0:
		days := CalendarDays(in.StartTime, in.EndTime)
		price = base + distance*c.rates.RoundTripMultiplier + float64(cat.SameDayFixedPrice)*float64(days)
	case in.HireType == models.HireRoundTrip || in.HireType.PerDay():
		price = base + distance*c.rates.RoundTripMultiplier
	default:
		price = base + distance
	}

	if in.UseHighway {
		price += float64(cat.HighwayFee)
	}
	return price
}

// CalendarDays counts the calendar days touched by [start,end], minimum 1.
func CalendarDays(start, end time.Time) int {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return 1
	}
	end = end.In(start.Location())
	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	days := int(endDay.Sub(startDay).Hours()/24) + 1
	if days < 1 {
		return 1
	}
	return days
}

// ApplyDiscount returns the discount amount and the resulting total for a percentage discount.
func ApplyDiscount(estimated int64, percent float64) (discount, total int64) {
	if percent > 0 {
		discount = roundUnit(float64(estimated) * percent / 100)
	}
	total = estimated - discount
	if total < 0 {
		total = 0
	}
	return discount, total
}

// roundUnit rounds half-up to a whole currency unit and clamps at zero.
func roundUnit(v float64) int64 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return int64(math.Floor(v + 0.5))
}

func invalidCategory(idx int, id int64) error {
	return domain.ValidationError{
		Field: fmt.Sprintf("vehicles[%d].category_id", idx),
		Rule:  domain.RuleUnknown,
		Msg:   fmt.Sprintf("category %d is unknown or inactive", id),
	}
}
