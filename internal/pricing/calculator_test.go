package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"fleethire/internal/domain"
	"fleethire/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCategories map[int64]*models.VehicleCategory

func (s staticCategories) GetCategoryByID(_ context.Context, id int64) (*models.VehicleCategory, error) {
	c, ok := s[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

type failingCategories struct{}

func (failingCategories) GetCategoryByID(context.Context, int64) (*models.VehicleCategory, error) {
	return nil, errors.New("db is down")
}

func testCategories() staticCategories {
	return staticCategories{
		1: {ID: 1, Name: "Sedan 4", Seats: 4, BaseFee: 0, PricePerKm: 10000, IsActive: true},
		2: {ID: 2, Name: "Van 16", Seats: 16, BaseFee: 200000, PricePerKm: 15000, SameDayFixedPrice: 1500000, HighwayFee: 100000, IsActive: true},
		3: {ID: 3, Name: "Retired", Seats: 29, PricePerKm: 20000, IsActive: false},
	}
}

func defaultRates() Rates {
	return Rates{Holiday: 0.25, Weekend: 0.20, RoundTripMultiplier: 1.5}
}

func TestCalculate_SurchargesAreAdditive(t *testing.T) {
	calc := NewCalculator(testCategories(), defaultRates())

	quote, err := calc.Calculate(context.Background(), models.PriceInput{
		Vehicles:   []models.VehicleSelection{{CategoryID: 1, Quantity: 1}},
		DistanceKm: 100,
		HireType:   models.HireOneWay,
		IsHoliday:  true,
		IsWeekend:  true,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1000000), quote.Subtotal)
	assert.Equal(t, int64(250000), quote.HolidaySurcharge)
	assert.Equal(t, int64(200000), quote.WeekendSurcharge)
	assert.Equal(t, int64(1450000), quote.Total)
}

func TestCalculate_HireTypes(t *testing.T) {
	calc := NewCalculator(testCategories(), defaultRates())
	start := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		input    models.PriceInput
		expected int64
	}{
		{
			name: "one way",
			input: models.PriceInput{
				Vehicles: []models.VehicleSelection{{CategoryID: 2, Quantity: 1}}, DistanceKm: 10, HireType: models.HireOneWay,
			},
			expected: 200000 + 150000,
		},
		{
			name: "round trip",
			input: models.PriceInput{
				Vehicles: []models.VehicleSelection{{CategoryID: 2, Quantity: 2}}, DistanceKm: 10, HireType: models.HireRoundTrip,
			},
			expected: 2 * (200000 + 225000),
		},
		{
			name: "multi day with fixed day price",
			input: models.PriceInput{
				Vehicles: []models.VehicleSelection{{CategoryID: 2, Quantity: 1}}, DistanceKm: 10, HireType: models.HireMultiDay,
				StartTime: start, EndTime: start.Add(50 * time.Hour),
			},
			expected: 200000 + 225000 + 3*1500000,
		},
		{
			name: "daily without fixed day price falls back to round trip",
			input: models.PriceInput{
				Vehicles: []models.VehicleSelection{{CategoryID: 1, Quantity: 1}}, DistanceKm: 10, HireType: models.HireDaily,
				StartTime: start, EndTime: start.Add(10 * time.Hour),
			},
			expected: 150000,
		},
		{
			name: "highway fee",
			input: models.PriceInput{
				Vehicles: []models.VehicleSelection{{CategoryID: 2, Quantity: 1}}, DistanceKm: 10, HireType: models.HireFixedRoute, UseHighway: true,
			},
			expected: 200000 + 150000 + 100000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quote, err := calc.Calculate(context.Background(), tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, quote.Total)
		})
	}
}

func TestCalculate_LineRoundedOnce(t *testing.T) {
	calc := NewCalculator(staticCategories{
		4: {ID: 4, Name: "Shuttle", Seats: 9, PricePerKm: 333, IsActive: true},
	}, defaultRates())

	quote, err := calc.Calculate(context.Background(), models.PriceInput{
		Vehicles:   []models.VehicleSelection{{CategoryID: 4, Quantity: 3}},
		DistanceKm: 1.5,
		HireType:   models.HireOneWay,
	})
	require.NoError(t, err)
	require.Len(t, quote.Lines, 1)

	// 499.5 per vehicle, 1498.5 for the line
	assert.Equal(t, int64(500), quote.Lines[0].UnitPrice)
	assert.Equal(t, int64(1499), quote.Lines[0].Amount)
	assert.Equal(t, int64(1499), quote.Subtotal)
	assert.Equal(t, int64(1499), quote.Total)
}

func TestCalculate_MergesDuplicateCategories(t *testing.T) {
	calc := NewCalculator(testCategories(), defaultRates())

	quote, err := calc.Calculate(context.Background(), models.PriceInput{
		Vehicles:   []models.VehicleSelection{{CategoryID: 1, Quantity: 1}, {CategoryID: 1, Quantity: 2}},
		DistanceKm: 1,
		HireType:   models.HireOneWay,
	})
	require.NoError(t, err)
	require.Len(t, quote.Lines, 1)
	assert.Equal(t, 3, quote.Lines[0].Quantity)
	assert.Equal(t, int64(30000), quote.Total)
}

func TestCalculate_Rejections(t *testing.T) {
	calc := NewCalculator(testCategories(), defaultRates())
	ctx := context.Background()

	_, err := calc.Calculate(ctx, models.PriceInput{HireType: models.HireOneWay})
	assert.True(t, domain.IsValidation(err))

	_, err = calc.Calculate(ctx, models.PriceInput{
		Vehicles: []models.VehicleSelection{{CategoryID: 3, Quantity: 1}}, HireType: models.HireOneWay,
	})
	var vErr domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "vehicles[0].category_id", vErr.Field)

	_, err = calc.Calculate(ctx, models.PriceInput{
		Vehicles: []models.VehicleSelection{{CategoryID: 99, Quantity: 1}}, HireType: models.HireOneWay,
	})
	assert.True(t, domain.IsValidation(err))

	_, err = calc.Calculate(ctx, models.PriceInput{
		Vehicles: []models.VehicleSelection{{CategoryID: 1, Quantity: 0}}, HireType: models.HireOneWay,
	})
	assert.True(t, domain.IsValidation(err))

	_, err = calc.Calculate(ctx, models.PriceInput{
		Vehicles: []models.VehicleSelection{{CategoryID: 1, Quantity: 1}}, HireType: models.HireOneWay, DistanceKm: -1,
	})
	assert.True(t, domain.IsValidation(err))

	_, err = NewCalculator(failingCategories{}, defaultRates()).Calculate(ctx, models.PriceInput{
		Vehicles: []models.VehicleSelection{{CategoryID: 1, Quantity: 1}}, HireType: models.HireOneWay,
	})
	assert.Error(t, err)
	assert.False(t, domain.IsValidation(err))
}

func TestApplyDiscount(t *testing.T) {
	discount, total := ApplyDiscount(1450000, 10)
	assert.Equal(t, int64(145000), discount)
	assert.Equal(t, int64(1305000), total)

	discount, total = ApplyDiscount(1000, 150)
	assert.Equal(t, int64(1500), discount)
	assert.Equal(t, int64(0), total)

	discount, total = ApplyDiscount(999, 0)
	assert.Zero(t, discount)
	assert.Equal(t, int64(999), total)
}

func TestRoundingIsHalfUp(t *testing.T) {
	assert.Equal(t, int64(3), roundUnit(2.5))
	assert.Equal(t, int64(2), roundUnit(2.49))
	assert.Equal(t, int64(0), roundUnit(-10))
}

func TestCalendarDays(t *testing.T) {
	start := time.Date(2025, 6, 2, 22, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, CalendarDays(start, start.Add(time.Hour)))
	assert.Equal(t, 2, CalendarDays(start, start.Add(3*time.Hour)))
	assert.Equal(t, 1, CalendarDays(start, time.Time{}))
}
