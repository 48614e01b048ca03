package models

import "time"

type PriceInput struct {
	Vehicles   []VehicleSelection `json:"vehicles"`
	DistanceKm float64            `json:"distance_km"`
	HireType   HireType           `json:"hire_type"`
	UseHighway bool               `json:"use_highway"`
	IsHoliday  bool               `json:"is_holiday"`
	IsWeekend  bool               `json:"is_weekend"`
	StartTime  time.Time          `json:"start_time"`
	EndTime    time.Time          `json:"end_time"`
}

type QuoteLine struct {
	CategoryID   int64  `json:"category_id"`
	CategoryName string `json:"category_name"`
	Quantity     int    `json:"quantity"`
	UnitPrice    int64  `json:"unit_price"`
	Amount       int64  `json:"amount"`
}

type Quote struct {
	Lines            []QuoteLine `json:"lines"`
	Subtotal         int64       `json:"subtotal"`
	HolidaySurcharge int64       `json:"holiday_surcharge"`
	WeekendSurcharge int64       `json:"weekend_surcharge"`
	Total            int64       `json:"total"`
}
