package models

import "time"

type Branch struct {
	ID       int64  `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Address  string `yaml:"address" json:"address,omitempty"`
	IsActive bool   `yaml:"is_active" json:"is_active"`
}

type VehicleCategory struct {
	ID                int64     `yaml:"id" json:"id"`
	Name              string    `yaml:"name" json:"name"`
	Seats             int       `yaml:"seats" json:"seats"`
	BaseFee           int64     `yaml:"base_fee" json:"base_fee"`
	PricePerKm        int64     `yaml:"price_per_km" json:"price_per_km"`
	SameDayFixedPrice int64     `yaml:"same_day_fixed_price" json:"same_day_fixed_price"`
	HighwayFee        int64     `yaml:"highway_fee" json:"highway_fee"`
	IsActive          bool      `yaml:"is_active" json:"is_active"`
	CreatedAt         time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt         time.Time `yaml:"updated_at" json:"updated_at"`
}

type Vehicle struct {
	ID           int64         `yaml:"id" json:"id"`
	BranchID     int64         `yaml:"branch_id" json:"branch_id"`
	CategoryID   int64         `yaml:"category_id" json:"category_id"`
	LicensePlate string        `yaml:"license_plate" json:"license_plate"`
	Status       VehicleStatus `yaml:"status" json:"status"`
}

type Driver struct {
	ID       int64  `yaml:"id" json:"id"`
	BranchID int64  `yaml:"branch_id" json:"branch_id"`
	FullName string `yaml:"full_name" json:"full_name"`
	Phone    string `yaml:"phone" json:"phone"`
	IsActive bool   `yaml:"is_active" json:"is_active"`
}
