package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"fleethire/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App          AppConfig          `yaml:"app"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Backup       BackupConfig       `yaml:"backup"`
	Monitoring   MonitoringConfig   `yaml:"monitoring"`
	Logging      LoggingConfig      `yaml:"logging"`
	API          APIConfig          `yaml:"api"`
	Booking      BookingConfig      `yaml:"booking"`
	Pricing      PricingConfig      `yaml:"pricing"`
	Availability AvailabilityConfig `yaml:"availability"`
	Distance     DistanceConfig     `yaml:"distance"`
	Events       EventsConfig       `yaml:"events"`
	Fleet        FleetConfig        `yaml:"fleet"`
}

// FleetConfig seeds the directory tables on startup.
type FleetConfig struct {
	Branches   []models.Branch          `yaml:"branches"`
	Categories []models.VehicleCategory `yaml:"categories"`
	Vehicles   []models.Vehicle         `yaml:"vehicles"`
	Drivers    []models.Driver          `yaml:"drivers"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// BookingConfig holds the lifecycle rules that operators tune per deployment.
type BookingConfig struct {
	EditLeadTime               time.Duration `yaml:"edit_lead_time"`
	AssignmentCooldown         time.Duration `yaml:"assignment_cooldown"`
	OneWayDefaultDuration      time.Duration `yaml:"one_way_default_duration"`
	FullRetentionWithin        time.Duration `yaml:"full_retention_within"`
	PartialRetentionWithin     time.Duration `yaml:"partial_retention_within"`
	PartialRetentionRate       float64       `yaml:"partial_retention_rate"`
	RequireDepositBeforeAssign bool          `yaml:"require_deposit_before_assign"`
	DefaultPageSize            int           `yaml:"default_page_size"`
	MaxPageSize                int           `yaml:"max_page_size"`
}

type PricingConfig struct {
	HolidayRate         float64 `yaml:"holiday_rate"`
	WeekendRate         float64 `yaml:"weekend_rate"`
	RoundTripMultiplier float64 `yaml:"round_trip_multiplier"`
}

type AvailabilityConfig struct {
	MaxAlternatives int           `yaml:"max_alternatives"`
	MaxSlots        int           `yaml:"max_slots"`
	FullDayHire     time.Duration `yaml:"full_day_hire"`
	SlotHorizon     time.Duration `yaml:"slot_horizon"`
}

type DistanceConfig struct {
	GoogleAPIKey string        `yaml:"google_api_key"`
	Timeout      time.Duration `yaml:"timeout"`
	Routes       []KnownRoute  `yaml:"routes"`
}

// KnownRoute is a fixed distance that wins over the maps lookup.
type KnownRoute struct {
	From string  `yaml:"from"`
	To   string  `yaml:"to"`
	Km   float64 `yaml:"km"`
}

type EventsConfig struct {
	AMQPURL           string        `yaml:"amqp_url"`
	Exchange          string        `yaml:"exchange"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay"`
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; a missing file is not an error
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Pricing.HolidayRate < 0 || c.Pricing.WeekendRate < 0 {
		return errors.New("pricing surcharge rates must be non-negative")
	}
	if c.Pricing.RoundTripMultiplier <= 0 {
		return errors.New("pricing round_trip_multiplier must be positive")
	}
	if c.Booking.PartialRetentionRate < 0 || c.Booking.PartialRetentionRate > 1 {
		return fmt.Errorf("booking partial_retention_rate must be within [0,1], got %v", c.Booking.PartialRetentionRate)
	}
	if c.Booking.FullRetentionWithin > c.Booking.PartialRetentionWithin {
		return errors.New("booking full_retention_within must not exceed partial_retention_within")
	}

	for _, r := range c.Distance.Routes {
		if r.From == "" || r.To == "" || r.Km <= 0 {
			return fmt.Errorf("distance route %q -> %q needs both ends and a positive km", r.From, r.To)
		}
	}

	if err := ValidateAPIKeys(c.API.Auth.APIKeys); err != nil {
		return err
	}

	return ValidateFleet(c.Fleet)
}

// ValidateFleet rejects zero and duplicate ids and vehicles pointing at unknown categories.
func ValidateFleet(f FleetConfig) error {
	branchIDs := make(map[int64]bool)
	for _, b := range f.Branches {
		if b.ID == 0 {
			return fmt.Errorf("branch '%s' has invalid ID 0", b.Name)
		}
		if branchIDs[b.ID] {
			return fmt.Errorf("duplicate branch ID found: %d", b.ID)
		}
		branchIDs[b.ID] = true
	}

	categoryIDs := make(map[int64]bool)
	for _, c := range f.Categories {
		if c.ID == 0 {
			return fmt.Errorf("category '%s' has invalid ID 0", c.Name)
		}
		if categoryIDs[c.ID] {
			return fmt.Errorf("duplicate category ID found: %d", c.ID)
		}
		if c.PricePerKm < 0 || c.BaseFee < 0 {
			return fmt.Errorf("category %d has negative pricing", c.ID)
		}
		categoryIDs[c.ID] = true
	}

	vehicleIDs := make(map[int64]bool)
	for _, v := range f.Vehicles {
		if v.ID == 0 {
			return fmt.Errorf("vehicle '%s' has invalid ID 0", v.LicensePlate)
		}
		if vehicleIDs[v.ID] {
			return fmt.Errorf("duplicate vehicle ID found: %d", v.ID)
		}
		if !categoryIDs[v.CategoryID] {
			return fmt.Errorf("vehicle %d references unknown category %d", v.ID, v.CategoryID)
		}
		if len(branchIDs) > 0 && !branchIDs[v.BranchID] {
			return fmt.Errorf("vehicle %d references unknown branch %d", v.ID, v.BranchID)
		}
		vehicleIDs[v.ID] = true
	}

	driverIDs := make(map[int64]bool)
	for _, d := range f.Drivers {
		if d.ID == 0 {
			return fmt.Errorf("driver '%s' has invalid ID 0", d.FullName)
		}
		if driverIDs[d.ID] {
			return fmt.Errorf("duplicate driver ID found: %d", d.ID)
		}
		driverIDs[d.ID] = true
	}
	return nil
}

func ValidateAPIKeys(keys []APIClientKey) error {
	seen := make(map[string]bool)
	for _, k := range keys {
		if k.Key == "" {
			return fmt.Errorf("api key '%s' is empty", k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate api key for client '%s'", k.Name)
		}
		seen[k.Key] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	// auth enabled by default when API is enabled
	if !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.Backup.Interval == 0 {
		c.Backup.Interval = 24 * time.Hour
	}
	if c.Backup.RetentionDays == 0 {
		c.Backup.RetentionDays = 7
	}

	// Booking defaults
	if c.Booking.EditLeadTime == 0 {
		c.Booking.EditLeadTime = 12 * time.Hour
	}
	if c.Booking.AssignmentCooldown == 0 {
		c.Booking.AssignmentCooldown = 5 * time.Minute
	}
	if c.Booking.OneWayDefaultDuration == 0 {
		c.Booking.OneWayDefaultDuration = 2 * time.Hour
	}
	if c.Booking.FullRetentionWithin == 0 {
		c.Booking.FullRetentionWithin = 24 * time.Hour
	}
	if c.Booking.PartialRetentionWithin == 0 {
		c.Booking.PartialRetentionWithin = 48 * time.Hour
	}
	if c.Booking.PartialRetentionRate == 0 {
		c.Booking.PartialRetentionRate = 0.30
	}
	if c.Booking.DefaultPageSize == 0 {
		c.Booking.DefaultPageSize = 20
	}
	if c.Booking.MaxPageSize == 0 {
		c.Booking.MaxPageSize = 100
	}

	// Pricing defaults
	if c.Pricing.HolidayRate == 0 {
		c.Pricing.HolidayRate = 0.25
	}
	if c.Pricing.WeekendRate == 0 {
		c.Pricing.WeekendRate = 0.20
	}
	if c.Pricing.RoundTripMultiplier == 0 {
		c.Pricing.RoundTripMultiplier = 1.5
	}

	if c.Availability.MaxAlternatives == 0 {
		c.Availability.MaxAlternatives = 5
	}
	if c.Availability.MaxSlots == 0 {
		c.Availability.MaxSlots = 3
	}
	if c.Availability.FullDayHire == 0 {
		c.Availability.FullDayHire = 20 * time.Hour
	}
	if c.Availability.SlotHorizon == 0 {
		c.Availability.SlotHorizon = 7 * 24 * time.Hour
	}

	if c.Distance.Timeout == 0 {
		c.Distance.Timeout = 5 * time.Second
	}
	if c.Events.Exchange == "" {
		c.Events.Exchange = "booking.events"
	}
}
