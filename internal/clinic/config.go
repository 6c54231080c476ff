// Package clinic provides clinic-specific scheduling configuration and the
// service price list.
package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-booking/internal/reservation"
	"github.com/wolfman30/clinic-booking/internal/schedule"
)

// DayHours holds the first and last appointment start of a day, "HH:MM".
type DayHours struct {
	FirstStart string `json:"first_start"`
	LastStart  string `json:"last_start"`
}

// LunchBreak is the half-open lunch window, "HH:MM".
type LunchBreak struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Service is a bookable treatment with its listed price.
type Service struct {
	Ref   string `json:"ref"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// Config holds clinic-specific configuration.
type Config struct {
	ClinicID       string     `json:"clinic_id"`
	Name           string     `json:"name"`
	Timezone       string     `json:"timezone"` // e.g., "America/New_York"
	WeekdayHours   DayHours   `json:"weekday_hours"`
	WeekendHours   DayHours   `json:"weekend_hours"`
	Lunch          LunchBreak `json:"lunch"`
	HoldTTLSeconds int        `json:"hold_ttl_seconds"`
	Services       []Service  `json:"services,omitempty"`
}

// DefaultConfig returns the stock schedule: weekdays 10:00-19:00, weekends
// 11:00-19:00, lunch at noon and a ten minute hold.
func DefaultConfig(clinicID string) *Config {
	return &Config{
		ClinicID:       clinicID,
		Timezone:       "UTC",
		WeekdayHours:   DayHours{FirstStart: "10:00", LastStart: "19:00"},
		WeekendHours:   DayHours{FirstStart: "11:00", LastStart: "19:00"},
		Lunch:          LunchBreak{Start: "12:00", End: "12:30"},
		HoldTTLSeconds: int(reservation.DefaultHoldTTL / time.Second),
	}
}

// Validate checks that every time field parses and the timezone is known.
func (c *Config) Validate() error {
	_, err := c.Policy()
	return err
}

// Policy converts the config into the reservation policy.
func (c *Config) Policy() (reservation.Policy, error) {
	var p reservation.Policy
	var err error
	if p.Hours.Weekday, err = parseDayHours(c.WeekdayHours); err != nil {
		return p, fmt.Errorf("clinic: weekday hours: %w", err)
	}
	if p.Hours.Weekend, err = parseDayHours(c.WeekendHours); err != nil {
		return p, fmt.Errorf("clinic: weekend hours: %w", err)
	}
	if p.Hours.Lunch.Start, err = schedule.ParseTimeOfDay(c.Lunch.Start); err != nil {
		return p, fmt.Errorf("clinic: lunch start: %w", err)
	}
	if p.Hours.Lunch.End, err = schedule.ParseTimeOfDay(c.Lunch.End); err != nil {
		return p, fmt.Errorf("clinic: lunch end: %w", err)
	}
	tz := c.Timezone
	if tz == "" {
		tz = "UTC"
	}
	if p.Location, err = time.LoadLocation(tz); err != nil {
		return p, fmt.Errorf("clinic: timezone: %w", err)
	}
	p.HoldTTL = time.Duration(c.HoldTTLSeconds) * time.Second
	if p.HoldTTL <= 0 {
		p.HoldTTL = reservation.DefaultHoldTTL
	}
	return p, nil
}

func parseDayHours(h DayHours) (schedule.DayHours, error) {
	first, err := schedule.ParseTimeOfDay(h.FirstStart)
	if err != nil {
		return schedule.DayHours{}, err
	}
	last, err := schedule.ParseTimeOfDay(h.LastStart)
	if err != nil {
		return schedule.DayHours{}, err
	}
	return schedule.DayHours{FirstStart: first, LastStart: last}, nil
}

func normalizeServiceKey(service string) string {
	return strings.ToLower(strings.TrimSpace(service))
}

// PriceFor returns the listed price of a service, matching refs case-insensitively.
func (c *Config) PriceFor(serviceRef string) (int64, bool) {
	key := normalizeServiceKey(serviceRef)
	for _, s := range c.Services {
		if normalizeServiceKey(s.Ref) == key {
			return s.Price, true
		}
	}
	return 0, false
}

// Store provides persistence for clinic configurations.
type Store struct {
	redis *redis.Client
}

// NewStore creates a new clinic config store.
func NewStore(redisClient *redis.Client) *Store {
	if redisClient == nil {
		panic("clinic: redis client required")
	}
	return &Store{redis: redisClient}
}

func (s *Store) key(clinicID string) string {
	return fmt.Sprintf("clinic:config:%s", clinicID)
}

// Get retrieves clinic config, returning default if not found.
func (s *Store) Get(ctx context.Context, clinicID string) (*Config, error) {
	data, err := s.redis.Get(ctx, s.key(clinicID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return DefaultConfig(clinicID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("clinic: get config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("clinic: unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Set saves clinic config.
func (s *Store) Set(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("clinic: marshal config: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(cfg.ClinicID), data, 0).Err(); err != nil {
		return fmt.Errorf("clinic: set config: %w", err)
	}
	return nil
}

// Seed stores cfg unless a config for the clinic already exists. It reports
// whether cfg was written.
func (s *Store) Seed(ctx context.Context, cfg *Config) (bool, error) {
	if err := cfg.Validate(); err != nil {
		return false, err
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return false, fmt.Errorf("clinic: marshal config: %w", err)
	}
	ok, err := s.redis.SetNX(ctx, s.key(cfg.ClinicID), data, 0).Result()
	if err != nil {
		return false, fmt.Errorf("clinic: seed config: %w", err)
	}
	return ok, nil
}

type configGetter interface {
	Get(ctx context.Context, clinicID string) (*Config, error)
}

// Source serves one clinic's policy and prices to the reservation core.
type Source struct {
	configs  configGetter
	clinicID string
}

// NewSource binds a config store to a clinic.
func NewSource(store *Store, clinicID string) *Source {
	return newSource(store, clinicID)
}

// NewStaticSource serves a fixed config, for deployments without Redis.
func NewStaticSource(cfg *Config) *Source {
	return newSource(staticConfig{cfg: cfg}, cfg.ClinicID)
}

func newSource(configs configGetter, clinicID string) *Source {
	if configs == nil {
		panic("clinic: config store required")
	}
	return &Source{configs: configs, clinicID: clinicID}
}

// Policy implements reservation.PolicySource.
func (s *Source) Policy(ctx context.Context) (reservation.Policy, error) {
	cfg, err := s.configs.Get(ctx, s.clinicID)
	if err != nil {
		return reservation.Policy{}, err
	}
	return cfg.Policy()
}

// Price implements reservation.PriceList.
func (s *Source) Price(ctx context.Context, serviceRef string) (int64, error) {
	cfg, err := s.configs.Get(ctx, s.clinicID)
	if err != nil {
		return 0, err
	}
	price, ok := cfg.PriceFor(serviceRef)
	if !ok {
		return 0, reservation.ErrUnknownService
	}
	return price, nil
}

type staticConfig struct {
	cfg *Config
}

func (s staticConfig) Get(context.Context, string) (*Config, error) {
	return s.cfg, nil
}
