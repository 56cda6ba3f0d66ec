package appconf

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"crowdcast.transitpulse.org/internal/crowding"
	"crowdcast.transitpulse.org/internal/demand"
	"crowdcast.transitpulse.org/internal/transport"
)

const maxConfigBytes = 1 << 20

// JSONConfig is the on-disk config file. Zero values fall back to Default.
type JSONConfig struct {
	Port          int      `json:"port" validate:"min=0,max=65535"`
	Env           string   `json:"env" validate:"omitempty,oneof=development test production"`
	ApiKeys       []string `json:"api-keys" validate:"dive,required"`
	ExemptApiKeys []string `json:"exempt-api-keys" validate:"dive,required"`
	RateLimit     int      `json:"rate-limit" validate:"min=0"`
	Verbose       bool     `json:"verbose"`
	Timezone      string   `json:"timezone" validate:"omitempty,timezone"`

	Feeds    FeedsJSON    `json:"feeds"`
	Cache    CacheJSON    `json:"cache"`
	Schedule ScheduleJSON `json:"schedule"`
	Crowding CrowdingJSON `json:"crowding"`
	Demand   DemandJSON   `json:"demand"`
}

type FeedsJSON struct {
	MTABaseURL        string  `json:"mta-base-url" validate:"omitempty,url"`
	BusBaseURL        string  `json:"bus-base-url" validate:"omitempty,url"`
	MTAAPIKey         string  `json:"mta-api-key"`
	BusAPIKey         string  `json:"bus-api-key"`
	TimeoutSeconds    int     `json:"timeout-seconds" validate:"min=0,max=120"`
	MaxRetries        uint64  `json:"max-retries" validate:"max=10"`
	RequestsPerSecond float64 `json:"requests-per-second" validate:"min=0"`
	Burst             int     `json:"burst" validate:"min=0"`
}

type CacheJSON struct {
	Backend       string `json:"backend" validate:"omitempty,oneof=memory redis"`
	Size          int    `json:"size" validate:"min=0"`
	RedisAddr     string `json:"redis-addr" validate:"required_if=Backend redis"`
	RedisPassword string `json:"redis-password"`
	RedisDB       int    `json:"redis-db" validate:"min=0"`
	Prefix        string `json:"prefix"`
}

type ScheduleJSON struct {
	DBPath  string            `json:"db-path"`
	Sources map[string]string `json:"sources" validate:"dive,keys,oneof=lirr mnr,endkeys,required"`
}

type CrowdingJSON struct {
	Weights            *crowding.Weights    `json:"weights"`
	Thresholds         *crowding.Thresholds `json:"thresholds"`
	PeakMultiplier     float64              `json:"peak-multiplier" validate:"omitempty,gte=1,lte=2"`
	SegmentSample      int                  `json:"segment-sample" validate:"min=0"`
	BatchSize          int                  `json:"batch-size" validate:"min=0"`
	StationConcurrency int                  `json:"station-concurrency" validate:"min=0"`
	SegmentsFile       string               `json:"segments-file"`
}

type DemandJSON struct {
	RidershipCSV string       `json:"ridership-csv"`
	Periods      []PeriodJSON `json:"periods" validate:"dive"`
}

// PeriodJSON is a demand period with day names instead of numbers.
type PeriodJSON struct {
	Name  string   `json:"name" validate:"required"`
	Days  []string `json:"days" validate:"min=1,dive,oneof=sun mon tue wed thu fri sat"`
	Start int      `json:"start" validate:"min=0,max=23"`
	End   int      `json:"end" validate:"gtfield=Start,max=24"`
	Rush  bool     `json:"rush"`
	Peak  string   `json:"peak" validate:"omitempty,oneof=inbound outbound"`
}

var dayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// LoadFromFile reads and validates a JSON config file.
func LoadFromFile(path string) (*JSONConfig, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigBytes {
		return nil, fmt.Errorf("config file %s is larger than %d bytes", path, maxConfigBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a JSON config document.
func Parse(data []byte) (*JSONConfig, error) {
	var cfg JSONConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse JSON config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *JSONConfig) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := crowding.NewScorer(c.scorerConfig()); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	periods, err := c.periods()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if len(periods) > 0 {
		if err := demand.ValidatePeriods(periods); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return nil
}

func (c *JSONConfig) scorerConfig() crowding.ScorerConfig {
	cfg := crowding.DefaultScorerConfig()
	if c.Crowding.Weights != nil {
		cfg.Weights = *c.Crowding.Weights
	}
	if c.Crowding.Thresholds != nil {
		cfg.Thresholds = *c.Crowding.Thresholds
	}
	if c.Crowding.PeakMultiplier != 0 {
		cfg.PeakMultiplier = c.Crowding.PeakMultiplier
	}
	return cfg
}

func (c *JSONConfig) periods() ([]demand.Period, error) {
	var out []demand.Period
	for _, p := range c.Demand.Periods {
		period := demand.Period{Name: p.Name, Start: p.Start, End: p.End, Rush: p.Rush, Peak: p.Peak}
		for _, d := range p.Days {
			day, ok := dayNames[strings.ToLower(d)]
			if !ok {
				return nil, errors.New("unknown day " + d + " in period " + p.Name)
			}
			period.Days = append(period.Days, day)
		}
		out = append(out, period)
	}
	return out, nil
}

// ToAppConfig overlays the file onto Default.
func (c *JSONConfig) ToAppConfig() Config {
	cfg := Default()
	if c.Port != 0 {
		cfg.Port = c.Port
	}
	if c.Env != "" {
		cfg.Env = EnvFlagToEnvironment(c.Env)
	}
	cfg.ApiKeys = c.ApiKeys
	cfg.ExemptApiKeys = c.ExemptApiKeys
	if c.RateLimit != 0 {
		cfg.RateLimit = c.RateLimit
	}
	cfg.Verbose = c.Verbose
	if c.Timezone != "" {
		cfg.Timezone = c.Timezone
	}

	cfg.Transport = c.ToTransportConfig()
	cfg.Cache = c.ToCacheConfig()

	if c.Schedule.DBPath != "" {
		cfg.ScheduleDBPath = c.Schedule.DBPath
	}
	cfg.ScheduleSources = c.Schedule.Sources

	cfg.Scorer = c.scorerConfig()
	if c.Crowding.SegmentSample != 0 {
		cfg.SegmentSample = c.Crowding.SegmentSample
	}
	if c.Crowding.BatchSize != 0 {
		cfg.BatchSize = c.Crowding.BatchSize
	}
	cfg.StationConcurrency = c.Crowding.StationConcurrency
	cfg.SegmentsFile = c.Crowding.SegmentsFile

	cfg.RidershipCSV = c.Demand.RidershipCSV
	// already validated
	cfg.Periods, _ = c.periods()
	return cfg
}

func (c *JSONConfig) ToTransportConfig() transport.Config {
	cfg := Default().Transport
	cfg.MTABaseURL = c.Feeds.MTABaseURL
	cfg.BusBaseURL = c.Feeds.BusBaseURL
	cfg.MTAAPIKey = c.Feeds.MTAAPIKey
	cfg.BusAPIKey = c.Feeds.BusAPIKey
	if c.Feeds.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(c.Feeds.TimeoutSeconds) * time.Second
	}
	if c.Feeds.MaxRetries > 0 {
		cfg.MaxRetries = c.Feeds.MaxRetries
	}
	cfg.RequestsPerSecond = c.Feeds.RequestsPerSecond
	cfg.Burst = c.Feeds.Burst
	return cfg
}

func (c *JSONConfig) ToCacheConfig() transport.CacheConfig {
	cfg := Default().Cache
	if c.Cache.Backend != "" {
		cfg.Backend = c.Cache.Backend
	}
	if c.Cache.Size > 0 {
		cfg.Size = c.Cache.Size
	}
	cfg.RedisAddr = c.Cache.RedisAddr
	cfg.RedisPassword = c.Cache.RedisPassword
	cfg.RedisDB = c.Cache.RedisDB
	cfg.Prefix = c.Cache.Prefix
	return cfg
}
