// Package appconf holds the resolved runtime configuration and the JSON
// config file format it can be loaded from.
package appconf

import (
	"fmt"
	"strings"
	"time"

	"crowdcast.transitpulse.org/internal/crowding"
	"crowdcast.transitpulse.org/internal/demand"
	"crowdcast.transitpulse.org/internal/transport"
)

type Environment int

const (
	Development Environment = iota
	Test
	Production
)

func (e Environment) String() string {
	switch e {
	case Test:
		return "test"
	case Production:
		return "production"
	}
	return "development"
}

// EnvFlagToEnvironment maps a flag value to an Environment. Unknown values
// mean Development.
func EnvFlagToEnvironment(env string) Environment {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "test":
		return Test
	case "production", "prod":
		return Production
	}
	return Development
}

const DefaultTimezone = "America/New_York"

// Config is everything the application needs at startup.
type Config struct {
	Port          int
	Env           Environment
	ApiKeys       []string
	ExemptApiKeys []string
	// RateLimit is requests per second per API key.
	RateLimit int
	Verbose   bool
	Timezone  string

	Transport transport.Config
	Cache     transport.CacheConfig

	// ScheduleDBPath is the SQLite file for static rail timetables.
	ScheduleDBPath string
	// ScheduleSources maps a schedule feed name ("lirr", "mnr") to the URL
	// or path of its static GTFS archive.
	ScheduleSources map[string]string

	Scorer             crowding.ScorerConfig
	SegmentSample      int
	BatchSize          int
	StationConcurrency int
	// SegmentsFile replaces the built-in segment registry when set.
	SegmentsFile string

	// RidershipCSV adds or replaces station demand patterns when set.
	RidershipCSV string
	// Periods replaces the built-in demand period table when non-empty.
	Periods []demand.Period
}

// Default is the configuration used when no file is given.
func Default() Config {
	return Config{
		Port:           4000,
		Env:            Development,
		RateLimit:      100,
		Timezone:       DefaultTimezone,
		Transport:      transport.Config{Timeout: 10 * time.Second, MaxRetries: 2},
		Cache:          transport.CacheConfig{Backend: "memory", Size: 64},
		ScheduleDBPath: "crowdcast.db",
		Scorer:         crowding.DefaultScorerConfig(),
		SegmentSample:  2,
		BatchSize:      5,
	}
}

// Location resolves the service time zone.
func (c Config) Location() (*time.Location, error) {
	name := c.Timezone
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading time zone %q: %w", name, err)
	}
	return loc, nil
}
