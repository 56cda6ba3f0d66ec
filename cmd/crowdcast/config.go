package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"crowdcast.transitpulse.org/internal/appconf"
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to a JSON config file",
			EnvVars: []string{"CROWDCAST_CONFIG"},
		},
		&cli.IntFlag{
			Name:    "port",
			Usage:   "API server port",
			EnvVars: []string{"CROWDCAST_PORT"},
		},
		&cli.StringFlag{
			Name:    "env",
			Usage:   "environment (development|test|production)",
			EnvVars: []string{"CROWDCAST_ENV"},
		},
		&cli.StringFlag{
			Name:    "api-keys",
			Usage:   "comma separated API keys; empty leaves the API open",
			EnvVars: []string{"CROWDCAST_API_KEYS"},
		},
		&cli.StringFlag{
			Name:    "exempt-api-keys",
			Usage:   "comma separated API keys exempt from rate limiting",
			EnvVars: []string{"CROWDCAST_EXEMPT_API_KEYS"},
		},
		&cli.IntFlag{
			Name:    "rate-limit",
			Usage:   "requests per second per API key",
			EnvVars: []string{"CROWDCAST_RATE_LIMIT"},
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Usage:   "debug logging",
			EnvVars: []string{"CROWDCAST_VERBOSE"},
		},
		&cli.StringFlag{
			Name:    "mta-api-key",
			Usage:   "key sent to the MTA feed endpoints",
			EnvVars: []string{"MTA_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "bus-api-key",
			Usage:   "MTA Bus Time key; bus data is disabled without it",
			EnvVars: []string{"MTA_BUS_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "schedule-db",
			Usage:   "SQLite file for static rail timetables",
			EnvVars: []string{"CROWDCAST_SCHEDULE_DB"},
		},
		&cli.StringFlag{
			Name:    "cache",
			Usage:   "feed cache backend (memory|redis)",
			EnvVars: []string{"CROWDCAST_CACHE"},
		},
		&cli.StringFlag{
			Name:    "redis-addr",
			Usage:   "Redis address for the redis cache backend",
			EnvVars: []string{"CROWDCAST_REDIS_ADDR"},
		},
	}
}

// ParseAPIKeys splits a comma separated key list, dropping blanks.
func ParseAPIKeys(s string) []string {
	keys := []string{}
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// resolveConfig starts from the config file, or the defaults without one,
// and applies every flag the user set.
func resolveConfig(c *cli.Context) (appconf.Config, error) {
	cfg := appconf.Default()
	if path := c.String("config"); path != "" {
		file, err := appconf.LoadFromFile(path)
		if err != nil {
			return appconf.Config{}, fmt.Errorf("loading %s: %w", path, err)
		}
		cfg = file.ToAppConfig()
	}

	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if c.IsSet("env") {
		cfg.Env = appconf.EnvFlagToEnvironment(c.String("env"))
	}
	if c.IsSet("api-keys") {
		cfg.ApiKeys = ParseAPIKeys(c.String("api-keys"))
	}
	if c.IsSet("exempt-api-keys") {
		cfg.ExemptApiKeys = ParseAPIKeys(c.String("exempt-api-keys"))
	}
	if c.IsSet("rate-limit") {
		cfg.RateLimit = c.Int("rate-limit")
	}
	if c.IsSet("verbose") {
		cfg.Verbose = c.Bool("verbose")
	}
	if c.IsSet("mta-api-key") {
		cfg.Transport.MTAAPIKey = c.String("mta-api-key")
	}
	if c.IsSet("bus-api-key") {
		cfg.Transport.BusAPIKey = c.String("bus-api-key")
	}
	if c.IsSet("schedule-db") {
		cfg.ScheduleDBPath = c.String("schedule-db")
	}
	if c.IsSet("cache") {
		cfg.Cache.Backend = c.String("cache")
	}
	if c.IsSet("redis-addr") {
		cfg.Cache.RedisAddr = c.String("redis-addr")
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return appconf.Config{}, fmt.Errorf("port %d out of range", cfg.Port)
	}
	if cfg.Cache.Backend == "redis" && cfg.Cache.RedisAddr == "" {
		return appconf.Config{}, errors.New("redis cache needs --redis-addr")
	}
	return cfg, nil
}
