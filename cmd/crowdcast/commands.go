package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"slices"
	"syscall"

	"github.com/davecgh/go-spew/spew"
	"github.com/urfave/cli/v2"

	"crowdcast.transitpulse.org/internal/arrivals"
	"crowdcast.transitpulse.org/internal/logging"
	"crowdcast.transitpulse.org/internal/schedule"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API",
		Action: func(c *cli.Context) error {
			cfg, err := resolveConfig(c)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			coreApp, err := BuildApplication(ctx, cfg)
			if err != nil {
				return err
			}
			defer coreApp.Close()

			srv, api := CreateServer(coreApp, cfg)
			return Run(ctx, srv, api, coreApp.Logger)
		},
	}
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "print live data for one route and exit",
		ArgsUsage: "arrivals|headway|delay|alerts|crowding",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Value: string(arrivals.ModeSubway), Usage: "subway|bus|lirr|mnr"},
			&cli.StringFlag{Name: "route", Usage: "route id", Required: true},
			&cli.StringFlag{Name: "station", Usage: "station id for arrivals and headway"},
			&cli.StringFlag{Name: "segment", Usage: "segment id; crowding for one segment"},
			&cli.IntFlag{Name: "limit", Value: 10, Usage: "arrivals to print"},
			&cli.BoolFlag{Name: "dump", Usage: "print Go values instead of JSON"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := resolveConfig(c)
			if err != nil {
				return err
			}
			// inspection never needs the timetable import
			cfg.ScheduleSources = nil

			coreApp, err := BuildApplication(c.Context, cfg)
			if err != nil {
				return err
			}
			defer coreApp.Close()

			mode := arrivals.Mode(c.String("mode"))
			if !mode.Valid() {
				return fmt.Errorf("unknown mode %q", mode)
			}
			route := c.String("route")
			ctx := c.Context

			var out any
			switch what := c.Args().First(); what {
			case "arrivals":
				out = coreApp.Realtime.Arrivals(ctx, mode, arrivals.Filter{RouteID: route, StationID: c.String("station"), Limit: c.Int("limit")})
			case "headway":
				if s := c.String("station"); s != "" {
					out = coreApp.Engine.HeadwayForStation(ctx, mode, route, s)
				} else if out, err = coreApp.Engine.RouteHeadway(ctx, mode, route); err != nil {
					return err
				}
			case "delay":
				out = coreApp.Engine.DelayForRoute(ctx, mode, route)
			case "alerts":
				out = coreApp.Realtime.ActiveAlerts(ctx, route)
			case "", "crowding":
				if seg := c.String("segment"); seg != "" {
					out, err = coreApp.Engine.SegmentCrowding(ctx, mode, route, seg)
				} else {
					out, err = coreApp.Engine.RouteCrowding(ctx, mode, route)
				}
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown view %q", what)
			}

			if c.Bool("dump") {
				spew.Fdump(c.App.Writer, out)
				return nil
			}
			enc := json.NewEncoder(c.App.Writer)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

func importScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "import-schedule",
		Usage: "import LIRR and Metro-North static GTFS into the schedule database",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "feed", Value: cli.NewStringSlice(railFeeds...), Usage: "feeds to import (lirr, mnr)"},
			&cli.StringFlag{Name: "source", Usage: "archive URL or path; only with a single --feed"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := resolveConfig(c)
			if err != nil {
				return err
			}
			if cfg.ScheduleDBPath == "" {
				return errors.New("no schedule database configured")
			}
			feeds := c.StringSlice("feed")
			if c.IsSet("source") && len(feeds) != 1 {
				return errors.New("--source needs exactly one --feed")
			}

			logger := newLogger(cfg)
			return importSchedules(c.Context, cfg.ScheduleDBPath, feeds, func(feed string) string {
				if c.IsSet("source") {
					return c.String("source")
				}
				return cfg.ScheduleSources[feed]
			}, logger)
		},
	}
}

func importSchedules(ctx context.Context, dbPath string, feeds []string, source func(string) string, logger *slog.Logger) error {
	store, err := schedule.OpenStore(ctx, schedule.StoreConfig{DBPath: dbPath}, logger)
	if err != nil {
		return err
	}
	defer logging.SafeCloseWithLogging(store, logger, "schedule_store")

	var errs []error
	for _, feed := range feeds {
		if !slices.Contains(railFeeds, feed) {
			errs = append(errs, fmt.Errorf("unknown schedule feed %q", feed))
			continue
		}
		src := source(feed)
		if src == "" {
			errs = append(errs, fmt.Errorf("no source configured for %s", feed))
			continue
		}
		idx, err := store.ImportFromSource(ctx, feed, src)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", feed, err))
			continue
		}
		logging.LogOperation(logger, "schedule_imported", slog.String("feed", feed), slog.Int("trains", idx.Trains()))
	}
	return errors.Join(errs...)
}
