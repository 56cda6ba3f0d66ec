package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"crowdcast.transitpulse.org/internal/app"
	"crowdcast.transitpulse.org/internal/appconf"
	"crowdcast.transitpulse.org/internal/clock"
	"crowdcast.transitpulse.org/internal/crowding"
	"crowdcast.transitpulse.org/internal/demand"
	"crowdcast.transitpulse.org/internal/logging"
	"crowdcast.transitpulse.org/internal/metrics"
	"crowdcast.transitpulse.org/internal/realtime"
	"crowdcast.transitpulse.org/internal/restapi"
	"crowdcast.transitpulse.org/internal/schedule"
	"crowdcast.transitpulse.org/internal/segments"
	"crowdcast.transitpulse.org/internal/transport"
	"crowdcast.transitpulse.org/internal/webui"
)

// railFeeds are the schedule feeds used for LIRR and Metro-North gap repair.
var railFeeds = []string{"lirr", "mnr"}

// fakeTimeEnv pins the clock outside production, for replaying recorded
// feeds.
const fakeTimeEnv = "CROWDCAST_FAKE_TIME"

func newLogger(cfg appconf.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	return logging.NewLogger(os.Stdout, level, cfg.Env != appconf.Production)
}

// BuildApplication wires the transport, realtime manager, crowding engine
// and schedule store described by cfg.
func BuildApplication(ctx context.Context, cfg appconf.Config) (*app.Application, error) {
	logger := newLogger(cfg)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	var clk clock.Clock = clock.RealClock{}
	if cfg.Env != appconf.Production && os.Getenv(fakeTimeEnv) != "" {
		clk = clock.NewOverrideClock(fakeTimeEnv, "", loc)
	}

	m := metrics.NewWithLogger(logger)

	cache, err := transport.NewCache(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("building feed cache: %w", err)
	}
	client := transport.NewClient(cfg.Transport, cache, m, logger)

	var store *schedule.Store
	set := schedule.Set{}
	if cfg.ScheduleDBPath != "" {
		store, err = schedule.OpenStore(ctx, schedule.StoreConfig{DBPath: cfg.ScheduleDBPath}, logger)
		if err != nil {
			return nil, err
		}
		set = loadSchedules(ctx, store, cfg.ScheduleSources, logger)
		m.StartDBStatsCollector(store.DB, 15*time.Second)
	}

	reg, err := loadRegistry(cfg.SegmentsFile)
	if err != nil {
		closeStore(store, logger)
		return nil, err
	}
	model, err := loadDemand(cfg)
	if err != nil {
		closeStore(store, logger)
		return nil, err
	}
	scorer, err := crowding.NewScorer(cfg.Scorer)
	if err != nil {
		closeStore(store, logger)
		return nil, err
	}

	manager := realtime.New(realtime.Config{
		Fetcher:   client,
		Schedules: set,
		Clock:     clk,
		Location:  loc,
		Metrics:   m,
		Logger:    logger,
	})
	engine := crowding.NewEngine(crowding.EngineConfig{
		Source:             manager,
		Registry:           reg,
		Demand:             model,
		Scorer:             scorer,
		Clock:              clk,
		Location:           loc,
		Metrics:            m,
		Logger:             logger,
		SegmentSample:      cfg.SegmentSample,
		BatchSize:          cfg.BatchSize,
		StationConcurrency: cfg.StationConcurrency,
	})

	logging.LogOperation(logger, "application_built",
		slog.String("env", cfg.Env.String()),
		slog.Int("schedules", len(set)),
		slog.Int("demand_stations", model.Stations()),
		slog.Bool("bus_feeds", client.HasBusKey()))

	return &app.Application{
		Config:    cfg,
		Logger:    logger,
		Clock:     clk,
		Location:  loc,
		Metrics:   m,
		Schedules: store,
		Realtime:  manager,
		Engine:    engine,
		Demand:    model,
	}, nil
}

func closeStore(store *schedule.Store, logger *slog.Logger) {
	if store != nil {
		logging.SafeCloseWithLogging(store, logger, "schedule_store")
	}
}

// loadSchedules reads each rail timetable from the store, importing it from
// its configured source when the store has none. A feed that cannot be
// loaded only disables gap repair for that railroad.
func loadSchedules(ctx context.Context, store *schedule.Store, sources map[string]string, logger *slog.Logger) schedule.Set {
	set := schedule.Set{}
	for _, feed := range railFeeds {
		idx, err := store.Load(ctx, feed)
		if err != nil {
			logging.LogWarn(logger, "loading stored schedule failed", err, slog.String("feed", feed))
			idx = nil
		}
		if (idx == nil || idx.Trains() == 0) && sources[feed] != "" {
			idx, err = store.ImportFromSource(ctx, feed, sources[feed])
			if err != nil {
				logging.LogWarn(logger, "importing schedule failed", err, slog.String("feed", feed))
				continue
			}
		}
		if idx != nil && idx.Trains() > 0 {
			set[feed] = idx
		}
	}
	return set
}

func loadRegistry(path string) (*segments.Registry, error) {
	if path == "" {
		return segments.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading segment registry: %w", err)
	}
	return segments.Load(data)
}

func loadDemand(cfg appconf.Config) (*demand.Model, error) {
	model, err := demand.Default()
	if err != nil {
		return nil, err
	}
	if cfg.RidershipCSV != "" {
		f, err := os.Open(cfg.RidershipCSV)
		if err != nil {
			return nil, fmt.Errorf("opening ridership CSV: %w", err)
		}
		defer func() { _ = f.Close() }()
		patterns, err := demand.LoadRidership(f)
		if err != nil {
			return nil, err
		}
		if model, err = model.WithStations(patterns); err != nil {
			return nil, err
		}
	}
	if len(cfg.Periods) > 0 {
		return model.WithPeriods(cfg.Periods)
	}
	return model, nil
}

// CreateServer builds the HTTP server and the API behind it. Call
// api.Shutdown when done.
func CreateServer(coreApp *app.Application, cfg appconf.Config) (*http.Server, *restapi.RestAPI) {
	api := restapi.NewRestAPI(coreApp)

	mux := http.NewServeMux()
	api.SetRoutes(mux)
	webui.New(coreApp).SetWebUIRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.Handler(mux),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(coreApp.Logger.Handler(), slog.LevelError),
	}
	return srv, api
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func Run(ctx context.Context, srv *http.Server, api *restapi.RestAPI, logger *slog.Logger) error {
	defer api.Shutdown()

	errCh := make(chan error, 1)
	go func() {
		logging.LogOperation(logger, "server_starting", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.LogOperation(logger, "server_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return <-errCh
}
