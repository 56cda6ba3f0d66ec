package app

import (
	"log/slog"
	"time"

	"crowdcast.transitpulse.org/internal/appconf"
	"crowdcast.transitpulse.org/internal/clock"
	"crowdcast.transitpulse.org/internal/crowding"
	"crowdcast.transitpulse.org/internal/demand"
	"crowdcast.transitpulse.org/internal/logging"
	"crowdcast.transitpulse.org/internal/metrics"
	"crowdcast.transitpulse.org/internal/realtime"
	"crowdcast.transitpulse.org/internal/schedule"
)

// Application holds the dependencies for our HTTP handlers, helpers,
// and middleware.
type Application struct {
	Config   appconf.Config
	Logger   *slog.Logger
	Clock    clock.Clock
	Location *time.Location
	Metrics  *metrics.Metrics

	// Schedules is nil when no schedule database is configured.
	Schedules *schedule.Store
	Realtime  *realtime.Manager
	Engine    *crowding.Engine
	Demand    *demand.Model
}

// Close releases the schedule store and stops background metric collection.
func (app *Application) Close() {
	app.Metrics.Shutdown()
	if app.Schedules != nil {
		logging.SafeCloseWithLogging(app.Schedules, app.Logger, "schedule_store")
	}
}
