// Package restapi serves crowdcast's arrivals, alerts and crowding records
// as JSON over HTTP.
package restapi

import (
	"log/slog"
	"time"

	"crowdcast.transitpulse.org/internal/app"
	"crowdcast.transitpulse.org/internal/clock"
)

type RestAPI struct {
	*app.Application
	rateLimiter   *RateLimitMiddleware
	staleDetector *StaleDetector
}

// NewRestAPI creates a new RestAPI instance with an initialized rate
// limiter.
func NewRestAPI(app *app.Application) *RestAPI {
	if app.Clock == nil {
		app.Clock = clock.RealClock{}
	}
	if app.Location == nil {
		app.Location = time.UTC
	}
	if app.Logger == nil {
		app.Logger = slog.Default()
	}
	return &RestAPI{
		Application:   app,
		rateLimiter:   NewRateLimitMiddleware(app.Config.RateLimit, time.Second, app.Config.ExemptApiKeys, app.Clock),
		staleDetector: NewStaleDetector(),
	}
}

// Shutdown gracefully shuts down the API and stops background goroutines.
func (api *RestAPI) Shutdown() {
	if api.rateLimiter != nil {
		api.rateLimiter.Stop()
	}
}
