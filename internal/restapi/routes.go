package restapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetRoutes registers every endpoint on mux.
func (api *RestAPI) SetRoutes(mux *http.ServeMux) {
	mux.Handle("GET /api/v1/current-time", api.route(cacheRealtime, api.currentTimeHandler))
	mux.Handle("GET /api/v1/config", api.route(cacheStatic, api.configHandler))

	mux.Handle("GET /api/v1/arrivals/{mode}", api.route(cacheRealtime, api.arrivalsHandler))
	mux.Handle("GET /api/v1/vehicles", api.route(cacheRealtime, api.vehiclesHandler))
	mux.Handle("GET /api/v1/bus-routes", api.route(cacheStatic, api.busRoutesHandler))

	mux.Handle("GET /api/v1/alerts", api.route(cacheRealtime, api.alertsHandler))
	mux.Handle("GET /api/v1/alerts/impact", api.route(cacheRealtime, api.alertImpactHandler))
	mux.Handle("GET /api/v1/outages", api.route(cacheRealtime, api.outagesHandler))
	mux.Handle("GET /api/v1/equipment", api.route(cacheStatic, api.equipmentHandler))

	mux.Handle("GET /api/v1/headway/{mode}/{route}", api.route(cacheRealtime, api.headwayHandler))
	mux.Handle("GET /api/v1/delay/{mode}/{route}", api.route(cacheRealtime, api.delayHandler))

	mux.Handle("GET /api/v1/crowding/network", api.routeWithCost(cacheRealtime, networkRequestCost, api.networkCrowdingHandler))
	mux.Handle("GET /api/v1/crowding/{mode}/{route}", api.route(cacheRealtime, api.routeCrowdingHandler))
	mux.Handle("GET /api/v1/crowding/{mode}/{route}/segments/{segment}", api.route(cacheRealtime, api.segmentCrowdingHandler))

	mux.Handle("GET /api/v1/segments", api.route(cacheStatic, api.segmentsHandler))
	mux.Handle("GET /api/v1/segments/{mode}/{route}", api.route(cacheStatic, api.routeSegmentsHandler))
	mux.Handle("GET /api/v1/demand/{station}", api.route(cacheStatic, api.demandHandler))

	// health and metrics skip the key check and the rate limiter
	mux.Handle("GET /api/v1/health", CacheControlMiddleware(cacheNone, http.HandlerFunc(api.healthHandler)))
	if api.Application != nil && api.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(api.Metrics.Registry, promhttp.HandlerOpts{}))
	}
}

// Handler wraps mux with the request-scoped middleware. Metrics sits
// innermost so it sees the pattern the mux matched.
func (api *RestAPI) Handler(mux *http.ServeMux) http.Handler {
	var h http.Handler = mux
	if api.Application != nil {
		h = MetricsHandler(api.Metrics)(h)
		h = NewRequestLoggingMiddleware(api.Logger)(h)
	}
	return RequestIDMiddleware(h)
}

func (api *RestAPI) route(cacheSeconds int, h http.HandlerFunc) http.Handler {
	return api.routeWithCost(cacheSeconds, 1, h)
}

// routeWithCost is route for endpoints that charge more than one token.
func (api *RestAPI) routeWithCost(cacheSeconds, cost int, h http.HandlerFunc) http.Handler {
	return CacheControlMiddleware(cacheSeconds, api.rateLimiter.HandlerWithCost(cost)(api.requireKey(h)))
}

func (api *RestAPI) requireKey(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.RequestHasInvalidAPIKey(r) {
			api.sendUnauthorized(w, r)
			return
		}
		next(w, r)
	})
}
