package restapi

import (
	"net/http"
	"strconv"
	"time"

	"crowdcast.transitpulse.org/internal/arrivals"
	"crowdcast.transitpulse.org/internal/metrics"
)

const (
	unmatchedRoute = "unmatched"
	noMode         = "none"
)

// MetricsHandler records request counts and latency per route pattern.
// Counts also carry the transit mode the request asked about. A nil m
// gives a pass-through.
func MetricsHandler(m *metrics.Metrics) func(http.Handler) http.Handler {
	if m == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			// the mux fills in Pattern and path values on r
			route := routePattern(r)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, requestMode(r), strconv.Itoa(rec.status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

func routePattern(r *http.Request) string {
	if r.Pattern == "" {
		return unmatchedRoute
	}
	return r.Pattern
}

// requestMode is the {mode} path value, or the mode query parameter of the
// network rollup. Anything but a known mode is "none", which keeps label
// cardinality fixed.
func requestMode(r *http.Request) string {
	mode := r.PathValue("mode")
	if mode == "" {
		mode = r.URL.Query().Get("mode")
	}
	if !arrivals.Mode(mode).Valid() {
		return noMode
	}
	return mode
}
