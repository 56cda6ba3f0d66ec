package restapi

import (
	"log/slog"
	"net/http"
	"time"

	"crowdcast.transitpulse.org/internal/logging"
)

// NewRequestLoggingMiddleware writes one line per request and hands
// handlers a logger tagged with the request id. Lines carry the matched
// route pattern, so they group the same way as the HTTP metrics.
func NewRequestLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "http_server"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := GetRequestID(r.Context())
			reqLogger := logger.With(slog.String("request_id", reqID))
			r = r.WithContext(logging.WithLogger(r.Context(), reqLogger))

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			attrs := []any{
				slog.String("route", routePattern(r)),
				slog.Int("bytes", rec.bytes),
			}
			if mode := requestMode(r); mode != noMode {
				attrs = append(attrs, slog.String("mode", mode))
			}
			if ua := r.Header.Get("User-Agent"); ua != "" {
				attrs = append(attrs, slog.String("user_agent", ua))
			}
			logging.LogHTTPRequest(reqLogger, r.Method, r.URL.Path, rec.status,
				float64(time.Since(start).Microseconds())/1000, attrs...)
		})
	}
}
