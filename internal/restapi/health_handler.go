package restapi

import (
	"encoding/json"
	"net/http"

	"crowdcast.transitpulse.org/internal/logging"
)

// HealthResponse represents the JSON response from the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
	// Schedules lists the rail timetables loaded in the schedule store.
	Schedules []string `json:"schedules,omitempty"`
}

// healthHandler reports 503 until the realtime manager and crowding engine
// exist and the schedule store, when configured, answers a ping.
func (api *RestAPI) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if api.Application == nil || api.Realtime == nil || api.Engine == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(HealthResponse{
			Status: "unavailable",
			Detail: "realtime manager or crowding engine not initialized",
		})
		return
	}

	resp := HealthResponse{Status: "ok"}
	if api.Schedules != nil {
		if err := api.Schedules.DB.PingContext(r.Context()); err != nil {
			logging.LogError(api.Logger, "schedule DB ping failed", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(HealthResponse{
				Status: "unavailable",
				Detail: "database connection failed",
			})
			return
		}
		feeds, err := api.Schedules.Feeds(r.Context())
		if err != nil {
			logging.LogWarn(api.Logger, "listing schedule feeds failed", err)
		}
		resp.Schedules = feeds
		if len(feeds) == 0 {
			// live data still flows; rail gap repair is off
			resp.Detail = "no rail schedules loaded"
		}
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
