package restapi

import (
	"net/http"

	"crowdcast.transitpulse.org/internal/arrivals"
	"crowdcast.transitpulse.org/internal/models"
)

// arrivalsHandler serves upcoming arrivals for a mode, optionally narrowed
// to a route and a station. An upstream outage is an empty list.
func (api *RestAPI) arrivalsHandler(w http.ResponseWriter, r *http.Request) {
	mode, err := pathMode(r)
	if err != nil {
		api.sendBadRequest(w, r, err.Error())
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		api.sendBadRequest(w, r, err.Error())
		return
	}

	q := r.URL.Query()
	// one extra tells us whether the limit cut anything off
	list := api.Realtime.Arrivals(r.Context(), mode, arrivals.Filter{
		RouteID:   q.Get("route"),
		StationID: q.Get("station"),
		Limit:     limit + 1,
	})
	exceeded := len(list) > limit
	if exceeded {
		list = list[:limit]
	}
	api.sendResponse(w, r, models.NewListResponse(list, exceeded, api.Clock))
}
