package restapi

import (
	"net/http"

	"crowdcast.transitpulse.org/internal/clock"
	"crowdcast.transitpulse.org/internal/models"
	"crowdcast.transitpulse.org/internal/segments"
)

// segmentsHandler lists registry routes, or with ?station= the segments
// containing that station.
func (api *RestAPI) segmentsHandler(w http.ResponseWriter, r *http.Request) {
	mode, err := optionalMode(r)
	if err != nil {
		api.sendBadRequest(w, r, err.Error())
		return
	}
	reg := api.Engine.Registry()

	if station := r.URL.Query().Get("station"); station != "" {
		list := reg.ForStation(mode, station)
		if list == nil {
			list = []segments.StationSegment{}
		}
		api.sendResponse(w, r, models.NewListResponse(list, false, api.Clock))
		return
	}

	routes := reg.Routes(mode)
	if routes == nil {
		routes = []*segments.Route{}
	}
	api.sendResponse(w, r, models.NewListResponse(routes, false, api.Clock))
}

func (api *RestAPI) routeSegmentsHandler(w http.ResponseWriter, r *http.Request) {
	mode, err := pathMode(r)
	if err != nil {
		api.sendBadRequest(w, r, err.Error())
		return
	}
	route, ok := api.Engine.Registry().Route(mode, r.PathValue("route"))
	if !ok {
		api.sendNotFound(w, r, "unknown route")
		return
	}
	api.sendResponse(w, r, models.NewEntryResponse(route, api.Clock))
}

type demandEntry struct {
	StationID string  `json:"stationId"`
	Hour      int     `json:"hour"`
	Day       string  `json:"day"`
	Demand    float64 `json:"demand"`

	// Known is false when the generic curve was used.
	Known         bool   `json:"known"`
	Period        string `json:"period,omitempty"`
	RushHour      bool   `json:"rushHour"`
	PeakDirection string `json:"peakDirection,omitempty"`
}

// demandHandler reports the historical demand for a station at ?hour= and
// ?day=, each defaulting to now in the service time zone.
func (api *RestAPI) demandHandler(w http.ResponseWriter, r *http.Request) {
	now := clock.Local(api.Clock, api.Location)
	hour, day, err := parseHourDay(r, now.Hour, now.Weekday)
	if err != nil {
		api.sendBadRequest(w, r, err.Error())
		return
	}

	station := r.PathValue("station")
	entry := demandEntry{
		StationID: station,
		Hour:      hour,
		Day:       day.String(),
		Demand:    api.Demand.Demand(hour, day, station),
		Known:     api.Demand.HasStation(station),
		RushHour:  api.Demand.IsRushHour(hour, day),
	}
	if p, ok := api.Demand.Period(hour, day); ok {
		entry.Period = p.Name
	}
	entry.PeakDirection, _ = api.Demand.PeakDirection(hour, day)
	api.sendResponse(w, r, models.NewEntryResponse(entry, api.Clock))
}
