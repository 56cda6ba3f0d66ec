package restapi

import (
	"net/http"

	"crowdcast.transitpulse.org/internal/arrivals"
	"crowdcast.transitpulse.org/internal/crowding"
	"crowdcast.transitpulse.org/internal/models"
)

type headwayEntry struct {
	RouteID   string                `json:"routeId"`
	Mode      arrivals.Mode         `json:"mode"`
	StationID string                `json:"stationId,omitempty"`
	Headway   *crowding.HeadwayData `json:"headway"`
	Factor    float64               `json:"factor"`
}

// headwayHandler measures headway at ?station=, or at the route's
// reference station. A null headway means too few arrivals to measure.
func (api *RestAPI) headwayHandler(w http.ResponseWriter, r *http.Request) {
	mode, err := pathMode(r)
	if err != nil {
		api.sendBadRequest(w, r, err.Error())
		return
	}
	route := r.PathValue("route")
	station := r.URL.Query().Get("station")

	var h *crowding.HeadwayData
	if station != "" {
		h = api.Engine.HeadwayForStation(r.Context(), mode, route, station)
	} else {
		h, err = api.Engine.RouteHeadway(r.Context(), mode, route)
		if err != nil {
			api.sendEngineError(w, r, err)
			return
		}
	}

	entry := headwayEntry{RouteID: route, Mode: mode, StationID: station, Headway: h}
	if h != nil {
		entry.Factor = crowding.NormalizeHeadway(mode, h.AverageMinutes)
	}
	api.sendResponse(w, r, models.NewEntryResponse(entry, api.Clock))
}

type delayEntry struct {
	RouteID string              `json:"routeId"`
	Mode    arrivals.Mode       `json:"mode"`
	Delay   *crowding.DelayData `json:"delay"`
	Factor  float64             `json:"factor"`
}

func (api *RestAPI) delayHandler(w http.ResponseWriter, r *http.Request) {
	mode, err := pathMode(r)
	if err != nil {
		api.sendBadRequest(w, r, err.Error())
		return
	}
	route := r.PathValue("route")
	d := api.Engine.DelayForRoute(r.Context(), mode, route)
	entry := delayEntry{RouteID: route, Mode: mode, Delay: d, Factor: d.Normalized()}
	api.sendResponse(w, r, models.NewEntryResponse(entry, api.Clock))
}

func (api *RestAPI) routeCrowdingHandler(w http.ResponseWriter, r *http.Request) {
	mode, err := pathMode(r)
	if err != nil {
		api.sendBadRequest(w, r, err.Error())
		return
	}
	rc, err := api.Engine.RouteCrowding(r.Context(), mode, r.PathValue("route"))
	if err != nil {
		api.sendEngineError(w, r, err)
		return
	}
	api.sendResponse(w, r, models.NewEntryResponse(rc, api.Clock))
}

// segmentCrowdingHandler serves both directions of one segment, inbound
// first.
func (api *RestAPI) segmentCrowdingHandler(w http.ResponseWriter, r *http.Request) {
	mode, err := pathMode(r)
	if err != nil {
		api.sendBadRequest(w, r, err.Error())
		return
	}
	list, err := api.Engine.SegmentCrowding(r.Context(), mode, r.PathValue("route"), r.PathValue("segment"))
	if err != nil {
		api.sendEngineError(w, r, err)
		return
	}
	api.sendResponse(w, r, models.NewListResponse(list, false, api.Clock))
}

func (api *RestAPI) networkCrowdingHandler(w http.ResponseWriter, r *http.Request) {
	mode, err := optionalMode(r)
	if err != nil {
		api.sendBadRequest(w, r, err.Error())
		return
	}
	api.sendResponse(w, r, models.NewEntryResponse(api.Engine.NetworkCrowding(r.Context(), mode), api.Clock))
}
