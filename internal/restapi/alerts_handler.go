package restapi

import (
	"net/http"

	"crowdcast.transitpulse.org/internal/alerts"
	"crowdcast.transitpulse.org/internal/models"
)

// alertsHandler serves service alerts, active ones only unless all=true.
func (api *RestAPI) alertsHandler(w http.ResponseWriter, r *http.Request) {
	route := r.URL.Query().Get("route")
	var list []alerts.ServiceAlert
	if parseBool(r, "all") {
		list = alerts.ForRoute(api.Realtime.Alerts(r.Context()), route)
	} else {
		list = api.Realtime.ActiveAlerts(r.Context(), route)
	}
	if list == nil {
		list = []alerts.ServiceAlert{}
	}
	api.sendResponse(w, r, models.NewListResponse(list, false, api.Clock))
}

func (api *RestAPI) alertImpactHandler(w http.ResponseWriter, r *http.Request) {
	impact := api.Engine.AlertImpact(r.Context(), r.URL.Query().Get("route"))
	api.sendResponse(w, r, models.NewEntryResponse(impact, api.Clock))
}

func (api *RestAPI) outagesHandler(w http.ResponseWriter, r *http.Request) {
	list := api.Realtime.Outages(r.Context(), r.URL.Query().Get("route"))
	api.sendResponse(w, r, models.NewListResponse(list, false, api.Clock))
}

func (api *RestAPI) equipmentHandler(w http.ResponseWriter, r *http.Request) {
	list := api.Realtime.Equipment(r.Context())
	api.sendResponse(w, r, models.NewListResponse(list, false, api.Clock))
}
