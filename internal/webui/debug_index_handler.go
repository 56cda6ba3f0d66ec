package webui

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/davecgh/go-spew/spew"

	"crowdcast.transitpulse.org/internal/appconf"
	"crowdcast.transitpulse.org/internal/arrivals"
)

//go:embed debug_index.html
var templateFS embed.FS

var debugTemplate = template.Must(template.ParseFS(templateFS, "debug_index.html"))

var dataTypes = []string{
	"segments", "demand_periods", "scoring", "schedules",
	"alerts", "outages", "bus_routes", "subway_arrivals",
}

type debugData struct {
	Title string
	Pre   string
	Types []string
}

func writeDebugData(w http.ResponseWriter, title string, data any) {
	w.Header().Set("Content-Type", "text/html")
	err := debugTemplate.Execute(w, debugData{
		Title: title,
		Pre:   spew.Sdump(data),
		Types: dataTypes,
	})
	if err != nil {
		slog.Error("failed to execute debug template", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (webUI *WebUI) debugIndexHandler(w http.ResponseWriter, r *http.Request) {
	if webUI.Application == nil || webUI.Config.Env == appconf.Production {
		http.NotFound(w, r)
		return
	}
	ctx := r.Context()

	var data any
	var title string

	switch r.URL.Query().Get("dataType") {
	case "segments":
		data = webUI.Engine.Registry().Routes("")
		title = "Segment Registry"
	case "demand_periods":
		data = webUI.Demand.Periods()
		title = "Demand Periods"
	case "scoring":
		data = webUI.Engine.Scorer().Config()
		title = "Scorer Configuration"
	case "schedules":
		title = "Rail Schedules"
		if webUI.Schedules == nil {
			data = "no schedule database configured"
			break
		}
		feeds, err := webUI.Schedules.Feeds(ctx)
		if err != nil {
			data = err.Error()
			break
		}
		data = feeds
	case "alerts":
		data = webUI.Realtime.Alerts(ctx)
		title = "Service Alerts - All"
	case "outages":
		data = webUI.Realtime.Outages(ctx, "")
		title = "Equipment Outages"
	case "bus_routes":
		routes, fallback := webUI.Realtime.BusRoutes(ctx)
		data = map[string]any{"routes": routes, "fallback": fallback}
		title = "Bus Routes"
	case "subway_arrivals":
		data = webUI.Realtime.Arrivals(ctx, arrivals.ModeSubway, arrivals.Filter{
			RouteID:   r.URL.Query().Get("route"),
			StationID: r.URL.Query().Get("station"),
			Limit:     50,
		})
		title = "Subway Arrivals"
	default:
		data = map[string]any{"error": "Please choose a data type.", "types": dataTypes}
		title = "Choose a data type"
	}

	writeDebugData(w, title, data)
}
