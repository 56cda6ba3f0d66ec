package restapi

import (
	"net/http"
	"runtime"
	"runtime/debug"

	"crowdcast.transitpulse.org/internal/models"
)

func buildProperties() models.BuildProperties {
	props := models.BuildProperties{Version: "devel", GoVersion: runtime.Version()}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return props
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		props.Version = v
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			props.Revision = s.Value
		case "vcs.time":
			props.Time = s.Value
		case "vcs.modified":
			props.Dirty = s.Value == "true"
		}
	}
	return props
}

func (api *RestAPI) configHandler(w http.ResponseWriter, r *http.Request) {
	var modes []string
	for _, m := range api.Engine.Registry().Modes() {
		modes = append(modes, string(m))
	}

	entry := models.ConfigModel{
		ID:              "crowdcast",
		Name:            "crowdcast",
		BuildProperties: buildProperties(),
		Timezone:        api.Location.String(),
		Modes:           modes,
		BusFeeds:        api.Realtime.HasBusKey(),
		Scoring:         api.Engine.Scorer().Config(),
		DemandPeriods:   api.Demand.Periods(),
	}
	api.sendResponse(w, r, models.NewEntryResponse(entry, api.Clock))
}
