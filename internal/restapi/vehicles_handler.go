package restapi

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"crowdcast.transitpulse.org/internal/feed"
	"crowdcast.transitpulse.org/internal/geo"
	"crowdcast.transitpulse.org/internal/models"
)

const (
	defaultNearbyRadius = 500.0
	maxNearbyRadius     = 5000.0
)

type vehicleEntry struct {
	VehicleID     string     `json:"vehicleId"`
	Label         string     `json:"label,omitempty"`
	TripID        string     `json:"tripId,omitempty"`
	RouteID       string     `json:"routeId,omitempty"`
	DirectionID   *uint32    `json:"directionId,omitempty"`
	StopID        string     `json:"stopId,omitempty"`
	CurrentStatus string     `json:"currentStatus,omitempty"`
	Latitude      *float32   `json:"lat,omitempty"`
	Longitude     *float32   `json:"lon,omitempty"`
	Timestamp     *time.Time `json:"timestamp,omitempty"`
	Stale         bool       `json:"stale"`

	// DistanceMeters is set for lat/lon queries.
	DistanceMeters *float64 `json:"distanceMeters,omitempty"`
}

func newVehicleEntry(v *feed.VehiclePosition, stale bool) vehicleEntry {
	e := vehicleEntry{
		VehicleID:     v.VehicleID,
		Label:         v.Label,
		StopID:        v.StopID,
		CurrentStatus: v.CurrentStatus,
		Latitude:      v.Latitude,
		Longitude:     v.Longitude,
		Timestamp:     v.Timestamp,
		Stale:         stale,
	}
	if v.Trip != nil {
		e.TripID = v.Trip.TripID
		e.RouteID = v.Trip.RouteID
		e.DirectionID = v.Trip.DirectionID
	}
	return e
}

type nearbyQuery struct {
	lat, lon, radius float64
}

// parseNearby reads lat, lon and radius. ok is false when no point was
// given.
func parseNearby(r *http.Request) (q nearbyQuery, ok bool, err error) {
	v := r.URL.Query()
	if v.Get("lat") == "" && v.Get("lon") == "" {
		return q, false, nil
	}
	q.lat, err = strconv.ParseFloat(v.Get("lat"), 64)
	if err != nil || q.lat < -90 || q.lat > 90 {
		return q, false, errors.New("lat must be between -90 and 90")
	}
	q.lon, err = strconv.ParseFloat(v.Get("lon"), 64)
	if err != nil || q.lon < -180 || q.lon > 180 {
		return q, false, errors.New("lon must be between -180 and 180")
	}
	q.radius = defaultNearbyRadius
	if s := v.Get("radius"); s != "" {
		q.radius, err = strconv.ParseFloat(s, 64)
		if err != nil || q.radius <= 0 {
			return q, false, errors.New("radius must be a positive number of meters")
		}
		q.radius = min(q.radius, maxNearbyRadius)
	}
	return q, true, nil
}

// vehiclesHandler serves bus vehicle positions. Positions older than the
// stale threshold are dropped unless includeStale is set. With lat and lon
// only vehicles within radius meters are kept, nearest first.
func (api *RestAPI) vehiclesHandler(w http.ResponseWriter, r *http.Request) {
	near, nearby, err := parseNearby(r)
	if err != nil {
		api.sendBadRequest(w, r, err.Error())
		return
	}

	now := api.Clock.Now()
	list := api.Realtime.Vehicles(r.Context(), r.URL.Query().Get("route"))
	if !parseBool(r, "includeStale") {
		list = api.staleDetector.Fresh(list, now)
	}

	entries := make([]vehicleEntry, 0, len(list))
	bounds := geo.BoundsAround(near.lat, near.lon, near.radius)
	for _, v := range list {
		e := newVehicleEntry(v, api.staleDetector.Check(v, now))
		if nearby {
			if v.Latitude == nil || v.Longitude == nil {
				continue
			}
			lat, lon := float64(*v.Latitude), float64(*v.Longitude)
			if !bounds.Contains(lat, lon) {
				continue
			}
			d := geo.Distance(near.lat, near.lon, lat, lon)
			if d > near.radius {
				continue
			}
			e.DistanceMeters = &d
		}
		entries = append(entries, e)
	}
	if nearby {
		sort.SliceStable(entries, func(i, j int) bool {
			return *entries[i].DistanceMeters < *entries[j].DistanceMeters
		})
	}
	api.sendResponse(w, r, models.NewListResponse(entries, false, api.Clock))
}

type busRoutesEntry struct {
	Routes []string `json:"routes"`

	// Fallback is true when the list is the built-in one rather than
	// routes seen in the live feed.
	Fallback bool `json:"fallback"`
}

func (api *RestAPI) busRoutesHandler(w http.ResponseWriter, r *http.Request) {
	routes, fallback := api.Realtime.BusRoutes(r.Context())
	api.sendResponse(w, r, models.NewEntryResponse(busRoutesEntry{Routes: routes, Fallback: fallback}, api.Clock))
}
