package restapi

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdcast.transitpulse.org/internal/feed"
)

func TestVehiclesHandlerDropsStalePositions(t *testing.T) {
	_, resp, model := serveAndRetrieveEndpoint(t, "/api/v1/vehicles?key=TEST&route=B63")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	l, _ := decodeList(t, model)
	assert.Equal(t, []string{"bus-fresh"}, collectStrings(t, l, "vehicleId"))
	assert.Equal(t, []string{"MTA NYCT_B63"}, collectStrings(t, l, "routeId"))
}

func TestVehiclesHandlerIncludeStale(t *testing.T) {
	_, _, model := serveAndRetrieveEndpoint(t, "/api/v1/vehicles?key=TEST&includeStale=true")
	l, _ := decodeList(t, model)
	require.Len(t, l, 2)
	assert.ElementsMatch(t, []string{"bus-fresh", "bus-stale"}, collectStrings(t, l, "vehicleId"))

	stale := map[string]bool{}
	for _, item := range l {
		v := item.(map[string]any)
		stale[v["vehicleId"].(string)] = v["stale"].(bool)
	}
	assert.False(t, stale["bus-fresh"])
	assert.True(t, stale["bus-stale"])
}

func TestBusRoutesHandlerFallsBack(t *testing.T) {
	_, _, model := serveAndRetrieveEndpoint(t, "/api/v1/bus-routes?key=TEST")
	e := decodeEntry(t, model)
	assert.Equal(t, true, e["fallback"], "no bus key configured")
	assert.NotEmpty(t, e["routes"])
}

func TestStaleDetector(t *testing.T) {
	now := testNow
	recent := now.Add(-time.Minute)
	old := now.Add(-16 * time.Minute)
	d := NewStaleDetector()

	fresh := &feed.VehiclePosition{VehicleID: "a", Timestamp: &recent}
	stale := &feed.VehiclePosition{VehicleID: "b", Timestamp: &old}
	unknown := &feed.VehiclePosition{VehicleID: "c"}

	assert.False(t, d.Check(fresh, now))
	assert.True(t, d.Check(stale, now))
	assert.True(t, d.Check(unknown, now), "no timestamp means stale")
	assert.Equal(t, time.Minute, d.Age(fresh, now))

	assert.Equal(t, []*feed.VehiclePosition{fresh}, d.Fresh([]*feed.VehiclePosition{fresh, stale, unknown}, now))
	assert.False(t, NewStaleDetector().WithThreshold(time.Hour).Check(stale, now))
}

func TestVehiclesHandlerNearby(t *testing.T) {
	_, resp, model := serveAndRetrieveEndpoint(t, "/api/v1/vehicles?key=TEST&lat=40.671&lon=-73.98")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	l, _ := decodeList(t, model)
	require.Len(t, l, 1)
	v := l[0].(map[string]any)
	assert.Equal(t, "bus-fresh", v["vehicleId"])
	assert.InDelta(t, 111, v["distanceMeters"].(float64), 2)

	_, _, model = serveAndRetrieveEndpoint(t, "/api/v1/vehicles?key=TEST&lat=40.70&lon=-73.98")
	l, _ = decodeList(t, model)
	assert.Empty(t, l, "3.3km is outside the default radius")

	_, _, model = serveAndRetrieveEndpoint(t, "/api/v1/vehicles?key=TEST&lat=40.70&lon=-73.98&radius=5000")
	l, _ = decodeList(t, model)
	assert.Len(t, l, 1)
}

func TestVehiclesHandlerNearbyBadInput(t *testing.T) {
	for _, q := range []string{"lat=40.7", "lat=abc&lon=-73.9", "lat=91&lon=0", "lat=40.7&lon=-181", "lat=40.7&lon=-73.9&radius=-5"} {
		_, resp, _ := serveAndRetrieveEndpoint(t, "/api/v1/vehicles?key=TEST&"+q)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}
