package restapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gtfsrt "github.com/OneBusAway/go-gtfs/proto"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"crowdcast.transitpulse.org/internal/app"
	"crowdcast.transitpulse.org/internal/appconf"
	"crowdcast.transitpulse.org/internal/clock"
	"crowdcast.transitpulse.org/internal/crowding"
	"crowdcast.transitpulse.org/internal/demand"
	"crowdcast.transitpulse.org/internal/feed/feedtest"
	"crowdcast.transitpulse.org/internal/metrics"
	"crowdcast.transitpulse.org/internal/models"
	"crowdcast.transitpulse.org/internal/realtime"
	"crowdcast.transitpulse.org/internal/segments"
	"crowdcast.transitpulse.org/internal/transport"
)

// Monday 08:00 UTC, inside the morning rush.
var testNow = time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)

const testRegistry = `
routes:
  - route: A
    mode: subway
    inbound: S
    reference_station: A27
    segments:
      - {id: A-midtown, name: Midtown, stations: [A27, A28]}
      - {id: A-downtown, name: Downtown, stations: [A32]}
  - route: B63
    mode: bus
    inbound: inbound
    reference_station: "305423"
    segments:
      - {id: B63-fifth, name: Fifth Av, stations: ["305423"]}
`

const testAlertFeed = `{
  "header": {"gtfs_realtime_version": "1.0", "timestamp": 1773043200},
  "entity": [
    {"id": "a1", "alert": {
      "informed_entity": [{"route_id": "A"}],
      "header_text": {"translation": [{"text": "A trains delayed", "language": "en"}]}
    }},
    {"id": "a2", "alert": {
      "active_period": [{"start": 1772000000, "end": 1772000100}],
      "informed_entity": [{"route_id": "A"}],
      "header_text": {"translation": [{"text": "A trains suspended", "language": "en"}]}
    }}
  ]
}`

type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[transport.Kind][]byte
	busKey bool
}

func (f *fakeFetcher) Fetch(_ context.Context, kind transport.Kind) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[kind]
}

func (f *fakeFetcher) HasBusKey() bool { return f.busKey }

func southbound(id, stop string, in time.Duration) feedtest.Trip {
	return feedtest.Trip{
		TripID:        id,
		RouteID:       "A",
		NYCTDirection: "S",
		NYCTTrainID:   "1A 0800 207/FAR",
		Stops:         []feedtest.StopTime{{StopID: stop, Arrival: testNow.Add(in)}},
	}
}

// vehicleFeed holds one fresh and one stale B63 bus.
func vehicleFeed() []byte {
	msg := feedtest.Message(testNow)
	for _, v := range []struct {
		id  string
		age time.Duration
	}{{"bus-fresh", time.Minute}, {"bus-stale", time.Hour}} {
		msg.Entity = append(msg.Entity, &gtfsrt.FeedEntity{
			Id: proto.String(v.id),
			Vehicle: &gtfsrt.VehiclePosition{
				Trip:      &gtfsrt.TripDescriptor{TripId: proto.String(v.id + "-trip"), RouteId: proto.String("MTA NYCT_B63")},
				Vehicle:   &gtfsrt.VehicleDescriptor{Id: proto.String(v.id)},
				Position:  &gtfsrt.Position{Latitude: proto.Float32(40.67), Longitude: proto.Float32(-73.98)},
				Timestamp: proto.Uint64(uint64(testNow.Add(-v.age).Unix())),
			},
		})
	}
	return feedtest.Marshal(msg)
}

func testFetcher() *fakeFetcher {
	return &fakeFetcher{bodies: map[transport.Kind][]byte{
		transport.SubwayACE: feedtest.Bytes(testNow,
			southbound("t1", "A27S", 2*time.Minute),
			southbound("t2", "A27S", 12*time.Minute),
			southbound("t3", "A27S", 22*time.Minute),
			southbound("t4", "A28S", 5*time.Minute),
		),
		transport.Alerts:      []byte(testAlertFeed),
		transport.BusVehicles: vehicleFeed(),
	}}
}

func createTestApi(t *testing.T) *RestAPI {
	return createTestApiWithConfig(t, appconf.Config{ApiKeys: []string{"TEST"}, RateLimit: 100})
}

func createTestApiWithConfig(t *testing.T, cfg appconf.Config) *RestAPI {
	t.Helper()
	mockClock := clock.NewMockClock(testNow)

	reg, err := segments.Load([]byte(testRegistry))
	require.NoError(t, err)
	model, err := demand.New(nil, nil)
	require.NoError(t, err)

	m := metrics.New()
	manager := realtime.New(realtime.Config{
		Fetcher:  testFetcher(),
		Clock:    mockClock,
		Location: time.UTC,
		Metrics:  m,
	})
	engine := crowding.NewEngine(crowding.EngineConfig{
		Source:   manager,
		Registry: reg,
		Demand:   model,
		Clock:    mockClock,
		Location: time.UTC,
		Metrics:  m,
	})

	api := NewRestAPI(&app.Application{
		Config:   cfg,
		Clock:    mockClock,
		Location: time.UTC,
		Metrics:  m,
		Realtime: manager,
		Engine:   engine,
		Demand:   model,
	})
	t.Cleanup(api.Shutdown)
	return api
}

func newTestServer(t *testing.T, api *RestAPI) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	api.SetRoutes(mux)
	server := httptest.NewServer(api.Handler(mux))
	t.Cleanup(server.Close)
	return server
}

func serveAndRetrieveEndpoint(t *testing.T, endpoint string) (*RestAPI, *http.Response, models.ResponseModel) {
	t.Helper()
	api := createTestApi(t)
	resp, model := serveApiAndRetrieveEndpoint(t, api, endpoint)
	return api, resp, model
}

func serveApiAndRetrieveEndpoint(t *testing.T, api *RestAPI, endpoint string) (*http.Response, models.ResponseModel) {
	t.Helper()
	server := newTestServer(t, api)
	resp, err := http.Get(server.URL + endpoint)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var model models.ResponseModel
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&model))
	return resp, model
}

// decodeEntry returns data.entry from a decoded response.
func decodeEntry(t *testing.T, model models.ResponseModel) map[string]any {
	t.Helper()
	data, ok := model.Data.(map[string]any)
	require.True(t, ok, "data is %T", model.Data)
	e, ok := data["entry"].(map[string]any)
	require.True(t, ok, "entry is %T", data["entry"])
	return e
}

// decodeList returns data.list and data.limitExceeded from a decoded response.
func decodeList(t *testing.T, model models.ResponseModel) ([]any, bool) {
	t.Helper()
	data, ok := model.Data.(map[string]any)
	require.True(t, ok, "data is %T", model.Data)
	l, ok := data["list"].([]any)
	require.True(t, ok, "list is %T", data["list"])
	exceeded, _ := data["limitExceeded"].(bool)
	return l, exceeded
}

// collectStrings pulls key out of every object in l.
func collectStrings(t *testing.T, l []any, key string) []string {
	t.Helper()
	var out []string
	for i, item := range l {
		obj, ok := item.(map[string]any)
		require.True(t, ok, "item %d is %T", i, item)
		s, ok := obj[key].(string)
		require.True(t, ok, "item %d key %q is %T", i, key, obj[key])
		out = append(out, s)
	}
	return out
}
