package realtime

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdcast.transitpulse.org/internal/alerts"
	"crowdcast.transitpulse.org/internal/arrivals"
	"crowdcast.transitpulse.org/internal/clock"
	"crowdcast.transitpulse.org/internal/crowding"
	"crowdcast.transitpulse.org/internal/feed/feedtest"
	"crowdcast.transitpulse.org/internal/schedule"
	"crowdcast.transitpulse.org/internal/transport"
)

var _ crowding.FeedSource = (*Manager)(nil)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	mu      sync.Mutex
	bodies  map[transport.Kind][]byte
	busKey  bool
	fetched map[transport.Kind]int
}

func (f *fakeFetcher) Fetch(_ context.Context, kind transport.Kind) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetched == nil {
		f.fetched = map[transport.Kind]int{}
	}
	f.fetched[kind]++
	return f.bodies[kind]
}

func (f *fakeFetcher) HasBusKey() bool { return f.busKey }

func (f *fakeFetcher) count(kind transport.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetched[kind]
}

func newManager(f *fakeFetcher, set schedule.Set) *Manager {
	return New(Config{Fetcher: f, Schedules: set, Clock: clock.NewMockClock(now)})
}

func subwayTrip(id, route, stop string, in time.Duration) feedtest.Trip {
	return feedtest.Trip{
		TripID:        id,
		RouteID:       route,
		NYCTDirection: "S",
		NYCTTrainID:   "1" + route + " 1200 XYZ/ABC",
		Stops:         []feedtest.StopTime{{StopID: stop, Arrival: now.Add(in)}},
	}
}

func TestArrivalsSingleFeed(t *testing.T) {
	f := &fakeFetcher{bodies: map[transport.Kind][]byte{
		transport.SubwayACE: feedtest.Bytes(now,
			subwayTrip("t1", "A", "A27S", 4*time.Minute),
			subwayTrip("t2", "A", "A27S", 9*time.Minute),
			subwayTrip("t3", "C", "A27S", 6*time.Minute),
		),
	}}
	m := newManager(f, nil)

	got := m.Arrivals(context.Background(), arrivals.ModeSubway, arrivals.Filter{RouteID: "A", StationID: "A27"})
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].TripID)
	assert.Equal(t, arrivals.South, got[0].Direction)
	assert.Equal(t, 1, f.count(transport.SubwayACE))
	assert.Zero(t, f.count(transport.SubwayBDFM))
}

func TestArrivalsAcrossLineGroups(t *testing.T) {
	f := &fakeFetcher{bodies: map[transport.Kind][]byte{
		transport.SubwayACE:  feedtest.Bytes(now, subwayTrip("t1", "A", "A32S", 7*time.Minute)),
		transport.SubwayBDFM: feedtest.Bytes(now, subwayTrip("t2", "F", "A32S", 3*time.Minute)),
		transport.SubwayL:    []byte("not a protobuf"),
	}}
	m := newManager(f, nil)

	got := m.Arrivals(context.Background(), arrivals.ModeSubway, arrivals.Filter{StationID: "A32", Limit: 1})
	require.Len(t, got, 1)
	assert.Equal(t, "t2", got[0].TripID)
	for _, k := range transport.SubwayKinds() {
		assert.Equal(t, 1, f.count(k), string(k))
	}
}

func TestArrivalsDegradeToEmpty(t *testing.T) {
	m := newManager(&fakeFetcher{}, nil)
	for _, mode := range []arrivals.Mode{arrivals.ModeSubway, arrivals.ModeBus, arrivals.ModeLIRR, "ferry"} {
		got := m.Arrivals(context.Background(), mode, arrivals.Filter{RouteID: "A"})
		assert.NotNil(t, got, string(mode))
		assert.Empty(t, got, string(mode))
	}
	assert.Empty(t, m.Arrivals(context.Background(), arrivals.ModeSubway, arrivals.Filter{RouteID: "nope"}))
}

func TestRailArrivalsUseSchedule(t *testing.T) {
	idx := schedule.NewIndex(
		map[string][]schedule.Stop{"2067": {
			{StopID: "102", StopName: "Jamaica", TimeOfDay: 12*time.Hour + 30*time.Minute},
			{StopID: "214", StopName: "Woodside", TimeOfDay: 12*time.Hour + 45*time.Minute},
			{StopID: "237", StopName: "Penn Station", TimeOfDay: 12*time.Hour + 55*time.Minute},
		}},
		map[string]string{"237": "Penn Station"},
	)
	f := &fakeFetcher{bodies: map[transport.Kind][]byte{
		transport.LIRR: feedtest.Bytes(now, feedtest.Trip{
			TripID:    "GO103_25_2067",
			RouteID:   "1",
			StartDate: "20260310",
			Stops: []feedtest.StopTime{
				{StopID: "102", Arrival: now.Add(32 * time.Minute), Delay: feedtest.Int32(120)},
				{StopID: "237", Arrival: now.Add(57 * time.Minute), Delay: feedtest.Int32(120)},
			},
		}),
	}}
	m := newManager(f, schedule.Set{"lirr": idx})

	got := m.Arrivals(context.Background(), arrivals.ModeLIRR, arrivals.Filter{RouteID: "1"})
	require.Len(t, got, 3)
	assert.Equal(t, "214", got[1].StopID)
	assert.True(t, got[1].ScheduleDerived)
	require.NotNil(t, got[1].Headsign)
	assert.Equal(t, "Penn Station", *got[1].Headsign)
	assert.Equal(t, arrivals.Inbound, got[0].Direction)

	name, ok := m.StationName("237")
	assert.True(t, ok)
	assert.Equal(t, "Penn Station", name)

	m.UpdateSchedules(nil)
	got = m.Arrivals(context.Background(), arrivals.ModeLIRR, arrivals.Filter{RouteID: "1"})
	assert.Len(t, got, 2, "no splicing without a timetable")
	_, ok = m.StationName("237")
	assert.False(t, ok)
}

const alertFeed = `{
  "header": {"gtfs_realtime_version": "1.0", "timestamp": 1773144000},
  "entity": [
    {"id": "a1", "alert": {
      "informed_entity": [{"route_id": "A"}],
      "header_text": {"translation": [{"text": "A trains delayed", "language": "en"}]}
    }},
    {"id": "a2", "alert": {
      "active_period": [{"start": 1773100000, "end": 1773143999}],
      "informed_entity": [{"route_id": "A"}],
      "header_text": {"translation": [{"text": "A trains suspended", "language": "en"}]}
    }},
    {"id": "g1", "alert": {
      "informed_entity": [{"route_id": "G"}],
      "header_text": {"translation": [{"text": "G trains slow", "language": "en"}]}
    }}
  ]
}`

func TestAlerts(t *testing.T) {
	f := &fakeFetcher{bodies: map[transport.Kind][]byte{transport.Alerts: []byte(alertFeed)}}
	m := newManager(f, nil)

	all := m.Alerts(context.Background())
	assert.Len(t, all, 3)

	active := m.ActiveAlerts(context.Background(), "A")
	require.Len(t, active, 1)
	assert.Equal(t, "a1", active[0].ID)
	assert.Equal(t, alerts.TypeDelay, active[0].Type)
}

func TestAlertsFallBackToRailFeeds(t *testing.T) {
	f := &fakeFetcher{bodies: map[transport.Kind][]byte{transport.Alerts: []byte(`{"entity": []}`)}}
	m := newManager(f, nil)

	got := m.Alerts(context.Background())
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, 1, f.count(transport.LIRR))
	assert.Equal(t, 1, f.count(transport.MetroNorth))
}

func TestAlertParserLogsItsOwnComponent(t *testing.T) {
	var buf bytes.Buffer
	f := &fakeFetcher{bodies: map[transport.Kind][]byte{transport.Alerts: []byte(`{"entity": "nope"}`)}}
	m := New(Config{Fetcher: f, Clock: clock.NewMockClock(now), Logger: slog.New(slog.NewTextHandler(&buf, nil))})

	assert.Empty(t, m.Alerts(context.Background()))
	assert.Contains(t, buf.String(), "component=alert_parser")
	assert.NotContains(t, buf.String(), "component=realtime_manager")
}

func TestOutagesAndEquipment(t *testing.T) {
	f := &fakeFetcher{bodies: map[transport.Kind][]byte{
		transport.Outages: []byte(`[{"station": "Bedford Av", "trainno": "L", "equipment": "EL100", "equipmenttype": "EL",
			"outagedate": "03/10/2026 06:00:00 AM", "isupcomingoutage": "N"}]`),
		transport.Equipment: []byte(`[oops`),
	}}
	m := newManager(f, nil)

	assert.Len(t, m.Outages(context.Background(), "L"), 1)
	assert.Empty(t, m.Outages(context.Background(), "A"))

	eq := m.Equipment(context.Background())
	assert.NotNil(t, eq)
	assert.Empty(t, eq)
}

func TestBusRoutes(t *testing.T) {
	routes, fallback := newManager(&fakeFetcher{}, nil).BusRoutes(context.Background())
	assert.True(t, fallback)
	assert.Contains(t, routes, "M15")

	f := &fakeFetcher{busKey: true, bodies: map[transport.Kind][]byte{
		transport.BusTripUpdates: feedtest.Bytes(now,
			feedtest.Trip{TripID: "b1", RouteID: "MTA NYCT_B63", DirectionID: feedtest.Uint32(1),
				Stops: []feedtest.StopTime{{StopID: "MTA_305423", Arrival: now.Add(3 * time.Minute)}}},
			feedtest.Trip{TripID: "b2", RouteID: "MTA NYCT_B63"},
			feedtest.Trip{TripID: "b3", RouteID: "MTABC_Q10"},
		),
	}}
	m := newManager(f, nil)
	routes, fallback = m.BusRoutes(context.Background())
	assert.False(t, fallback)
	assert.Equal(t, []string{"B63", "Q10"}, routes)

	got := m.Arrivals(context.Background(), arrivals.ModeBus, arrivals.Filter{RouteID: "B63", StationID: "305423"})
	require.Len(t, got, 1)
	assert.Equal(t, arrivals.Inbound, got[0].Direction)
}

func TestFeedKind(t *testing.T) {
	k, ok := FeedKind(arrivals.ModeSubway, "6X")
	assert.True(t, ok)
	assert.Equal(t, transport.Subway1234567S, k)
	k, _ = FeedKind(arrivals.ModeMNR, "1")
	assert.Equal(t, transport.MetroNorth, k)
	_, ok = FeedKind("ferry", "x")
	assert.False(t, ok)
}
