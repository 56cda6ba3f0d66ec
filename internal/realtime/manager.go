// Package realtime binds feed transport, protobuf decoding, the per-mode
// arrival extractors and the alert parser behind the read API the crowding
// engine and the REST layer consume. Every failure is logged once and
// becomes an empty result.
package realtime

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"crowdcast.transitpulse.org/internal/alerts"
	"crowdcast.transitpulse.org/internal/arrivals"
	"crowdcast.transitpulse.org/internal/clock"
	"crowdcast.transitpulse.org/internal/feed"
	"crowdcast.transitpulse.org/internal/logging"
	"crowdcast.transitpulse.org/internal/metrics"
	"crowdcast.transitpulse.org/internal/schedule"
	"crowdcast.transitpulse.org/internal/transport"
)

// Fetcher is the transport contract. *transport.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, kind transport.Kind) []byte
	HasBusKey() bool
}

type Config struct {
	Fetcher Fetcher
	// Schedules holds the static timetables keyed by feed name ("lirr",
	// "mnr"). Optional.
	Schedules schedule.Set
	Clock     clock.Clock
	Location  *time.Location
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

type Manager struct {
	fetcher Fetcher
	parser  *alerts.Parser
	clock   clock.Clock
	loc     *time.Location
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu         sync.RWMutex
	schedules  schedule.Set
	extractors map[arrivals.Mode]arrivals.Extractor
}

func New(cfg Config) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With(slog.String("component", "realtime_manager"))
	m := &Manager{
		fetcher: cfg.Fetcher,
		parser:  alerts.NewParser(cfg.Logger, cfg.Location),
		clock:   cfg.Clock,
		loc:     cfg.Location,
		metrics: cfg.Metrics,
		logger:  logger,
	}
	m.UpdateSchedules(cfg.Schedules)
	return m
}

// UpdateSchedules swaps the static timetables used for rail gap repair.
// Requests in flight keep the extractors they started with.
func (m *Manager) UpdateSchedules(set schedule.Set) {
	extractors := map[arrivals.Mode]arrivals.Extractor{
		arrivals.ModeSubway: arrivals.Subway{},
		arrivals.ModeBus:    arrivals.Bus{},
	}
	for _, mode := range []arrivals.Mode{arrivals.ModeLIRR, arrivals.ModeMNR} {
		cfg := arrivals.RailConfig{Mode: mode, Location: m.loc}
		if idx := set.Feed(string(mode)); idx != nil {
			cfg.Schedule = idx
			cfg.Stations = idx
		}
		extractors[mode] = arrivals.NewRail(cfg)
	}

	m.mu.Lock()
	m.schedules = set
	m.extractors = extractors
	m.mu.Unlock()
}

func (m *Manager) extractor(mode arrivals.Mode) (arrivals.Extractor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ex, ok := m.extractors[mode]
	return ex, ok
}

// HasBusKey reports whether bus feeds are configured.
func (m *Manager) HasBusKey() bool {
	return m.fetcher.HasBusKey()
}

// StationName resolves a stop id through the loaded timetables.
func (m *Manager) StationName(stopID string) (string, bool) {
	m.mu.RLock()
	set := m.schedules
	m.mu.RUnlock()
	return set.StationName(stopID)
}

// FeedKind maps a route to the feed that carries it.
func FeedKind(mode arrivals.Mode, route string) (transport.Kind, bool) {
	switch mode {
	case arrivals.ModeSubway:
		return transport.SubwayKind(route)
	case arrivals.ModeBus:
		return transport.BusTripUpdates, true
	case arrivals.ModeLIRR:
		return transport.LIRR, true
	case arrivals.ModeMNR:
		return transport.MetroNorth, true
	}
	return "", false
}

// kindsFor lists the feeds to read for a query. A subway query without a
// route reads every line group.
func kindsFor(mode arrivals.Mode, route string) []transport.Kind {
	if mode == arrivals.ModeSubway && route == "" {
		return transport.SubwayKinds()
	}
	if k, ok := FeedKind(mode, route); ok {
		return []transport.Kind{k}
	}
	return nil
}

// Message fetches and decodes one protobuf feed. Nil means no data.
func (m *Manager) Message(ctx context.Context, kind transport.Kind) *feed.Message {
	body := m.fetcher.Fetch(ctx, kind)
	if body == nil {
		return nil
	}
	msg, err := feed.Decode(body)
	if err != nil {
		m.metrics.DecodeFailed(string(kind))
		logging.LogWarn(m.logger, "discarding undecodable feed", err, slog.String("feed", string(kind)))
		return nil
	}
	return msg
}

func (m *Manager) messages(ctx context.Context, kinds []transport.Kind) []*feed.Message {
	if len(kinds) == 1 {
		if msg := m.Message(ctx, kinds[0]); msg != nil {
			return []*feed.Message{msg}
		}
		return nil
	}
	p := pool.NewWithResults[*feed.Message]()
	for _, kind := range kinds {
		p.Go(func() *feed.Message { return m.Message(ctx, kind) })
	}
	var out []*feed.Message
	for _, msg := range p.Wait() {
		if msg != nil {
			out = append(out, msg)
		}
	}
	return out
}

// Arrivals returns upcoming arrivals for mode, sorted by time. Unknown
// modes and routes, fetch failures and decode failures all give an empty
// list.
func (m *Manager) Arrivals(ctx context.Context, mode arrivals.Mode, filter arrivals.Filter) []arrivals.Arrival {
	ex, ok := m.extractor(mode)
	if !ok {
		return []arrivals.Arrival{}
	}
	now := m.clock.Now()
	msgs := m.messages(ctx, kindsFor(mode, filter.RouteID))
	if len(msgs) == 1 {
		return ex.Extract(msgs[0], filter, now)
	}

	out := []arrivals.Arrival{}
	unlimited := filter
	unlimited.Limit = 0
	for _, msg := range msgs {
		out = append(out, ex.Extract(msg, unlimited, now)...)
	}
	arrivals.Sort(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

// TripUpdates returns every trip update in the feed carrying route.
func (m *Manager) TripUpdates(ctx context.Context, mode arrivals.Mode, route string) []*feed.TripUpdate {
	var out []*feed.TripUpdate
	for _, msg := range m.messages(ctx, kindsFor(mode, route)) {
		out = append(out, msg.TripUpdates()...)
	}
	return out
}

// Vehicles returns bus vehicle positions, optionally for one route.
func (m *Manager) Vehicles(ctx context.Context, route string) []*feed.VehiclePosition {
	msg := m.Message(ctx, transport.BusVehicles)
	if msg == nil {
		return nil
	}
	var out []*feed.VehiclePosition
	for _, v := range msg.Vehicles() {
		if route == "" || (v.Trip != nil && arrivals.RouteMatches(arrivals.ModeBus, v.Trip.RouteID, route)) {
			out = append(out, v)
		}
	}
	return out
}

// Alerts returns every service alert from the JSON alert feed. When that
// feed is unavailable the alert entities carried in the railroad feeds are
// used instead.
func (m *Manager) Alerts(ctx context.Context) []alerts.ServiceAlert {
	if body := m.fetcher.Fetch(ctx, transport.Alerts); body != nil {
		list, err := m.parser.Parse(body)
		if err == nil {
			return list
		}
		m.metrics.DecodeFailed(string(transport.Alerts))
	}
	out := []alerts.ServiceAlert{}
	for _, msg := range m.messages(ctx, []transport.Kind{transport.LIRR, transport.MetroNorth}) {
		out = append(out, alerts.FromFeed(msg)...)
	}
	return out
}

// ActiveAlerts returns the alerts active now, optionally for one route.
func (m *Manager) ActiveAlerts(ctx context.Context, route string) []alerts.ServiceAlert {
	return alerts.ForRoute(alerts.Active(m.Alerts(ctx), m.clock.Now()), route)
}

// Outages returns current elevator and escalator outages, optionally for
// stations served by route.
func (m *Manager) Outages(ctx context.Context, route string) []alerts.EquipmentOutage {
	body := m.fetcher.Fetch(ctx, transport.Outages)
	if body == nil {
		return []alerts.EquipmentOutage{}
	}
	list, err := m.parser.ParseOutages(body)
	if err != nil {
		m.metrics.DecodeFailed(string(transport.Outages))
		return []alerts.EquipmentOutage{}
	}
	return alerts.OutagesForRoute(list, route)
}

// Equipment returns the static elevator and escalator inventory.
func (m *Manager) Equipment(ctx context.Context) []alerts.Equipment {
	body := m.fetcher.Fetch(ctx, transport.Equipment)
	if body == nil {
		return []alerts.Equipment{}
	}
	list, err := m.parser.ParseEquipment(body)
	if err != nil {
		m.metrics.DecodeFailed(string(transport.Equipment))
		return []alerts.Equipment{}
	}
	return list
}

// BusRoutes lists the bus routes with live trips. Without a bus API key, or
// when the feed yields nothing, it returns the built-in route list and
// reports fallback.
func (m *Manager) BusRoutes(ctx context.Context) (routes []string, fallback bool) {
	if !m.fetcher.HasBusKey() {
		return FallbackBusRoutes(), true
	}
	seen := map[string]bool{}
	for _, tu := range m.TripUpdates(ctx, arrivals.ModeBus, "") {
		if id := stripAgency(tu.Trip.RouteID); id != "" && !seen[id] {
			seen[id] = true
			routes = append(routes, id)
		}
	}
	if len(routes) == 0 {
		return FallbackBusRoutes(), true
	}
	sort.Strings(routes)
	return routes, false
}
