// Package crowding turns live arrivals, delays and alerts plus the
// historical demand curve into 0-100 crowding scores per station, segment,
// route and network.
package crowding

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"

	"crowdcast.transitpulse.org/internal/alerts"
	"crowdcast.transitpulse.org/internal/arrivals"
	"crowdcast.transitpulse.org/internal/clock"
	"crowdcast.transitpulse.org/internal/demand"
	"crowdcast.transitpulse.org/internal/feed"
	"crowdcast.transitpulse.org/internal/metrics"
	"crowdcast.transitpulse.org/internal/segments"
)

var (
	ErrUnknownRoute   = errors.New("unknown route")
	ErrUnknownSegment = errors.New("unknown segment")
)

// FeedSource is what the engine reads live data through. Implementations
// absorb their own failures; nil or empty means "no data".
type FeedSource interface {
	Arrivals(ctx context.Context, mode arrivals.Mode, filter arrivals.Filter) []arrivals.Arrival
	// TripUpdates returns every trip update in the feed carrying route.
	TripUpdates(ctx context.Context, mode arrivals.Mode, route string) []*feed.TripUpdate
	Alerts(ctx context.Context) []alerts.ServiceAlert
}

type EngineConfig struct {
	Source   FeedSource
	Registry *segments.Registry
	Demand   *demand.Model
	Scorer   *Scorer
	Clock    clock.Clock
	// Location is the service time zone used for demand and peak lookups.
	Location *time.Location
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	// SegmentSample is how many segments per route the network rollup
	// scores. Zero means 2.
	SegmentSample int
	// BatchSize is how many routes the network rollup scores at once. Zero
	// means 5.
	BatchSize int
	// StationConcurrency bounds the per-segment station fan-out. Zero means
	// one goroutine per station.
	StationConcurrency int
}

type Engine struct {
	source   FeedSource
	registry *segments.Registry
	demand   *demand.Model
	scorer   *Scorer
	clock    clock.Clock
	loc      *time.Location
	metrics  *metrics.Metrics
	logger   *slog.Logger

	segmentSample      int
	batchSize          int
	stationConcurrency int
}

func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		source:             cfg.Source,
		registry:           cfg.Registry,
		demand:             cfg.Demand,
		scorer:             cfg.Scorer,
		clock:              cfg.Clock,
		loc:                cfg.Location,
		metrics:            cfg.Metrics,
		logger:             cfg.Logger,
		segmentSample:      cfg.SegmentSample,
		batchSize:          cfg.BatchSize,
		stationConcurrency: cfg.StationConcurrency,
	}
	if e.scorer == nil {
		e.scorer = DefaultScorer()
	}
	if e.clock == nil {
		e.clock = clock.RealClock{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.segmentSample <= 0 {
		e.segmentSample = 2
	}
	if e.batchSize <= 0 {
		e.batchSize = 5
	}
	return e
}

func (e *Engine) Registry() *segments.Registry { return e.registry }

func (e *Engine) Scorer() *Scorer { return e.scorer }

func (e *Engine) now() clock.ServiceTime {
	return clock.Local(e.clock, e.loc)
}

// HeadwayForStation fetches the route's arrivals at a station and measures
// their headway.
func (e *Engine) HeadwayForStation(ctx context.Context, mode arrivals.Mode, route, station string) *HeadwayData {
	return CalculateHeadway(e.source.Arrivals(ctx, mode, arrivals.Filter{RouteID: route, StationID: station}))
}

// RouteHeadway measures headway at the route's reference station.
func (e *Engine) RouteHeadway(ctx context.Context, mode arrivals.Mode, route string) (*HeadwayData, error) {
	r, ok := e.registry.Route(mode, route)
	if !ok {
		return nil, ErrUnknownRoute
	}
	return e.HeadwayForStation(ctx, mode, route, r.ReferenceStation), nil
}

type stationHeadway struct {
	station string
	headway *HeadwayData
}

// SegmentHeadways measures headway at every station of a segment
// concurrently. Stations without a signal map to nil.
func (e *Engine) SegmentHeadways(ctx context.Context, mode arrivals.Mode, route string, seg segments.Segment) map[string]*HeadwayData {
	p := pool.NewWithResults[stationHeadway]()
	if e.stationConcurrency > 0 {
		p = p.WithMaxGoroutines(e.stationConcurrency)
	}
	for _, station := range seg.Stations {
		p.Go(func() stationHeadway {
			return stationHeadway{station: station, headway: e.HeadwayForStation(ctx, mode, route, station)}
		})
	}
	out := make(map[string]*HeadwayData, len(seg.Stations))
	for _, r := range p.Wait() {
		out[r.station] = r.headway
	}
	return out
}

// DelayForRoute summarizes live delays on a route. Nil means no trips.
func (e *Engine) DelayForRoute(ctx context.Context, mode arrivals.Mode, route string) *DelayData {
	return CalculateDelay(mode, route, e.source.TripUpdates(ctx, mode, route))
}

// AlertImpact summarizes active alerts for route, or for the whole network
// when route is empty.
func (e *Engine) AlertImpact(ctx context.Context, route string) AlertImpact {
	return CalculateAlertImpact(alerts.ForRoute(e.source.Alerts(ctx), route), e.clock.Now())
}

// IsPeakDirection reports whether direction on route carries the peak load
// at the given service time.
func (e *Engine) IsPeakDirection(r *segments.Route, direction string, st clock.ServiceTime) bool {
	if e.demand == nil {
		return false
	}
	peak, ok := e.demand.PeakDirection(st.Hour, st.Weekday)
	if !ok {
		return false
	}
	switch peak {
	case arrivals.Inbound:
		return direction == r.Inbound
	case arrivals.Outbound:
		return direction == r.Outbound()
	}
	return false
}

func (e *Engine) demandAt(station string, st clock.ServiceTime) float64 {
	if e.demand == nil {
		return demand.GenericDemand(st.Hour, st.Weekday)
	}
	return e.demand.Demand(st.Hour, st.Weekday, station)
}
