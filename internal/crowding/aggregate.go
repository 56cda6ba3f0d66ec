package crowding

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/sourcegraph/conc"

	"crowdcast.transitpulse.org/internal/alerts"
	"crowdcast.transitpulse.org/internal/arrivals"
	"crowdcast.transitpulse.org/internal/clock"
	"crowdcast.transitpulse.org/internal/logging"
	"crowdcast.transitpulse.org/internal/segments"
)

type StationCrowding struct {
	StationID      string  `json:"stationId"`
	Score          int     `json:"score"`
	Level          Level   `json:"level"`
	Factors        Factors `json:"factors"`
	HeadwayMinutes float64 `json:"headwayMinutes,omitempty"`
}

type SegmentCrowding struct {
	RouteID     string        `json:"routeId"`
	Mode        arrivals.Mode `json:"mode"`
	Direction   string        `json:"direction"`
	SegmentID   string        `json:"segmentId"`
	SegmentName string        `json:"segmentName"`
	Branch      string        `json:"branch,omitempty"`
	// FromStation and ToStation are the segment's first and last members.
	FromStation    string            `json:"fromStation"`
	ToStation      string            `json:"toStation"`
	AverageScore   int               `json:"avgScore"`
	Level          Level             `json:"level"`
	Factors        Factors           `json:"factors"`
	DominantFactor string            `json:"dominantFactor"`
	Peak           bool              `json:"peakDirection"`
	StationIDs     []string          `json:"stationIds"`
	Stations       []StationCrowding `json:"stations"`
	Timestamp      time.Time         `json:"timestamp"`
}

type DirectionCrowding struct {
	AverageScore int   `json:"avgScore"`
	Level        Level `json:"level"`
	Peak         bool  `json:"peakDirection"`
}

type RouteCrowding struct {
	RouteID        string                       `json:"routeId"`
	Mode           arrivals.Mode                `json:"mode"`
	Name           string                       `json:"name,omitempty"`
	AverageScore   int                          `json:"avgScore"`
	Level          Level                        `json:"level"`
	Factors        Factors                      `json:"factors"`
	DominantFactor string                       `json:"dominantFactor"`
	Directions     map[string]DirectionCrowding `json:"directions"`
	Delay          *DelayData                   `json:"delay,omitempty"`
	Alerts         AlertImpact                  `json:"alerts"`
	Segments       []SegmentCrowding            `json:"segments"`
	Timestamp      time.Time                    `json:"timestamp"`
}

type RouteSummary struct {
	RouteID        string        `json:"routeId"`
	Mode           arrivals.Mode `json:"mode"`
	Name           string        `json:"name,omitempty"`
	AverageScore   int           `json:"avgScore"`
	Level          Level         `json:"level"`
	DominantFactor string        `json:"dominantFactor"`
	// SegmentsSampled is how many segments were scored for this route.
	SegmentsSampled int `json:"segmentsSampled"`
}

type ModeSummary struct {
	AverageScore int   `json:"avgScore"`
	Level        Level `json:"level"`
	Routes       int   `json:"routes"`
}

type NetworkCrowding struct {
	AverageScore   int                           `json:"avgScore"`
	Level          Level                         `json:"level"`
	Factors        Factors                       `json:"factors"`
	DominantFactor string                        `json:"dominantFactor"`
	Routes         []RouteSummary                `json:"routes"`
	Modes          map[arrivals.Mode]ModeSummary `json:"modes"`
	Alerts         AlertImpact                   `json:"alerts"`
	Timestamp      time.Time                     `json:"timestamp"`
}

// Aggregate averages scores and factor vectors arithmetically and derives
// the level from the averaged score.
func (s *Scorer) Aggregate(scores []int, factors []Factors) (int, Level, Factors) {
	if len(scores) == 0 {
		return 0, s.Level(0), Factors{}
	}
	var sum float64
	for _, v := range scores {
		sum += float64(v)
	}
	avg := clampScore(int(math.Round(sum / float64(len(scores)))))
	return avg, s.Level(avg), meanFactors(factors)
}

func meanFactors(list []Factors) Factors {
	if len(list) == 0 {
		return Factors{}
	}
	var f Factors
	for _, v := range list {
		f.Headway += v.Headway
		f.Demand += v.Demand
		f.Delay += v.Delay
		f.Alerts += v.Alerts
	}
	n := float64(len(list))
	return Factors{Headway: f.Headway / n, Demand: f.Demand / n, Delay: f.Delay / n, Alerts: f.Alerts / n}
}

// routeInputs are the route-wide signals shared by every station score.
type routeInputs struct {
	route  *segments.Route
	delay  *DelayData
	impact AlertImpact
	at     clock.ServiceTime
}

func (e *Engine) inputs(ctx context.Context, r *segments.Route, impact AlertImpact, at clock.ServiceTime) routeInputs {
	return routeInputs{
		route:  r,
		delay:  e.DelayForRoute(ctx, r.Mode, r.ID),
		impact: impact,
		at:     at,
	}
}

// scoreSegment scores one segment in both directions from a single round of
// station fetches. The inbound result comes first.
func (e *Engine) scoreSegment(ctx context.Context, in routeInputs, seg segments.Segment) []SegmentCrowding {
	headways := e.SegmentHeadways(ctx, in.route.Mode, in.route.ID, seg)
	out := make([]SegmentCrowding, 0, 2)
	for _, direction := range []string{in.route.Inbound, in.route.Outbound()} {
		peak := e.IsPeakDirection(in.route, direction, in.at)
		sc := SegmentCrowding{
			RouteID:     in.route.ID,
			Mode:        in.route.Mode,
			Direction:   direction,
			SegmentID:   seg.ID,
			SegmentName: seg.Name,
			Branch:      seg.Branch,
			FromStation: seg.Stations[0],
			ToStation:   seg.Stations[len(seg.Stations)-1],
			Peak:        peak,
			StationIDs:  append([]string(nil), seg.Stations...),
			Stations:    make([]StationCrowding, 0, len(seg.Stations)),
			Timestamp:   in.at.Time,
		}
		scores := make([]int, 0, len(seg.Stations))
		factors := make([]Factors, 0, len(seg.Stations))
		for _, station := range seg.Stations {
			minutes := headways[station].ForDirection(direction)
			f := Factors{
				Headway: NormalizeHeadway(in.route.Mode, minutes),
				Demand:  e.demandAt(station, in.at),
				Delay:   in.delay.Normalized(),
				Alerts:  in.impact.Score,
			}.clamped()
			score := e.scorer.Score(f, peak)
			sc.Stations = append(sc.Stations, StationCrowding{
				StationID:      station,
				Score:          score,
				Level:          e.scorer.Level(score),
				Factors:        f,
				HeadwayMinutes: minutes,
			})
			scores = append(scores, score)
			factors = append(factors, f)
		}
		sc.AverageScore, sc.Level, sc.Factors = e.scorer.Aggregate(scores, factors)
		sc.DominantFactor = DominantFactor(sc.Factors)
		out = append(out, sc)
	}
	return out
}

// SegmentCrowding scores one segment of a route in both directions.
func (e *Engine) SegmentCrowding(ctx context.Context, mode arrivals.Mode, routeID, segmentID string) ([]SegmentCrowding, error) {
	r, ok := e.registry.Route(mode, routeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrUnknownRoute, mode, routeID)
	}
	seg, ok := e.registry.Segment(mode, routeID, segmentID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSegment, segmentID)
	}
	in := e.inputs(ctx, r, e.AlertImpact(ctx, r.ID), e.now())
	return e.scoreSegment(ctx, in, seg), nil
}

// RouteCrowding scores every segment of a route in both directions and
// averages the results.
func (e *Engine) RouteCrowding(ctx context.Context, mode arrivals.Mode, routeID string) (*RouteCrowding, error) {
	r, ok := e.registry.Route(mode, routeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrUnknownRoute, mode, routeID)
	}
	in := e.inputs(ctx, r, e.AlertImpact(ctx, r.ID), e.now())
	rc := e.routeFromSegments(ctx, in, r.Segments)
	e.metrics.RecordScore(string(r.Mode), r.ID, rc.AverageScore)
	return rc, nil
}

func (e *Engine) routeFromSegments(ctx context.Context, in routeInputs, segs []segments.Segment) *RouteCrowding {
	rc := &RouteCrowding{
		RouteID:    in.route.ID,
		Mode:       in.route.Mode,
		Name:       in.route.Name,
		Directions: map[string]DirectionCrowding{},
		Delay:      in.delay,
		Alerts:     in.impact,
		Segments:   make([]SegmentCrowding, 0, 2*len(segs)),
		Timestamp:  in.at.Time,
	}
	for _, seg := range segs {
		rc.Segments = append(rc.Segments, e.scoreSegment(ctx, in, seg)...)
	}

	var scores []int
	var factors []Factors
	byDirection := map[string][]int{}
	for _, sc := range rc.Segments {
		scores = append(scores, sc.AverageScore)
		factors = append(factors, sc.Factors)
		byDirection[sc.Direction] = append(byDirection[sc.Direction], sc.AverageScore)
	}
	rc.AverageScore, rc.Level, rc.Factors = e.scorer.Aggregate(scores, factors)
	rc.DominantFactor = DominantFactor(rc.Factors)
	for direction, list := range byDirection {
		avg, level, _ := e.scorer.Aggregate(list, nil)
		rc.Directions[direction] = DirectionCrowding{
			AverageScore: avg,
			Level:        level,
			Peak:         e.IsPeakDirection(in.route, direction, in.at),
		}
	}
	return rc
}

// sampleSegments picks n segments spread evenly along the route, always
// including the first.
func sampleSegments(segs []segments.Segment, n int) []segments.Segment {
	if n >= len(segs) {
		return segs
	}
	out := make([]segments.Segment, 0, n)
	step := float64(len(segs)) / float64(n)
	for i := range n {
		out = append(out, segs[int(float64(i)*step)])
	}
	return out
}

// NetworkCrowding scores every registered route of mode (all modes when
// empty). Routes run in fixed-size batches and only a sample of each
// route's segments is scored.
func (e *Engine) NetworkCrowding(ctx context.Context, mode arrivals.Mode) *NetworkCrowding {
	start := time.Now()
	at := e.now()
	all := e.source.Alerts(ctx)
	routes := e.registry.Routes(mode)

	results := make([]*RouteCrowding, len(routes))
	for lo := 0; lo < len(routes); lo += e.batchSize {
		hi := min(lo+e.batchSize, len(routes))
		var wg conc.WaitGroup
		for i := lo; i < hi; i++ {
			r := routes[i]
			wg.Go(func() {
				impact := CalculateAlertImpact(alerts.ForRoute(all, r.ID), at.Time)
				in := e.inputs(ctx, r, impact, at)
				results[i] = e.routeFromSegments(ctx, in, sampleSegments(r.Segments, e.segmentSample))
			})
		}
		wg.Wait()
	}

	nc := &NetworkCrowding{
		Routes:    make([]RouteSummary, 0, len(results)),
		Modes:     map[arrivals.Mode]ModeSummary{},
		Alerts:    CalculateAlertImpact(all, at.Time),
		Timestamp: at.Time,
	}
	var scores []int
	var factors []Factors
	byMode := map[arrivals.Mode][]int{}
	routesByMode := map[arrivals.Mode]int{}
	for _, rc := range results {
		nc.Routes = append(nc.Routes, RouteSummary{
			RouteID:         rc.RouteID,
			Mode:            rc.Mode,
			Name:            rc.Name,
			AverageScore:    rc.AverageScore,
			Level:           rc.Level,
			DominantFactor:  rc.DominantFactor,
			SegmentsSampled: len(rc.Segments) / 2,
		})
		// network and mode figures weigh every scored segment equally
		for _, sc := range rc.Segments {
			scores = append(scores, sc.AverageScore)
			factors = append(factors, sc.Factors)
			byMode[rc.Mode] = append(byMode[rc.Mode], sc.AverageScore)
		}
		routesByMode[rc.Mode]++
		e.metrics.RecordScore(string(rc.Mode), rc.RouteID, rc.AverageScore)
	}
	nc.AverageScore, nc.Level, nc.Factors = e.scorer.Aggregate(scores, factors)
	nc.DominantFactor = DominantFactor(nc.Factors)
	for m, n := range routesByMode {
		avg, level, _ := e.scorer.Aggregate(byMode[m], nil)
		nc.Modes[m] = ModeSummary{AverageScore: avg, Level: level, Routes: n}
	}
	sort.SliceStable(nc.Routes, func(i, j int) bool { return nc.Routes[i].AverageScore > nc.Routes[j].AverageScore })

	logging.LogOperation(e.logger, "network_crowding_computed",
		slog.String("mode", string(mode)),
		slog.Int("routes", len(routes)),
		slog.Int("avg_score", nc.AverageScore),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return nc
}
