package crowding

import (
	"crowdcast.transitpulse.org/internal/arrivals"
	"crowdcast.transitpulse.org/internal/feed"
)

type DelayData struct {
	// AverageSeconds is the mean per-trip delay, counting on-time and
	// early trips as zero.
	AverageSeconds float64 `json:"averageSeconds"`
	MaxSeconds     int32   `json:"maxSeconds"`
	DelayedTrips   int     `json:"delayedTrips"`
	TotalTrips     int     `json:"totalTrips"`
	PercentDelayed float64 `json:"percentDelayed"`
}

// Normalized is the delay factor in [0, 1]. A nil receiver is 0.
func (d *DelayData) Normalized() float64 {
	if d == nil {
		return 0
	}
	return NormalizeDelay(d.AverageSeconds)
}

// CalculateDelay summarizes the trip updates of one route. A trip's delay
// is the largest of its trip-level and stop-level delays; it counts as
// delayed once if that is positive. Returns nil when no trip matches.
func CalculateDelay(mode arrivals.Mode, route string, updates []*feed.TripUpdate) *DelayData {
	d := &DelayData{}
	var sum float64
	for _, tu := range updates {
		if tu.Trip.Canceled || !arrivals.RouteMatches(mode, tu.Trip.RouteID, route) {
			continue
		}
		d.TotalTrips++
		worst := tripDelay(tu)
		if worst <= 0 {
			continue
		}
		d.DelayedTrips++
		sum += float64(worst)
		d.MaxSeconds = max(d.MaxSeconds, worst)
	}
	if d.TotalTrips == 0 {
		return nil
	}
	d.AverageSeconds = sum / float64(d.TotalTrips)
	d.PercentDelayed = float64(d.DelayedTrips) / float64(d.TotalTrips) * 100
	return d
}

func tripDelay(tu *feed.TripUpdate) int32 {
	var worst int32
	if tu.Delay != nil {
		worst = *tu.Delay
	}
	for _, stu := range tu.Stops {
		if d, ok := stu.DelaySeconds(); ok && d > worst {
			worst = d
		}
	}
	return worst
}
