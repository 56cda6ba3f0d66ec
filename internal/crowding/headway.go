package crowding

import (
	"sort"
	"time"

	"crowdcast.transitpulse.org/internal/arrivals"
)

// Gaps outside [minHeadway, maxHeadway) are feed artifacts: bunched
// predictions for the same train, or the overnight gap.
const (
	minHeadway = time.Minute
	maxHeadway = 60 * time.Minute
)

type HeadwayData struct {
	// AverageMinutes is the mean of every kept gap across directions.
	AverageMinutes float64 `json:"averageMinutes"`
	// Headways lists the kept gaps per direction, in time order.
	Headways map[string][]float64 `json:"headways"`
	// DirectionAverages is the mean gap per direction.
	DirectionAverages map[string]float64 `json:"directionAverages"`
	Samples           int                `json:"samples"`
}

// ForDirection returns the direction's average, falling back to the overall
// average when the direction has no gaps.
func (h *HeadwayData) ForDirection(direction string) float64 {
	if h == nil {
		return 0
	}
	if avg, ok := h.DirectionAverages[direction]; ok && direction != "" {
		return avg
	}
	return h.AverageMinutes
}

// CalculateHeadway measures the gaps between consecutive arrivals of the
// same direction. The list should already be narrowed to one route and
// station. It returns nil with fewer than two arrivals or when no gap
// survives the [1, 60) minute window.
func CalculateHeadway(list []arrivals.Arrival) *HeadwayData {
	if len(list) < 2 {
		return nil
	}

	h := &HeadwayData{
		Headways:          map[string][]float64{},
		DirectionAverages: map[string]float64{},
		Samples:           len(list),
	}
	var total float64
	var count int
	for direction, group := range arrivals.ByDirection(list) {
		sort.SliceStable(group, func(i, j int) bool { return group[i].ArrivalTime.Before(group[j].ArrivalTime) })
		var sum float64
		for i := 1; i < len(group); i++ {
			gap := group[i].ArrivalTime.Sub(group[i-1].ArrivalTime)
			if gap < minHeadway || gap >= maxHeadway {
				continue
			}
			m := gap.Minutes()
			h.Headways[direction] = append(h.Headways[direction], m)
			sum += m
		}
		if n := len(h.Headways[direction]); n > 0 {
			h.DirectionAverages[direction] = sum / float64(n)
			total += sum
			count += n
		}
	}
	if count == 0 {
		return nil
	}
	h.AverageMinutes = total / float64(count)
	return h
}
