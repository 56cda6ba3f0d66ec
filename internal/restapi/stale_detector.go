package restapi

import (
	"time"

	"crowdcast.transitpulse.org/internal/feed"
)

// StaleDetector flags vehicle positions that have not been refreshed
// recently. Positions without a timestamp are always stale.
type StaleDetector struct {
	threshold time.Duration
}

func NewStaleDetector() *StaleDetector {
	return &StaleDetector{
		threshold: 15 * time.Minute,
	}
}

func (d *StaleDetector) WithThreshold(threshold time.Duration) *StaleDetector {
	d.threshold = threshold
	return d
}

func (d *StaleDetector) Check(vehicle *feed.VehiclePosition, currentTime time.Time) bool {
	return d.Age(vehicle, currentTime) > d.threshold
}

func (d *StaleDetector) Age(vehicle *feed.VehiclePosition, currentTime time.Time) time.Duration {
	if vehicle == nil || vehicle.Timestamp == nil {
		return d.threshold + 1
	}
	return currentTime.Sub(*vehicle.Timestamp)
}

// Fresh drops stale positions.
func (d *StaleDetector) Fresh(list []*feed.VehiclePosition, currentTime time.Time) []*feed.VehiclePosition {
	out := make([]*feed.VehiclePosition, 0, len(list))
	for _, v := range list {
		if !d.Check(v, currentTime) {
			out = append(out, v)
		}
	}
	return out
}
