package arrivals

import (
	"strings"
	"time"

	"crowdcast.transitpulse.org/internal/feed"
)

// Bus extracts MTA bus arrivals. Route and stop ids in the bus feed carry an
// agency prefix ("MTA NYCT_B63", "MTA_305423"); filters match with or
// without it.
type Bus struct{}

func (Bus) Mode() Mode { return ModeBus }

func (Bus) Extract(msg *feed.Message, filter Filter, now time.Time) []Arrival {
	var cands []candidate
	for _, tu := range msg.TripUpdates() {
		if tu.Trip.Canceled || !busIDMatches(tu.Trip.RouteID, filter.RouteID) {
			continue
		}
		direction := directionFromID(tu.Trip.DirectionID)
		for _, stu := range tu.Stops {
			if stu.Skipped {
				continue
			}
			c := stopCandidate(tu, stu, ModeBus)
			c.Direction = direction
			cands = append(cands, c)
		}
	}
	return finish(cands, filter, now, busIDMatches)
}

func busIDMatches(id, want string) bool {
	if want == "" || id == want {
		return true
	}
	return strings.EqualFold(stripAgency(id), stripAgency(want))
}
