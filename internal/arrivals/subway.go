package arrivals

import (
	"strings"
	"time"

	"crowdcast.transitpulse.org/internal/feed"
)

// Subway extracts NYCT subway arrivals.
type Subway struct{}

func (Subway) Mode() Mode { return ModeSubway }

func (Subway) Extract(msg *feed.Message, filter Filter, now time.Time) []Arrival {
	var cands []candidate
	for _, tu := range msg.TripUpdates() {
		if tu.Trip.Canceled || !subwayRouteMatches(tu.Trip.RouteID, filter.RouteID) {
			continue
		}
		var headsign *string
		if tu.Trip.NYCT != nil {
			headsign = SubwayDestination(tu.Trip.NYCT.TrainID)
		}
		for _, stu := range tu.Stops {
			if stu.Skipped {
				continue
			}
			c := stopCandidate(tu, stu, ModeSubway)
			c.Direction = subwayDirection(tu.Trip, stu.StopID)
			c.Headsign = headsign
			cands = append(cands, c)
		}
	}
	return finish(cands, filter, now, MatchesStation)
}

// subwayRouteMatches treats express variants ("6X") as their base route.
func subwayRouteMatches(routeID, want string) bool {
	if want == "" {
		return true
	}
	if strings.EqualFold(routeID, want) {
		return true
	}
	return len(routeID) == 2 && routeID[1] == 'X' && strings.EqualFold(routeID[:1], want)
}

// subwayDirection prefers the NYCT extension, then the platform suffix of the
// stop id, then the direction embedded in the trip id.
func subwayDirection(trip feed.TripDescriptor, stopID string) string {
	if trip.NYCT != nil {
		switch trip.NYCT.Direction {
		case feed.NYCTNorth, feed.NYCTEast:
			return North
		case feed.NYCTSouth, feed.NYCTWest:
			return South
		}
	}
	if n := len(stopID); n > 1 {
		switch stopID[n-1] {
		case 'N':
			return North
		case 'S':
			return South
		}
	}
	return subwayTripDirection(trip.TripID)
}
