// Package arrivals walks decoded GTFS-Realtime messages into flat,
// directional, time-sorted arrival lists. Each transit mode has its own
// Extractor; they share filtering, sorting and limiting.
package arrivals

import (
	"sort"
	"strings"
	"time"

	"crowdcast.transitpulse.org/internal/feed"
)

type Mode string

const (
	ModeSubway Mode = "subway"
	ModeBus    Mode = "bus"
	ModeLIRR   Mode = "lirr"
	ModeMNR    Mode = "mnr"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeSubway, ModeBus, ModeLIRR, ModeMNR:
		return true
	}
	return false
}

// IsRail is true for the commuter railroads.
func (m Mode) IsRail() bool {
	return m == ModeLIRR || m == ModeMNR
}

// Directions. Subway arrivals use the compass pair, everything else the
// inbound/outbound pair.
const (
	North    = "N"
	South    = "S"
	Inbound  = "inbound"
	Outbound = "outbound"
)

// Arrival is one predicted stop of one trip.
type Arrival struct {
	TripID       string    `json:"tripId"`
	RouteID      string    `json:"routeId"`
	Mode         Mode      `json:"mode"`
	Direction    string    `json:"direction,omitempty"`
	StopID       string    `json:"stopId"`
	ArrivalTime  time.Time `json:"arrivalTime"`
	DelaySeconds int32     `json:"delaySeconds"`
	MinutesAway  int       `json:"minutesAway"`
	TrainNumber  *string   `json:"trainNumber,omitempty"`
	Headsign     *string   `json:"headsign,omitempty"`
	Track        *string   `json:"track,omitempty"`

	// ScheduleDerived marks a stop spliced in from the static timetable
	// because the real-time feed skipped it.
	ScheduleDerived bool `json:"scheduleDerived,omitempty"`
}

// Filter narrows an extraction. Zero values match everything.
type Filter struct {
	RouteID   string
	StationID string
	Limit     int
}

// Extractor turns one decoded message into arrivals for its mode.
type Extractor interface {
	Mode() Mode
	Extract(msg *feed.Message, filter Filter, now time.Time) []Arrival
}

// MatchesStation reports whether a real-time stop id belongs to a station:
// either the same id or the station id followed by one N/S platform suffix.
func MatchesStation(stopID, stationID string) bool {
	if stationID == "" || stopID == stationID {
		return true
	}
	if len(stopID) != len(stationID)+1 || !strings.HasPrefix(stopID, stationID) {
		return false
	}
	switch stopID[len(stopID)-1] {
	case 'N', 'S':
		return true
	}
	return false
}

// RouteMatches applies the mode's route id rules. Subway express variants
// ("6X") match their base route and bus ids match with or without the agency
// prefix. An empty want matches everything.
func RouteMatches(mode Mode, routeID, want string) bool {
	switch mode {
	case ModeSubway:
		return subwayRouteMatches(routeID, want)
	case ModeBus:
		return busIDMatches(routeID, want)
	}
	return want == "" || strings.EqualFold(routeID, want)
}

// stripAgency drops an OBA-style agency prefix ("MTA NYCT_B63" -> "B63").
func stripAgency(id string) string {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		return id[i+1:]
	}
	return id
}

// candidate is an arrival before the station/time filters run.
type candidate struct {
	Arrival
	predicted bool
}

// finish applies the shared station and time filters, then sorts and
// truncates.
func finish(cands []candidate, filter Filter, now time.Time, stationMatch func(stopID, stationID string) bool) []Arrival {
	out := make([]Arrival, 0, len(cands))
	for _, c := range cands {
		if !c.predicted || c.ArrivalTime.Before(now) {
			continue
		}
		if !stationMatch(c.StopID, filter.StationID) {
			continue
		}
		a := c.Arrival
		a.MinutesAway = int(a.ArrivalTime.Sub(now) / time.Minute)
		out = append(out, a)
	}
	Sort(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

// Sort orders arrivals by time, then trip and stop for stable output.
func Sort(list []Arrival) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if !a.ArrivalTime.Equal(b.ArrivalTime) {
			return a.ArrivalTime.Before(b.ArrivalTime)
		}
		if a.TripID != b.TripID {
			return a.TripID < b.TripID
		}
		return a.StopID < b.StopID
	})
}

// ByDirection groups arrivals, keeping each group's time order.
func ByDirection(list []Arrival) map[string][]Arrival {
	out := map[string][]Arrival{}
	for _, a := range list {
		out[a.Direction] = append(out[a.Direction], a)
	}
	return out
}

// stopCandidate builds the candidate for one real-time stop.
func stopCandidate(tu *feed.TripUpdate, stu feed.StopTimeUpdate, mode Mode) candidate {
	c := candidate{Arrival: Arrival{
		TripID:  tu.Trip.TripID,
		RouteID: tu.Trip.RouteID,
		Mode:    mode,
		StopID:  stu.StopID,
		Track:   stu.Track,
	}}
	if t, ok := stu.PredictedTime(); ok {
		c.ArrivalTime = t
		c.predicted = true
	}
	if d, ok := stu.DelaySeconds(); ok {
		c.DelaySeconds = d
	} else if tu.Delay != nil {
		c.DelaySeconds = *tu.Delay
	}
	return c
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
