// Package schedule provides the static rail timetable used to repair gaps in
// real-time rail feeds, and the station-name lookup used by API consumers.
//
// An Index is built from a static GTFS archive with go-gtfs and persisted
// in SQLite by Store, so a restart does not need to download the archive.
package schedule

import (
	"sort"
	"strings"
	"time"

	"github.com/OneBusAway/go-gtfs"
)

// Stop is one scheduled call of a train.
type Stop struct {
	StopID   string
	StopName string
	// TimeOfDay is the offset from the start of the service day. It can
	// exceed 24h for trips that run past midnight.
	TimeOfDay time.Duration
}

// Lookup resolves a train number to its ordered scheduled stops.
type Lookup interface {
	Lookup(trainNumber string) ([]Stop, bool)
}

// StationNames resolves a stop id to a display name.
type StationNames interface {
	StationName(stopID string) (string, bool)
}

// Index is an immutable in-memory timetable for one feed.
type Index struct {
	trains   map[string][]Stop
	stations map[string]string
}

// NewIndex builds an Index from already-ordered stops.
func NewIndex(trains map[string][]Stop, stations map[string]string) *Index {
	idx := &Index{
		trains:   make(map[string][]Stop, len(trains)),
		stations: make(map[string]string, len(stations)),
	}
	for k, v := range trains {
		idx.trains[normalizeTrainNumber(k)] = append([]Stop(nil), v...)
	}
	for k, v := range stations {
		idx.stations[k] = v
	}
	return idx
}

// BuildIndex extracts train numbers (trip_short_name) and station names from
// a parsed static feed. When several trips share a train number, the one with
// the most stops is kept.
func BuildIndex(static *gtfs.Static) *Index {
	idx := &Index{
		trains:   map[string][]Stop{},
		stations: map[string]string{},
	}
	if static == nil {
		return idx
	}

	for _, s := range static.Stops {
		if s.Name != "" {
			idx.stations[s.Id] = s.Name
		}
	}

	for _, trip := range static.Trips {
		number := normalizeTrainNumber(trip.ShortName)
		if number == "" || len(trip.StopTimes) == 0 {
			continue
		}
		stopTimes := append([]gtfs.ScheduledStopTime(nil), trip.StopTimes...)
		sort.SliceStable(stopTimes, func(i, j int) bool {
			return stopTimes[i].StopSequence < stopTimes[j].StopSequence
		})

		stops := make([]Stop, 0, len(stopTimes))
		for _, st := range stopTimes {
			if st.Stop == nil {
				continue
			}
			at := st.ArrivalTime
			if at == 0 {
				at = st.DepartureTime
			}
			stops = append(stops, Stop{StopID: st.Stop.Id, StopName: st.Stop.Name, TimeOfDay: at})
		}
		if existing, ok := idx.trains[number]; ok && len(existing) >= len(stops) {
			continue
		}
		idx.trains[number] = stops
	}
	return idx
}

func normalizeTrainNumber(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "0")
	return s
}

// Lookup returns a copy of the stops for trainNumber. Leading zeros are
// ignored so "0664" and "664" resolve to the same train.
func (idx *Index) Lookup(trainNumber string) ([]Stop, bool) {
	if idx == nil {
		return nil, false
	}
	stops, ok := idx.trains[normalizeTrainNumber(trainNumber)]
	if !ok {
		return nil, false
	}
	return append([]Stop(nil), stops...), true
}

func (idx *Index) StationName(stopID string) (string, bool) {
	if idx == nil {
		return "", false
	}
	name, ok := idx.stations[stopID]
	return name, ok
}

// Trains is the number of distinct train numbers.
func (idx *Index) Trains() int {
	if idx == nil {
		return 0
	}
	return len(idx.trains)
}

// Set combines per-feed indexes behind one Lookup and StationNames.
type Set map[string]*Index

// Feed returns the index for name, or nil.
func (s Set) Feed(name string) *Index {
	return s[name]
}

// StationName searches every feed.
func (s Set) StationName(stopID string) (string, bool) {
	for _, idx := range s {
		if name, ok := idx.StationName(stopID); ok {
			return name, true
		}
	}
	return "", false
}
