package arrivals

import (
	"strconv"
	"time"

	"crowdcast.transitpulse.org/internal/feed"
	"crowdcast.transitpulse.org/internal/schedule"
)

// Terminal stop ids in Manhattan and Brooklyn. A train ending at one of
// these is inbound, a train starting at one is outbound.
var defaultHubs = map[Mode][]string{
	ModeLIRR: {"237", "349", "241"}, // Penn Station, Grand Central Madison, Atlantic Terminal
	ModeMNR:  {"1"},                 // Grand Central
}

// RailConfig configures a Rail extractor.
type RailConfig struct {
	Mode Mode
	// Schedule backs gap repair and headsigns. Optional.
	Schedule schedule.Lookup
	// Stations names the destination when the schedule does not know the
	// train. Optional.
	Stations schedule.StationNames
	// Hubs overrides the built-in terminal list.
	Hubs     []string
	Location *time.Location
}

// Rail extracts LIRR or Metro-North arrivals. The railroads' direction_id
// is unreliable, so direction is inferred from where the trip starts and
// ends, and intermediate stops the real-time feed omits are spliced in from
// the static timetable.
type Rail struct {
	mode     Mode
	schedule schedule.Lookup
	stations schedule.StationNames
	hubs     map[string]bool
	loc      *time.Location
}

func NewRail(cfg RailConfig) *Rail {
	if cfg.Mode == "" {
		cfg.Mode = ModeLIRR
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	hubs := cfg.Hubs
	if len(hubs) == 0 {
		hubs = defaultHubs[cfg.Mode]
	}
	r := &Rail{
		mode:     cfg.Mode,
		schedule: cfg.Schedule,
		stations: cfg.Stations,
		hubs:     make(map[string]bool, len(hubs)),
		loc:      cfg.Location,
	}
	for _, h := range hubs {
		r.hubs[h] = true
	}
	return r
}

func (r *Rail) Mode() Mode { return r.mode }

func (r *Rail) Extract(msg *feed.Message, filter Filter, now time.Time) []Arrival {
	var cands []candidate
	for _, tu := range msg.TripUpdates() {
		if tu.Trip.Canceled {
			continue
		}
		if !RouteMatches(r.mode, tu.Trip.RouteID, filter.RouteID) {
			continue
		}

		var label string
		if tu.VehicleLabel != nil {
			label = *tu.VehicleLabel
		}
		number := TrainNumber(r.mode, tu.Trip.TripID, label)

		var sched []schedule.Stop
		if number != nil && r.schedule != nil {
			sched, _ = r.schedule.Lookup(*number)
		}

		live := make([]feed.StopTimeUpdate, 0, len(tu.Stops))
		for _, stu := range tu.Stops {
			if !stu.Skipped {
				live = append(live, stu)
			}
		}

		direction := r.direction(tu.Trip, live, sched)
		headsign := r.headsign(live, sched)
		for _, stu := range live {
			c := stopCandidate(tu, stu, r.mode)
			c.Direction = direction
			c.TrainNumber = number
			c.Headsign = headsign
			cands = append(cands, c)
		}
		for _, c := range r.splice(tu, live, sched) {
			c.Direction = direction
			c.TrainNumber = number
			c.Headsign = headsign
			cands = append(cands, c)
		}
	}
	return finish(cands, filter, now, MatchesStation)
}

// direction applies, in order: hub at the end, hub at the start, numeric
// stop-id ordering, then the feed's direction_id. The numeric comparison
// holds for the radial LIRR and MNR numbering but can misread branches that
// are not numbered monotonically.
func (r *Rail) direction(trip feed.TripDescriptor, live []feed.StopTimeUpdate, sched []schedule.Stop) string {
	var first, last string
	switch {
	case len(sched) > 0:
		first, last = sched[0].StopID, sched[len(sched)-1].StopID
	case len(live) > 0:
		first, last = live[0].StopID, live[len(live)-1].StopID
	default:
		return directionFromID(trip.DirectionID)
	}

	if r.hubs[last] {
		return Inbound
	}
	if r.hubs[first] {
		return Outbound
	}
	fi, err1 := strconv.Atoi(first)
	li, err2 := strconv.Atoi(last)
	if err1 == nil && err2 == nil && fi != li {
		if li < fi {
			return Inbound
		}
		return Outbound
	}
	return directionFromID(trip.DirectionID)
}

func (r *Rail) headsign(live []feed.StopTimeUpdate, sched []schedule.Stop) *string {
	if n := len(sched); n > 0 {
		if sched[n-1].StopName != "" {
			return strPtr(sched[n-1].StopName)
		}
		return r.stationName(sched[n-1].StopID)
	}
	if n := len(live); n > 0 {
		return r.stationName(live[n-1].StopID)
	}
	return nil
}

func (r *Rail) stationName(stopID string) *string {
	if r.stations == nil {
		return nil
	}
	if name, ok := r.stations.StationName(stopID); ok {
		return strPtr(name)
	}
	return nil
}

// splice returns synthetic arrivals for scheduled stops that fall between
// the first and last real-time stops but are missing from the feed. Each is
// timed at its scheduled time of day plus the live delay of the preceding
// real-time stop.
func (r *Rail) splice(tu *feed.TripUpdate, live []feed.StopTimeUpdate, sched []schedule.Stop) []candidate {
	if len(sched) < 3 || len(live) < 2 {
		return nil
	}
	pos := make(map[string]int, len(sched))
	for i, st := range sched {
		if _, dup := pos[st.StopID]; !dup {
			pos[st.StopID] = i
		}
	}

	present := make(map[string]feed.StopTimeUpdate, len(live))
	firstIdx, lastIdx := -1, -1
	for _, stu := range live {
		i, ok := pos[stu.StopID]
		if !ok {
			continue
		}
		present[stu.StopID] = stu
		if firstIdx < 0 || i < firstIdx {
			firstIdx = i
		}
		if i > lastIdx {
			lastIdx = i
		}
	}
	if firstIdx < 0 || lastIdx-firstIdx < 2 {
		return nil
	}

	base, ok := r.serviceDay(tu, live, sched, pos)
	if !ok {
		return nil
	}

	var (
		out   []candidate
		delay time.Duration
	)
	for i := firstIdx; i <= lastIdx; i++ {
		st := sched[i]
		if stu, ok := present[st.StopID]; ok {
			if d, ok := liveDelay(stu, base.Add(st.TimeOfDay)); ok {
				delay = d
			}
			continue
		}
		out = append(out, candidate{
			Arrival: Arrival{
				TripID:          tu.Trip.TripID,
				RouteID:         tu.Trip.RouteID,
				Mode:            r.mode,
				StopID:          st.StopID,
				ArrivalTime:     base.Add(st.TimeOfDay + delay),
				DelaySeconds:    int32(delay / time.Second),
				ScheduleDerived: true,
			},
			predicted: true,
		})
	}
	return out
}

// liveDelay is the stop's reported delay, or the gap between its
// prediction and its scheduled time.
func liveDelay(stu feed.StopTimeUpdate, scheduled time.Time) (time.Duration, bool) {
	if d, ok := stu.DelaySeconds(); ok {
		return time.Duration(d) * time.Second, true
	}
	if t, ok := stu.PredictedTime(); ok {
		return t.Sub(scheduled).Truncate(time.Second), true
	}
	return 0, false
}

// serviceDay returns the GTFS service-day origin (noon minus 12h) for the
// trip: from its start date, or else estimated from the first real-time
// stop's prediction.
func (r *Rail) serviceDay(tu *feed.TripUpdate, live []feed.StopTimeUpdate, sched []schedule.Stop, pos map[string]int) (time.Time, bool) {
	if tu.Trip.StartDate != "" {
		if d, err := time.ParseInLocation("20060102", tu.Trip.StartDate, r.loc); err == nil {
			return serviceOrigin(d, r.loc), true
		}
	}
	for _, stu := range live {
		i, ok := pos[stu.StopID]
		if !ok {
			continue
		}
		t, ok := stu.PredictedTime()
		if !ok {
			continue
		}
		var delay time.Duration
		if d, ok := stu.DelaySeconds(); ok {
			delay = time.Duration(d) * time.Second
		}
		// shift to mid-day so DST and small errors cannot change the date
		approx := t.Add(-delay - sched[i].TimeOfDay + 12*time.Hour).In(r.loc)
		return serviceOrigin(approx, r.loc), true
	}
	return time.Time{}, false
}

func serviceOrigin(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, 12, 0, 0, 0, loc).Add(-12 * time.Hour)
}

func directionFromID(id *uint32) string {
	if id == nil {
		return ""
	}
	if *id == 1 {
		return Inbound
	}
	return Outbound
}
