package feed

import "time"

// Message is one decoded GTFS-Realtime payload. It is built by Decode and
// never modified afterwards.
type Message struct {
	Header   Header
	Entities []Entity
}

type Header struct {
	Version   string
	Timestamp *time.Time
}

// Entity carries exactly one of its payload pointers.
type Entity struct {
	ID         string
	TripUpdate *TripUpdate
	Vehicle    *VehiclePosition
	Alert      *Alert
}

// TripUpdates returns the trip update entities in feed order.
func (m *Message) TripUpdates() []*TripUpdate {
	if m == nil {
		return nil
	}
	out := make([]*TripUpdate, 0, len(m.Entities))
	for i := range m.Entities {
		if tu := m.Entities[i].TripUpdate; tu != nil {
			out = append(out, tu)
		}
	}
	return out
}

// Vehicles returns the vehicle position entities in feed order.
func (m *Message) Vehicles() []*VehiclePosition {
	if m == nil {
		return nil
	}
	var out []*VehiclePosition
	for i := range m.Entities {
		if v := m.Entities[i].Vehicle; v != nil {
			out = append(out, v)
		}
	}
	return out
}

// Alerts returns the alert entities in feed order.
func (m *Message) Alerts() []*Alert {
	if m == nil {
		return nil
	}
	var out []*Alert
	for i := range m.Entities {
		if a := m.Entities[i].Alert; a != nil {
			out = append(out, a)
		}
	}
	return out
}

type TripUpdate struct {
	Trip      TripDescriptor
	Stops     []StopTimeUpdate
	Delay     *int32
	VehicleID *string

	// VehicleLabel is the rider-facing vehicle label; Metro-North puts the
	// train number here.
	VehicleLabel *string
	Timestamp    *time.Time
}

type TripDescriptor struct {
	TripID      string
	RouteID     string
	DirectionID *uint32
	StartDate   string
	StartTime   string
	Canceled    bool
	NYCT        *NYCTTrip
}

// NYCTDirection is the direction carried by the NYCT trip extension.
type NYCTDirection int

const (
	NYCTDirectionUnknown NYCTDirection = iota
	NYCTNorth
	NYCTEast
	NYCTSouth
	NYCTWest
)

// NYCTTrip holds the NYCT trip descriptor extension.
type NYCTTrip struct {
	TrainID    string
	IsAssigned bool
	Direction  NYCTDirection
}

type StopTimeEvent struct {
	Time  *time.Time
	Delay *int32
}

type StopTimeUpdate struct {
	StopSequence *uint32
	StopID       string
	Arrival      *StopTimeEvent
	Departure    *StopTimeEvent
	Skipped      bool
	// Track comes from the NYCT actual track or the MTA railroad extension.
	Track       *string
	TrainStatus *string
}

// PredictedTime prefers the arrival prediction and falls back to departure.
func (s StopTimeUpdate) PredictedTime() (time.Time, bool) {
	if s.Arrival != nil && s.Arrival.Time != nil {
		return *s.Arrival.Time, true
	}
	if s.Departure != nil && s.Departure.Time != nil {
		return *s.Departure.Time, true
	}
	return time.Time{}, false
}

// DelaySeconds prefers the arrival delay and falls back to departure.
func (s StopTimeUpdate) DelaySeconds() (int32, bool) {
	if s.Arrival != nil && s.Arrival.Delay != nil {
		return *s.Arrival.Delay, true
	}
	if s.Departure != nil && s.Departure.Delay != nil {
		return *s.Departure.Delay, true
	}
	return 0, false
}

type VehiclePosition struct {
	Trip          *TripDescriptor
	VehicleID     string
	Label         string
	StopID        string
	CurrentStatus string
	Latitude      *float32
	Longitude     *float32
	Timestamp     *time.Time
}

type Period struct {
	Start *time.Time
	End   *time.Time
}

// Alert is the protobuf alert entity, reduced to what crowdcast classifies.
type Alert struct {
	RouteIDs      []string
	StopIDs       []string
	Header        string
	Description   string
	Cause         string
	Effect        string
	ActivePeriods []Period
}
