// Package feedtest builds GTFS-Realtime payloads for tests.
package feedtest

import (
	"time"

	gtfsrt "github.com/OneBusAway/go-gtfs/proto"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
)

type StopTime struct {
	StopID string
	// Arrival is omitted from the payload when zero.
	Arrival time.Time
	Delay   *int32
	// NYCTTrack sets the NYCT stop-time extension.
	NYCTTrack string
	// RailroadTrack and TrainStatus set the MTA railroad extension.
	RailroadTrack string
	TrainStatus   string
}

type Trip struct {
	TripID       string
	RouteID      string
	DirectionID  *uint32
	StartDate    string
	VehicleID    string
	VehicleLabel string
	Delay        *int32
	// NYCTDirection is "N", "S", "E" or "W"; empty leaves the extension off
	// unless NYCTTrainID is set.
	NYCTDirection string
	NYCTTrainID   string
	Assigned      bool
	Stops         []StopTime
}

func Int32(v int32) *int32    { return &v }
func Uint32(v uint32) *uint32 { return &v }

// Message builds a FeedMessage with a valid header.
func Message(ts time.Time, trips ...Trip) *gtfsrt.FeedMessage {
	msg := &gtfsrt.FeedMessage{
		Header: &gtfsrt.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(uint64(ts.Unix())),
		},
	}
	for i, trip := range trips {
		id := trip.TripID
		if id == "" {
			id = "entity"
		}
		msg.Entity = append(msg.Entity, &gtfsrt.FeedEntity{
			Id:         proto.String(id + "-" + itoa(i)),
			TripUpdate: tripUpdate(trip),
		})
	}
	return msg
}

// Bytes marshals Message(ts, trips...).
func Bytes(ts time.Time, trips ...Trip) []byte {
	b, err := proto.Marshal(Message(ts, trips...))
	if err != nil {
		panic(err)
	}
	return b
}

// Marshal encodes msg, allowing missing required fields so tests can build
// invalid payloads.
func Marshal(msg *gtfsrt.FeedMessage) []byte {
	b, err := proto.MarshalOptions{AllowPartial: true}.Marshal(msg)
	if err != nil {
		panic(err)
	}
	return b
}

func tripUpdate(trip Trip) *gtfsrt.TripUpdate {
	td := &gtfsrt.TripDescriptor{
		TripId:      proto.String(trip.TripID),
		RouteId:     proto.String(trip.RouteID),
		DirectionId: trip.DirectionID,
	}
	if trip.StartDate != "" {
		td.StartDate = proto.String(trip.StartDate)
	}
	if trip.NYCTDirection != "" || trip.NYCTTrainID != "" {
		ext := &gtfsrt.NyctTripDescriptor{
			TrainId:    proto.String(trip.NYCTTrainID),
			IsAssigned: proto.Bool(trip.Assigned),
		}
		switch trip.NYCTDirection {
		case "N":
			ext.Direction = gtfsrt.NyctTripDescriptor_NORTH.Enum()
		case "S":
			ext.Direction = gtfsrt.NyctTripDescriptor_SOUTH.Enum()
		case "E":
			ext.Direction = gtfsrt.NyctTripDescriptor_EAST.Enum()
		case "W":
			ext.Direction = gtfsrt.NyctTripDescriptor_WEST.Enum()
		}
		proto.SetExtension(td, gtfsrt.E_NyctTripDescriptor, ext)
	}

	tu := &gtfsrt.TripUpdate{Trip: td, Delay: trip.Delay}
	if trip.VehicleID != "" || trip.VehicleLabel != "" {
		tu.Vehicle = &gtfsrt.VehicleDescriptor{}
		if trip.VehicleID != "" {
			tu.Vehicle.Id = proto.String(trip.VehicleID)
		}
		if trip.VehicleLabel != "" {
			tu.Vehicle.Label = proto.String(trip.VehicleLabel)
		}
	}
	for _, st := range trip.Stops {
		stu := &gtfsrt.TripUpdate_StopTimeUpdate{StopId: proto.String(st.StopID)}
		if !st.Arrival.IsZero() || st.Delay != nil {
			ev := &gtfsrt.TripUpdate_StopTimeEvent{Delay: st.Delay}
			if !st.Arrival.IsZero() {
				ev.Time = proto.Int64(st.Arrival.Unix())
			}
			stu.Arrival = ev
		}
		if st.NYCTTrack != "" {
			proto.SetExtension(stu, gtfsrt.E_NyctStopTimeUpdate, &gtfsrt.NyctStopTimeUpdate{
				ActualTrack: proto.String(st.NYCTTrack),
			})
		}
		if st.RailroadTrack != "" || st.TrainStatus != "" {
			stu.ProtoReflect().SetUnknown(RailroadExtension(st.RailroadTrack, st.TrainStatus))
		}
		tu.StopTimeUpdate = append(tu.StopTimeUpdate, stu)
	}
	return tu
}

// RailroadExtension encodes the MTA railroad StopTimeUpdate extension
// (field 1005) as raw wire bytes.
func RailroadExtension(track, status string) []byte {
	var inner []byte
	if track != "" {
		inner = protowire.AppendTag(inner, 1, protowire.BytesType)
		inner = protowire.AppendString(inner, track)
	}
	if status != "" {
		inner = protowire.AppendTag(inner, 2, protowire.BytesType)
		inner = protowire.AppendString(inner, status)
	}
	out := protowire.AppendTag(nil, 1005, protowire.BytesType)
	return protowire.AppendBytes(out, inner)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}
