// Package feed decodes GTFS-Realtime protobuf payloads, including the NYCT
// and MTA railroad extensions, into crowdcast's own typed model. Callers
// never see the generated protobuf types.
package feed

import (
	"errors"
	"fmt"
	"sync"
	"time"

	gtfsrt "github.com/OneBusAway/go-gtfs/proto"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
)

// DecodeError reports a payload the decoder rejected. Callers treat it the
// same as an empty feed.
type DecodeError struct {
	Size int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode gtfs-realtime payload (%d bytes): %v", e.Size, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ErrEmptyPayload is wrapped in a DecodeError for zero-length input.
var ErrEmptyPayload = errors.New("empty payload")

// schema is the decoder configuration: the extension registry the
// unmarshaller resolves against. It is built once per process.
type schema struct {
	options    proto.UnmarshalOptions
	extensions []protoreflect.ExtensionType
}

var loadSchema = sync.OnceValue(func() *schema {
	extensions := []protoreflect.ExtensionType{
		gtfsrt.E_NyctTripDescriptor,
		gtfsrt.E_NyctStopTimeUpdate,
	}
	types := new(protoregistry.Types)
	for _, xt := range extensions {
		if err := types.RegisterExtension(xt); err != nil {
			// the extension set is fixed at compile time
			panic(fmt.Sprintf("register gtfs-realtime extension: %v", err))
		}
	}
	return &schema{
		options:    proto.UnmarshalOptions{Resolver: types},
		extensions: extensions,
	}
})

// Decode parses a GTFS-Realtime FeedMessage. A payload that is not valid
// protobuf, or that lacks a required field such as the header, returns a
// *DecodeError.
func Decode(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Size: 0, Err: ErrEmptyPayload}
	}

	s := loadSchema()
	var raw gtfsrt.FeedMessage
	if err := s.options.Unmarshal(data, &raw); err != nil {
		return nil, &DecodeError{Size: len(data), Err: err}
	}
	return convertMessage(&raw), nil
}

func unixTime(secs *uint64) *time.Time {
	if secs == nil || *secs == 0 {
		return nil
	}
	t := time.Unix(int64(*secs), 0).UTC()
	return &t
}

func unixTimeSigned(secs *int64) *time.Time {
	if secs == nil || *secs == 0 {
		return nil
	}
	t := time.Unix(*secs, 0).UTC()
	return &t
}

func convertMessage(raw *gtfsrt.FeedMessage) *Message {
	msg := &Message{
		Header: Header{
			Version:   raw.GetHeader().GetGtfsRealtimeVersion(),
			Timestamp: unixTime(raw.GetHeader().Timestamp),
		},
		Entities: make([]Entity, 0, len(raw.GetEntity())),
	}

	for _, e := range raw.GetEntity() {
		entity := Entity{ID: e.GetId()}
		switch {
		case e.GetTripUpdate() != nil:
			entity.TripUpdate = convertTripUpdate(e.GetTripUpdate())
		case e.GetVehicle() != nil:
			entity.Vehicle = convertVehicle(e.GetVehicle())
		case e.GetAlert() != nil:
			entity.Alert = convertAlert(e.GetAlert())
		default:
			continue
		}
		msg.Entities = append(msg.Entities, entity)
	}
	return msg
}

func convertTrip(td *gtfsrt.TripDescriptor) TripDescriptor {
	trip := TripDescriptor{
		TripID:      td.GetTripId(),
		RouteID:     td.GetRouteId(),
		DirectionID: td.DirectionId,
		StartDate:   td.GetStartDate(),
		StartTime:   td.GetStartTime(),
		Canceled:    td.GetScheduleRelationship() == gtfsrt.TripDescriptor_CANCELED,
	}
	trip.NYCT = nyctTrip(td)
	return trip
}

func nyctTrip(td *gtfsrt.TripDescriptor) *NYCTTrip {
	if !proto.HasExtension(td, gtfsrt.E_NyctTripDescriptor) {
		return nil
	}
	ext, ok := proto.GetExtension(td, gtfsrt.E_NyctTripDescriptor).(*gtfsrt.NyctTripDescriptor)
	if !ok || ext == nil {
		return nil
	}
	out := &NYCTTrip{
		TrainID:    ext.GetTrainId(),
		IsAssigned: ext.GetIsAssigned(),
	}
	if ext.Direction != nil {
		switch ext.GetDirection() {
		case gtfsrt.NyctTripDescriptor_NORTH:
			out.Direction = NYCTNorth
		case gtfsrt.NyctTripDescriptor_EAST:
			out.Direction = NYCTEast
		case gtfsrt.NyctTripDescriptor_SOUTH:
			out.Direction = NYCTSouth
		case gtfsrt.NyctTripDescriptor_WEST:
			out.Direction = NYCTWest
		}
	}
	return out
}

func convertEvent(ev *gtfsrt.TripUpdate_StopTimeEvent) *StopTimeEvent {
	if ev == nil {
		return nil
	}
	out := &StopTimeEvent{Time: unixTimeSigned(ev.Time), Delay: ev.Delay}
	if out.Time == nil && out.Delay == nil {
		return nil
	}
	return out
}

func convertTripUpdate(tu *gtfsrt.TripUpdate) *TripUpdate {
	out := &TripUpdate{
		Trip:      convertTrip(tu.GetTrip()),
		Delay:     tu.Delay,
		Timestamp: unixTime(tu.Timestamp),
		Stops:     make([]StopTimeUpdate, 0, len(tu.GetStopTimeUpdate())),
	}
	if v := tu.GetVehicle(); v != nil {
		if id := v.GetId(); id != "" {
			out.VehicleID = &id
		}
		if label := v.GetLabel(); label != "" {
			out.VehicleLabel = &label
		}
	}

	for _, stu := range tu.GetStopTimeUpdate() {
		update := StopTimeUpdate{
			StopSequence: stu.StopSequence,
			StopID:       stu.GetStopId(),
			Arrival:      convertEvent(stu.GetArrival()),
			Departure:    convertEvent(stu.GetDeparture()),
			Skipped:      stu.GetScheduleRelationship() == gtfsrt.TripUpdate_StopTimeUpdate_SKIPPED,
		}
		if track := nyctTrack(stu); track != nil {
			update.Track = track
		}
		if rr, ok := railroadStopTimeUpdate(stu.ProtoReflect().GetUnknown()); ok {
			if rr.Track != "" && update.Track == nil {
				track := rr.Track
				update.Track = &track
			}
			if rr.TrainStatus != "" {
				status := rr.TrainStatus
				update.TrainStatus = &status
			}
		}
		out.Stops = append(out.Stops, update)
	}
	return out
}

func nyctTrack(stu *gtfsrt.TripUpdate_StopTimeUpdate) *string {
	if !proto.HasExtension(stu, gtfsrt.E_NyctStopTimeUpdate) {
		return nil
	}
	ext, ok := proto.GetExtension(stu, gtfsrt.E_NyctStopTimeUpdate).(*gtfsrt.NyctStopTimeUpdate)
	if !ok || ext == nil {
		return nil
	}
	track := ext.GetActualTrack()
	if track == "" {
		track = ext.GetScheduledTrack()
	}
	if track == "" {
		return nil
	}
	return &track
}

func convertVehicle(v *gtfsrt.VehiclePosition) *VehiclePosition {
	out := &VehiclePosition{
		VehicleID: v.GetVehicle().GetId(),
		Label:     v.GetVehicle().GetLabel(),
		StopID:    v.GetStopId(),
		Timestamp: unixTime(v.Timestamp),
	}
	if v.CurrentStatus != nil {
		out.CurrentStatus = v.GetCurrentStatus().String()
	}
	if v.GetTrip() != nil {
		trip := convertTrip(v.GetTrip())
		out.Trip = &trip
	}
	if p := v.GetPosition(); p != nil {
		lat, lon := p.GetLatitude(), p.GetLongitude()
		out.Latitude, out.Longitude = &lat, &lon
	}
	return out
}

func translations(ts *gtfsrt.TranslatedString) []Translation {
	if ts == nil {
		return nil
	}
	out := make([]Translation, 0, len(ts.GetTranslation()))
	for _, t := range ts.GetTranslation() {
		out = append(out, Translation{Text: t.GetText(), Language: t.GetLanguage()})
	}
	return out
}

func convertAlert(a *gtfsrt.Alert) *Alert {
	out := &Alert{
		Header:      PreferredText(translations(a.GetHeaderText())),
		Description: PreferredText(translations(a.GetDescriptionText())),
	}
	if a.Cause != nil {
		out.Cause = a.GetCause().String()
	}
	if a.Effect != nil {
		out.Effect = a.GetEffect().String()
	}
	for _, period := range a.GetActivePeriod() {
		out.ActivePeriods = append(out.ActivePeriods, Period{
			Start: unixTime(period.Start),
			End:   unixTime(period.End),
		})
	}

	routes := map[string]struct{}{}
	stops := map[string]struct{}{}
	for _, ie := range a.GetInformedEntity() {
		if id := ie.GetRouteId(); id != "" {
			if _, seen := routes[id]; !seen {
				routes[id] = struct{}{}
				out.RouteIDs = append(out.RouteIDs, id)
			}
		}
		if id := ie.GetStopId(); id != "" {
			if _, seen := stops[id]; !seen {
				stops[id] = struct{}{}
				out.StopIDs = append(out.StopIDs, id)
			}
		}
	}
	return out
}
