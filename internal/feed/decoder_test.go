package feed_test

import (
	"errors"
	"testing"
	"time"

	gtfsrt "github.com/OneBusAway/go-gtfs/proto"
	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"crowdcast.transitpulse.org/internal/feed"
	"crowdcast.transitpulse.org/internal/feed/feedtest"
)

var now = time.Date(2025, 6, 16, 12, 0, 0, 0, time.UTC)

func TestDecodeSubwayTrip(t *testing.T) {
	payload := feedtest.Bytes(now, feedtest.Trip{
		TripID:        "071150_A..S55R",
		RouteID:       "A",
		NYCTDirection: "S",
		NYCTTrainID:   "1A 1155 207/FAR",
		Assigned:      true,
		Stops: []feedtest.StopTime{
			{StopID: "A27S", Arrival: now.Add(3 * time.Minute), Delay: feedtest.Int32(60), NYCTTrack: "A3"},
			{StopID: "A28S", Arrival: now.Add(5 * time.Minute)},
		},
	})

	msg, err := feed.Decode(payload)
	require.NoError(t, err)

	assert.Equal(t, "2.0", msg.Header.Version)
	require.NotNil(t, msg.Header.Timestamp)
	assert.True(t, now.Equal(*msg.Header.Timestamp))

	trips := msg.TripUpdates()
	require.Len(t, trips, 1, spew.Sdump(msg))
	trip := trips[0]
	assert.Equal(t, "A", trip.Trip.RouteID)
	require.NotNil(t, trip.Trip.NYCT)
	assert.Equal(t, feed.NYCTSouth, trip.Trip.NYCT.Direction)
	assert.True(t, trip.Trip.NYCT.IsAssigned)
	assert.Equal(t, "1A 1155 207/FAR", trip.Trip.NYCT.TrainID)

	require.Len(t, trip.Stops, 2)
	first := trip.Stops[0]
	at, ok := first.PredictedTime()
	require.True(t, ok)
	assert.True(t, now.Add(3*time.Minute).Equal(at))
	delay, ok := first.DelaySeconds()
	require.True(t, ok)
	assert.EqualValues(t, 60, delay)
	require.NotNil(t, first.Track)
	assert.Equal(t, "A3", *first.Track)

	_, ok = trip.Stops[1].DelaySeconds()
	assert.False(t, ok)
	assert.Nil(t, trip.Stops[1].Track)
}

func TestDecodeRailroadExtension(t *testing.T) {
	payload := feedtest.Bytes(now, feedtest.Trip{
		TripID:      "GO103_25_2064",
		RouteID:     "1",
		DirectionID: feedtest.Uint32(0),
		Stops: []feedtest.StopTime{
			{StopID: "237", Arrival: now.Add(10 * time.Minute), RailroadTrack: "17", TrainStatus: "On Time"},
		},
	})

	msg, err := feed.Decode(payload)
	require.NoError(t, err)

	stop := msg.TripUpdates()[0].Stops[0]
	require.NotNil(t, stop.Track)
	require.NotNil(t, stop.TrainStatus)
	assert.Equal(t, "17", *stop.Track)
	assert.Equal(t, "On Time", *stop.TrainStatus)
	assert.Nil(t, msg.TripUpdates()[0].Trip.NYCT)
}

func TestDecodeMissingHeader(t *testing.T) {
	msg := feedtest.Message(now, feedtest.Trip{TripID: "t1", RouteID: "1"})
	msg.Header = nil

	decoded, err := feed.Decode(feedtest.Marshal(msg))
	assert.Nil(t, decoded)

	var decodeErr *feed.DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Greater(t, decodeErr.Size, 0)
}

func TestDecodeGarbageAndEmpty(t *testing.T) {
	_, err := feed.Decode([]byte{0xff, 0xff, 0xff, 0x01})
	var decodeErr *feed.DecodeError
	assert.True(t, errors.As(err, &decodeErr))

	_, err = feed.Decode(nil)
	assert.ErrorIs(t, err, feed.ErrEmptyPayload)
}

func TestDecodeAlertAndVehicle(t *testing.T) {
	raw := &gtfsrt.FeedMessage{
		Header: &gtfsrt.FeedHeader{GtfsRealtimeVersion: proto.String("2.0")},
		Entity: []*gtfsrt.FeedEntity{
			{
				Id: proto.String("alert-1"),
				Alert: &gtfsrt.Alert{
					Effect: gtfsrt.Alert_SIGNIFICANT_DELAYS.Enum(),
					InformedEntity: []*gtfsrt.EntitySelector{
						{RouteId: proto.String("L")},
						{RouteId: proto.String("L")},
						{StopId: proto.String("L08")},
					},
					ActivePeriod: []*gtfsrt.TimeRange{{Start: proto.Uint64(uint64(now.Unix()))}},
					HeaderText: &gtfsrt.TranslatedString{Translation: []*gtfsrt.TranslatedString_Translation{
						{Text: proto.String("<p>Delays on L</p>"), Language: proto.String("en-html")},
						{Text: proto.String("Delays on L"), Language: proto.String("en")},
					}},
				},
			},
			{
				Id: proto.String("veh-1"),
				Vehicle: &gtfsrt.VehiclePosition{
					Vehicle: &gtfsrt.VehicleDescriptor{Id: proto.String("MTA NYCT_7012")},
					StopId:  proto.String("402055"),
				},
			},
		},
	}
	b, err := proto.Marshal(raw)
	require.NoError(t, err)

	msg, err := feed.Decode(b)
	require.NoError(t, err)

	alerts := msg.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, []string{"L"}, alerts[0].RouteIDs)
	assert.Equal(t, []string{"L08"}, alerts[0].StopIDs)
	assert.Equal(t, "Delays on L", alerts[0].Header)
	assert.Equal(t, "SIGNIFICANT_DELAYS", alerts[0].Effect)
	require.Len(t, alerts[0].ActivePeriods, 1)
	assert.Nil(t, alerts[0].ActivePeriods[0].End)

	vehicles := msg.Vehicles()
	require.Len(t, vehicles, 1)
	assert.Equal(t, "MTA NYCT_7012", vehicles[0].VehicleID)
	assert.Empty(t, msg.TripUpdates())
}

func TestDecodeConcurrentCalls(t *testing.T) {
	payload := feedtest.Bytes(now, feedtest.Trip{TripID: "t", RouteID: "G", NYCTDirection: "N",
		Stops: []feedtest.StopTime{{StopID: "G22N", Arrival: now.Add(time.Minute)}}})

	done := make(chan *feed.Message, 16)
	for i := 0; i < 16; i++ {
		go func() {
			msg, _ := feed.Decode(payload)
			done <- msg
		}()
	}
	for i := 0; i < 16; i++ {
		msg := <-done
		require.NotNil(t, msg)
		assert.Equal(t, feed.NYCTNorth, msg.TripUpdates()[0].Trip.NYCT.Direction)
	}
}
