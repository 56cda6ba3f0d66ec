package demand

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdcast.transitpulse.org/internal/arrivals"
)

func TestGenericCurve(t *testing.T) {
	assert.GreaterOrEqual(t, GenericDemand(8, time.Tuesday), 0.9)
	assert.GreaterOrEqual(t, GenericDemand(17, time.Tuesday), 0.9)
	assert.InDelta(t, 0.45, GenericDemand(13, time.Tuesday), 0.05)
	assert.LessOrEqual(t, GenericDemand(3, time.Tuesday), 0.1)
	assert.InDelta(t, 0.65, GenericDemand(14, time.Saturday), 0.01)
	assert.Less(t, GenericDemand(8, time.Sunday), GenericDemand(8, time.Monday))

	assert.Equal(t, GenericDemand(1, time.Monday), GenericDemand(25, time.Monday))
	assert.Equal(t, GenericDemand(23, time.Monday), GenericDemand(-1, time.Monday))
}

func TestDefaultModel(t *testing.T) {
	m, err := Default()
	require.NoError(t, err)
	assert.True(t, m.HasStation("127"))
	assert.True(t, m.HasStation("A27N"), "platform falls back to its station")
	assert.False(t, m.HasStation("Z99"))
	assert.False(t, m.HasStation(""))

	assert.Equal(t, 1.0, m.Demand(17, time.Wednesday, "127"))
	assert.Equal(t, m.Demand(8, time.Monday, "631"), m.Demand(8, time.Monday, "631S"))
	assert.Equal(t, GenericDemand(8, time.Monday), m.Demand(8, time.Monday, "Z99"))

	for h := range 24 {
		for d := time.Sunday; d <= time.Saturday; d++ {
			v := m.Demand(h, d, "L08")
			assert.True(t, v >= 0 && v <= 1, "hour %d day %d: %v", h, d, v)
		}
	}
}

func TestPeriods(t *testing.T) {
	m, err := New(nil, nil)
	require.NoError(t, err)

	tests := []struct {
		hour   int
		day    time.Weekday
		period string
		rush   bool
		peak   string
	}{
		{7, time.Monday, "morning_rush", true, arrivals.Inbound},
		{9, time.Friday, "morning_rush", true, arrivals.Inbound},
		{10, time.Friday, "midday", false, ""},
		{16, time.Thursday, "evening_rush", true, arrivals.Outbound},
		{19, time.Thursday, "evening_rush", true, arrivals.Outbound},
		{20, time.Thursday, "evening", false, ""},
		{8, time.Saturday, "weekend_morning", false, ""},
		{14, time.Sunday, "weekend_day", false, ""},
		{2, time.Sunday, "overnight", false, ""},
	}
	for _, tt := range tests {
		p, ok := m.Period(tt.hour, tt.day)
		require.True(t, ok, "%d %s", tt.hour, tt.day)
		assert.Equal(t, tt.period, p.Name, "%d %s", tt.hour, tt.day)
		assert.Equal(t, tt.rush, m.IsRushHour(tt.hour, tt.day), "%d %s", tt.hour, tt.day)
		peak, ok := m.PeakDirection(tt.hour, tt.day)
		assert.Equal(t, tt.peak != "", ok)
		assert.Equal(t, tt.peak, peak)
	}
}

func TestPeriodValidation(t *testing.T) {
	bad := [][]Period{
		{{Name: "", Days: weekdays, Start: 1, End: 2}},
		{{Name: "x", Days: nil, Start: 1, End: 2}},
		{{Name: "x", Days: []time.Weekday{9}, Start: 1, End: 2}},
		{{Name: "x", Days: weekdays, Start: 5, End: 5}},
		{{Name: "x", Days: weekdays, Start: 5, End: 25}},
		{{Name: "x", Days: weekdays, Start: 5, End: 6, Peak: "sideways"}},
	}
	for i, periods := range bad {
		_, err := New(nil, periods)
		assert.Error(t, err, "case %d", i)
	}

	m, err := New(nil, []Period{{Name: "all", Days: everyDay, Start: 0, End: 24, Rush: true}})
	require.NoError(t, err)
	assert.True(t, m.IsRushHour(3, time.Sunday))
	_, ok := m.PeakDirection(3, time.Sunday)
	assert.False(t, ok)
}

func TestLoadRidership(t *testing.T) {
	csv := `station_id,day_type,hour,ridership
X1,weekday,8,400
X1,weekday,8,100
X1,weekday,17,250
X1,weekend,13,125
X2,weekend,12,0
`
	got, err := LoadRidership(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, got, 2)

	x1 := got["X1"]
	assert.Equal(t, 1.0, x1.Weekday[8])
	assert.Equal(t, 0.5, x1.Weekday[17])
	assert.Equal(t, 0.25, x1.Weekend[13])
	assert.Equal(t, 0.0, x1.Weekday[3])
	assert.Equal(t, 0.0, got["X2"].Weekend[12])

	base, err := Default()
	require.NoError(t, err)
	m, err := base.WithStations(got)
	require.NoError(t, err)
	assert.Equal(t, 0.5, m.Demand(17, time.Monday, "X1"))
	assert.True(t, m.HasStation("127"))
	assert.False(t, base.HasStation("X1"), "the base model is unchanged")
}

func TestLoadRidershipRejectsBadRows(t *testing.T) {
	for _, csv := range []string{
		"station_id,day_type,hour,ridership\nX1,holiday,8,1\n",
		"station_id,day_type,hour,ridership\nX1,weekday,24,1\n",
		"station_id,day_type,hour,ridership\nX1,weekday,8,-3\n",
		"station_id,day_type,hour,ridership\n,weekday,8,1\n",
		"station_id,day_type,hour,ridership\nX1,weekday,eight,1\n",
	} {
		_, err := LoadRidership(strings.NewReader(csv))
		assert.Error(t, err, csv)
	}
}

func TestLoadPatterns(t *testing.T) {
	_, err := LoadPatterns([]byte(`{"stations": {"X": {"weekday": [1], "weekend": [1]}}}`))
	assert.Error(t, err)

	_, err = LoadPatterns([]byte(`{`))
	assert.Error(t, err)
}
