package alerts

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdcast.transitpulse.org/internal/feed"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

const alertPayload = `{
  "header": {"gtfs_realtime_version": "1.0", "timestamp": 1773144000},
  "entity": [
    {
      "id": "lmm:alert:1",
      "alert": {
        "active_period": [{"start": 1773140000}],
        "informed_entity": [
          {"agency_id": "MTASBWY", "route_id": "A"},
          {"agency_id": "MTASBWY", "route_id": "A", "stop_id": "A27"},
          {"agency_id": "MTASBWY", "route_id": "C", "stop_id": "A27"}
        ],
        "header_text": {"translation": [
          {"text": "<p>[A] trains delayed</p>", "language": "en-html"},
          {"text": "[A] trains are running with delays", "language": "en"}
        ]},
        "description_text": {"translation": [{"text": "We're working to fix a signal problem.", "language": "en"}]},
        "transit_realtime.mercury_alert": {"alert_type": "Delays", "created_at": 1773140000}
      }
    },
    {
      "id": "lmm:planned_work:2",
      "alert": {
        "active_period": [{"start": 1773100000, "end": 1773143999}],
        "informed_entity": [{"route_id": "L"}],
        "header_text": {"translation": [{"text": "No [L] between 8 Av and Bedford Av", "language": "en"}]},
        "mode_specific_extension": {"alert_type": "Planned - Suspended"}
      }
    },
    {
      "id": "lmm:alert:3",
      "alert": {
        "informed_entity": [{"route_id": "7"}],
        "description_text": {"translation": [{"text": "no header here", "language": "en"}]}
      }
    },
    {
      "id": "lmm:alert:4",
      "alert": {
        "informed_entity": [{"route_id": "G"}],
        "severity_level": "SEVERE",
        "effect": "NO_SERVICE",
        "header_text": {"translation": [{"text": "G suspended", "language": "en"}]}
      }
    }
  ]
}`

func newTestParser(t *testing.T) (*Parser, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return NewParser(slog.New(slog.NewJSONHandler(&buf, nil)), nil), &buf
}

func TestParse(t *testing.T) {
	p, _ := newTestParser(t)

	got, err := p.Parse([]byte(alertPayload))
	require.NoError(t, err)
	require.Len(t, got, 3, "alerts without header text are skipped")

	delay := got[0]
	assert.Equal(t, "lmm:alert:1", delay.ID)
	assert.Equal(t, []string{"A", "C"}, delay.Routes)
	assert.Equal(t, []string{"A27"}, delay.Stops)
	assert.Equal(t, "[A] trains are running with delays", delay.Header)
	assert.Equal(t, "We're working to fix a signal problem.", delay.Description)
	assert.Equal(t, SeverityWarning, delay.Severity)
	assert.Equal(t, TypeDelay, delay.Type)
	require.NotNil(t, delay.ActivePeriodStart)
	assert.Nil(t, delay.ActivePeriodEnd)

	planned := got[1]
	assert.Equal(t, TypePlannedWork, planned.Type)
	assert.Equal(t, SeveritySevere, planned.Severity)
	require.NotNil(t, planned.ActivePeriodEnd)

	g := got[2]
	assert.Equal(t, SeveritySevere, g.Severity)
	assert.Equal(t, TypeSuspension, g.Type)
	assert.Equal(t, "NO_SERVICE", g.Effect)
	assert.Empty(t, g.Stops)
}

func TestParseRejectsWholePayload(t *testing.T) {
	tests := map[string]string{
		"syntax":            `{"header": {`,
		"missing header":    `{"entity": []}`,
		"entity without id": `{"header": {"timestamp": 1}, "entity": [{"alert": {}}]}`,
		"missing alert":     `{"header": {"timestamp": 1}, "entity": [{"id": "x"}]}`,
		"end before start":  `{"header": {"timestamp": 1}, "entity": [{"id": "x", "alert": {"active_period": [{"start": 10, "end": 5}]}}]}`,
		"negative start":    `{"header": {"timestamp": 1}, "entity": [{"id": "x", "alert": {"active_period": [{"start": -1}]}}]}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			p, logs := newTestParser(t)
			got, err := p.Parse([]byte(body))
			require.ErrorIs(t, err, ErrInvalidPayload)
			assert.NotNil(t, got)
			assert.Empty(t, got)
			assert.Contains(t, logs.String(), "rejected payload")
		})
	}
}

func TestIsActive(t *testing.T) {
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)
	earlier := now.Add(-time.Hour)

	tests := []struct {
		name    string
		periods []Period
		want    bool
	}{
		{"no periods", nil, true},
		{"open ended", []Period{{Start: &earlier}}, true},
		{"no end time", []Period{{}}, true},
		{"ended one second ago", []Period{{Start: &earlier, End: &past}}, false},
		{"ends exactly now", []Period{{Start: &earlier, End: &now}}, false},
		{"not started", []Period{{Start: &future}}, false},
		{"second period active", []Period{{End: &past}, {Start: &earlier, End: &future}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAlert("x", nil, nil, tt.periods)
			assert.Equal(t, tt.want, a.IsActive(now))
		})
	}
}

func TestActiveAndForRoute(t *testing.T) {
	past := now.Add(-time.Second)
	list := []ServiceAlert{
		newAlert("a", []string{"A"}, nil, nil),
		newAlert("b", []string{"a", "C"}, nil, []Period{{End: &past}}),
		newAlert("c", []string{"L"}, nil, nil),
	}
	assert.Len(t, Active(list, now), 2)
	assert.Len(t, ForRoute(list, "A"), 2)
	assert.Len(t, ForRoute(list, ""), 3)
	assert.Len(t, ForRoute(Active(list, now), "A"), 1)
}

func TestClassificationChain(t *testing.T) {
	tests := []struct {
		name     string
		c        classification
		severity Severity
		typ      Type
	}{
		{"explicit level wins", classification{severityLevel: "warning", extensionType: "Suspended"}, SeverityWarning, TypeSuspension},
		{"extension", classification{extensionType: "Station Closed"}, SeveritySevere, TypeStationClosure},
		{"extension detour", classification{extensionType: "Trains Rerouted"}, SeverityWarning, TypeDetour},
		{"effect", classification{effect: "REDUCED_SERVICE"}, SeverityWarning, TypeServiceChange},
		{"cause", classification{cause: "MAINTENANCE"}, SeverityInfo, TypePlannedWork},
		{"header keywords", classification{header: "Elevator out of service at 14 St"}, SeverityInfo, TypeAccessibility},
		{"header delay", classification{header: "Trains are running with delays"}, SeverityWarning, TypeDelay},
		{"unknown", classification{header: "Have a nice day"}, SeverityInfo, TypeOther},
		{"empty", classification{}, SeverityInfo, TypeOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.severity, tt.c.severity())
			assert.Equal(t, tt.typ, tt.c.alertType())
		})
	}
}

func TestFromFeed(t *testing.T) {
	end := now.Add(time.Hour)
	msg := &feed.Message{Entities: []feed.Entity{
		{ID: "1", Alert: &feed.Alert{
			RouteIDs:      []string{"B63", "B63"},
			Header:        "B63 detoured",
			Effect:        "DETOUR",
			ActivePeriods: []feed.Period{{End: &end}},
		}},
		{ID: "2", Alert: &feed.Alert{RouteIDs: []string{"B61"}}},
		{ID: "3"},
	}}

	got := FromFeed(msg)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, []string{"B63"}, got[0].Routes)
	assert.Equal(t, TypeDetour, got[0].Type)
	assert.Equal(t, SeverityWarning, got[0].Severity)
	assert.True(t, got[0].IsActive(now))

	assert.Empty(t, FromFeed(nil))
}

const outagePayload = `[
  {"station": "14 St-Union Sq", "borough": "MN", "trainno": "4/5/6/L/N/Q/R/W", "equipment": "EL123",
   "equipmenttype": "EL", "serving": "Street to mezzanine", "ADA": "Y",
   "outagedate": "03/10/2026 06:00:00 AM", "estimatedreturntoservice": "03/10/2026 11:00:00 PM",
   "reason": "Repair", "isupcomingoutage": "N", "ismaintenanceoutage": "N"},
  {"station": "Jay St-MetroTech", "trainno": "A/C/F", "equipment": "ES301", "equipmenttype": "ES",
   "isupcomingoutage": "Y", "ismaintenanceoutage": "Y"}
]`

func TestParseOutages(t *testing.T) {
	nyc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	p := NewParser(nil, nyc)

	got, err := p.ParseOutages([]byte(outagePayload))
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, Elevator, first.EquipmentType)
	assert.Equal(t, []string{"4", "5", "6", "L", "N", "Q", "R", "W"}, first.Routes)
	assert.True(t, first.ADA)
	require.NotNil(t, first.OutageStart)
	assert.True(t, time.Date(2026, 3, 10, 6, 0, 0, 0, nyc).Equal(*first.OutageStart))
	require.NotNil(t, first.EstimatedReturn)
	assert.Equal(t, 23, first.EstimatedReturn.Hour())

	second := got[1]
	assert.Equal(t, Escalator, second.EquipmentType)
	assert.True(t, second.Upcoming)
	assert.True(t, second.Maintenance)
	assert.Nil(t, second.OutageStart)

	assert.Len(t, OutagesForRoute(got, "L"), 1)
	assert.Empty(t, OutagesForRoute(got, "A"), "upcoming outages are not current")
}

func TestParseOutagesRejectsBadRecord(t *testing.T) {
	p, _ := newTestParser(t)
	got, err := p.ParseOutages([]byte(`[{"station": "X", "equipment": "EL1", "equipmenttype": "EL"}, {"station": "Y", "equipment": "EL2", "equipmenttype": "LIFT"}]`))
	require.ErrorIs(t, err, ErrInvalidPayload)
	assert.Empty(t, got)

	_, err = p.ParseOutages([]byte(`{"not": "an array"}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestParseEquipment(t *testing.T) {
	p, _ := newTestParser(t)
	got, err := p.ParseEquipment([]byte(`[
	  {"station": "Times Sq-42 St", "trainno": "1/2/3", "equipmentno": "EL001", "equipmenttype": "EL",
	   "ADA": "Y", "isactive": "Y", "elevatorsgtfsstopid": "127/725", "shortdescription": "Street to mezz"},
	  {"station": "Closed St", "equipmentno": "ES002", "equipmenttype": "ES", "isactive": "N"}
	]`))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"127", "725"}, got[0].StopIDs)
	assert.True(t, got[0].Active)
	assert.False(t, got[1].Active)
	assert.Equal(t, Escalator, got[1].EquipmentType)

	_, err = p.ParseEquipment([]byte(`[{"station": "No id", "equipmenttype": "EL"}]`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}
