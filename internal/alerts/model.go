// Package alerts parses the MTA JSON service-alert feed and the elevator
// and escalator feeds into uniform records, and classifies each alert into a
// closed severity and type vocabulary.
package alerts

import (
	"sort"
	"strings"
	"time"
)

type Severity string

const (
	SeveritySevere  Severity = "SEVERE"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

type Type string

const (
	TypeDelay          Type = "DELAY"
	TypeSuspension     Type = "SUSPENSION"
	TypeStationClosure Type = "STATION_CLOSURE"
	TypePlannedWork    Type = "PLANNED_WORK"
	TypeServiceChange  Type = "SERVICE_CHANGE"
	TypeDetour         Type = "DETOUR"
	TypeAccessibility  Type = "ACCESSIBILITY"
	TypeOther          Type = "OTHER"
)

// Period is an active window; a nil bound is open-ended.
type Period struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// Contains reports whether now falls inside the period. The end is
// exclusive.
func (p Period) Contains(now time.Time) bool {
	if p.Start != nil && now.Before(*p.Start) {
		return false
	}
	if p.End != nil && !now.Before(*p.End) {
		return false
	}
	return true
}

type ServiceAlert struct {
	ID          string   `json:"id"`
	Routes      []string `json:"routes"`
	Stops       []string `json:"stops"`
	Header      string   `json:"header"`
	Description string   `json:"description,omitempty"`
	Severity    Severity `json:"severity"`
	Type        Type     `json:"alertType"`

	// ActivePeriodStart and ActivePeriodEnd describe the first active
	// period; Periods holds all of them.
	ActivePeriodStart *time.Time `json:"activePeriodStart,omitempty"`
	ActivePeriodEnd   *time.Time `json:"activePeriodEnd,omitempty"`
	Periods           []Period   `json:"activePeriods,omitempty"`

	Cause  string `json:"cause,omitempty"`
	Effect string `json:"effect,omitempty"`
}

// IsActive reports whether now falls inside any active period. An alert
// without periods is always active.
func (a ServiceAlert) IsActive(now time.Time) bool {
	if len(a.Periods) == 0 {
		return true
	}
	for _, p := range a.Periods {
		if p.Contains(now) {
			return true
		}
	}
	return false
}

// AffectsRoute matches route ids case-insensitively, ignoring an agency
// prefix ("MTA NYCT_B63") on either side.
func (a ServiceAlert) AffectsRoute(route string) bool {
	want := withoutAgency(route)
	for _, r := range a.Routes {
		if strings.EqualFold(r, route) || strings.EqualFold(withoutAgency(r), want) {
			return true
		}
	}
	return false
}

func withoutAgency(id string) string {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		return id[i+1:]
	}
	return id
}

// Active keeps the alerts active at now.
func Active(list []ServiceAlert, now time.Time) []ServiceAlert {
	out := make([]ServiceAlert, 0, len(list))
	for _, a := range list {
		if a.IsActive(now) {
			out = append(out, a)
		}
	}
	return out
}

// ForRoute keeps the alerts that name route. An empty route keeps all.
func ForRoute(list []ServiceAlert, route string) []ServiceAlert {
	if route == "" {
		return list
	}
	out := make([]ServiceAlert, 0, len(list))
	for _, a := range list {
		if a.AffectsRoute(route) {
			out = append(out, a)
		}
	}
	return out
}

func newAlert(id string, routes, stops []string, periods []Period) ServiceAlert {
	a := ServiceAlert{
		ID:      id,
		Routes:  dedupe(routes),
		Stops:   dedupe(stops),
		Periods: periods,
	}
	if len(periods) > 0 {
		a.ActivePeriodStart = periods[0].Start
		a.ActivePeriodEnd = periods[0].End
	}
	return a
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
