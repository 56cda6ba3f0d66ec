// Package demand estimates relative ridership for an hour of the week. It
// uses per-station hourly patterns where known and a generic commuter curve
// otherwise.
package demand

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"
)

//go:embed stations.json
var defaultStations []byte

// Pattern holds 24 hourly demand values in [0, 1] per day type.
type Pattern struct {
	Weekday []float64 `json:"weekday" validate:"len=24,dive,gte=0,lte=1"`
	Weekend []float64 `json:"weekend" validate:"len=24,dive,gte=0,lte=1"`
}

func (p Pattern) at(hour int, day time.Weekday) float64 {
	if isWeekend(day) {
		return p.Weekend[hour]
	}
	return p.Weekday[hour]
}

// Generic hourly curve used for stations without their own pattern.
var (
	genericWeekday = [24]float64{
		0.10, 0.08, 0.06, 0.06, 0.10, 0.25, 0.55, 0.90, 0.95, 0.75, 0.50, 0.45,
		0.50, 0.45, 0.45, 0.55, 0.75, 0.95, 0.90, 0.60, 0.40, 0.30, 0.20, 0.15,
	}
	genericWeekend = [24]float64{
		0.15, 0.12, 0.10, 0.08, 0.06, 0.08, 0.12, 0.18, 0.25, 0.35, 0.45, 0.55,
		0.60, 0.65, 0.65, 0.65, 0.60, 0.55, 0.50, 0.45, 0.40, 0.35, 0.30, 0.20,
	}
)

// Model answers demand and period questions. It is immutable once built and
// safe for concurrent use.
type Model struct {
	stations map[string]Pattern
	periods  []Period
}

// New builds a model. Nil periods means DefaultPeriods.
func New(stations map[string]Pattern, periods []Period) (*Model, error) {
	if periods == nil {
		periods = DefaultPeriods()
	}
	if err := ValidatePeriods(periods); err != nil {
		return nil, err
	}
	for id, p := range stations {
		if err := validatePattern(p); err != nil {
			return nil, fmt.Errorf("station %s: %w", id, err)
		}
	}
	return &Model{stations: maps.Clone(stations), periods: append([]Period(nil), periods...)}, nil
}

type stationsDocument struct {
	Source   string             `json:"source"`
	Stations map[string]Pattern `json:"stations"`
}

// LoadPatterns parses a JSON station pattern document.
func LoadPatterns(data []byte) (map[string]Pattern, error) {
	var doc stationsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing station patterns: %w", err)
	}
	for id, p := range doc.Stations {
		if err := validatePattern(p); err != nil {
			return nil, fmt.Errorf("station %s: %w", id, err)
		}
	}
	return doc.Stations, nil
}

var loadDefault = sync.OnceValues(func() (*Model, error) {
	stations, err := LoadPatterns(defaultStations)
	if err != nil {
		return nil, err
	}
	return New(stations, nil)
})

// Default returns the model built from the embedded station patterns and
// the default period table.
func Default() (*Model, error) {
	return loadDefault()
}

// WithStations returns a copy of m with extra patterns layered on top.
func (m *Model) WithStations(extra map[string]Pattern) (*Model, error) {
	merged := maps.Clone(m.stations)
	if merged == nil {
		merged = map[string]Pattern{}
	}
	maps.Copy(merged, extra)
	return New(merged, m.periods)
}

// WithPeriods returns a copy of m using periods instead of its own table.
func (m *Model) WithPeriods(periods []Period) (*Model, error) {
	return New(m.stations, periods)
}

// Demand returns the relative demand in [0, 1] at a station for the hour.
// Out-of-range hours wrap. Platform ids ("A27N") fall back to their
// parent station.
func (m *Model) Demand(hour int, day time.Weekday, stationID string) float64 {
	hour = wrapHour(hour)
	if p, ok := m.station(stationID); ok {
		return p.at(hour, day)
	}
	return GenericDemand(hour, day)
}

// HasStation reports whether the model has a dedicated pattern for the
// station.
func (m *Model) HasStation(stationID string) bool {
	_, ok := m.station(stationID)
	return ok
}

func (m *Model) station(id string) (Pattern, bool) {
	if id == "" {
		return Pattern{}, false
	}
	if p, ok := m.stations[id]; ok {
		return p, true
	}
	if parent, ok := strings.CutSuffix(id, "N"); ok {
		p, ok := m.stations[parent]
		return p, ok
	}
	if parent, ok := strings.CutSuffix(id, "S"); ok {
		p, ok := m.stations[parent]
		return p, ok
	}
	return Pattern{}, false
}

// Stations returns the number of station patterns.
func (m *Model) Stations() int { return len(m.stations) }

// Period returns the first period containing the hour, if any.
func (m *Model) Period(hour int, day time.Weekday) (Period, bool) {
	hour = wrapHour(hour)
	for _, p := range m.periods {
		if p.Contains(hour, day) {
			return p, true
		}
	}
	return Period{}, false
}

// Periods returns a copy of the period table.
func (m *Model) Periods() []Period {
	return append([]Period(nil), m.periods...)
}

func (m *Model) IsRushHour(hour int, day time.Weekday) bool {
	p, ok := m.Period(hour, day)
	return ok && p.Rush
}

// PeakDirection returns "inbound" or "outbound" when the hour has a
// directional peak.
func (m *Model) PeakDirection(hour int, day time.Weekday) (string, bool) {
	p, ok := m.Period(hour, day)
	if !ok || p.Peak == "" {
		return "", false
	}
	return p.Peak, true
}

// GenericDemand is the fallback curve.
func GenericDemand(hour int, day time.Weekday) float64 {
	hour = wrapHour(hour)
	if isWeekend(day) {
		return genericWeekend[hour]
	}
	return genericWeekday[hour]
}

func isWeekend(day time.Weekday) bool {
	return day == time.Saturday || day == time.Sunday
}

func wrapHour(hour int) int {
	hour %= 24
	if hour < 0 {
		hour += 24
	}
	return hour
}
