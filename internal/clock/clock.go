// Package clock gives crowdcast a single notion of "now". Demand curves and
// peak-direction rules are keyed by local service time, so every component
// asks a Clock instead of calling time.Now directly.
package clock

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
	_ "time/tzdata" // service zone must resolve in minimal images
)

// Clock returns the current instant.
type Clock interface {
	Now() time.Time
	NowUnixMilli() int64
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NowUnixMilli() int64 { return time.Now().UnixMilli() }

// MockClock is a settable clock for tests. Safe for concurrent use.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *MockClock) NowUnixMilli() int64 {
	return m.Now().UnixMilli()
}

// Set moves the clock to t.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Advance moves the clock by d, which may be negative.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// OverrideClock pins "now" to a timestamp read from an environment variable
// or a file, so a crowding snapshot can be reproduced against recorded feeds.
// The sources are re-read on every call; when neither yields a parseable
// time the system clock is used.
type OverrideClock struct {
	envVar   string
	filePath string
	location *time.Location
}

func NewOverrideClock(envVar, filePath string, location *time.Location) *OverrideClock {
	return &OverrideClock{envVar: envVar, filePath: filePath, location: location}
}

func (o *OverrideClock) Now() time.Time {
	if t, err := o.fromEnv(); err == nil {
		return t
	}
	if t, err := o.fromFile(); err == nil {
		return t
	}
	slog.Warn("override clock has no usable source, using system time",
		slog.String("env_var", o.envVar), slog.String("file", o.filePath))
	return time.Now()
}

func (o *OverrideClock) NowUnixMilli() int64 {
	return o.Now().UnixMilli()
}

func (o *OverrideClock) fromEnv() (time.Time, error) {
	if o.envVar == "" {
		return time.Time{}, errors.New("no environment variable configured")
	}
	raw := os.Getenv(o.envVar)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%s is empty", o.envVar)
	}
	return o.parse(raw)
}

func (o *OverrideClock) fromFile() (time.Time, error) {
	if o.filePath == "" {
		return time.Time{}, errors.New("no file configured")
	}
	data, err := os.ReadFile(o.filePath)
	if err != nil {
		return time.Time{}, err
	}
	return o.parse(string(data))
}

// parse accepts RFC3339, or a zone-less local timestamp when a location is set.
func (o *OverrideClock) parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if o.location == nil {
		return time.Time{}, errors.New("zone-less timestamp needs a configured location")
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, o.location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse time %q", s)
}

// ServiceTime is "now" expressed in the agency's local zone, split into the
// keys the demand model uses.
type ServiceTime struct {
	Time    time.Time
	Hour    int
	Weekday time.Weekday
}

// Local converts c.Now() into loc. A nil loc means UTC.
func Local(c Clock, loc *time.Location) ServiceTime {
	if loc == nil {
		loc = time.UTC
	}
	now := c.Now().In(loc)
	return ServiceTime{Time: now, Hour: now.Hour(), Weekday: now.Weekday()}
}

// IsWeekend reports whether the service day is Saturday or Sunday.
func (s ServiceTime) IsWeekend() bool {
	return s.Weekday == time.Saturday || s.Weekday == time.Sunday
}
