// Package segments is the static registry of route segments: named, ordered
// subsets of a route's stations used for localized crowding sampling. The
// registry is embedded at build time and read-only after load.
package segments

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"crowdcast.transitpulse.org/internal/arrivals"
)

//go:embed segments.yaml
var defaultRegistry []byte

type Segment struct {
	ID       string   `yaml:"id" json:"id" validate:"required"`
	Name     string   `yaml:"name" json:"name" validate:"required"`
	Stations []string `yaml:"stations" json:"stations" validate:"min=1,dive,required"`
	Branch   string   `yaml:"branch,omitempty" json:"branch,omitempty"`
}

// Contains reports whether stationID (or a platform of it) is a member.
func (s Segment) Contains(stationID string) bool {
	for _, st := range s.Stations {
		if arrivals.MatchesStation(stationID, st) {
			return true
		}
	}
	return false
}

type Route struct {
	ID   string        `yaml:"route" json:"route" validate:"required"`
	Mode arrivals.Mode `yaml:"mode" json:"mode" validate:"required,oneof=subway bus lirr mnr"`
	Name string        `yaml:"name" json:"name"`
	// Inbound is the direction value that runs toward the core: "N" or "S"
	// for subway, "inbound" or "outbound" otherwise.
	Inbound          string    `yaml:"inbound" json:"inbound" validate:"required,oneof=N S inbound outbound"`
	ReferenceStation string    `yaml:"reference_station" json:"referenceStation" validate:"required"`
	Segments         []Segment `yaml:"segments" json:"segments" validate:"min=1,dive"`
}

// Outbound is the direction opposite to Inbound.
func (r *Route) Outbound() string {
	switch r.Inbound {
	case arrivals.North:
		return arrivals.South
	case arrivals.South:
		return arrivals.North
	case arrivals.Inbound:
		return arrivals.Outbound
	}
	return arrivals.Inbound
}

type document struct {
	Routes []Route `yaml:"routes" validate:"min=1,dive"`
}

type key struct {
	mode  arrivals.Mode
	route string
}

// Registry indexes routes by mode and id.
type Registry struct {
	routes map[key]*Route
	order  []key
}

// StationSegment is one route segment a station belongs to.
type StationSegment struct {
	Mode    arrivals.Mode `json:"mode"`
	RouteID string        `json:"routeId"`
	Segment Segment       `json:"segment"`
}

// Load parses and validates a registry document. Duplicate routes within a
// mode and duplicate segment ids within a route are rejected.
func Load(data []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing segment registry: %w", err)
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(doc); err != nil {
		return nil, fmt.Errorf("validating segment registry: %w", err)
	}

	reg := &Registry{routes: make(map[key]*Route, len(doc.Routes))}
	for i := range doc.Routes {
		r := &doc.Routes[i]
		k := key{r.Mode, r.ID}
		if _, dup := reg.routes[k]; dup {
			return nil, fmt.Errorf("duplicate %s route %q", r.Mode, r.ID)
		}
		seen := map[string]bool{}
		for _, s := range r.Segments {
			if seen[s.ID] {
				return nil, fmt.Errorf("route %s: duplicate segment %q", r.ID, s.ID)
			}
			seen[s.ID] = true
		}
		reg.routes[k] = r
		reg.order = append(reg.order, k)
	}
	return reg, nil
}

var loadDefault = sync.OnceValues(func() (*Registry, error) {
	return Load(defaultRegistry)
})

// Default returns the embedded registry, parsed once.
func Default() (*Registry, error) {
	return loadDefault()
}

// Route finds a route by mode and id.
func (r *Registry) Route(mode arrivals.Mode, id string) (*Route, bool) {
	route, ok := r.routes[key{mode, id}]
	return route, ok
}

// Routes lists the routes of mode in registry order. An empty mode lists
// every route.
func (r *Registry) Routes(mode arrivals.Mode) []*Route {
	var out []*Route
	for _, k := range r.order {
		if mode == "" || k.mode == mode {
			out = append(out, r.routes[k])
		}
	}
	return out
}

// Segment finds one segment of a route.
func (r *Registry) Segment(mode arrivals.Mode, routeID, segmentID string) (Segment, bool) {
	route, ok := r.Route(mode, routeID)
	if !ok {
		return Segment{}, false
	}
	for _, s := range route.Segments {
		if s.ID == segmentID {
			return s, true
		}
	}
	return Segment{}, false
}

// ForStation returns every segment containing stationID within mode,
// ordered by route then segment order. Per-route segment lists are short,
// so this is a linear scan.
func (r *Registry) ForStation(mode arrivals.Mode, stationID string) []StationSegment {
	var out []StationSegment
	for _, k := range r.order {
		if mode != "" && k.mode != mode {
			continue
		}
		for _, s := range r.routes[k].Segments {
			if s.Contains(stationID) {
				out = append(out, StationSegment{Mode: k.mode, RouteID: k.route, Segment: s})
			}
		}
	}
	return out
}

// Modes lists the modes present, sorted.
func (r *Registry) Modes() []arrivals.Mode {
	seen := map[arrivals.Mode]bool{}
	var out []arrivals.Mode
	for _, k := range r.order {
		if !seen[k.mode] {
			seen[k.mode] = true
			out = append(out, k.mode)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
