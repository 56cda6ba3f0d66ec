package transport

import (
	"strings"
	"time"
)

// Kind names one upstream feed. Each kind maps to exactly one URL.
type Kind string

const (
	Subway1234567S Kind = "subway-1234567s"
	SubwayACE      Kind = "subway-ace"
	SubwayBDFM     Kind = "subway-bdfm"
	SubwayG        Kind = "subway-g"
	SubwayJZ       Kind = "subway-jz"
	SubwayL        Kind = "subway-l"
	SubwayNQRW     Kind = "subway-nqrw"
	SubwaySIR      Kind = "subway-sir"

	BusTripUpdates Kind = "bus-trip-updates"
	BusVehicles    Kind = "bus-vehicle-positions"

	LIRR       Kind = "lirr"
	MetroNorth Kind = "mnr"
	Alerts     Kind = "alerts"
	Outages    Kind = "elevator-outages"
	Equipment  Kind = "equipment"
)

type format int

const (
	formatProtobuf format = iota
	formatJSON
)

type host int

const (
	hostMTA host = iota
	hostBus
)

type kindSpec struct {
	host   host
	path   string
	ttl    time.Duration
	format format
}

var kindSpecs = map[Kind]kindSpec{
	Subway1234567S: {hostMTA, "/nyct%2Fgtfs", 30 * time.Second, formatProtobuf},
	SubwayACE:      {hostMTA, "/nyct%2Fgtfs-ace", 30 * time.Second, formatProtobuf},
	SubwayBDFM:     {hostMTA, "/nyct%2Fgtfs-bdfm", 30 * time.Second, formatProtobuf},
	SubwayG:        {hostMTA, "/nyct%2Fgtfs-g", 30 * time.Second, formatProtobuf},
	SubwayJZ:       {hostMTA, "/nyct%2Fgtfs-jz", 30 * time.Second, formatProtobuf},
	SubwayL:        {hostMTA, "/nyct%2Fgtfs-l", 30 * time.Second, formatProtobuf},
	SubwayNQRW:     {hostMTA, "/nyct%2Fgtfs-nqrw", 30 * time.Second, formatProtobuf},
	SubwaySIR:      {hostMTA, "/nyct%2Fgtfs-si", 30 * time.Second, formatProtobuf},

	BusTripUpdates: {hostBus, "/tripUpdates", 30 * time.Second, formatProtobuf},
	BusVehicles:    {hostBus, "/vehiclePositions", 30 * time.Second, formatProtobuf},

	LIRR:       {hostMTA, "/lirr%2Fgtfs-lirr", 30 * time.Second, formatProtobuf},
	MetroNorth: {hostMTA, "/mnr%2Fgtfs-mnr", 30 * time.Second, formatProtobuf},

	Alerts:    {hostMTA, "/camsys%2Fall-alerts.json", 60 * time.Second, formatJSON},
	Outages:   {hostMTA, "/nyct%2Fnyct_ene.json", 300 * time.Second, formatJSON},
	Equipment: {hostMTA, "/nyct%2Fnyct_ene_equipments.json", time.Hour, formatJSON},
}

// Kinds lists every known feed kind.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kindSpecs))
	for k := range kindSpecs {
		out = append(out, k)
	}
	return out
}

// TTL is how long a fetched body for kind stays fresh. Unknown kinds get 0.
func TTL(kind Kind) time.Duration {
	return kindSpecs[kind].ttl
}

// RequiresBusKey reports whether kind is served by the bus API.
func RequiresBusKey(kind Kind) bool {
	spec, ok := kindSpecs[kind]
	return ok && spec.host == hostBus
}

func accept(f format) string {
	if f == formatJSON {
		return "application/json"
	}
	return "application/x-protobuf"
}

var subwayRouteKinds = map[string]Kind{
	"1": Subway1234567S, "2": Subway1234567S, "3": Subway1234567S, "4": Subway1234567S,
	"5": Subway1234567S, "6": Subway1234567S, "6X": Subway1234567S, "7": Subway1234567S,
	"7X": Subway1234567S, "GS": Subway1234567S, "S": Subway1234567S,
	"A": SubwayACE, "C": SubwayACE, "E": SubwayACE, "H": SubwayACE, "FS": SubwayACE,
	"B": SubwayBDFM, "D": SubwayBDFM, "F": SubwayBDFM, "FX": SubwayBDFM, "M": SubwayBDFM,
	"G": SubwayG,
	"J": SubwayJZ, "Z": SubwayJZ,
	"L": SubwayL,
	"N": SubwayNQRW, "Q": SubwayNQRW, "R": SubwayNQRW, "W": SubwayNQRW,
	"SI": SubwaySIR, "SIR": SubwaySIR,
}

// SubwayKind returns the line-group feed carrying a subway route.
func SubwayKind(route string) (Kind, bool) {
	k, ok := subwayRouteKinds[strings.ToUpper(strings.TrimSpace(route))]
	return k, ok
}

// SubwayKinds lists the subway line-group feeds in a fixed order.
func SubwayKinds() []Kind {
	return []Kind{Subway1234567S, SubwayACE, SubwayBDFM, SubwayG, SubwayJZ, SubwayL, SubwayNQRW, SubwaySIR}
}
