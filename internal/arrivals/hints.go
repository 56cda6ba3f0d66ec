package arrivals

import (
	"regexp"
	"strings"
	"unicode"
)

// Display hints (train numbers and headsigns) are parsed from identifiers
// with a fixed table of accepted patterns. Anything the table does not
// recognize yields nil; hints never feed back into scoring.

type hintSource int

const (
	fromTripID hintSource = iota
	fromVehicleLabel
)

type hintPattern struct {
	mode   Mode
	source hintSource
	re     *regexp.Regexp
}

var trainNumberPatterns = []hintPattern{
	// LIRR trip ids end in the public train number: "GO103_25_2067".
	{ModeLIRR, fromTripID, regexp.MustCompile(`^[A-Z]{2}\d{3}_\d+_(\d{1,5})$`)},
	{ModeLIRR, fromVehicleLabel, regexp.MustCompile(`^(\d{1,5})$`)},
	// Metro-North publishes the train number as the vehicle label.
	{ModeMNR, fromVehicleLabel, regexp.MustCompile(`^0*(\d{1,5})$`)},
}

// subwayTripPattern matches NYCT trip ids such as "065200_6..N01R". The
// groups are origin time, route and direction.
var subwayTripPattern = regexp.MustCompile(`^(\d{6})_([A-Z0-9]{1,2})\.{1,2}([NS])([0-9A-Z]*)$`)

// TrainNumber extracts the public train number for a rail trip.
func TrainNumber(mode Mode, tripID, vehicleLabel string) *string {
	for _, p := range trainNumberPatterns {
		if p.mode != mode {
			continue
		}
		in := tripID
		if p.source == fromVehicleLabel {
			in = strings.TrimSpace(vehicleLabel)
		}
		if m := p.re.FindStringSubmatch(in); m != nil {
			return strPtr(m[1])
		}
	}
	return nil
}

// SubwayDestination reads the destination out of an NYCT train id like
// "06 0123+ PEL/BBR". Terminal codes are internal abbreviations and are
// dropped; only a full alphabetic word is surfaced, title-cased.
func SubwayDestination(trainID string) *string {
	i := strings.LastIndexByte(trainID, '/')
	if i < 0 {
		return nil
	}
	dest := strings.TrimSpace(trainID[i+1:])
	if len(dest) < 5 {
		return nil
	}
	for _, r := range dest {
		if !unicode.IsLetter(r) {
			return nil
		}
	}
	title := strings.ToUpper(dest[:1]) + strings.ToLower(dest[1:])
	return &title
}

// subwayTripDirection reads N or S from an NYCT trip id.
func subwayTripDirection(tripID string) string {
	if m := subwayTripPattern.FindStringSubmatch(tripID); m != nil {
		return m[3]
	}
	return ""
}
