package restapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"crowdcast.transitpulse.org/internal/arrivals"
	"crowdcast.transitpulse.org/internal/crowding"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// pathMode reads and checks the {mode} path value.
func pathMode(r *http.Request) (arrivals.Mode, error) {
	return parseMode(r.PathValue("mode"))
}

func parseMode(s string) (arrivals.Mode, error) {
	mode := arrivals.Mode(strings.ToLower(strings.TrimSpace(s)))
	if !mode.Valid() {
		return "", fmt.Errorf("unknown mode %q", s)
	}
	return mode, nil
}

// optionalMode reads the mode query parameter. Empty means every mode.
func optionalMode(r *http.Request) (arrivals.Mode, error) {
	s := r.URL.Query().Get("mode")
	if s == "" {
		return "", nil
	}
	return parseMode(s)
}

// parseLimit reads limit, defaulting to defaultListLimit and capped at
// maxListLimit.
func parseLimit(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	return min(n, maxListLimit), nil
}

func parseBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// parseHourDay reads hour and day, defaulting each to the service-time
// now.
func parseHourDay(r *http.Request, hour int, day time.Weekday) (int, time.Weekday, error) {
	q := r.URL.Query()
	if s := q.Get("hour"); s != "" {
		h, err := strconv.Atoi(s)
		if err != nil || h < 0 || h > 23 {
			return 0, 0, errors.New("hour must be between 0 and 23")
		}
		hour = h
	}
	if s := q.Get("day"); s != "" {
		d, ok := weekdayNames[strings.ToLower(s)[:min(3, len(s))]]
		if !ok {
			return 0, 0, fmt.Errorf("unknown day %q", s)
		}
		day = d
	}
	return hour, day, nil
}

// sendEngineError maps crowding lookup errors to 404 and anything else to
// 500.
func (api *RestAPI) sendEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, crowding.ErrUnknownRoute):
		api.sendNotFound(w, r, "unknown route")
	case errors.Is(err, crowding.ErrUnknownSegment):
		api.sendNotFound(w, r, "unknown segment")
	default:
		api.serverErrorResponse(w, r, err)
	}
}
