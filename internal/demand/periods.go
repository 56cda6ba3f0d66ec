package demand

import (
	"fmt"
	"slices"
	"time"

	"crowdcast.transitpulse.org/internal/arrivals"
)

// Period is a named band of hours on a set of days. Hours are [Start, End).
type Period struct {
	Name  string         `json:"name" validate:"required"`
	Days  []time.Weekday `json:"days" validate:"min=1,dive,gte=0,lte=6"`
	Start int            `json:"start" validate:"gte=0,lte=23"`
	End   int            `json:"end" validate:"gtfield=Start,lte=24"`
	Rush  bool           `json:"rush"`
	// Peak is the direction carrying the heavier load during the period,
	// if any.
	Peak string `json:"peak,omitempty" validate:"omitempty,oneof=inbound outbound"`
}

// Contains reports whether the hour on day falls in the period.
func (p Period) Contains(hour int, day time.Weekday) bool {
	return hour >= p.Start && hour < p.End && slices.Contains(p.Days, day)
}

var (
	weekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	weekend  = []time.Weekday{time.Saturday, time.Sunday}
	everyDay = append(append([]time.Weekday{}, weekdays...), weekend...)
)

// DefaultPeriods is the built-in period table. The first matching period
// wins.
func DefaultPeriods() []Period {
	return []Period{
		{Name: "morning_rush", Days: weekdays, Start: 6, End: 10, Rush: true, Peak: arrivals.Inbound},
		{Name: "evening_rush", Days: weekdays, Start: 16, End: 20, Rush: true, Peak: arrivals.Outbound},
		{Name: "midday", Days: weekdays, Start: 10, End: 16},
		{Name: "weekend_day", Days: weekend, Start: 10, End: 20},
		{Name: "evening", Days: everyDay, Start: 20, End: 24},
		{Name: "overnight", Days: everyDay, Start: 0, End: 6},
		{Name: "weekend_morning", Days: weekend, Start: 6, End: 10},
	}
}

// ValidatePeriods checks each period's fields.
func ValidatePeriods(periods []Period) error {
	for i := range periods {
		if err := patternValidator.Struct(&periods[i]); err != nil {
			return fmt.Errorf("period %d (%s): %w", i, periods[i].Name, err)
		}
	}
	return nil
}
