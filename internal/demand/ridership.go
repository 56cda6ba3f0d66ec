package demand

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/gocarina/gocsv"
)

// ridershipRow is one line of an hourly ridership export.
type ridershipRow struct {
	StationID string  `csv:"station_id" validate:"required"`
	DayType   string  `csv:"day_type" validate:"oneof=weekday weekend"`
	Hour      int     `csv:"hour" validate:"gte=0,lte=23"`
	Ridership float64 `csv:"ridership" validate:"gte=0"`
}

var patternValidator = validator.New(validator.WithRequiredStructEnabled())

func validatePattern(p Pattern) error {
	return patternValidator.Struct(p)
}

// LoadRidership reads an hourly ridership CSV (station_id, day_type, hour,
// ridership) and scales every station to its own busiest hour. Repeated
// rows for the same slot are summed. Hours with no rows are zero.
func LoadRidership(r io.Reader) (map[string]Pattern, error) {
	var rows []ridershipRow
	if err := gocsv.UnmarshalCSV(newCSVReader(r), &rows); err != nil {
		return nil, fmt.Errorf("reading ridership csv: %w", err)
	}

	totals := map[string]*[2][24]float64{}
	for i, row := range rows {
		if err := patternValidator.Struct(row); err != nil {
			return nil, fmt.Errorf("ridership row %d: %w", i+1, err)
		}
		t, ok := totals[row.StationID]
		if !ok {
			t = &[2][24]float64{}
			totals[row.StationID] = t
		}
		dayType := 0
		if row.DayType == "weekend" {
			dayType = 1
		}
		t[dayType][row.Hour] += row.Ridership
	}

	out := make(map[string]Pattern, len(totals))
	for id, t := range totals {
		peak := 0.0
		for _, day := range t {
			for _, v := range day {
				peak = max(peak, v)
			}
		}
		p := Pattern{Weekday: make([]float64, 24), Weekend: make([]float64, 24)}
		if peak > 0 {
			for h := range 24 {
				p.Weekday[h] = t[0][h] / peak
				p.Weekend[h] = t[1][h] / peak
			}
		}
		out[id] = p
	}
	return out, nil
}

// newCSVReader tolerates ragged rows, which the open-data exports contain.
func newCSVReader(in io.Reader) gocsv.CSVReader {
	r := csv.NewReader(in)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	return r
}
