package alerts

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"crowdcast.transitpulse.org/internal/feed"
	"crowdcast.transitpulse.org/internal/logging"
)

// ErrInvalidPayload wraps every schema or syntax failure. A payload that
// fails anywhere is rejected as a whole.
var ErrInvalidPayload = errors.New("invalid alert payload")

// The JSON alert feed mirrors GTFS-Realtime with string enums.
type alertFeed struct {
	Header *feedHeader   `json:"header" validate:"required"`
	Entity []alertEntity `json:"entity" validate:"dive"`
}

type feedHeader struct {
	Version   string `json:"gtfs_realtime_version"`
	Timestamp int64  `json:"timestamp" validate:"gte=0"`
}

type alertEntity struct {
	ID    string     `json:"id" validate:"required"`
	Alert *alertBody `json:"alert" validate:"required"`
}

type alertBody struct {
	ActivePeriod    []activePeriod   `json:"active_period" validate:"dive"`
	InformedEntity  []informedEntity `json:"informed_entity" validate:"dive"`
	HeaderText      *translatedText  `json:"header_text"`
	DescriptionText *translatedText  `json:"description_text"`
	Cause           string           `json:"cause"`
	Effect          string           `json:"effect"`
	SeverityLevel   string           `json:"severity_level"`

	// The MTA publishes its extension under the proto extension name.
	Extension *modeExtension `json:"mode_specific_extension"`
	Mercury   *modeExtension `json:"transit_realtime.mercury_alert"`
}

type activePeriod struct {
	Start int64 `json:"start" validate:"gte=0"`
	End   int64 `json:"end" validate:"omitempty,gtefield=Start"`
}

type informedEntity struct {
	AgencyID string `json:"agency_id"`
	RouteID  string `json:"route_id"`
	StopID   string `json:"stop_id"`
}

type translatedText struct {
	Translation []translation `json:"translation" validate:"dive"`
}

type translation struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type modeExtension struct {
	AlertType string `json:"alert_type"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

func (b *alertBody) extension() *modeExtension {
	if b.Extension != nil {
		return b.Extension
	}
	return b.Mercury
}

// Parser validates and normalizes the JSON alert and equipment feeds.
type Parser struct {
	validate *validator.Validate
	logger   *slog.Logger
	loc      *time.Location
}

// NewParser returns a Parser. loc is the zone the equipment feeds write
// their local timestamps in; nil means UTC.
func NewParser(logger *slog.Logger, loc *time.Location) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Parser{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With(slog.String("component", "alert_parser")),
		loc:      loc,
	}
}

// decode unmarshals and validates body into v. Failures are logged once and
// wrapped in ErrInvalidPayload.
func (p *Parser) decode(source string, body []byte, v any) error {
	err := json.Unmarshal(body, v)
	if err == nil {
		err = p.validateValue(v)
	}
	if err != nil {
		logging.LogWarn(p.logger, "rejected payload", err,
			slog.String("source", source),
			slog.Int("bytes", len(body)))
		return fmt.Errorf("%w: %s: %w", ErrInvalidPayload, source, err)
	}
	return nil
}

func (p *Parser) validateValue(v any) error {
	switch t := v.(type) {
	case *[]outageRecord:
		return validateEach(p.validate, *t)
	case *[]equipmentRecord:
		return validateEach(p.validate, *t)
	}
	return p.validate.Struct(v)
}

func validateEach[T any](v *validator.Validate, records []T) error {
	for i := range records {
		if err := v.Struct(&records[i]); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

// Parse turns the JSON alert feed into ServiceAlerts. On any syntax or
// schema violation it returns an empty list and an error wrapping
// ErrInvalidPayload. Alerts without header text are dropped.
func (p *Parser) Parse(body []byte) ([]ServiceAlert, error) {
	var doc alertFeed
	if err := p.decode("alerts", body, &doc); err != nil {
		return []ServiceAlert{}, err
	}

	out := make([]ServiceAlert, 0, len(doc.Entity))
	for _, e := range doc.Entity {
		header := preferred(e.Alert.HeaderText)
		if header == "" {
			continue
		}
		var routes, stops []string
		for _, ie := range e.Alert.InformedEntity {
			routes = append(routes, ie.RouteID)
			stops = append(stops, ie.StopID)
		}
		periods := make([]Period, 0, len(e.Alert.ActivePeriod))
		for _, ap := range e.Alert.ActivePeriod {
			periods = append(periods, Period{Start: epoch(ap.Start), End: epoch(ap.End)})
		}

		a := newAlert(e.ID, routes, stops, periods)
		a.Header = header
		a.Description = preferred(e.Alert.DescriptionText)

		c := classification{
			severityLevel: e.Alert.SeverityLevel,
			effect:        e.Alert.Effect,
			cause:         e.Alert.Cause,
			header:        header,
		}
		if ext := e.Alert.extension(); ext != nil {
			c.extensionType = ext.AlertType
		}
		c.apply(&a)
		out = append(out, a)
	}
	return out, nil
}

// FromFeed converts alerts carried in a protobuf feed message.
func FromFeed(msg *feed.Message) []ServiceAlert {
	if msg == nil {
		return []ServiceAlert{}
	}
	out := make([]ServiceAlert, 0)
	for _, e := range msg.Entities {
		if e.Alert == nil || e.Alert.Header == "" {
			continue
		}
		periods := make([]Period, 0, len(e.Alert.ActivePeriods))
		for _, ap := range e.Alert.ActivePeriods {
			periods = append(periods, Period{Start: ap.Start, End: ap.End})
		}
		a := newAlert(e.ID, e.Alert.RouteIDs, e.Alert.StopIDs, periods)
		a.Header = e.Alert.Header
		a.Description = e.Alert.Description
		classification{
			effect: e.Alert.Effect,
			cause:  e.Alert.Cause,
			header: e.Alert.Header,
		}.apply(&a)
		out = append(out, a)
	}
	return out
}

func preferred(t *translatedText) string {
	if t == nil {
		return ""
	}
	list := make([]feed.Translation, 0, len(t.Translation))
	for _, tr := range t.Translation {
		list = append(list, feed.Translation{Text: tr.Text, Language: tr.Language})
	}
	return feed.PreferredText(list)
}

func epoch(secs int64) *time.Time {
	if secs <= 0 {
		return nil
	}
	t := time.Unix(secs, 0).UTC()
	return &t
}
