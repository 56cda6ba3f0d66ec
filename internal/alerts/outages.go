package alerts

import (
	"strings"
	"time"
)

// The elevator and escalator feeds write timestamps in local time.
const outageTimeLayout = "01/02/2006 03:04:05 PM"

type EquipmentType string

const (
	Elevator  EquipmentType = "elevator"
	Escalator EquipmentType = "escalator"
)

// EquipmentOutage is one current or upcoming elevator/escalator outage.
type EquipmentOutage struct {
	Station         string        `json:"station"`
	Borough         string        `json:"borough,omitempty"`
	Routes          []string      `json:"routes"`
	EquipmentID     string        `json:"equipmentId"`
	EquipmentType   EquipmentType `json:"equipmentType"`
	Serving         string        `json:"serving,omitempty"`
	ADA             bool          `json:"ada"`
	OutageStart     *time.Time    `json:"outageStart,omitempty"`
	EstimatedReturn *time.Time    `json:"estimatedReturn,omitempty"`
	Reason          string        `json:"reason,omitempty"`
	Upcoming        bool          `json:"upcoming"`
	Maintenance     bool          `json:"maintenance"`
}

// Equipment is one entry of the static equipment list.
type Equipment struct {
	EquipmentID   string        `json:"equipmentId"`
	Station       string        `json:"station"`
	Borough       string        `json:"borough,omitempty"`
	Routes        []string      `json:"routes"`
	EquipmentType EquipmentType `json:"equipmentType"`
	Serving       string        `json:"serving,omitempty"`
	ADA           bool          `json:"ada"`
	Active        bool          `json:"active"`
	StopIDs       []string      `json:"stopIds,omitempty"`
	Description   string        `json:"description,omitempty"`
}

type outageRecord struct {
	Station         string `json:"station" validate:"required"`
	Borough         string `json:"borough"`
	TrainNo         string `json:"trainno"`
	Equipment       string `json:"equipment" validate:"required"`
	EquipmentType   string `json:"equipmenttype" validate:"required,oneof=EL ES"`
	Serving         string `json:"serving"`
	ADA             string `json:"ADA" validate:"omitempty,oneof=Y N"`
	OutageDate      string `json:"outagedate"`
	EstimatedReturn string `json:"estimatedreturntoservice"`
	Reason          string `json:"reason"`
	IsUpcoming      string `json:"isupcomingoutage" validate:"omitempty,oneof=Y N"`
	IsMaintenance   string `json:"ismaintenanceoutage" validate:"omitempty,oneof=Y N"`
}

type equipmentRecord struct {
	Station       string `json:"station" validate:"required"`
	Borough       string `json:"borough"`
	TrainNo       string `json:"trainno"`
	EquipmentNo   string `json:"equipmentno" validate:"required"`
	EquipmentType string `json:"equipmenttype" validate:"required,oneof=EL ES"`
	Serving       string `json:"serving"`
	ADA           string `json:"ADA" validate:"omitempty,oneof=Y N"`
	IsActive      string `json:"isactive" validate:"omitempty,oneof=Y N"`
	StopIDs       string `json:"elevatorsgtfsstopid"`
	Description   string `json:"shortdescription"`
}

// ParseOutages parses the elevator/escalator outage feed. Like Parse, one
// bad record rejects the whole payload.
func (p *Parser) ParseOutages(body []byte) ([]EquipmentOutage, error) {
	var records []outageRecord
	if err := p.decode("outages", body, &records); err != nil {
		return []EquipmentOutage{}, err
	}
	out := make([]EquipmentOutage, 0, len(records))
	for _, r := range records {
		out = append(out, EquipmentOutage{
			Station:         strings.TrimSpace(r.Station),
			Borough:         r.Borough,
			Routes:          splitList(r.TrainNo, "/"),
			EquipmentID:     r.Equipment,
			EquipmentType:   equipmentType(r.EquipmentType),
			Serving:         strings.TrimSpace(r.Serving),
			ADA:             r.ADA == "Y",
			OutageStart:     p.localTime(r.OutageDate),
			EstimatedReturn: p.localTime(r.EstimatedReturn),
			Reason:          strings.TrimSpace(r.Reason),
			Upcoming:        r.IsUpcoming == "Y",
			Maintenance:     r.IsMaintenance == "Y",
		})
	}
	return out, nil
}

// ParseEquipment parses the static equipment list.
func (p *Parser) ParseEquipment(body []byte) ([]Equipment, error) {
	var records []equipmentRecord
	if err := p.decode("equipment", body, &records); err != nil {
		return []Equipment{}, err
	}
	out := make([]Equipment, 0, len(records))
	for _, r := range records {
		out = append(out, Equipment{
			EquipmentID:   r.EquipmentNo,
			Station:       strings.TrimSpace(r.Station),
			Borough:       r.Borough,
			Routes:        splitList(r.TrainNo, "/"),
			EquipmentType: equipmentType(r.EquipmentType),
			Serving:       strings.TrimSpace(r.Serving),
			ADA:           r.ADA == "Y",
			Active:        r.IsActive != "N",
			StopIDs:       splitList(r.StopIDs, "/"),
			Description:   strings.TrimSpace(r.Description),
		})
	}
	return out, nil
}

// OutagesForRoute keeps current (not upcoming) outages at stations the
// route serves.
func OutagesForRoute(list []EquipmentOutage, route string) []EquipmentOutage {
	out := make([]EquipmentOutage, 0)
	for _, o := range list {
		if o.Upcoming {
			continue
		}
		for _, r := range o.Routes {
			if route == "" || strings.EqualFold(r, route) {
				out = append(out, o)
				break
			}
		}
	}
	return out
}

func (p *Parser) localTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.ParseInLocation(outageTimeLayout, s, p.loc)
	if err != nil {
		return nil
	}
	return &t
}

func equipmentType(code string) EquipmentType {
	if code == "ES" {
		return Escalator
	}
	return Elevator
}

func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
