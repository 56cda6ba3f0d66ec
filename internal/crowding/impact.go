package crowding

import (
	"math"
	"sort"
	"time"

	"crowdcast.transitpulse.org/internal/alerts"
)

var severityWeights = map[alerts.Severity]float64{
	alerts.SeveritySevere:  1.0,
	alerts.SeverityWarning: 0.6,
	alerts.SeverityInfo:    0.2,
}

var typeWeights = map[alerts.Type]float64{
	alerts.TypeStationClosure: 1.0,
	alerts.TypeSuspension:     1.0,
	alerts.TypeDelay:          0.7,
	alerts.TypeServiceChange:  0.5,
	alerts.TypeDetour:         0.5,
	alerts.TypePlannedWork:    0.4,
	alerts.TypeOther:          0.3,
	alerts.TypeAccessibility:  0.2,
}

type AlertImpact struct {
	ActiveAlerts     int                 `json:"activeAlerts"`
	SevereAlerts     int                 `json:"severeAlerts"`
	AverageSeverity  float64             `json:"averageSeverity"`
	AffectedStations []string            `json:"affectedStations"`
	ByType           map[alerts.Type]int `json:"byType"`
	// Score is the alert factor in [0, 1].
	Score float64 `json:"score"`
}

// AlertSeverityScore weighs one alert: 0.6 of its severity weight plus 0.4
// of its type weight.
func AlertSeverityScore(a alerts.ServiceAlert) float64 {
	return 0.6*severityWeights[a.Severity] + 0.4*typeWeights[a.Type]
}

// CalculateAlertImpact summarizes the alerts active at now. The list should
// already be narrowed to a route; pass everything for a network figure.
func CalculateAlertImpact(list []alerts.ServiceAlert, now time.Time) AlertImpact {
	impact := AlertImpact{AffectedStations: []string{}, ByType: map[alerts.Type]int{}}
	stations := map[string]bool{}
	var total float64
	for _, a := range alerts.Active(list, now) {
		impact.ActiveAlerts++
		if a.Severity == alerts.SeveritySevere {
			impact.SevereAlerts++
		}
		impact.ByType[a.Type]++
		total += AlertSeverityScore(a)
		for _, s := range a.Stops {
			stations[s] = true
		}
	}
	if impact.ActiveAlerts == 0 {
		return impact
	}
	for s := range stations {
		impact.AffectedStations = append(impact.AffectedStations, s)
	}
	sort.Strings(impact.AffectedStations)

	impact.AverageSeverity = total / float64(impact.ActiveAlerts)
	score := 0.4*math.Min(float64(impact.ActiveAlerts)/5, 1) + 0.6*impact.AverageSeverity
	if impact.SevereAlerts > 0 {
		score += 0.2
	}
	impact.Score = math.Min(1, score)
	return impact
}
