package alerts

import "strings"

type keywordRule[T any] struct {
	value    T
	keywords []string
}

func matchKeywords[T any](text string, rules []keywordRule[T]) (T, bool) {
	text = strings.ToLower(text)
	if text != "" {
		for _, r := range rules {
			for _, kw := range r.keywords {
				if strings.Contains(text, kw) {
					return r.value, true
				}
			}
		}
	}
	var zero T
	return zero, false
}

// Rules are checked top to bottom; the first hit wins.
var severityKeywords = []keywordRule[Severity]{
	{SeveritySevere, []string{"severe", "suspend", "no service", "not running", "closed"}},
	{SeverityWarning, []string{"delay", "slow", "reroute", "detour", "skip", "reduced", "express", "local", "change"}},
	{SeverityInfo, []string{"planned", "notice", "elevator", "escalator", "information"}},
}

var typeKeywords = []keywordRule[Type]{
	{TypePlannedWork, []string{"planned", "construction", "track work"}},
	{TypeStationClosure, []string{"station closed", "station is closed", "closed"}},
	{TypeSuspension, []string{"suspend", "no service", "not running"}},
	{TypeDelay, []string{"delay", "slow"}},
	{TypeDetour, []string{"detour", "reroute"}},
	{TypeAccessibility, []string{"elevator", "escalator", "accessib", "ada "}},
	{TypeServiceChange, []string{"skip", "express", "local", "reduced", "change", "boarding"}},
}

// classification is the raw vocabulary an alert arrives with.
type classification struct {
	severityLevel string
	extensionType string
	effect        string
	cause         string
	header        string
}

// severity: explicit level, then the mode extension, then the effect, then
// header keywords, then INFO.
func (c classification) severity() Severity {
	switch strings.ToUpper(strings.TrimSpace(c.severityLevel)) {
	case "SEVERE":
		return SeveritySevere
	case "WARNING":
		return SeverityWarning
	case "INFO":
		return SeverityInfo
	}
	if s, ok := matchKeywords(c.extensionType, severityKeywords); ok {
		return s
	}
	switch strings.ToUpper(c.effect) {
	case "NO_SERVICE", "SIGNIFICANT_DELAYS":
		return SeveritySevere
	case "REDUCED_SERVICE", "DETOUR", "MODIFIED_SERVICE", "STOP_MOVED", "ACCESSIBILITY_ISSUE":
		return SeverityWarning
	case "ADDITIONAL_SERVICE", "NO_EFFECT", "OTHER_EFFECT":
		return SeverityInfo
	}
	if s, ok := matchKeywords(c.header, severityKeywords); ok {
		return s
	}
	return SeverityInfo
}

// alertType: mode extension, then effect, then cause, then header
// keywords, then OTHER.
func (c classification) alertType() Type {
	if t, ok := matchKeywords(c.extensionType, typeKeywords); ok {
		return t
	}
	switch strings.ToUpper(c.effect) {
	case "NO_SERVICE":
		return TypeSuspension
	case "SIGNIFICANT_DELAYS":
		return TypeDelay
	case "DETOUR":
		return TypeDetour
	case "STOP_MOVED":
		return TypeStationClosure
	case "REDUCED_SERVICE", "MODIFIED_SERVICE", "ADDITIONAL_SERVICE":
		return TypeServiceChange
	case "ACCESSIBILITY_ISSUE":
		return TypeAccessibility
	}
	switch strings.ToUpper(c.cause) {
	case "MAINTENANCE", "CONSTRUCTION":
		return TypePlannedWork
	case "TECHNICAL_PROBLEM", "ACCIDENT", "MEDICAL_EMERGENCY", "POLICE_ACTIVITY", "WEATHER", "STRIKE", "DEMONSTRATION":
		return TypeDelay
	}
	if t, ok := matchKeywords(c.header, typeKeywords); ok {
		return t
	}
	return TypeOther
}

func (c classification) apply(a *ServiceAlert) {
	a.Severity = c.severity()
	a.Type = c.alertType()
	a.Cause = c.cause
	a.Effect = c.effect
}
