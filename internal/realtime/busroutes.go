package realtime

import "strings"

// fallbackBusRoutes is served when the bus API key is not configured.
var fallbackBusRoutes = []string{
	"B6", "B35", "B41", "B44", "B44+", "B46", "B46+", "B63", "B82",
	"Bx1", "Bx12", "Bx12+", "Bx19", "Bx41+",
	"M14A+", "M14D+", "M15", "M15+", "M34+", "M60+", "M79+", "M86+",
	"Q10", "Q44+", "Q52+", "Q53+", "Q58", "Q70+",
	"S79+",
}

// FallbackBusRoutes returns a copy of the built-in bus route list.
func FallbackBusRoutes() []string {
	return append([]string(nil), fallbackBusRoutes...)
}

// stripAgency drops the agency prefix from a bus feed id
// ("MTA NYCT_B63" -> "B63").
func stripAgency(id string) string {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		return id[i+1:]
	}
	return id
}
