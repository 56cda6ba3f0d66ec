// Package webui serves the HTML debug pages.
package webui

import (
	"net/http"

	"crowdcast.transitpulse.org/internal/app"
)

type WebUI struct {
	*app.Application
}

func New(app *app.Application) *WebUI {
	return &WebUI{Application: app}
}

// SetWebUIRoutes registers the debug index. It answers 404 in production.
func (webUI *WebUI) SetWebUIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /debug", webUI.debugIndexHandler)
}
