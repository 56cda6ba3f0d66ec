package app

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"crowdcast.transitpulse.org/internal/appconf"
)

func TestIsInvalidAPIKey(t *testing.T) {
	a := &Application{Config: appconf.Config{ApiKeys: []string{"alpha", "beta"}}}

	assert.False(t, a.IsInvalidAPIKey("alpha"))
	assert.False(t, a.IsInvalidAPIKey("beta"))
	assert.True(t, a.IsInvalidAPIKey(""))
	assert.True(t, a.IsInvalidAPIKey("alph"))
	assert.True(t, a.IsInvalidAPIKey("gamma"))
}

func TestRequestHasInvalidAPIKey(t *testing.T) {
	a := &Application{Config: appconf.Config{ApiKeys: []string{"alpha"}}}
	assert.False(t, a.RequestHasInvalidAPIKey(httptest.NewRequest("GET", "/api/v1/current-time?key=alpha", nil)))
	assert.True(t, a.RequestHasInvalidAPIKey(httptest.NewRequest("GET", "/api/v1/current-time?key=nope", nil)))
	assert.True(t, a.RequestHasInvalidAPIKey(httptest.NewRequest("GET", "/api/v1/current-time", nil)))

	open := &Application{}
	assert.False(t, open.KeysRequired())
	assert.False(t, open.RequestHasInvalidAPIKey(httptest.NewRequest("GET", "/api/v1/current-time", nil)))
}
