package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecorderDisabledIsNil(t *testing.T) {
	r := NewRecorder(Config{Enabled: false})
	assert.Nil(t, r)
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder

	r.RecordSettingWrite("user")
	r.RecordValidationFailure("type")
	r.SetRegisteredSettings(3)
	r.RecordError("high", "sync")
	r.SetActiveNotifications(1)
	r.RecordHTTPRequest("GET", "/settings", "200", time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)
	assert.Equal(t, 404, rec.Code)
}

func TestRecorderRegistersFamilies(t *testing.T) {
	r := NewRecorder(Config{Enabled: true})
	require.NotNil(t, r)

	r.RecordSettingWrite("user")
	r.RecordValidationFailure("range")
	r.SetRegisteredSettings(7)
	r.RecordError("critical", "worker")
	r.SetActiveNotifications(2)
	r.RecordHTTPRequest("PUT", "/settings/{key}", "200", 3*time.Millisecond)

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["corestate_settings_writes_total"])
	assert.True(t, names["corestate_settings_validation_failures_total"])
	assert.True(t, names["corestate_settings_registered_total"])
	assert.True(t, names["corestate_diagnostics_errors_total"])
	assert.True(t, names["corestate_diagnostics_active_notifications"])
	assert.True(t, names["corestate_http_requests_total"])
	assert.True(t, names["corestate_http_request_duration_seconds"])
}

func TestRecorderHandlerServesText(t *testing.T) {
	r := NewRecorder(Config{Enabled: true, Namespace: "teststate"})
	r.RecordSettingWrite("import")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "teststate_settings_writes_total")
}
