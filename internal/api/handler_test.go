package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corestate/corestate/internal/diagnostics"
	"github.com/corestate/corestate/internal/settings"
	"github.com/corestate/corestate/internal/store"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func float64Ptr(f float64) *float64 { return &f }

func newTestServer(t *testing.T) (*httptest.Server, *settings.Registry, *diagnostics.Manager) {
	t.Helper()

	registry := settings.NewRegistry(settings.RegistryOptions{
		Store:  store.NewMemoryStore(),
		Logger: testLogger(),
	})
	registry.RegisterCategory(settings.Category{ID: "display", Label: "Display", Order: 1})
	registry.RegisterSetting(settings.Definition{
		Key:      "display.brightness",
		Category: "display",
		Label:    "Brightness",
		Type:     settings.TypeNumber,
		Default:  float64(50),
		Min:      float64Ptr(0),
		Max:      float64Ptr(100),
	})
	registry.RegisterSetting(settings.Definition{
		Key:      "display.theme",
		Category: "display",
		Label:    "Theme",
		Type:     settings.TypeSelect,
		Default:  "dark",
		Options: []settings.Option{
			{Value: "dark", Label: "Dark"},
			{Value: "light", Label: "Light"},
		},
	})

	diag := diagnostics.NewManager(diagnostics.ManagerOptions{
		Store:           store.NewMemoryStore(),
		Logger:          testLogger(),
		DisableAutoHide: true,
	})
	t.Cleanup(diag.Close)

	router := mux.NewRouter()
	NewHandler(registry, diag, testLogger()).RegisterRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, registry, diag
}

func decodeResponse(t *testing.T, resp *http.Response) APIResponse {
	t.Helper()
	defer resp.Body.Close()
	var out APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func putJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	out := decodeResponse(t, resp)

	assert.Equal(t, 200, resp.StatusCode)
	assert.True(t, out.Success)
}

func TestListSettingsGroupedByCategory(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/settings")
	require.NoError(t, err)
	out := decodeResponse(t, resp)

	require.Equal(t, 200, resp.StatusCode)
	groups, ok := out.Data.([]any)
	require.True(t, ok)
	require.Len(t, groups, 1)
}

func TestGetSetting(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/settings/display.brightness")
	require.NoError(t, err)
	out := decodeResponse(t, resp)

	require.Equal(t, 200, resp.StatusCode)
	data := out.Data.(map[string]any)
	value := data["value"].(map[string]any)
	assert.Equal(t, float64(50), value["value"])
	assert.Equal(t, true, value["isDefault"])
}

func TestGetSettingUnknownKeyIs404(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/settings/display.missing")
	require.NoError(t, err)
	out := decodeResponse(t, resp)

	assert.Equal(t, 404, resp.StatusCode)
	assert.False(t, out.Success)
}

func TestPutSettingAcceptsValidValue(t *testing.T) {
	srv, registry, _ := newTestServer(t)

	resp := putJSON(t, srv.URL+"/api/v1/settings/display.brightness", map[string]any{"value": 80})
	out := decodeResponse(t, resp)

	require.Equal(t, 200, resp.StatusCode)
	assert.True(t, out.Success)

	v, ok := registry.Get("display.brightness")
	require.True(t, ok)
	assert.Equal(t, float64(80), v)
}

func TestPutSettingValidationFailureIs422(t *testing.T) {
	srv, registry, _ := newTestServer(t)

	resp := putJSON(t, srv.URL+"/api/v1/settings/display.brightness", map[string]any{"value": 150})
	out := decodeResponse(t, resp)

	assert.Equal(t, 422, resp.StatusCode)
	assert.Contains(t, out.Error, "at most")

	v, _ := registry.Get("display.brightness")
	assert.Equal(t, float64(50), v)
}

func TestPutSettingTypeMismatchIs422(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := putJSON(t, srv.URL+"/api/v1/settings/display.brightness", map[string]any{"value": "bright"})

	assert.Equal(t, 422, resp.StatusCode)
	resp.Body.Close()
}

func TestPutSettingUnknownKeyIs404(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := putJSON(t, srv.URL+"/api/v1/settings/display.missing", map[string]any{"value": 1})

	assert.Equal(t, 404, resp.StatusCode)
	resp.Body.Close()
}

func TestPutSettingStorageFailureIs502(t *testing.T) {
	mem := store.NewMemoryStore()
	registry := settings.NewRegistry(settings.RegistryOptions{
		Store:  mem,
		Logger: testLogger(),
	})
	registry.RegisterSetting(settings.Definition{
		Key:     "general.autostart",
		Label:   "Start automatically",
		Type:    settings.TypeBoolean,
		Default: false,
	})
	diag := diagnostics.NewManager(diagnostics.ManagerOptions{
		Store:           store.NewMemoryStore(),
		Logger:          testLogger(),
		DisableAutoHide: true,
	})
	defer diag.Close()

	router := mux.NewRouter()
	NewHandler(registry, diag, testLogger()).RegisterRoutes(router)
	srv := httptest.NewServer(router)
	defer srv.Close()

	mem.FailWrites = assert.AnError
	resp := putJSON(t, srv.URL+"/api/v1/settings/general.autostart", map[string]any{"value": true})
	resp.Body.Close()

	assert.Equal(t, 502, resp.StatusCode)
	// The in-memory value is still updated.
	v, _ := registry.Get("general.autostart")
	assert.Equal(t, true, v)
}

func TestResetSetting(t *testing.T) {
	srv, registry, _ := newTestServer(t)
	resp := putJSON(t, srv.URL+"/api/v1/settings/display.theme", map[string]any{"value": "light"})
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/settings/display.theme/reset", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, 200, resp.StatusCode)
	v, _ := registry.Get("display.theme")
	assert.Equal(t, "dark", v)
}

func TestResetAllSettings(t *testing.T) {
	srv, registry, _ := newTestServer(t)
	putJSON(t, srv.URL+"/api/v1/settings/display.brightness", map[string]any{"value": 80}).Body.Close()
	putJSON(t, srv.URL+"/api/v1/settings/display.theme", map[string]any{"value": "light"}).Body.Close()

	resp, err := http.Post(srv.URL+"/api/v1/settings/reset", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, 200, resp.StatusCode)
	v, _ := registry.Get("display.brightness")
	assert.Equal(t, float64(50), v)
	v, _ = registry.Get("display.theme")
	assert.Equal(t, "dark", v)
}

func TestSearchSettings(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/settings/search?q=bright")
	require.NoError(t, err)
	out := decodeResponse(t, resp)

	require.Equal(t, 200, resp.StatusCode)
	results := out.Data.([]any)
	require.Len(t, results, 1)
}

func TestSearchSettingsMissingQueryIs400(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/settings/search")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, 400, resp.StatusCode)
}

func TestExportImportRoundTrip(t *testing.T) {
	srv, registry, _ := newTestServer(t)
	putJSON(t, srv.URL+"/api/v1/settings/display.theme", map[string]any{"value": "light"}).Body.Close()

	resp, err := http.Get(srv.URL + "/api/v1/settings/export")
	require.NoError(t, err)
	out := decodeResponse(t, resp)
	require.Equal(t, 200, resp.StatusCode)

	exported, err := json.Marshal(out.Data)
	require.NoError(t, err)

	require.NoError(t, registry.ResetAll(t.Context()))

	resp, err = http.Post(srv.URL+"/api/v1/settings/import", "application/json", bytes.NewReader(exported))
	require.NoError(t, err)
	imported := decodeResponse(t, resp)
	require.Equal(t, 200, resp.StatusCode)
	assert.True(t, imported.Success)

	v, _ := registry.Get("display.theme")
	assert.Equal(t, "light", v)
}

func TestErrorEndpoints(t *testing.T) {
	srv, _, diag := newTestServer(t)
	id := diag.Log(diagnostics.CodeNetwork, "boom", "sync", diagnostics.SeverityHigh, nil, nil)

	resp, err := http.Get(srv.URL + "/api/v1/errors")
	require.NoError(t, err)
	out := decodeResponse(t, resp)
	require.Equal(t, 200, resp.StatusCode)
	assert.Len(t, out.Data.([]any), 1)

	resp, err = http.Post(srv.URL+"/api/v1/errors/"+id+"/resolve", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
	assert.True(t, diag.Errors()[0].Resolved)

	resp, err = http.Get(srv.URL + "/api/v1/errors?unresolved=true")
	require.NoError(t, err)
	out = decodeResponse(t, resp)
	assert.Empty(t, out.Data)
}

func TestResolveUnknownErrorIs404(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/v1/errors/nope/resolve", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, 404, resp.StatusCode)
}

func TestRetryErrorIncrementsCount(t *testing.T) {
	srv, _, diag := newTestServer(t)
	id := diag.Log(diagnostics.CodeTimeout, "slow", "sync", diagnostics.SeverityMedium, nil, nil)

	resp, err := http.Post(srv.URL+"/api/v1/errors/"+id+"/retry", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 1, diag.Errors()[0].RetryCount)
}

func TestErrorStatsAndExport(t *testing.T) {
	srv, _, diag := newTestServer(t)
	diag.Log(diagnostics.CodePanic, "boom", "worker", diagnostics.SeverityCritical, nil, nil)

	resp, err := http.Get(srv.URL + "/api/v1/errors/stats")
	require.NoError(t, err)
	out := decodeResponse(t, resp)
	require.Equal(t, 200, resp.StatusCode)
	stats := out.Data.(map[string]any)
	assert.Equal(t, float64(1), stats["total"])

	resp, err = http.Get(srv.URL + "/api/v1/errors/export")
	require.NoError(t, err)
	out = decodeResponse(t, resp)
	require.Equal(t, 200, resp.StatusCode)
	export := out.Data.(map[string]any)
	assert.Equal(t, diag.SessionID(), export["sessionId"])
}

func TestClearErrors(t *testing.T) {
	srv, _, diag := newTestServer(t)
	diag.Log(diagnostics.CodeRuntime, "boom", "worker", diagnostics.SeverityMedium, nil, nil)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/errors", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, 200, resp.StatusCode)
	assert.Empty(t, diag.Errors())
}

func TestClearResolvedErrors(t *testing.T) {
	srv, _, diag := newTestServer(t)
	resolved := diag.Log(diagnostics.CodeRuntime, "done", "worker", diagnostics.SeverityMedium, nil, nil)
	diag.Log(diagnostics.CodeRuntime, "pending", "worker", diagnostics.SeverityMedium, nil, nil)
	diag.Resolve(resolved)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/errors/resolved", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, 200, resp.StatusCode)
	require.Len(t, diag.Errors(), 1)
	assert.Equal(t, "pending", diag.Errors()[0].Message)
}
