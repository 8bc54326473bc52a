package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corestate/corestate/internal/config"
	"github.com/corestate/corestate/internal/metrics"
	"github.com/corestate/corestate/internal/settings"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Listen:      "127.0.0.1:0",
		DataDir:     t.TempDir(),
		LogLevel:    "error",
		AppVersion:  "test",
		Store:       config.StoreConfig{Engine: "sqlite"},
		Diagnostics: config.DiagnosticsConfig{MaxErrors: 100, PersistedTail: 20},
		Metrics:     metrics.Config{Enabled: true, Path: "/metrics"},
	}
}

func newTestHTTPServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := New(testConfig(t), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		srv.diag.Close()
		srv.blobStore.Close()
	})

	ts := httptest.NewServer(srv.buildHandler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func TestNewRegistersBuiltins(t *testing.T) {
	srv, err := New(testConfig(t), testLogger())
	require.NoError(t, err)
	defer srv.blobStore.Close()
	defer srv.diag.Close()

	v, ok := srv.Registry().Get("logging.level")
	require.True(t, ok)
	assert.Equal(t, "info", v)

	cats := srv.Registry().Categories()
	require.Len(t, cats, 3)
	assert.Equal(t, "general", cats[0].ID)
}

func TestNewRejectsUnknownEngine(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Engine = "flatfile"

	_, err := New(cfg, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flatfile")
}

func TestHandlerServesHealthAndMetrics(t *testing.T) {
	_, ts := newTestHTTPServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}

func TestHandlerServesSettings(t *testing.T) {
	_, ts := newTestHTTPServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/settings/logging.level")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}

func TestHandlerRecoversFromPanic(t *testing.T) {
	srv, err := New(testConfig(t), testLogger())
	require.NoError(t, err)
	defer srv.blobStore.Close()
	defer srv.diag.Close()

	// A validator that panics exercises the recovery middleware.
	srv.Registry().RegisterSetting(settings.Definition{
		Key:      "general.poison",
		Category: "general",
		Label:    "Poison",
		Type:     settings.TypeString,
		Default:  "",
		Validate: func(any) string { panic("validator exploded") },
	})

	ts := httptest.NewServer(srv.buildHandler())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/v1/settings/general.poison",
		strings.NewReader(`{"value":"x"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	// The recovery handler answers 500 instead of killing the connection.
	assert.Equal(t, 500, resp.StatusCode)
}

func TestStoreEngines(t *testing.T) {
	for _, engine := range []string{"badger", "pebble", "sqlite"} {
		t.Run(engine, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Store.Engine = engine

			s, err := openStore(cfg, testLogger())
			require.NoError(t, err)
			require.NoError(t, s.Close())
		})
	}
}

func TestRegistryPersistsAcrossServers(t *testing.T) {
	cfg := testConfig(t)

	srv, err := New(cfg, testLogger())
	require.NoError(t, err)
	require.NoError(t, srv.Registry().Set(t.Context(), "logging.level", "debug"))
	srv.diag.Close()
	require.NoError(t, srv.blobStore.Close())

	again, err := New(cfg, testLogger())
	require.NoError(t, err)
	defer again.blobStore.Close()
	defer again.diag.Close()

	v, ok := again.Registry().Get("logging.level")
	require.True(t, ok)
	assert.Equal(t, "debug", v)
}
