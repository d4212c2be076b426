package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/respawn/go/internal/app"
	"github.com/mcdev12/respawn/go/internal/config"
	"github.com/mcdev12/respawn/go/internal/gateway"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Config{
		Backend:  config.BackendMemory,
		Cache:    config.CacheConfig{Driver: config.CacheBolt, Path: filepath.Join(t.TempDir(), "cache.bolt")},
		Parser:   config.ParserStrict,
		Drift:    config.DriftConfig{Interval: 5 * time.Second, Tolerance: 30 * time.Minute},
		Gateway:  config.GatewayConfig{Port: "0"},
		Timezone: "UTC",
	}
	stack, err := app.Open(context.Background(), cfg)
	require.NoError(t, err)

	svc := gateway.NewService(gateway.DefaultConfig(), stack.NewSession, gateway.RoomReader{
		Catalog:  stack.Catalog,
		Store:    stack.Store,
		Location: stack.Location,
	})
	srv := httptest.NewServer(setupServer(cfg, stack, svc).Handler)
	t.Cleanup(func() {
		srv.Close()
		_ = svc.Stop()
		_ = stack.Close()
	})
	return srv
}

func TestServer_Health(t *testing.T) {
	srv := testServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestServer_InfoAndCORS(t *testing.T) {
	srv := testServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/info", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var info map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "memory", info["backend"])
	assert.Equal(t, true, info["connected"])
	assert.Equal(t, "UTC", info["timezone"])
}

func TestServer_Catalog(t *testing.T) {
	srv := testServer(t)

	resp, err := http.Get(srv.URL + "/catalog")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
