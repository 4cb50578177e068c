package web

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltyorg/vidprev/internal/config"
	"github.com/saltyorg/vidprev/internal/metrics"
)

func assets() fstest.MapFS {
	return fstest.MapFS{
		BundleFile:  {Data: []byte("\x00asm")},
		RuntimeFile: {Data: []byte("class Go {}")},
	}
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	req.Host = "previews.example.com"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := NewServer(Options{Assets: assets()})
	rec := do(t, s.Handler(), http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, healthResponse{Status: "ok", Bundle: true}, resp)

	s = NewServer(Options{})
	rec = do(t, s.Handler(), http.MethodGet, "/healthz")
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Bundle)
}

func TestLoaderEmbedsConfig(t *testing.T) {
	preview := config.DefaultPreview()
	preview.StartTime = 120
	preview.VisibilityPoll = 750 * time.Millisecond
	s := NewServer(Options{Preview: preview, ServerURL: "https://jf.example.com", LogLevel: "debug"})

	rec := do(t, s.Handler(), http.MethodGet, "/vidprev.js")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/javascript; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	body := rec.Body.String()
	assert.Contains(t, body, `const base = "http://previews.example.com/assets";`)
	assert.Contains(t, body, `"startTime":"120"`)
	assert.Contains(t, body, `"visibilityPoll":"750"`)
	assert.Contains(t, body, `"navigationPoll":"250"`)
	assert.Contains(t, body, `"serverUrl":"https://jf.example.com"`)
	assert.Contains(t, body, `"logLevel":"debug"`)
	assert.Contains(t, body, "globalThis."+config.LoaderGlobal)
	assert.Contains(t, body, "/"+BundleFile)
}

func TestLoaderUsesPublicURL(t *testing.T) {
	s := NewServer(Options{PublicURL: "https://cdn.example.com/vidprev", Preview: config.DefaultPreview()})
	rec := do(t, s.Handler(), http.MethodGet, "/vidprev.js")
	assert.Contains(t, rec.Body.String(), `const base = "https://cdn.example.com/vidprev/assets";`)
}

func TestAssets(t *testing.T) {
	s := NewServer(Options{Assets: assets()})

	rec := do(t, s.Handler(), http.MethodGet, "/assets/"+RuntimeFile)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "class Go {}", rec.Body.String())
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	rec = do(t, s.Handler(), http.MethodGet, "/assets/"+BundleFile)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/wasm", rec.Header().Get("Content-Type"))

	rec = do(t, s.Handler(), http.MethodGet, "/assets/missing.js")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, NewServer(Options{}).Handler(), http.MethodGet, "/assets/"+BundleFile)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPreflight(t *testing.T) {
	s := NewServer(Options{Assets: assets()})
	rec := do(t, s.Handler(), http.MethodOptions, "/assets/"+BundleFile)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "GET")
}

func TestMetricsCountRoutes(t *testing.T) {
	s := NewServer(Options{Preview: config.DefaultPreview()})
	before := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("/vidprev.js", "200"))

	do(t, s.Handler(), http.MethodGet, "/vidprev.js")
	do(t, s.Handler(), http.MethodGet, "/vidprev.js")
	assert.Equal(t, before+2, testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("/vidprev.js", "200")))

	rec := do(t, s.Handler(), http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "vidprev_http_requests_total"))
}

func TestAllowSubnet(t *testing.T) {
	_, allowed, err := net.ParseCIDR("10.0.0.0/8")
	require.NoError(t, err)
	s := NewServer(Options{AllowedNet: allowed})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "192.168.1.5:4000"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req.RemoteAddr = "10.1.2.3:4000"
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
