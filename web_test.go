package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWebServer(t *testing.T, cfg *Config) *httptest.Server {
	t.Helper()

	errs := make(chan error, 64)

	mux := httprouter.New()
	mux.GET("/", serveHomePage(cfg))
	mux.GET("/favicons/*favicon", serveFavicons(cfg, errs))
	mux.GET("/favicon.svg", serveFavicons(cfg, errs))
	mux.GET("/healthz", serveHealthCheck(cfg, errs))
	mux.GET("/robots.txt", serveRobots(cfg, errs))
	mux.GET("/version", serveVersion(cfg, errs))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func getBody(t *testing.T, url string) (*http.Response, string) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(body)
}

func TestOperationalEndpoints(t *testing.T) {
	cfg := testConfig()
	cfg.port = 8080
	srv := startWebServer(t, cfg)

	tests := []struct {
		name        string
		path        string
		contentType string
		contains    string
	}{
		{
			name:        "health check",
			path:        "/healthz",
			contentType: "text/plain; charset=utf-8",
			contains:    "Ok",
		},
		{
			name:        "version",
			path:        "/version",
			contentType: "text/plain; charset=utf-8",
			contains:    "typeduel v" + releaseVersion,
		},
		{
			name:        "robots",
			path:        "/robots.txt",
			contentType: "text/plain; charset=utf-8",
			contains:    "GPTBot",
		},
		{
			name:        "home page",
			path:        "/",
			contentType: "text/html; charset=utf-8",
			contains:    "typeduel",
		},
		{
			name:     "favicon",
			path:     "/favicons/favicon.svg",
			contains: "<svg",
		},
		{
			name:     "root favicon alias",
			path:     "/favicon.svg",
			contains: "<svg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := getBody(t, srv.URL+tt.path)

			require.Equal(t, http.StatusOK, resp.StatusCode)
			if tt.contentType != "" {
				assert.Equal(t, tt.contentType, resp.Header.Get("Content-Type"))
			}
			assert.Contains(t, body, tt.contains)
			assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
		})
	}
}

func TestBattleClientAssets(t *testing.T) {
	cfg := testConfig()
	srv := startBattleServer(t, cfg)

	resp, body := getBody(t, srv.URL+"/battle")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "typeduel")

	resp, body = getBody(t, srv.URL+"/assets/battle/app.js")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/javascript; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "playerSubmittedAnswer")

	resp, body = getBody(t, srv.URL+"/assets/battle/app.css")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/css; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, ".word")
}

func TestRealIP(t *testing.T) {
	tests := []struct {
		name     string
		remote   string
		headers  map[string]string
		expected string
	}{
		{
			name:     "plain remote addr",
			remote:   "192.0.2.10:1234",
			expected: "192.0.2.10:1234",
		},
		{
			name:     "cloudflare header wins",
			remote:   "198.51.100.1:1234",
			headers:  map[string]string{"CF-Connecting-IP": "203.0.113.7"},
			expected: "203.0.113.7:1234",
		},
		{
			name:     "x-real-ip fallback",
			remote:   "198.51.100.1:1234",
			headers:  map[string]string{"X-Real-IP": "203.0.113.8"},
			expected: "203.0.113.8:1234",
		},
		{
			name:     "ipv6 is bracketed",
			remote:   "[2001:db8::1]:1234",
			expected: "[2001:db8::1]:1234",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}

			assert.Equal(t, tt.expected, realIP(r))
		})
	}
}
