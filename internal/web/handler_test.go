package web

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/timandes/fnos-exporter/internal/config"
)

func newTestServer(t *testing.T, auth config.AuthConfig) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(prometheus.NewRegistry(), auth))
	t.Cleanup(srv.Close)
	return srv
}

func TestHandler_LandingPage(t *testing.T) {
	srv := newTestServer(t, config.AuthConfig{})

	resp, err := srv.Client().Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `href="/metrics"`) {
		t.Error("landing page should link to /metrics")
	}
}

func TestHandler_UnknownPath(t *testing.T) {
	srv := newTestServer(t, config.AuthConfig{})

	resp, err := srv.Client().Get(srv.URL + "/nope")
	if err != nil {
		t.Fatalf("GET /nope: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHandler_Metrics(t *testing.T) {
	srv := newTestServer(t, config.AuthConfig{})

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestHandler_APIKey(t *testing.T) {
	t.Setenv("TEST_SCRAPE_KEY", "s3cret")
	srv := newTestServer(t, config.AuthConfig{
		Mode:   "apikey",
		Header: "X-Api-Key",
		KeyEnv: "TEST_SCRAPE_KEY",
	})

	// No key.
	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET without key: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no key: status = %d, want 401", resp.StatusCode)
	}

	// Wrong key.
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/metrics", nil)
	req.Header.Set("X-Api-Key", "wrong")
	resp, err = srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET with wrong key: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", resp.StatusCode)
	}

	// Correct key.
	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/metrics", nil)
	req.Header.Set("X-Api-Key", "s3cret")
	resp, err = srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET with key: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("correct key: status = %d, want 200", resp.StatusCode)
	}
}

func TestHandler_APIKeyDisabledWithoutKey(t *testing.T) {
	// apikey mode with an unset key env degrades to pass-through rather
	// than locking every scraper out.
	srv := newTestServer(t, config.AuthConfig{
		Mode:   "apikey",
		Header: "X-Api-Key",
		KeyEnv: "TEST_SCRAPE_KEY_UNSET",
	})

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
