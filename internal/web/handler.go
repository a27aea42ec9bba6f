package web

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/timandes/fnos-exporter/internal/config"
)

const landingPage = `<!DOCTYPE html>
<html>
<head><title>fnOS Exporter</title></head>
<body>
<h1>fnOS Exporter</h1>
<p><a href="/metrics">Metrics</a></p>
</body>
</html>
`

// New builds the exporter's HTTP handler: a landing page on "/" and the
// exposition endpoint on "/metrics", optionally behind an API-key check.
//
// The promhttp handler is configured to continue on error so a scrape always
// gets an HTTP 200 with whatever data is available — a non-200 would read as
// "exporter down" to the monitoring system.
func New(reg *prometheus.Registry, auth config.AuthConfig) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", home)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	}))
	return withAPIKey(auth.Mode, auth.Header, auth.Key(), mux)
}

// home serves the landing page on exactly "/"; anything else unrouted is 404.
func home(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(landingPage))
}

// withAPIKey enforces API-key authentication on every request.
//
// Behaviour:
//   - If mode != "apikey" or key == "", all requests are allowed (pass-through).
//   - Otherwise the value of header is compared to key; a missing, empty, or
//     incorrect key gets 401.
func withAPIKey(mode, header, key string, next http.Handler) http.Handler {
	if mode != "apikey" || key == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(header) != key {
			http.Error(w, "invalid api key", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
