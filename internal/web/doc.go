// Package web is the exporter's HTTP surface: the /metrics exposition
// endpoint, a small landing page, and optional API-key protection. As long
// as the process is alive these endpoints answer 200, independent of
// appliance health.
package web
