// Package fnos talks to the management API of an fnOS storage appliance.
// It owns the authenticated session (session.go) and exposes the read calls
// the exporter polls: system uptime, disk inventory, disk runtime telemetry
// and per-disk SMART data (client.go).
//
// Every call classifies its failure into exactly one of AuthError,
// TransportError or MalformedResponseError (errors.go) so the collector can
// decide per cycle what to tolerate. An auth failure on a data call is
// retried once within the same call after a transparent re-login; nothing
// else is retried automatically.
package fnos
